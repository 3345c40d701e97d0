package azure

import (
	"context"
	"encoding/json"

	"github.com/emiliensocchi/aztop/pkg/types"
)

// ResourceModule renders overview rows for management-plane resources. The
// enumerator fetches each resource's full content once and dispatches the
// record to every module that declared its type; records are shared, so
// implementations must not mutate the content.
//
// Modules may perform resource-specific sub-fetches (private endpoints,
// firewall rules) through the RunContext they are handed.
type ResourceModule interface {
	Metadata() types.Metadata
	// ResourceTypes lists the ARM resource types the module handles, e.g.
	// "Microsoft.Storage/storageAccounts".
	ResourceTypes() []string
	Columns() []string
	Render(ctx context.Context, rc *RunContext, rec types.ResourceRecord) ([]types.Row, error)
}

// DirectoryModule renders overview rows for directory-plane objects,
// independent of any subscription.
type DirectoryModule interface {
	Metadata() types.Metadata
	// ObjectType is the Graph collection to enumerate, e.g. "servicePrincipals".
	ObjectType() string
	Columns() []string
	Render(ctx context.Context, rc *RunContext, object json.RawMessage) ([]types.Row, error)
}
