package entra

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/emiliensocchi/aztop/pkg/graph"
	"github.com/emiliensocchi/aztop/pkg/types"
)

func init() {
	registry.RegisterDirectory(&ServicePrincipalPermissionsModule{})
}

// ServicePrincipalPermissionsModule builds the service principal overview:
// one row per granted application permission, with the permission resolved
// to its human-readable name.
type ServicePrincipalPermissionsModule struct {
	mu        sync.Mutex
	resolvers map[*azure.RunContext]*graph.Resolver
}

func (m *ServicePrincipalPermissionsModule) Metadata() types.Metadata {
	return types.Metadata{
		Id:          "service-principal-permissions",
		Name:        "service-principal-permissions",
		Description: "Overview of all service principals and their granted application permissions",
		Platform:    types.Entra,
		Category:    "overview",
		Authors:     []string{"Emilien Socchi"},
		References: []string{
			"https://learn.microsoft.com/en-us/graph/api/serviceprincipal-list-approleassignments",
		},
	}
}

func (m *ServicePrincipalPermissionsModule) ObjectType() string {
	return "servicePrincipals"
}

func (m *ServicePrincipalPermissionsModule) Columns() []string {
	return []string{
		"Display name",
		"Application ID",
		"Object ID",
		"Resource",
		"Permission",
	}
}

func (m *ServicePrincipalPermissionsModule) Render(ctx context.Context, rc *azure.RunContext, object json.RawMessage) ([]types.Row, error) {
	var principal struct {
		ID          string `json:"id"`
		AppID       string `json:"appId"`
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(object, &principal); err != nil {
		return nil, fmt.Errorf("decoding service principal: %w", err)
	}

	assignments, err := graph.AppRoleAssignments(ctx, rc, principal.ID)
	if err != nil {
		return nil, err
	}

	base := types.Row{
		"Display name":   principal.DisplayName,
		"Application ID": principal.AppID,
		"Object ID":      principal.ID,
	}
	if len(assignments) == 0 {
		return nil, nil
	}

	resolver := m.resolver(rc)
	rows := make([]types.Row, 0, len(assignments))
	for _, assignment := range assignments {
		permission, err := resolver.PermissionName(ctx, assignment)
		if err != nil {
			return nil, err
		}

		row := types.Row{
			"Resource":   assignment.ResourceDisplayName,
			"Permission": permission,
		}
		for key, value := range base {
			row[key] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolver returns the per-run permission resolver, so role definitions are
// fetched once per resource API per run.
func (m *ServicePrincipalPermissionsModule) resolver(rc *azure.RunContext) *graph.Resolver {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolvers == nil {
		m.resolvers = make(map[*azure.RunContext]*graph.Resolver)
	}
	if resolver, ok := m.resolvers[rc]; ok {
		return resolver
	}
	resolver := graph.NewResolver(rc)
	m.resolvers[rc] = resolver
	return resolver
}
