package azure

import (
	"context"

	"github.com/emiliensocchi/aztop/internal/jq"
	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/emiliensocchi/aztop/pkg/types"
)

func init() {
	registry.RegisterResource(&StorageAccountModule{})
}

// StorageAccountModule builds the storage account overview: one row per
// account with its network exposure and data-plane hardening settings.
type StorageAccountModule struct{}

func (m *StorageAccountModule) Metadata() types.Metadata {
	return types.Metadata{
		Id:          "storage-accounts",
		Name:        "storage-accounts",
		Description: "Overview of all storage accounts with network exposure and security posture",
		Platform:    types.Azure,
		Category:    "overview",
		Authors:     []string{"Emilien Socchi"},
		References: []string{
			"https://learn.microsoft.com/en-us/rest/api/storagerp/storage-accounts",
		},
	}
}

func (m *StorageAccountModule) ResourceTypes() []string {
	return []string{"Microsoft.Storage/storageAccounts"}
}

func (m *StorageAccountModule) Columns() []string {
	return []string{
		"Name",
		"Resource group",
		"Subscription",
		"Location",
		"Network restrictions",
		"Whitelisted",
		"Secure transfer required",
		"Minimum TLS version",
		"Blob anonymous access",
		"Shared key access",
		"Infrastructure encryption",
	}
}

func (m *StorageAccountModule) Render(ctx context.Context, rc *azure.RunContext, rec types.ResourceRecord) ([]types.Row, error) {
	exposure, err := azure.ResolveNetworkExposure(ctx, rc, rec.Descriptor.Subscription, rec.Properties())
	if err != nil {
		return nil, err
	}

	row := types.Row{
		"Name":                      rec.Descriptor.Name,
		"Resource group":            rec.Descriptor.ResourceGroup,
		"Subscription":              rec.Descriptor.Subscription,
		"Location":                  rec.Descriptor.Location,
		"Network restrictions":      exposure.Restriction(),
		"Whitelisted":               joinList(exposure.Whitelisted),
		"Secure transfer required":  boolSetting(rec.Content, ".properties.supportsHttpsTrafficOnly", "True"),
		"Minimum TLS version":       jq.QueryString(rec.Content, ".properties.minimumTlsVersion"),
		"Blob anonymous access":     boolSetting(rec.Content, ".properties.allowBlobPublicAccess", "False"),
		"Shared key access":         boolSetting(rec.Content, ".properties.allowSharedKeyAccess", "True"),
		"Infrastructure encryption": boolSetting(rec.Content, ".properties.encryption.requireInfrastructureEncryption", "False"),
	}
	return []types.Row{row}, nil
}
