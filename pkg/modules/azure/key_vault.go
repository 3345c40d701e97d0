package azure

import (
	"context"

	"github.com/emiliensocchi/aztop/internal/jq"
	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/emiliensocchi/aztop/pkg/types"
)

func init() {
	registry.RegisterResource(&KeyVaultModule{})
}

// KeyVaultModule builds the key vault overview: network exposure,
// authorization model and deletion protection per vault.
type KeyVaultModule struct{}

func (m *KeyVaultModule) Metadata() types.Metadata {
	return types.Metadata{
		Id:          "key-vaults",
		Name:        "key-vaults",
		Description: "Overview of all key vaults with network exposure and security posture",
		Platform:    types.Azure,
		Category:    "overview",
		Authors:     []string{"Emilien Socchi"},
		References: []string{
			"https://learn.microsoft.com/en-us/rest/api/keyvault/keyvault/vaults",
		},
	}
}

func (m *KeyVaultModule) ResourceTypes() []string {
	return []string{"Microsoft.KeyVault/vaults"}
}

func (m *KeyVaultModule) Columns() []string {
	return []string{
		"Name",
		"Resource group",
		"Subscription",
		"Location",
		"Network restrictions",
		"Whitelisted",
		"Authorization model",
		"Soft delete",
		"Purge protection",
	}
}

func (m *KeyVaultModule) Render(ctx context.Context, rc *azure.RunContext, rec types.ResourceRecord) ([]types.Row, error) {
	exposure, err := azure.ResolveNetworkExposure(ctx, rc, rec.Descriptor.Subscription, rec.Properties())
	if err != nil {
		return nil, err
	}

	model := "Access policies"
	if jq.QueryString(rec.Content, ".properties.enableRbacAuthorization") == "true" {
		model = "Azure RBAC"
	}

	row := types.Row{
		"Name":                 rec.Descriptor.Name,
		"Resource group":       rec.Descriptor.ResourceGroup,
		"Subscription":         rec.Descriptor.Subscription,
		"Location":             rec.Descriptor.Location,
		"Network restrictions": exposure.Restriction(),
		"Whitelisted":          joinList(exposure.Whitelisted),
		"Authorization model":  model,
		"Soft delete":          boolSetting(rec.Content, ".properties.enableSoftDelete", "True"),
		"Purge protection":     boolSetting(rec.Content, ".properties.enablePurgeProtection", "False"),
	}
	return []types.Row{row}, nil
}
