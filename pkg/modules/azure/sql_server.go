package azure

import (
	"context"

	"github.com/emiliensocchi/aztop/internal/jq"
	"github.com/emiliensocchi/aztop/internal/registry"
	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/emiliensocchi/aztop/pkg/types"
)

func init() {
	registry.RegisterResource(&SQLServerModule{})
}

// SQLServerModule builds the SQL server overview. Unlike storage accounts,
// the allow-lists live in firewall-rule and virtual-network-rule child
// resources, so exposure resolution takes the database-server path.
type SQLServerModule struct{}

func (m *SQLServerModule) Metadata() types.Metadata {
	return types.Metadata{
		Id:          "sql-servers",
		Name:        "sql-servers",
		Description: "Overview of all SQL servers with network exposure and security posture",
		Platform:    types.Azure,
		Category:    "overview",
		Authors:     []string{"Emilien Socchi"},
		References: []string{
			"https://learn.microsoft.com/en-us/rest/api/sql/servers",
		},
	}
}

func (m *SQLServerModule) ResourceTypes() []string {
	return []string{"Microsoft.Sql/servers"}
}

func (m *SQLServerModule) Columns() []string {
	return []string{
		"Name",
		"Resource group",
		"Subscription",
		"Location",
		"Network restrictions",
		"Whitelisted",
		"Minimum TLS version",
		"Entra-only authentication",
		"Administrator login",
	}
}

func (m *SQLServerModule) Render(ctx context.Context, rc *azure.RunContext, rec types.ResourceRecord) ([]types.Row, error) {
	exposure, err := azure.DatabaseServerExposure(ctx, rc, rec.Descriptor.Subscription, rec.Descriptor.ID, rec.Properties())
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
		"Minimum TLS version":       jq.QueryString(rec.Content, ".properties.minimalTlsVersion"),
		"Entra-only authentication": boolSetting(rec.Content, ".properties.administrators.azureADOnlyAuthentication", "False"),
		"Administrator login":       jq.QueryString(rec.Content, ".properties.administratorLogin"),
	}
	return []types.Row{row}, nil
}
