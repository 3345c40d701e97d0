package azure

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/emiliensocchi/aztop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storageRecord(content string) types.ResourceRecord {
	return types.ResourceRecord{
		Descriptor: types.ResourceDescriptor{
			ID:            "/subscriptions/sub1/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/sa1",
			Name:          "sa1",
			Type:          "Microsoft.Storage/storageAccounts",
			Location:      "westeurope",
			ResourceGroup: "rg",
			Subscription:  "sub1",
		},
		APIVersion: "2023-01-01",
		Content:    json.RawMessage(content),
	}
}

func TestStorageAccountRenderOpenAccount(t *testing.T) {
	module := &StorageAccountModule{}
	rec := storageRecord(`{
		"name": "sa1",
		"properties": {
			"publicNetworkAccess": "Enabled",
			"supportsHttpsTrafficOnly": true,
			"minimumTlsVersion": "TLS1_2",
			"allowBlobPublicAccess": false,
			"allowSharedKeyAccess": true
		}
	}`)

	rows, err := module.Render(context.Background(), nil, rec)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "sa1", row["Name"])
	assert.Equal(t, "rg", row["Resource group"])
	assert.Equal(t, "All networks", row["Network restrictions"])
	assert.Equal(t, "True", row["Secure transfer required"])
	assert.Equal(t, "TLS1_2", row["Minimum TLS version"])
	assert.Equal(t, "False", row["Blob anonymous access"])
	assert.Equal(t, "True", row["Shared key access"])
}

func TestStorageAccountRenderRestrictedAccount(t *testing.T) {
	module := &StorageAccountModule{}
	rec := storageRecord(`{
		"name": "sa1",
		"properties": {
			"publicNetworkAccess": "Enabled",
			"networkAcls": {
				"defaultAction": "Deny",
				"bypass": "AzureServices",
				"ipRules": [{"value": "40.74.28.0/23"}],
				"virtualNetworkRules": []
			}
		}
	}`)

	rows, err := module.Render(context.Background(), nil, rec)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Selected networks", row["Network restrictions"])
	assert.Contains(t, row["Whitelisted"], "40.74.28.0/23")
	assert.Contains(t, row["Whitelisted"], "AzureServices")
	// Absent booleans fall back to the service defaults.
	assert.Equal(t, "True", row["Secure transfer required"])
	assert.Equal(t, "False", row["Blob anonymous access"])
}

func TestKeyVaultRender(t *testing.T) {
	module := &KeyVaultModule{}
	rec := types.ResourceRecord{
		Descriptor: types.ResourceDescriptor{
			Name:          "kv1",
			ResourceGroup: "rg",
			Subscription:  "sub1",
			Location:      "westeurope",
		},
		Content: json.RawMessage(`{
			"name": "kv1",
			"properties": {
				"publicNetworkAccess": "Disabled",
				"enableRbacAuthorization": true,
				"enableSoftDelete": true,
				"enablePurgeProtection": true
			}
		}`),
	}

	rows, err := module.Render(context.Background(), nil, rec)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Private", row["Network restrictions"])
	assert.Equal(t, "Azure RBAC", row["Authorization model"])
	assert.Equal(t, "True", row["Soft delete"])
	assert.Equal(t, "True", row["Purge protection"])
}
