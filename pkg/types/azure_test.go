package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

const resourceID = "/subscriptions/11111111-2222-3333-4444-555555555555/resourceGroups/prod-rg/providers/Microsoft.Storage/storageAccounts/sa1"

func TestParseResourceGroup(t *testing.T) {
	assert.Equal(t, "prod-rg", ParseResourceGroup(resourceID))
	assert.Equal(t, "", ParseResourceGroup("/subscriptions/x"))
	assert.Equal(t, "", ParseResourceGroup(""))
}

func TestParseSubscription(t *testing.T) {
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", ParseSubscription(resourceID))
	assert.Equal(t, "", ParseSubscription("/providers/Microsoft.Storage"))
}

func TestResourceRecordProperties(t *testing.T) {
	rec := ResourceRecord{Content: json.RawMessage(`{"name":"sa1","properties":{"minimumTlsVersion":"TLS1_2"}}`)}
	props := rec.Properties()
	assert.Equal(t, "TLS1_2", props["minimumTlsVersion"])

	empty := ResourceRecord{Content: json.RawMessage(`{"name":"sa1"}`)}
	assert.Empty(t, empty.Properties())

	malformed := ResourceRecord{Content: json.RawMessage(`not json`)}
	assert.Empty(t, malformed.Properties())
}
