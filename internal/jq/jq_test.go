package jq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery(t *testing.T) {
	content := []byte(`{"name":"sa1","properties":{"minimumTlsVersion":"TLS1_2","supportsHttpsTrafficOnly":true}}`)

	result, err := Query(content, ".properties.minimumTlsVersion")
	assert.NoError(t, err)
	assert.Equal(t, `"TLS1_2"`, string(result))

	_, err = Query(content, ".nonexistent")
	assert.Error(t, err)
}

func TestQueryString(t *testing.T) {
	content := []byte(`{"name":"sa1","properties":{"supportsHttpsTrafficOnly":true}}`)

	assert.Equal(t, "sa1", QueryString(content, ".name"))
	assert.Equal(t, "true", QueryString(content, ".properties.supportsHttpsTrafficOnly"))
	assert.Equal(t, "", QueryString(content, ".missing"))
}
