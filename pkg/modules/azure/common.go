package azure

import (
	"strings"

	"github.com/emiliensocchi/aztop/internal/jq"
)

// joinList flattens whitelisted sources into a single cell.
func joinList(items []string) string {
	return strings.Join(items, "; ")
}

// boolSetting reads a boolean property and renders it as "True"/"False",
// falling back to the ARM default when the property is absent.
func boolSetting(content []byte, query, absent string) string {
	value := jq.QueryString(content, query)
	switch value {
	case "true":
		return "True"
	case "false":
		return "False"
	default:
		return absent
	}
}
