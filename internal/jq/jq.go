package jq

import (
	"strings"

	"github.com/savaki/jq"
)

// Query applies a jq selector to raw JSON and returns the matched fragment.
func Query(jsonContent []byte, jqQuery string) ([]byte, error) {
	op, err := jq.Parse(jqQuery)
	if err != nil {
		return nil, err
	}

	return op.Apply(jsonContent)
}

// QueryString applies a jq selector and returns the result as a plain
// string, with surrounding JSON quotes stripped. Missing keys yield "".
func QueryString(jsonContent []byte, jqQuery string) string {
	result, err := Query(jsonContent, jqQuery)
	if err != nil {
		return ""
	}
	return strings.Trim(string(result), `"`)
}
