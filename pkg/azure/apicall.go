package azure

import (
	"net/url"
	"strings"
)

// Audience is the logical API family a token is valid for.
type Audience string

const (
	// AudienceManagement is the Azure Resource Manager (control plane) API.
	AudienceManagement Audience = "management"
	// AudienceDirectory is the Microsoft Graph (identity plane) API.
	AudienceDirectory Audience = "directory"
)

const (
	armBaseURL   = "https://management.azure.com"
	graphBaseURL = "https://graph.microsoft.com"
)

// BaseURL returns the audience's default endpoint. Transports may override
// it, e.g. for tests.
func (a Audience) BaseURL() string {
	if a == AudienceDirectory {
		return graphBaseURL
	}
	return armBaseURL
}

// TokenScope returns the OAuth scope used to acquire tokens for the
// audience.
func (a Audience) TokenScope() string {
	return a.BaseURL() + "/.default"
}

// CallSpec describes one API call. It is immutable once constructed; the
// transport and resolver never modify it.
type CallSpec struct {
	Audience Audience
	Method   string
	// Path is either an absolute path under the audience's base URL, or a
	// full continuation URL as returned by the provider.
	Path string
	// Versions holds the api-version candidates in priority order, most
	// specific first. Leave empty for endpoints that encode the version in
	// the path (Graph) or for continuation links.
	Versions []string
	Query    url.Values
	Body     []byte
}

// ResourceType infers the ARM resource type from the call's path, e.g.
// "microsoft.storage/storageaccounts" from
// /subscriptions/<id>/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/sa1.
// Returns "" when the path carries no provider segment.
func (c CallSpec) ResourceType() string {
	lower := strings.ToLower(c.Path)
	marker := "/providers/"
	idx := strings.LastIndex(lower, marker)
	if idx < 0 {
		return ""
	}

	segments := strings.Split(strings.Trim(lower[idx+len(marker):], "/"), "/")
	if len(segments) < 2 {
		return ""
	}

	// Provider namespace, then every other segment is a type component:
	// ns/type1/name1/type2/name2/... -> ns/type1/type2
	parts := []string{segments[0]}
	for i := 1; i < len(segments); i += 2 {
		parts = append(parts, segments[i])
	}
	return strings.Join(parts, "/")
}

// url builds the request URL for the given resolved api-version. A version
// already present in the query is not duplicated; an empty version adds
// nothing.
func (c CallSpec) url(base, version string) string {
	if strings.HasPrefix(c.Path, "https://") || strings.HasPrefix(c.Path, "http://") {
		return c.Path
	}

	query := url.Values{}
	for k, vs := range c.Query {
		query[k] = vs
	}
	if version != "" {
		query.Set("api-version", version)
	}

	full := base + c.Path
	if encoded := query.Encode(); encoded != "" {
		full += "?" + encoded
	}
	return full
}
