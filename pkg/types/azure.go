package types

import (
	"encoding/json"
	"strings"
)

// ResourceDescriptor identifies a single Azure resource as returned by a
// subscription-level listing, before its full content has been fetched.
type ResourceDescriptor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	Location      string `json:"location"`
	ResourceGroup string `json:"-"`
	Subscription  string `json:"-"`
}

// ResourceRecord is the resolved full content of one resource, handed to
// overview modules. Records may be dispatched to several modules; treat the
// content as read-only.
type ResourceRecord struct {
	Descriptor ResourceDescriptor
	APIVersion string
	Content    json.RawMessage
}

// Properties unmarshals the record's "properties" object. Returns an empty
// map when the resource has none.
func (r ResourceRecord) Properties() map[string]any {
	var envelope struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(r.Content, &envelope); err != nil || envelope.Properties == nil {
		return map[string]any{}
	}
	return envelope.Properties
}

// ParseResourceGroup extracts the resource group name from a fully-qualified
// ARM resource ID, e.g.
// /subscriptions/<id>/resourceGroups/myRg/providers/Microsoft.Storage/storageAccounts/sa1
func ParseResourceGroup(resourceID string) string {
	parts := strings.Split(resourceID, "/")
	for i, part := range parts {
		if strings.EqualFold(part, "resourceGroups") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// ParseSubscription extracts the subscription ID from an ARM resource ID.
func ParseSubscription(resourceID string) string {
	parts := strings.Split(resourceID, "/")
	for i, part := range parts {
		if strings.EqualFold(part, "subscriptions") && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}
