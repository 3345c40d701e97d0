package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/emiliensocchi/aztop/internal/helpers"
	"github.com/emiliensocchi/aztop/internal/message"
	"github.com/emiliensocchi/aztop/pkg/types"
)

// SummaryModule produces the tenant summary: one row per subscription with
// its state, tags and resource counts by type. It runs over the typed Azure
// SDK clients rather than the enumerator, since it needs no per-resource
// content.
type SummaryModule struct{}

func (m *SummaryModule) Metadata() types.Metadata {
	return types.Metadata{
		Id:          "summary",
		Name:        "summary",
		Description: "Tenant and subscription summary with resource counts by type",
		Platform:    types.Azure,
		Category:    "overview",
		Authors:     []string{"Emilien Socchi"},
	}
}

func (m *SummaryModule) Columns() []string {
	return []string{
		"Tenant name",
		"Tenant ID",
		"Subscription name",
		"Subscription ID",
		"State",
		"Tags",
		"Resource counts",
	}
}

// Run collects the environment details for each subscription and streams
// them to a sink. Failing subscriptions are reported and skipped.
func (m *SummaryModule) Run(ctx context.Context, cred azcore.TokenCredential, subscriptions []string, sinks types.SinkFactory) error {
	sink, err := sinks(m.Metadata(), m.Columns())
	if err != nil {
		return err
	}
	defer sink.Close()

	for _, subscription := range subscriptions {
		details, err := helpers.GetEnvironmentDetails(ctx, cred, subscription)
		if err != nil {
			message.Warning("Skipping subscription %s: %v", subscription, err)
			continue
		}

		row := types.Row{
			"Tenant name":       details.TenantName,
			"Tenant ID":         details.TenantID,
			"Subscription name": details.SubscriptionName,
			"Subscription ID":   details.SubscriptionID,
			"State":             details.State,
			"Tags":              formatTags(details.Tags),
			"Resource counts":   formatCounts(details.Resources),
		}
		if err := sink.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func formatTags(tags map[string]*string) string {
	var parts []string
	for key, value := range tags {
		if value != nil {
			parts = append(parts, fmt.Sprintf("%s=%s", key, *value))
		} else {
			parts = append(parts, key)
		}
	}
	return strings.Join(parts, "; ")
}

func formatCounts(counts []*helpers.ResourceCount) string {
	parts := make([]string, 0, len(counts))
	for _, count := range counts {
		parts = append(parts, fmt.Sprintf("%s: %d", count.ResourceType, count.Count))
	}
	return strings.Join(parts, "; ")
}
