package helpers

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/organization"
)

// ResourceCount holds the count for each Azure resource type
type ResourceCount struct {
	ResourceType string
	Count        int
}

// EnvironmentDetails holds all tenant and subscription information shown
// in the overview summary
type EnvironmentDetails struct {
	TenantName       string
	TenantID         string
	SubscriptionID   string
	SubscriptionName string
	State            string
	Tags             map[string]*string
	Resources        []*ResourceCount
}

// GetSubscriptionDetails gets details about an Azure subscription
func GetSubscriptionDetails(ctx context.Context, cred azcore.TokenCredential, subscriptionID string) (*armsubscriptions.ClientGetResponse, error) {
	subsClient, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %v", err)
	}

	sub, err := subsClient.Get(ctx, subscriptionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription details: %v", err)
	}

	return &sub, nil
}

// GetTenantDetails gets the display name and ID of the signed-in tenant
func GetTenantDetails(ctx context.Context, cred azcore.TokenCredential) (string, string, error) {
	graphClient, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create Graph client: %v", err)
	}

	org, err := graphClient.Organization().Get(ctx, &organization.OrganizationRequestBuilderGetRequestConfiguration{})
	if err != nil {
		return "", "", fmt.Errorf("failed to get organization details: %v", err)
	}

	tenantName := "Unknown"
	tenantID := "Unknown"

	if orgValue := org.GetValue(); len(orgValue) > 0 {
		if displayName := orgValue[0].GetDisplayName(); displayName != nil {
			tenantName = *displayName
		}
		if id := orgValue[0].GetId(); id != nil {
			tenantID = *id
		}
	}

	return tenantName, tenantID, nil
}

// CountResources counts a subscription's resources by type
func CountResources(ctx context.Context, cred azcore.TokenCredential, subscriptionID string) ([]*ResourceCount, error) {
	client, err := armresources.NewClient(subscriptionID, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource client: %v", err)
	}

	var resourcesCount []*ResourceCount
	pager := client.NewListPager(nil)

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get next page of resources: %v", err)
		}

		for _, resource := range page.Value {
			resourcesCount = addResourceCount(resourcesCount, *resource.Type)
		}
	}

	return resourcesCount, nil
}

func addResourceCount(resourcesCount []*ResourceCount, resourceType string) []*ResourceCount {
	for _, rc := range resourcesCount {
		if rc.ResourceType == resourceType {
			rc.Count++
			return resourcesCount
		}
	}

	resourcesCount = append(resourcesCount, &ResourceCount{
		ResourceType: resourceType,
		Count:        1,
	})
	return resourcesCount
}

// GetEnvironmentDetails gets all environment details for one subscription
func GetEnvironmentDetails(ctx context.Context, cred azcore.TokenCredential, subscriptionID string) (*EnvironmentDetails, error) {
	sub, err := GetSubscriptionDetails(ctx, cred, subscriptionID)
	if err != nil {
		return nil, err
	}

	tenantName, tenantID, err := GetTenantDetails(ctx, cred)
	if err != nil {
		return nil, err
	}

	resources, err := CountResources(ctx, cred, subscriptionID)
	if err != nil {
		return nil, err
	}

	stateStr := "Unknown"
	if sub.State != nil {
		stateStr = string(*sub.State)
	}

	return &EnvironmentDetails{
		TenantName:       tenantName,
		TenantID:         tenantID,
		SubscriptionID:   *sub.SubscriptionID,
		SubscriptionName: *sub.DisplayName,
		State:            stateStr,
		Tags:             sub.Tags,
		Resources:        resources,
	}, nil
}
