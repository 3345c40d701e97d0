package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// NetworkExposure describes where a resource can be reached from.
type NetworkExposure struct {
	// Public is true when the resource's endpoint accepts traffic from any
	// network.
	Public bool
	// Whitelisted lists the sources a restricted endpoint admits: public
	// IPs/ranges, "vnet/subnet" pairs for service and private endpoints,
	// and bypassing Azure service groups.
	Whitelisted []string
}

// Restriction renders the exposure the way the portal labels it.
func (e NetworkExposure) Restriction() string {
	if len(e.Whitelisted) > 0 {
		return "Selected networks"
	}
	if e.Public {
		return "All networks"
	}
	return "Private"
}

// ResolveNetworkExposure determines a resource's complete network exposure
// from its properties: public network access switch, network ACLs (IP and
// VNet rules, service bypass) and private endpoint connections, following
// the private-endpoint pointers through the version resolver.
//
// Returns ErrHiddenResource when a referenced private endpoint belongs to a
// Microsoft-managed resource.
func ResolveNetworkExposure(ctx context.Context, rc *RunContext, subscription string, properties map[string]any) (*NetworkExposure, error) {
	exposure := &NetworkExposure{Public: true}

	if raw, ok := properties["publicNetworkAccess"]; ok {
		// App Services with no restrictions leave the property null.
		if value, ok := raw.(string); ok && !strings.EqualFold(value, "Enabled") {
			exposure.Public = false
		}
	}

	if exposure.Public {
		acls := networkACLs(properties)
		if acls != nil {
			if action, _ := acls["defaultAction"].(string); strings.EqualFold(action, "Deny") {
				exposure.Public = false
				exposure.Whitelisted = append(exposure.Whitelisted, ipRules(acls)...)
				exposure.Whitelisted = append(exposure.Whitelisted, vnetRules(acls)...)

				if bypass := serviceBypass(properties, acls); bypass != "" {
					exposure.Whitelisted = append(exposure.Whitelisted, bypass)
				}
			}
		}
	}

	connections, ok := properties["privateEndpointConnections"].([]any)
	if ok && len(connections) > 0 {
		rules, err := privateEndpointRules(ctx, rc, subscription, connections)
		if err != nil {
			return nil, err
		}
		exposure.Whitelisted = append(exposure.Whitelisted, rules...)
	}

	return exposure, nil
}

// DatabaseServerExposure resolves the exposure of a database server
// (SQL, MySQL, PostgreSQL, MariaDB), whose allow-lists live in firewall-rule
// and virtual-network-rule child resources instead of network ACLs on the
// server itself.
func DatabaseServerExposure(ctx context.Context, rc *RunContext, subscription, serverID string, properties map[string]any) (*NetworkExposure, error) {
	exposure := &NetworkExposure{Public: true}

	if raw, ok := properties["publicNetworkAccess"]; ok {
		if value, ok := raw.(string); ok && !strings.EqualFold(value, "Enabled") {
			exposure.Public = false
		}
	}

	if exposure.Public {
		firewall, err := databaseChildItems(ctx, rc, subscription, serverID, "firewallRules")
		if err != nil {
			return nil, err
		}
		vnets, err := databaseChildItems(ctx, rc, subscription, serverID, "virtualNetworkRules")
		if err != nil {
			return nil, err
		}

		var whitelisted []string
		openToAll := false
		for _, item := range firewall {
			rule, open := firewallRuleRange(item)
			if open {
				openToAll = true
				break
			}
			if rule != "" {
				whitelisted = append(whitelisted, rule)
			}
		}
		for _, item := range vnets {
			var rule struct {
				Properties struct {
					VirtualNetworkSubnetID string `json:"virtualNetworkSubnetId"`
				} `json:"properties"`
			}
			if err := json.Unmarshal(item, &rule); err != nil {
				continue
			}
			if pair := subnetPair(rule.Properties.VirtualNetworkSubnetID); pair != "" {
				whitelisted = append(whitelisted, pair)
			}
		}

		if !openToAll && len(whitelisted) > 0 {
			exposure.Public = false
			exposure.Whitelisted = whitelisted
		}
	}

	if connections, ok := properties["privateEndpointConnections"].([]any); ok && len(connections) > 0 {
		rules, err := privateEndpointRules(ctx, rc, subscription, connections)
		if err != nil {
			return nil, err
		}
		exposure.Whitelisted = append(exposure.Whitelisted, rules...)
	}

	return exposure, nil
}

// databaseChildItems lists a server's child rule collection. Server kinds
// without the collection (single servers vs flexible servers differ here)
// yield no items rather than an error.
func databaseChildItems(ctx context.Context, rc *RunContext, subscription, serverID, child string) ([]json.RawMessage, error) {
	path := serverID + "/" + child
	versions, err := rc.ResourceTypeVersions(ctx, subscription, childResourceType(serverID, child))
	if err != nil {
		var unsupported *NoSupportedVersionError
		if errors.As(err, &unsupported) {
			return nil, nil
		}
		return nil, err
	}

	content, _, err := rc.FetchWithBestVersion(ctx, CallSpec{
		Audience: AudienceManagement,
		Path:     path,
		Versions: versions,
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	var listing struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(content, &listing); err != nil {
		return nil, fmt.Errorf("decoding %s of %s: %w", child, serverID, err)
	}
	return listing.Value, nil
}

// childResourceType derives e.g. "Microsoft.Sql/servers/firewallRules" from
// a server's resource ID and a child collection name, preserving the
// provider namespace's casing for the providers call.
func childResourceType(serverID, child string) string {
	const marker = "/providers/"
	idx := strings.LastIndex(strings.ToLower(serverID), marker)
	if idx < 0 {
		return ""
	}

	segments := strings.Split(strings.Trim(serverID[idx+len(marker):], "/"), "/")
	if len(segments) < 2 {
		return ""
	}

	parts := []string{segments[0]}
	for i := 1; i < len(segments); i += 2 {
		parts = append(parts, segments[i])
	}
	parts = append(parts, child)
	return strings.Join(parts, "/")
}

// firewallRuleRange renders one firewall rule as "ip" or "start-end". The
// full IPv4 range means the server is effectively open; the 0.0.0.0 pair is
// the portal's "allow Azure services" toggle.
func firewallRuleRange(item json.RawMessage) (rule string, openToAll bool) {
	var fw struct {
		Properties struct {
			StartIPAddress string `json:"startIpAddress"`
			EndIPAddress   string `json:"endIpAddress"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(item, &fw); err != nil {
		return "", false
	}

	start, end := fw.Properties.StartIPAddress, fw.Properties.EndIPAddress
	switch {
	case start == "0.0.0.0" && end == "255.255.255.255":
		return "", true
	case start == "0.0.0.0" && end == "0.0.0.0":
		return "AzureServices", false
	case start == end:
		return start, false
	case start != "" && end != "":
		return start + "-" + end, false
	}
	return "", false
}

func networkACLs(properties map[string]any) map[string]any {
	for _, key := range []string{"networkRuleSet", "networkAcls"} {
		if acls, ok := properties[key].(map[string]any); ok {
			return acls
		}
	}
	return nil
}

func ipRules(acls map[string]any) []string {
	rules, _ := acls["ipRules"].([]any)
	var out []string
	for _, raw := range rules {
		rule, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"value", "ipMask"} {
			if ip, ok := rule[key].(string); ok && ip != "" {
				out = append(out, ip)
				break
			}
		}
	}
	return out
}

func vnetRules(acls map[string]any) []string {
	rules, _ := acls["virtualNetworkRules"].([]any)
	var out []string
	for _, raw := range rules {
		rule, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		path, _ := rule["id"].(string)
		if path == "" {
			if subnet, ok := rule["subnet"].(map[string]any); ok {
				path, _ = subnet["id"].(string)
			}
		}
		if pair := subnetPair(path); pair != "" {
			out = append(out, pair)
		}
	}
	return out
}

// serviceBypass returns the comma-separated Azure service groups allowed to
// bypass the network restrictions, or "" when none are.
func serviceBypass(properties, acls map[string]any) string {
	bypass, _ := acls["bypass"].(string)
	if bypass == "" {
		bypass, _ = properties["networkRuleBypassOptions"].(string)
	}
	if bypass == "" || strings.EqualFold(bypass, "None") {
		return ""
	}
	return bypass
}

// subnetPair extracts "vnet/subnet" from a subnet resource ID.
func subnetPair(subnetID string) string {
	lower := strings.ToLower(subnetID)
	const vnetMarker = "microsoft.network/virtualnetworks/"
	const subnetMarker = "/subnets/"

	start := strings.Index(lower, vnetMarker)
	mid := strings.Index(lower, subnetMarker)
	if start < 0 || mid < 0 || mid < start {
		return ""
	}

	vnet := lower[start+len(vnetMarker) : mid]
	subnet := lower[mid+len(subnetMarker):]
	if idx := strings.IndexByte(subnet, '/'); idx >= 0 {
		subnet = subnet[:idx]
	}
	return vnet + "/" + subnet
}

// privateEndpointRules resolves each private endpoint connection to a
// "vnet/subnet (ip, ...)" rule, fetching the endpoint (and its NICs when the
// DNS configs carry no addresses) through the resolver.
func privateEndpointRules(ctx context.Context, rc *RunContext, subscription string, connections []any) ([]string, error) {
	versions, err := rc.ResourceTypeVersions(ctx, subscription, "Microsoft.Network/privateEndpoints")
	if err != nil {
		return nil, fmt.Errorf("discovering private endpoint versions: %w", err)
	}

	var rules []string
	for _, raw := range connections {
		connection, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		endpointID := privateEndpointID(connection)
		if endpointID == "" {
			continue
		}

		content, _, err := rc.FetchWithBestVersion(ctx, CallSpec{
			Audience: AudienceManagement,
			Path:     endpointID,
			Versions: versions,
		})
		if err != nil {
			return nil, err
		}

		var endpoint struct {
			Properties struct {
				Subnet struct {
					ID string `json:"id"`
				} `json:"subnet"`
				CustomDNSConfigs []struct {
					IPAddresses []string `json:"ipAddresses"`
				} `json:"customDnsConfigs"`
				NetworkInterfaces []struct {
					ID string `json:"id"`
				} `json:"networkInterfaces"`
			} `json:"properties"`
		}
		if err := json.Unmarshal(content, &endpoint); err != nil {
			return nil, fmt.Errorf("decoding private endpoint %s: %w", endpointID, err)
		}

		var addresses []string
		for _, cfg := range endpoint.Properties.CustomDNSConfigs {
			addresses = append(addresses, cfg.IPAddresses...)
		}
		if len(addresses) == 0 {
			// Costlier fallback: read the endpoint's NIC configurations.
			for _, nic := range endpoint.Properties.NetworkInterfaces {
				ips, err := nicPrivateAddresses(ctx, rc, subscription, nic.ID)
				if err != nil {
					return nil, err
				}
				addresses = append(addresses, ips...)
			}
		}

		pair := subnetPair(endpoint.Properties.Subnet.ID)
		rules = append(rules, fmt.Sprintf("%s (%s)", pair, strings.Join(addresses, ", ")))
	}
	return rules, nil
}

func privateEndpointID(connection map[string]any) string {
	properties, ok := connection["properties"].(map[string]any)
	if !ok {
		return ""
	}
	endpoint, ok := properties["privateEndpoint"].(map[string]any)
	if !ok {
		return ""
	}
	id, _ := endpoint["id"].(string)
	return id
}

func nicPrivateAddresses(ctx context.Context, rc *RunContext, subscription, nicID string) ([]string, error) {
	versions, err := rc.ResourceTypeVersions(ctx, subscription, "Microsoft.Network/networkInterfaces")
	if err != nil {
		return nil, err
	}

	content, _, err := rc.FetchWithBestVersion(ctx, CallSpec{
		Audience: AudienceManagement,
		Path:     nicID,
		Versions: versions,
	})
	if err != nil {
		return nil, err
	}

	var nic struct {
		Properties struct {
			IPConfigurations []struct {
				Properties struct {
					PrivateIPAddress string `json:"privateIPAddress"`
				} `json:"properties"`
			} `json:"ipConfigurations"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(content, &nic); err != nil {
		return nil, fmt.Errorf("decoding network interface %s: %w", nicID, err)
	}

	var addresses []string
	for _, cfg := range nic.Properties.IPConfigurations {
		if cfg.Properties.PrivateIPAddress != "" {
			addresses = append(addresses, cfg.Properties.PrivateIPAddress)
		}
	}
	return addresses, nil
}
