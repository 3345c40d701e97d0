// Package graph provides Microsoft Graph lookups used by the directory
// modules: app-role assignment listing and permission-name resolution.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/emiliensocchi/aztop/pkg/azure"
)

// AppRoleAssignment is one application permission granted to a service
// principal, as returned by the appRoleAssignments endpoint.
type AppRoleAssignment struct {
	AppRoleID  string `json:"appRoleId"`
	ResourceID string `json:"resourceId"`
	// ResourceDisplayName names the API the permission applies to, e.g.
	// "Microsoft Graph".
	ResourceDisplayName string `json:"resourceDisplayName"`
}

// Resolver resolves app-role IDs to human-readable permission names. Role
// definitions are fetched once per resource service principal and cached
// for the lifetime of the resolver.
type Resolver struct {
	rc *azure.RunContext

	mu    sync.Mutex
	roles map[string]map[string]string // resource SP id -> role id -> name
}

func NewResolver(rc *azure.RunContext) *Resolver {
	return &Resolver{
		rc:    rc,
		roles: make(map[string]map[string]string),
	}
}

// AppRoleAssignments lists the application permissions granted to a service
// principal.
func AppRoleAssignments(ctx context.Context, rc *azure.RunContext, servicePrincipalID string) ([]AppRoleAssignment, error) {
	query := url.Values{}
	query.Set("$top", "999")

	pager := rc.NewPager(azure.CallSpec{
		Audience: azure.AudienceDirectory,
		Path:     fmt.Sprintf("/v1.0/servicePrincipals/%s/appRoleAssignments", servicePrincipalID),
		Query:    query,
	})

	var assignments []AppRoleAssignment
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			var assignment AppRoleAssignment
			if err := json.Unmarshal(item, &assignment); err != nil {
				return nil, fmt.Errorf("decoding app role assignment: %w", err)
			}
			assignments = append(assignments, assignment)
		}
	}
	return assignments, nil
}

// PermissionName maps an app-role ID to its permission value (e.g.
// "Directory.Read.All") by reading the role definitions of the resource
// service principal that exposes it.
func (r *Resolver) PermissionName(ctx context.Context, assignment AppRoleAssignment) (string, error) {
	roles, err := r.resourceRoles(ctx, assignment.ResourceID)
	if err != nil {
		return "", err
	}

	if name, ok := roles[assignment.AppRoleID]; ok {
		return name, nil
	}
	// Roles removed from the resource API can leave dangling assignments.
	return assignment.AppRoleID, nil
}

func (r *Resolver) resourceRoles(ctx context.Context, resourceID string) (map[string]string, error) {
	r.mu.Lock()
	if roles, ok := r.roles[resourceID]; ok {
		r.mu.Unlock()
		return roles, nil
	}
	r.mu.Unlock()

	query := url.Values{}
	query.Set("$select", "appRoles")

	response, err := r.rc.Transport.Do(ctx, azure.CallSpec{
		Audience: azure.AudienceDirectory,
		Path:     fmt.Sprintf("/v1.0/servicePrincipals/%s", resourceID),
		Query:    query,
	}, "")
	if err != nil {
		return nil, err
	}

	var principal struct {
		AppRoles []struct {
			ID    string `json:"id"`
			Value string `json:"value"`
		} `json:"appRoles"`
	}
	if err := json.Unmarshal(response.Body, &principal); err != nil {
		return nil, fmt.Errorf("decoding service principal %s: %w", resourceID, err)
	}

	roles := make(map[string]string, len(principal.AppRoles))
	for _, role := range principal.AppRoles {
		roles[role.ID] = role.Value
	}

	r.mu.Lock()
	r.roles[resourceID] = roles
	r.mu.Unlock()
	return roles, nil
}
