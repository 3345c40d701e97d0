package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/emiliensocchi/aztop/pkg/azure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunContext(t *testing.T, handler http.Handler) *azure.RunContext {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	creds := azure.NewCredentialStore(azure.WithToken(azure.AudienceDirectory, "graph-token"))
	transport := azure.NewTransport(creds, azure.WithEndpoint(azure.AudienceDirectory, server.URL))
	return azure.NewRunContext(creds, transport)
}

func TestAppRoleAssignmentsPaged(t *testing.T) {
	var serverURL string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1.0/servicePrincipals/sp1/appRoleAssignments", r.URL.Path)
		if r.URL.Query().Get("$skiptoken") == "" {
			assert.Equal(t, "999", r.URL.Query().Get("$top"))
			fmt.Fprintf(w, `{"value":[
				{"appRoleId":"role-a","resourceId":"graph-sp","resourceDisplayName":"Microsoft Graph"}
			],"@odata.nextLink":"%s/v1.0/servicePrincipals/sp1/appRoleAssignments?$skiptoken=n"}`, serverURL)
			return
		}
		fmt.Fprint(w, `{"value":[
			{"appRoleId":"role-b","resourceId":"graph-sp","resourceDisplayName":"Microsoft Graph"}
		]}`)
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	serverURL = server.URL

	creds := azure.NewCredentialStore(azure.WithToken(azure.AudienceDirectory, "graph-token"))
	transport := azure.NewTransport(creds, azure.WithEndpoint(azure.AudienceDirectory, server.URL))
	rc := azure.NewRunContext(creds, transport)

	assignments, err := AppRoleAssignments(context.Background(), rc, "sp1")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	assert.Equal(t, "role-a", assignments[0].AppRoleID)
	assert.Equal(t, "role-b", assignments[1].AppRoleID)
	assert.Equal(t, "Microsoft Graph", assignments[0].ResourceDisplayName)
}

func TestResolverMapsRoleIDsToNames(t *testing.T) {
	var roleFetches int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/servicePrincipals/graph-sp") {
			roleFetches++
			fmt.Fprint(w, `{"appRoles":[
				{"id":"role-a","value":"Directory.Read.All"},
				{"id":"role-b","value":"User.Read.All"}
			]}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	rc := newTestRunContext(t, handler)
	resolver := NewResolver(rc)

	name, err := resolver.PermissionName(context.Background(), AppRoleAssignment{
		AppRoleID:  "role-a",
		ResourceID: "graph-sp",
	})
	require.NoError(t, err)
	assert.Equal(t, "Directory.Read.All", name)

	// Role definitions are fetched once per resource service principal.
	name, err = resolver.PermissionName(context.Background(), AppRoleAssignment{
		AppRoleID:  "role-b",
		ResourceID: "graph-sp",
	})
	require.NoError(t, err)
	assert.Equal(t, "User.Read.All", name)
	assert.Equal(t, 1, roleFetches)
}

func TestResolverFallsBackToRoleID(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"appRoles":[]}`)
	})

	rc := newTestRunContext(t, handler)
	resolver := NewResolver(rc)

	name, err := resolver.PermissionName(context.Background(), AppRoleAssignment{
		AppRoleID:  "dangling-role",
		ResourceID: "graph-sp",
	})
	require.NoError(t, err)
	assert.Equal(t, "dangling-role", name)
}
