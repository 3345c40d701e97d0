package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emiliensocchi/aztop/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink collects rows in memory for assertions.
type memorySink struct {
	mu     sync.Mutex
	rows   []types.Row
	closed bool
}

func (s *memorySink) WriteRow(row types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) Rows() []types.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Row{}, s.rows...)
}

func memorySinkFactory(sinks map[string]*memorySink) types.SinkFactory {
	var mu sync.Mutex
	return func(meta types.Metadata, columns []string) (types.RowSink, error) {
		mu.Lock()
		defer mu.Unlock()
		sink := &memorySink{}
		sinks[meta.Id] = sink
		return sink, nil
	}
}

// nameModule emits one row per storage account with its name and
// subscription.
type nameModule struct{}

func (m *nameModule) Metadata() types.Metadata {
	return types.Metadata{
		Id:       "names",
		Name:     "names",
		Platform: types.Azure,
		Category: "overview",
	}
}

func (m *nameModule) ResourceTypes() []string {
	return []string{"Microsoft.Storage/storageAccounts"}
}

func (m *nameModule) Columns() []string {
	return []string{"Name", "Subscription"}
}

func (m *nameModule) Render(_ context.Context, _ *RunContext, rec types.ResourceRecord) ([]types.Row, error) {
	return []types.Row{{
		"Name":         rec.Descriptor.Name,
		"Subscription": rec.Descriptor.Subscription,
	}}, nil
}

// fakeARM serves a two-subscription tenant with storage accounts. One
// account responds 429 with a 2s hint exactly once before succeeding.
type fakeARM struct {
	mu         sync.Mutex
	throttled  bool
	detailHits map[string]int

	failAccount   string // account answering 500 forever
	hiddenAccount string // account answering 401 InvalidAuthenticationTokenTenant
	expiredToken  bool   // every detail fetch answers 401 ExpiredAuthenticationToken
}

func (f *fakeARM) detailFetches(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detailHits[name]
}

func (f *fakeARM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/subscriptions":
		fmt.Fprint(w, `{"value":[{"subscriptionId":"sub1"},{"subscriptionId":"sub2"}]}`)

	case strings.HasSuffix(path, "/providers/Microsoft.Storage/resourceTypes"):
		fmt.Fprint(w, `{"value":[{"resourceType":"storageAccounts","apiVersions":["2023-01-01","2022-09-01"]}]}`)

	case strings.HasSuffix(path, "/resourceGroups"):
		fmt.Fprint(w, `{"value":[{"name":"rg1"}]}`)

	case strings.HasSuffix(path, "/resources"):
		sub := strings.Split(path, "/")[2]
		if sub == "sub1" {
			fmt.Fprintf(w, `{"value":[%s,%s]}`, f.descriptor("sub1", "sa1"), f.descriptor("sub1", "sa2"))
		} else {
			fmt.Fprintf(w, `{"value":[%s]}`, f.descriptor("sub2", "sa3"))
		}

	case strings.Contains(path, "/providers/Microsoft.Storage/storageAccounts/"):
		name := path[strings.LastIndex(path, "/")+1:]

		if f.expiredToken {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"ExpiredAuthenticationToken","message":"token rejected"}}`)
			return
		}
		if name == f.failAccount {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if name == f.hiddenAccount {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"code":"InvalidAuthenticationTokenTenant","message":"wrong issuer"}}`)
			return
		}

		// sa2 is throttled exactly once.
		if name == "sa2" {
			f.mu.Lock()
			first := !f.throttled
			f.throttled = true
			f.mu.Unlock()
			if first {
				w.Header().Set("Retry-After", "2")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
		}

		// Only successful fetches count; a throttled attempt is a retry of
		// the same fetch.
		f.mu.Lock()
		if f.detailHits == nil {
			f.detailHits = make(map[string]int)
		}
		f.detailHits[name]++
		f.mu.Unlock()

		fmt.Fprintf(w, `{"id":"%s","name":"%s","properties":{}}`, path, name)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeARM) descriptor(sub, name string) string {
	id := fmt.Sprintf("/subscriptions/%s/resourceGroups/rg1/providers/Microsoft.Storage/storageAccounts/%s", sub, name)
	payload, _ := json.Marshal(map[string]string{
		"id":       id,
		"name":     name,
		"type":     "Microsoft.Storage/storageAccounts",
		"location": "westeurope",
	})
	return string(payload)
}

func newTestEnumerator(t *testing.T, handler http.Handler, sinks map[string]*memorySink, opts ...EnumeratorOption) (*Enumerator, *[]time.Duration) {
	t.Helper()
	transport, sleeps, _ := newTestTransport(t, handler)
	rc := NewRunContext(NewCredentialStore(
		WithToken(AudienceManagement, "arm-token"),
		WithToken(AudienceDirectory, "graph-token"),
	), transport)
	return NewEnumerator(rc, memorySinkFactory(sinks), opts...), sleeps
}

func TestEnumeratorRunSurvivesThrottling(t *testing.T) {
	sinks := make(map[string]*memorySink)
	enumerator, sleeps := newTestEnumerator(t, &fakeARM{}, sinks,
		WithResourceModules(&nameModule{}),
		WithWorkers(2),
	)

	require.NoError(t, enumerator.Run(context.Background()))
	assert.Equal(t, StateDone, enumerator.State())

	rows := sinks["names"].Rows()
	require.Len(t, rows, 3)

	names := make(map[string]string)
	for _, row := range rows {
		names[row["Name"]] = row["Subscription"]
	}
	assert.Equal(t, map[string]string{"sa1": "sub1", "sa2": "sub1", "sa3": "sub2"}, names)

	// The 429 hint was honored exactly once.
	var throttleWaits int
	for _, d := range *sleeps {
		if d >= 2*time.Second {
			throttleWaits++
		}
	}
	assert.Equal(t, 1, throttleWaits)
	assert.True(t, sinks["names"].closed)
}

func TestEnumeratorSkipsFailingResource(t *testing.T) {
	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, &fakeARM{failAccount: "sa1"}, sinks,
		WithResourceModules(&nameModule{}),
	)

	require.NoError(t, enumerator.Run(context.Background()))
	assert.Equal(t, StateDone, enumerator.State())

	rows := sinks["names"].Rows()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEqual(t, "sa1", row["Name"])
	}
}

func TestEnumeratorSkipsHiddenResourceSilently(t *testing.T) {
	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, &fakeARM{hiddenAccount: "sa3"}, sinks,
		WithResourceModules(&nameModule{}),
	)

	require.NoError(t, enumerator.Run(context.Background()))
	assert.Equal(t, StateDone, enumerator.State())
	assert.Len(t, sinks["names"].Rows(), 2)
}

func TestEnumeratorHonorsSubscriptionAllowlist(t *testing.T) {
	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, &fakeARM{}, sinks,
		WithResourceModules(&nameModule{}),
		WithSubscriptions([]string{"sub2"}),
	)

	require.NoError(t, enumerator.Run(context.Background()))

	rows := sinks["names"].Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "sa3", rows[0]["Name"])
}

func TestEnumeratorAbortsOnCancellation(t *testing.T) {
	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, &fakeARM{}, sinks,
		WithResourceModules(&nameModule{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := enumerator.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, StateAborted, enumerator.State())
}

// locationModule shares nameModule's resource type and emits locations.
type locationModule struct{}

func (m *locationModule) Metadata() types.Metadata {
	return types.Metadata{Id: "locations", Name: "locations", Platform: types.Azure, Category: "overview"}
}

func (m *locationModule) ResourceTypes() []string {
	return []string{"Microsoft.Storage/storageAccounts"}
}

func (m *locationModule) Columns() []string { return []string{"Name", "Location"} }

func (m *locationModule) Render(_ context.Context, _ *RunContext, rec types.ResourceRecord) ([]types.Row, error) {
	return []types.Row{{
		"Name":     rec.Descriptor.Name,
		"Location": rec.Descriptor.Location,
	}}, nil
}

func TestEnumeratorFetchesSharedTypeOnce(t *testing.T) {
	arm := &fakeARM{}
	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, arm, sinks,
		WithResourceModules(&nameModule{}, &locationModule{}),
	)

	require.NoError(t, enumerator.Run(context.Background()))
	assert.Equal(t, StateDone, enumerator.State())

	// Both modules got every account, from a single detail fetch each.
	assert.Len(t, sinks["names"].Rows(), 3)
	assert.Len(t, sinks["locations"].Rows(), 3)
	for _, name := range []string{"sa1", "sa2", "sa3"} {
		assert.Equal(t, 1, arm.detailFetches(name), name)
	}
}

func TestEnumeratorAbortsOnMidRunTokenRejection(t *testing.T) {
	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, &fakeARM{expiredToken: true}, sinks,
		WithResourceModules(&nameModule{}),
	)

	err := enumerator.Run(context.Background())
	assert.True(t, IsAuthentication(err))
	assert.Equal(t, StateAborted, enumerator.State())
	assert.Empty(t, sinks["names"].Rows())
}

func TestEnumeratorAbortsWhenGroupListingRejectsToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/subscriptions" {
			fmt.Fprint(w, `{"value":[{"subscriptionId":"sub1"}]}`)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"code":"ExpiredAuthenticationToken","message":"token rejected"}}`)
	})

	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, handler, sinks,
		WithResourceModules(&nameModule{}),
	)

	err := enumerator.Run(context.Background())
	assert.True(t, IsAuthentication(err))
	assert.Equal(t, StateAborted, enumerator.State())
}

func TestEnumeratorFailsFastOnBadToken(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"ExpiredAuthenticationToken","message":"expired"}}`))
	})

	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, handler, sinks,
		WithResourceModules(&nameModule{}),
	)

	err := enumerator.Run(context.Background())
	assert.True(t, IsAuthentication(err))
	assert.Equal(t, StateAborted, enumerator.State())
}

// spModule emits the display name of each service principal.
type spModule struct{}

func (m *spModule) Metadata() types.Metadata {
	return types.Metadata{Id: "sps", Name: "sps", Platform: types.Entra, Category: "overview"}
}

func (m *spModule) ObjectType() string { return "servicePrincipals" }

func (m *spModule) Columns() []string { return []string{"Display name"} }

func (m *spModule) Render(_ context.Context, _ *RunContext, object json.RawMessage) ([]types.Row, error) {
	var sp struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.Unmarshal(object, &sp); err != nil {
		return nil, err
	}
	return []types.Row{{"Display name": sp.DisplayName}}, nil
}

func TestEnumeratorRunsDirectoryModules(t *testing.T) {
	var requestedTop string
	var serverURL string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1.0/servicePrincipals", r.URL.Path)
		if r.URL.Query().Get("$skiptoken") == "" {
			requestedTop = r.URL.Query().Get("$top")
			fmt.Fprintf(w, `{"value":[{"displayName":"app-one"}],"@odata.nextLink":"%s/v1.0/servicePrincipals?$skiptoken=n"}`, serverURL)
			return
		}
		fmt.Fprint(w, `{"value":[{"displayName":"app-two"}]}`)
	})

	sinks := make(map[string]*memorySink)
	enumerator, _ := newTestEnumerator(t, handler, sinks,
		WithDirectoryModules(&spModule{}),
	)
	serverURL = enumerator.rc.Transport.baseURL(AudienceDirectory)

	require.NoError(t, enumerator.Run(context.Background()))
	assert.Equal(t, StateDone, enumerator.State())
	assert.Equal(t, "999", requestedTop)

	rows := sinks["sps"].Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "app-one", rows[0]["Display name"])
	assert.Equal(t, "app-two", rows[1]["Display name"])
}
