package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/emiliensocchi/aztop/internal/logs"
	"github.com/emiliensocchi/aztop/internal/message"
	"github.com/emiliensocchi/aztop/pkg/types"
)

// API versions for the fixed, non-drifting listing endpoints.
const (
	subscriptionsAPIVersion = "2020-01-01"
	resourceListAPIVersion  = "2021-04-01"
)

const defaultWorkers = 5

// RunState is the terminal state of an enumeration run.
type RunState string

const (
	StatePending RunState = "pending"
	StateRunning RunState = "running"
	StateDone    RunState = "done"
	StateAborted RunState = "aborted"
)

// Enumerator walks the scope hierarchy (subscriptions, then each
// subscription's resources, plus a parallel directory walk) and dispatches
// every discovered resource to the registered overview modules.
//
// Per-resource failures are logged and skipped; a single bad resource never
// aborts the run. Failures to authenticate or to list scopes are fatal.
type Enumerator struct {
	rc          *RunContext
	resources   []ResourceModule
	directories []DirectoryModule
	sinks       types.SinkFactory

	subscriptions []string // optional allowlist
	workers       int
	logger        *slog.Logger

	mu    sync.Mutex
	state RunState
}

type EnumeratorOption func(*Enumerator)

// WithSubscriptions restricts the run to the given subscription IDs instead
// of listing all readable ones.
func WithSubscriptions(ids []string) EnumeratorOption {
	return func(e *Enumerator) { e.subscriptions = ids }
}

// WithWorkers bounds the per-run subscription fan-out. Over-parallelizing
// defeats backoff pacing and increases throttling, so keep it in the low
// tens.
func WithWorkers(n int) EnumeratorOption {
	return func(e *Enumerator) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithResourceModules(modules ...ResourceModule) EnumeratorOption {
	return func(e *Enumerator) { e.resources = append(e.resources, modules...) }
}

func WithDirectoryModules(modules ...DirectoryModule) EnumeratorOption {
	return func(e *Enumerator) { e.directories = append(e.directories, modules...) }
}

func NewEnumerator(rc *RunContext, sinks types.SinkFactory, opts ...EnumeratorOption) *Enumerator {
	e := &Enumerator{
		rc:      rc,
		sinks:   sinks,
		workers: defaultWorkers,
		logger:  logs.ConsoleLogger(),
		state:   StatePending,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the run's current state.
func (e *Enumerator) State() RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Enumerator) setState(s RunState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run executes the enumeration and blocks until every scope's resource
// stream is exhausted, a fatal error occurs, or ctx is cancelled.
func (e *Enumerator) Run(ctx context.Context) error {
	e.setState(StateRunning)

	if err := e.runManagement(ctx); err != nil {
		e.setState(StateAborted)
		return err
	}
	if err := e.runDirectory(ctx); err != nil {
		e.setState(StateAborted)
		return err
	}

	if ctx.Err() != nil {
		e.setState(StateAborted)
		return ctx.Err()
	}
	e.setState(StateDone)
	return nil
}

func typeFilter(resourceType string) url.Values {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("resourceType eq '%s'", resourceType))
	return q
}

func topQuery() url.Values {
	q := url.Values{}
	q.Set("$top", "999")
	return q
}

func (e *Enumerator) runManagement(ctx context.Context) error {
	if len(e.resources) == 0 {
		return nil
	}

	subscriptions := e.subscriptions
	if len(subscriptions) == 0 {
		var err error
		subscriptions, err = e.ListSubscriptions(ctx)
		if err != nil {
			return err
		}
	}
	message.Info("Enumerating %d subscription(s)", len(subscriptions))

	sinks, err := e.openResourceSinks()
	if err != nil {
		return err
	}
	defer closeSinks(sinks)

	// A rejected token mid-run is fatal: the first worker hitting one
	// cancels the others and its error aborts the run.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	var wg sync.WaitGroup
	var sinkMu sync.Mutex
	var fatalOnce sync.Once
	var fatalErr error

	workers := e.workers
	if workers > len(subscriptions) {
		workers = len(subscriptions)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for subscription := range jobs {
				if err := e.enumerateSubscription(runCtx, subscription, sinks, &sinkMu); err != nil {
					fatalOnce.Do(func() {
						fatalErr = err
						cancel()
					})
				}
			}
		}()
	}

	for _, subscription := range subscriptions {
		select {
		case jobs <- subscription:
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	return ctx.Err()
}

// ListSubscriptions returns the IDs of all subscriptions readable by the
// management-plane token.
func (e *Enumerator) ListSubscriptions(ctx context.Context) ([]string, error) {
	pager := e.rc.NewPager(CallSpec{
		Audience: AudienceManagement,
		Path:     "/subscriptions",
		Versions: []string{subscriptionsAPIVersion},
	})

	var ids []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if IsAuthentication(err) {
				return nil, err
			}
			return nil, &ScopeListingError{Scope: "subscriptions", Err: err}
		}
		for _, item := range page.Items {
			var sub struct {
				SubscriptionID string `json:"subscriptionId"`
			}
			if err := json.Unmarshal(item, &sub); err != nil || sub.SubscriptionID == "" {
				continue
			}
			ids = append(ids, sub.SubscriptionID)
		}
	}

	if len(ids) == 0 {
		return nil, &ScopeListingError{Scope: "subscriptions", Err: errors.New("no readable subscriptions")}
	}
	return ids, nil
}

// modulesByType groups the registered modules by the resource types they
// declared, preserving registration order, so each resource is fetched once
// and the record shared across every module handling its type.
func (e *Enumerator) modulesByType() (map[string][]ResourceModule, []string) {
	byType := make(map[string][]ResourceModule)
	var order []string
	for _, module := range e.resources {
		for _, resourceType := range module.ResourceTypes() {
			if _, ok := byType[resourceType]; !ok {
				order = append(order, resourceType)
			}
			byType[resourceType] = append(byType[resourceType], module)
		}
	}
	return byType, order
}

// enumerateSubscription walks one subscription. The returned error is
// non-nil only for fatal conditions (a rejected token); everything else is
// logged and skipped.
func (e *Enumerator) enumerateSubscription(ctx context.Context, subscription string, sinks map[string]types.RowSink, sinkMu *sync.Mutex) error {
	groups, err := e.listResourceGroups(ctx, subscription)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if IsAuthentication(err) {
			return err
		}
		e.logger.Error("resource group listing failed",
			slog.String("subscription", subscription),
			slog.String("error", err.Error()))
		message.Warning("Skipping subscription %s: %v", subscription, err)
		return nil
	}

	byType, order := e.modulesByType()
	for _, resourceType := range order {
		if ctx.Err() != nil {
			return nil
		}

		candidates, err := e.rc.ResourceTypeVersions(ctx, subscription, resourceType)
		if err != nil {
			if IsAuthentication(err) {
				return err
			}
			e.logger.Error("version discovery failed",
				slog.String("subscription", subscription),
				slog.String("resourceType", resourceType),
				slog.String("error", err.Error()))
			continue
		}

		// Groups are walked sequentially; the fan-out is across
		// subscriptions.
		for _, group := range groups {
			if err := e.enumerateType(ctx, subscription, group, resourceType, candidates, byType[resourceType], sinks, sinkMu); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if IsAuthentication(err) {
					return err
				}
				var loopErr *PaginationLoopError
				if errors.As(err, &loopErr) {
					// Truncate this listing, keep sibling scopes going.
					message.Warning("Truncated listing of %s in %s/%s: %v", resourceType, subscription, group, err)
					continue
				}
				e.logger.Error("resource listing failed",
					slog.String("subscription", subscription),
					slog.String("resourceGroup", group),
					slog.String("resourceType", resourceType),
					slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func (e *Enumerator) listResourceGroups(ctx context.Context, subscription string) ([]string, error) {
	pager := e.rc.NewPager(CallSpec{
		Audience: AudienceManagement,
		Path:     fmt.Sprintf("/subscriptions/%s/resourceGroups", subscription),
		Versions: []string{resourceListAPIVersion},
	})

	var groups []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			var group struct {
				Name string `json:"name"`
			}
			if err := json.Unmarshal(item, &group); err != nil || group.Name == "" {
				continue
			}
			groups = append(groups, group.Name)
		}
	}
	return groups, nil
}

func (e *Enumerator) enumerateType(ctx context.Context, subscription, group, resourceType string, candidates []string, modules []ResourceModule, sinks map[string]types.RowSink, sinkMu *sync.Mutex) error {
	pager := e.rc.NewPager(CallSpec{
		Audience: AudienceManagement,
		Path:     fmt.Sprintf("/subscriptions/%s/resourceGroups/%s/resources", subscription, group),
		Versions: []string{resourceListAPIVersion},
		Query:    typeFilter(resourceType),
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}

		for _, item := range page.Items {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var descriptor types.ResourceDescriptor
			if err := json.Unmarshal(item, &descriptor); err != nil || descriptor.ID == "" {
				continue
			}
			descriptor.ResourceGroup = types.ParseResourceGroup(descriptor.ID)
			descriptor.Subscription = subscription

			if err := e.processResource(ctx, descriptor, candidates, modules, sinks, sinkMu); err != nil {
				return err
			}
		}
	}
	return nil
}

// processResource fetches one resource's full content once and dispatches
// the shared record to every module handling its type. Per-resource
// failures are absorbed here (log, skip, continue); only a rejected token
// propagates.
func (e *Enumerator) processResource(ctx context.Context, descriptor types.ResourceDescriptor, candidates []string, modules []ResourceModule, sinks map[string]types.RowSink, sinkMu *sync.Mutex) error {
	content, version, err := e.rc.FetchWithBestVersion(ctx, CallSpec{
		Audience: AudienceManagement,
		Path:     descriptor.ID,
		Versions: candidates,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrHiddenResource) {
			// Microsoft-managed resource, nothing to report.
			return nil
		}
		if IsAuthentication(err) {
			return err
		}
		e.skipResource(descriptor, err)
		return nil
	}

	record := types.ResourceRecord{
		Descriptor: descriptor,
		APIVersion: version,
		Content:    content,
	}

	for _, module := range modules {
		rows, err := module.Render(ctx, e.rc, record)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsAuthentication(err) {
				return err
			}
			e.skipResource(descriptor, err)
			continue
		}

		sinkMu.Lock()
		sink := sinks[module.Metadata().Id]
		for _, row := range rows {
			if err := sink.WriteRow(row); err != nil {
				e.logger.Error("writing row failed",
					slog.String("module", module.Metadata().Id),
					slog.String("error", err.Error()))
			}
		}
		sinkMu.Unlock()
	}
	return nil
}

func (e *Enumerator) skipResource(descriptor types.ResourceDescriptor, err error) {
	e.logger.Warn("skipping resource",
		slog.String("resource", descriptor.ID),
		slog.String("resourceType", descriptor.Type),
		slog.String("error", err.Error()))
	message.Warning("Skipping %s: %v", descriptor.ID, err)
}

func (e *Enumerator) runDirectory(ctx context.Context) error {
	if len(e.directories) == 0 {
		return nil
	}

	for _, module := range e.directories {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		sink, err := e.sinks(module.Metadata(), module.Columns())
		if err != nil {
			return err
		}

		err = e.enumerateDirectoryObjects(ctx, module, sink)
		if closeErr := sink.Close(); closeErr != nil {
			e.logger.Error("closing sink failed", slog.String("error", closeErr.Error()))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Enumerator) enumerateDirectoryObjects(ctx context.Context, module DirectoryModule, sink types.RowSink) error {
	pager := e.rc.NewPager(CallSpec{
		Audience: AudienceDirectory,
		Path:     "/v1.0/" + module.ObjectType(),
		Query:    topQuery(),
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			if IsAuthentication(err) {
				return err
			}
			var loopErr *PaginationLoopError
			if errors.As(err, &loopErr) {
				message.Warning("Truncated listing of %s: %v", module.ObjectType(), err)
				return nil
			}
			return &ScopeListingError{Scope: module.ObjectType(), Err: err}
		}

		for _, object := range page.Items {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rows, err := module.Render(ctx, e.rc, object)
			if err != nil {
				if IsAuthentication(err) {
					return err
				}
				e.logger.Warn("skipping directory object",
					slog.String("objectType", module.ObjectType()),
					slog.String("error", err.Error()))
				continue
			}
			for _, row := range rows {
				if err := sink.WriteRow(row); err != nil {
					e.logger.Error("writing row failed",
						slog.String("module", module.Metadata().Id),
						slog.String("error", err.Error()))
				}
			}
		}
	}
	return nil
}

func (e *Enumerator) openResourceSinks() (map[string]types.RowSink, error) {
	sinks := make(map[string]types.RowSink, len(e.resources))
	for _, module := range e.resources {
		sink, err := e.sinks(module.Metadata(), module.Columns())
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("opening sink for %s: %w", module.Metadata().Id, err)
		}
		sinks[module.Metadata().Id] = sink
	}
	return sinks, nil
}

func closeSinks(sinks map[string]types.RowSink) {
	for _, sink := range sinks {
		sink.Close()
	}
}
