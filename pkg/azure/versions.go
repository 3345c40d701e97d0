package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// providersAPIVersion is the fixed version of the resource-provider metadata
// endpoint used to discover candidate versions for a type.
const providersAPIVersion = "2021-04-01"

type versionKey struct {
	audience     Audience
	resourceType string
}

// versionCache maps (audience, resource type) to the last api-version that
// succeeded during this run. Populated lazily, never evicted; a fresh run
// starts empty. Concurrent tasks racing on the same type may redundantly
// probe once each; convergence, not mutual exclusion, is the correctness
// bar.
type versionCache struct {
	mu sync.Mutex
	m  map[versionKey]string
}

func newVersionCache() *versionCache {
	return &versionCache{m: make(map[versionKey]string)}
}

func (c *versionCache) get(key versionKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *versionCache) put(key versionKey, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = version
}

// FetchWithBestVersion tries the call's api-version candidates in order
// until one responds without a version-mismatch error, returning the content
// and the winning version. The winner is cached per (audience, resource
// type) for the remainder of the run, so later resources of the same type
// skip straight to it.
//
// Provider api-version support drifts over time; falling back instead of
// pinning one version per type keeps enumeration forward-compatible.
func (rc *RunContext) FetchWithBestVersion(ctx context.Context, call CallSpec) ([]byte, string, error) {
	if len(call.Versions) == 0 {
		resp, err := rc.Transport.Do(ctx, call, "")
		if err != nil {
			return nil, "", classifyContentError(err, call)
		}
		return resp.Body, "", nil
	}

	key := versionKey{audience: call.Audience, resourceType: call.ResourceType()}
	candidates := call.Versions
	if cached, ok := rc.versions.get(key); ok {
		ordered := make([]string, 0, len(candidates)+1)
		ordered = append(ordered, cached)
		for _, v := range candidates {
			if v != cached {
				ordered = append(ordered, v)
			}
		}
		candidates = ordered
	}

	for _, version := range candidates {
		resp, err := rc.Transport.Do(ctx, call, version)
		if err == nil {
			rc.versions.put(key, version)
			return resp.Body, version, nil
		}

		if isVersionMismatch(err) {
			continue
		}
		return nil, "", classifyContentError(err, call)
	}

	return nil, "", &NoSupportedVersionError{ResourceType: key.resourceType, Versions: call.Versions}
}

// isVersionMismatch decides whether a failed call should fall through to the
// next api-version candidate. The provider signals this with a 400-class
// error whose code or message names the api-version; the exact shapes drift
// across providers, so the heuristic lives here and nowhere else, and an
// ambiguous 400 is treated as a mismatch rather than failing fast.
func isVersionMismatch(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	if fe.StatusCode != http.StatusBadRequest {
		return false
	}

	code := strings.ToLower(fe.Code)
	switch code {
	case "noregisteredproviderfound", "invalidapiversionparameter", "invalidresourcetype", "invalidapiversion":
		return true
	}

	msg := strings.ToLower(fe.Message)
	if strings.Contains(msg, "api-version") || strings.Contains(msg, "api version") {
		return true
	}

	// Unrecognized 400: assume the version is the problem and keep probing.
	return true
}

// classifyContentError maps provider error signatures onto the run's error
// taxonomy: Microsoft-managed ("hidden") resources and feature-not-supported
// content are non-errors from the enumeration's point of view.
func classifyContentError(err error, call CallSpec) error {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return err
	}

	code := strings.ToLower(fe.Code)
	if code == "invalidauthenticationtokentenant" {
		return ErrHiddenResource
	}
	if strings.Contains(code, "featurenotsupported") {
		return &NotFoundError{Path: call.Path}
	}
	return err
}

// ResourceTypeVersions lists the api-versions the provider declares for a
// resource type within a subscription, newest first, suitable as CallSpec
// candidates.
func (rc *RunContext) ResourceTypeVersions(ctx context.Context, subscription, resourceType string) ([]string, error) {
	namespace, shortType, ok := strings.Cut(resourceType, "/")
	if !ok {
		return nil, fmt.Errorf("malformed resource type %q", resourceType)
	}

	key := versionKey{audience: AudienceManagement, resourceType: strings.ToLower(resourceType)}
	rc.candidatesMu.Lock()
	if cached, ok := rc.candidates[key]; ok {
		rc.candidatesMu.Unlock()
		return cached, nil
	}
	rc.candidatesMu.Unlock()

	call := CallSpec{
		Audience: AudienceManagement,
		Path:     fmt.Sprintf("/subscriptions/%s/providers/%s/resourceTypes", subscription, namespace),
	}
	resp, err := rc.Transport.Do(ctx, call, providersAPIVersion)
	if err != nil {
		return nil, fmt.Errorf("listing resource types of %s: %w", namespace, err)
	}

	var listing struct {
		Value []struct {
			ResourceType string   `json:"resourceType"`
			APIVersions  []string `json:"apiVersions"`
		} `json:"value"`
	}
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		return nil, fmt.Errorf("decoding resource types of %s: %w", namespace, err)
	}

	for _, rt := range listing.Value {
		if strings.EqualFold(rt.ResourceType, shortType) {
			rc.candidatesMu.Lock()
			rc.candidates[key] = rt.APIVersions
			rc.candidatesMu.Unlock()
			return rt.APIVersions, nil
		}
	}

	return nil, &NoSupportedVersionError{ResourceType: resourceType}
}
