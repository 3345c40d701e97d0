package azure

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrHiddenResource marks a resource managed by Microsoft (shown as "hidden"
// in the portal). The ARM API rejects such reads with an
// InvalidAuthenticationTokenTenant error even though the token is fine.
var ErrHiddenResource = errors.New("resource is managed by Microsoft")

// AuthenticationError is fatal: a token could not be acquired for an
// audience, or the remote API rejected it with a 401. Token refresh needs an
// interactive flow, so it is never retried silently.
type AuthenticationError struct {
	Audience Audience
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s API: %v", e.Audience, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ScopeListingError is fatal: subscriptions or directory objects could not
// even be listed, so nothing useful can proceed.
type ScopeListingError struct {
	Scope string
	Err   error
}

func (e *ScopeListingError) Error() string {
	return fmt.Sprintf("cannot list %s: %v", e.Scope, e.Err)
}

func (e *ScopeListingError) Unwrap() error { return e.Err }

// NoSupportedVersionError means every candidate api-version was rejected for
// a resource type. The enumerator skips the resource and continues.
type NoSupportedVersionError struct {
	ResourceType string
	Versions     []string
}

func (e *NoSupportedVersionError) Error() string {
	return fmt.Sprintf("no supported api-version for %s (tried %s)",
		e.ResourceType, strings.Join(e.Versions, ", "))
}

// NotFoundError covers 404s and content the provider reports as unsupported
// for the target resource. Callers polling optional sub-resources treat it
// as absent.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.Path)
}

// TransientFetchError is returned once the retry budget for 5xx and
// network-level failures is exhausted.
type TransientFetchError struct {
	Attempts int
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("request failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// FetchError carries a definitive non-retryable API error response.
type FetchError struct {
	StatusCode int
	Code       string
	Message    string
	Body       []byte
}

func (e *FetchError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// PaginationLoopError is raised when a listing exceeds the defensive page
// cap, which only happens with a malformed continuation token. The listing
// is truncated and enumeration continues with sibling scopes.
type PaginationLoopError struct {
	Pages int
	Path  string
}

func (e *PaginationLoopError) Error() string {
	return fmt.Sprintf("listing %s exceeded %d pages, aborting pagination", e.Path, e.Pages)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// apiError is the standard ARM / Graph error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func parseAPIError(body []byte) apiError {
	var envelope struct {
		Error apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return apiError{}
	}
	return envelope.Error
}
