package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emiliensocchi/aztop/internal/message"
)

const (
	transientRetryBudget = 5
	backoffBase          = 1 * time.Second
	backoffCeiling       = 60 * time.Second
)

// Response is a definitive API response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport issues authenticated, versioned calls against the management and
// directory APIs and absorbs throttling and transient failures. Every
// invocation either returns a usable response or a typed error; nothing is
// dropped silently.
//
// Throttling (429) is waited out indefinitely: the remote API is sovereign
// over pacing. 5xx and network failures retry with exponential backoff up to
// a fixed budget. Backoff sleeps block only the calling goroutine and abort
// on context cancellation.
type Transport struct {
	creds     *CredentialStore
	client    *http.Client
	endpoints map[Audience]string

	// sleep and notifyThrottle are test seams.
	sleep          func(ctx context.Context, d time.Duration) error
	notifyThrottle func(d time.Duration)
}

type TransportOption func(*Transport)

// WithEndpoint overrides an audience's base URL.
func WithEndpoint(audience Audience, baseURL string) TransportOption {
	return func(t *Transport) {
		t.endpoints[audience] = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) TransportOption {
	return func(t *Transport) { t.client = client }
}

func NewTransport(creds *CredentialStore, opts ...TransportOption) *Transport {
	t := &Transport{
		creds:     creds,
		client:    &http.Client{Timeout: 2 * time.Minute},
		endpoints: make(map[Audience]string),
		sleep:     sleepContext,
		notifyThrottle: func(d time.Duration) {
			message.Throttled(int(d / time.Second))
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) baseURL(audience Audience) string {
	if base, ok := t.endpoints[audience]; ok {
		return base
	}
	return audience.BaseURL()
}

// Do executes the call with the given resolved api-version, blocking until a
// definitive response or a fatal error.
func (t *Transport) Do(ctx context.Context, call CallSpec, version string) (*Response, error) {
	token, err := t.creds.Resolve(ctx, call.Audience)
	if err != nil {
		return nil, err
	}

	url := call.url(t.baseURL(call.Audience), version)
	transientAttempts := 0
	throttleWaits := 0

	for {
		resp, err := t.roundTrip(ctx, call, url, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network-level failure, same budget as 5xx.
			transientAttempts++
			if transientAttempts >= transientRetryBudget {
				return nil, &TransientFetchError{Attempts: transientAttempts, Err: err}
			}
			if err := t.sleep(ctx, backoffDelay(transientAttempts)); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header)
			if wait <= 0 {
				wait = backoffDelay(throttleWaits + 1)
			}
			throttleWaits++
			t.notifyThrottle(wait)
			if err := t.sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode >= 500:
			transientAttempts++
			if transientAttempts >= transientRetryBudget {
				return nil, &TransientFetchError{
					Attempts: transientAttempts,
					Err:      fmt.Errorf("server returned status %d", resp.StatusCode),
				}
			}
			if err := t.sleep(ctx, backoffDelay(transientAttempts)); err != nil {
				return nil, err
			}

		case resp.StatusCode == http.StatusUnauthorized:
			apiErr := parseAPIError(resp.Body)
			if strings.EqualFold(apiErr.Code, "InvalidAuthenticationTokenTenant") {
				// The token is fine; the resource lives in a
				// Microsoft-managed tenant.
				return nil, ErrHiddenResource
			}
			return nil, &AuthenticationError{
				Audience: call.Audience,
				Err:      fmt.Errorf("token rejected: %s", apiErr.Message),
			}

		case resp.StatusCode == http.StatusNotFound:
			return nil, &NotFoundError{Path: call.Path}

		default:
			apiErr := parseAPIError(resp.Body)
			return nil, &FetchError{
				StatusCode: resp.StatusCode,
				Code:       apiErr.Code,
				Message:    apiErr.Message,
				Body:       resp.Body,
			}
		}
	}
}

func (t *Transport) roundTrip(ctx context.Context, call CallSpec, url, token string) (*Response, error) {
	method := call.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(call.Body) > 0 {
		body = bytes.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if len(call.Body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}

// retryAfter reads the server's wait hint in seconds. Returns 0 when absent
// or malformed.
func retryAfter(header http.Header) time.Duration {
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// backoffDelay doubles from 1s per attempt, capped at 60s.
func backoffDelay(attempt int) time.Duration {
	delay := backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= backoffCeiling {
			return backoffCeiling
		}
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
