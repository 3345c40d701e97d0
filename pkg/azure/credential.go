package azure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// CredentialStore resolves bearer tokens per audience. Resolution order is
// pre-supplied token, injected azcore.TokenCredential, interactive browser
// sign-in. Interactive acquisition is triggered at most once per audience
// per run and the result reused for the run's lifetime.
type CredentialStore struct {
	tenantID string

	mu       sync.Mutex
	tokens   map[Audience]string
	creds    map[Audience]azcore.TokenCredential
	acquired map[Audience]*acquisition
}

type acquisition struct {
	once  sync.Once
	token azcore.AccessToken
	err   error
}

type CredentialOption func(*CredentialStore)

// WithTenantID pins interactive acquisition to a tenant, required when the
// signed-in account is a guest.
func WithTenantID(tenantID string) CredentialOption {
	return func(s *CredentialStore) { s.tenantID = tenantID }
}

// WithToken pre-supplies a bearer token for an audience.
func WithToken(audience Audience, token string) CredentialOption {
	return func(s *CredentialStore) {
		if token != "" {
			s.tokens[audience] = token
		}
	}
}

// WithTokenCredential injects a credential for an audience, e.g. a service
// identity or a test double.
func WithTokenCredential(audience Audience, cred azcore.TokenCredential) CredentialOption {
	return func(s *CredentialStore) { s.creds[audience] = cred }
}

func NewCredentialStore(opts ...CredentialOption) *CredentialStore {
	s := &CredentialStore{
		tokens:   make(map[Audience]string),
		creds:    make(map[Audience]azcore.TokenCredential),
		acquired: make(map[Audience]*acquisition),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve returns a valid bearer token for the audience, acquiring one
// interactively if necessary.
func (s *CredentialStore) Resolve(ctx context.Context, audience Audience) (string, error) {
	s.mu.Lock()
	if token, ok := s.tokens[audience]; ok {
		s.mu.Unlock()
		return token, nil
	}

	cred, ok := s.creds[audience]
	if !ok {
		var err error
		cred, err = s.interactiveCredential()
		if err != nil {
			s.mu.Unlock()
			return "", &AuthenticationError{Audience: audience, Err: err}
		}
		s.creds[audience] = cred
	}

	acq, ok := s.acquired[audience]
	if !ok {
		acq = &acquisition{}
		s.acquired[audience] = acq
	}
	s.mu.Unlock()

	acq.once.Do(func() {
		acq.token, acq.err = cred.GetToken(ctx, policy.TokenRequestOptions{
			Scopes:   []string{audience.TokenScope()},
			TenantID: s.tenantID,
		})
	})
	if acq.err != nil {
		return "", &AuthenticationError{Audience: audience, Err: acq.err}
	}
	if !acq.token.ExpiresOn.IsZero() && time.Now().After(acq.token.ExpiresOn) {
		return "", &AuthenticationError{
			Audience: audience,
			Err:      fmt.Errorf("cached token expired at %s", acq.token.ExpiresOn.Format(time.RFC3339)),
		}
	}

	return acq.token.Token, nil
}

// TokenCredential exposes the audience's credential in the form the typed
// SDK clients expect. Pre-supplied tokens are wrapped as a static
// credential.
func (s *CredentialStore) TokenCredential(audience Audience) (azcore.TokenCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokens[audience]; ok {
		return staticTokenCredential{token: token}, nil
	}
	if cred, ok := s.creds[audience]; ok {
		return cred, nil
	}

	cred, err := s.interactiveCredential()
	if err != nil {
		return nil, &AuthenticationError{Audience: audience, Err: err}
	}
	s.creds[audience] = cred
	return cred, nil
}

func (s *CredentialStore) interactiveCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewInteractiveBrowserCredential(&azidentity.InteractiveBrowserCredentialOptions{
		TenantID: s.tenantID,
	})
	if err == nil {
		return cred, nil
	}

	// Headless environments cannot open a browser; fall back to the ambient
	// credential chain (environment, managed identity, Azure CLI).
	fallback, fbErr := azidentity.NewDefaultAzureCredential(&azidentity.DefaultAzureCredentialOptions{
		TenantID: s.tenantID,
	})
	if fbErr != nil {
		return nil, fmt.Errorf("no pre-supplied token and interactive sign-in unavailable: %w", err)
	}
	return fallback, nil
}

type staticTokenCredential struct {
	token string
}

func (c staticTokenCredential) GetToken(_ context.Context, _ policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{Token: c.token}, nil
}
