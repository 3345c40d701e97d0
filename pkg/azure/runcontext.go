package azure

import (
	"sync"

	"github.com/google/uuid"
)

// RunContext carries the state scoped to a single enumeration run: the
// credential store, the transport, and the api-version caches. Components
// receive it explicitly instead of sharing process-wide globals, so
// concurrent runs in one process stay independent.
type RunContext struct {
	ID          string
	Credentials *CredentialStore
	Transport   *Transport

	versions *versionCache

	candidatesMu sync.Mutex
	candidates   map[versionKey][]string
}

func NewRunContext(creds *CredentialStore, transport *Transport) *RunContext {
	return &RunContext{
		ID:          uuid.NewString(),
		Credentials: creds,
		Transport:   transport,
		versions:    newVersionCache(),
		candidates:  make(map[versionKey][]string),
	}
}
