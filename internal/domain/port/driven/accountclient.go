package driven

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned by AccountClient when the remote service rejects
// the supplied credentials. Any other error is an unexpected failure.
var ErrUnauthorized = errors.New("account credentials rejected")

// AccountClient defines the driven port for the remote pet-tracker account API.
// A client is bound to one set of credentials and must be closed after use.
type AccountClient interface {
	// UserID authenticates and returns the stable remote account identifier.
	// Returns ErrUnauthorized (possibly wrapped) when the credentials are rejected.
	UserID(ctx context.Context) (string, error)

	// Close releases the client's connections. It is safe to call more than once.
	Close() error
}

// AccountClientFactory constructs an AccountClient for the given credentials.
type AccountClientFactory func(email, password string) AccountClient
