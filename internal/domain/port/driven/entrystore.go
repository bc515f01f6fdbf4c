package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/petlink/internal/domain/model"
)

// Sentinel errors for entry store operations.
var (
	ErrEntryAlreadyExists = errors.New("config entry already exists")
	ErrEntryNotFound      = errors.New("config entry not found")
	ErrEntryModified      = errors.New("config entry modified since read")
)

// ErrEncryptionKeyNotSet is returned by EntryStore operations that touch
// credentials when PETLINK_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set PETLINK_SECRET_KEY")

// EntryStore defines the driven port for config entry persistence.
// The adapter encrypts credentials at rest; this interface operates on
// plaintext at the domain boundary.
type EntryStore interface {
	// Create persists a new entry and returns it with ID and timestamps set.
	// Returns ErrEntryAlreadyExists if an entry with the same UniqueID exists.
	Create(ctx context.Context, entry model.ConfigEntry) (model.ConfigEntry, error)

	// GetByID returns the entry with the given ID, or nil, nil if none exists.
	GetByID(ctx context.Context, id int64) (*model.ConfigEntry, error)

	// GetByUniqueID returns the entry for the remote account identifier,
	// or nil, nil if none exists.
	GetByUniqueID(ctx context.Context, uniqueID string) (*model.ConfigEntry, error)

	// ListAll returns every entry ordered by ID.
	ListAll(ctx context.Context) ([]model.ConfigEntry, error)

	// UpdateCredentials replaces the stored credentials of an entry, bumps its
	// revision and marks it loaded. Returns ErrEntryNotFound if the entry does
	// not exist.
	UpdateCredentials(ctx context.Context, id int64, creds model.Credentials) error

	// SetState records the entry's current state, provided its credentials
	// are still at revision. Returns ErrEntryModified if they changed since
	// and ErrEntryNotFound if the entry does not exist.
	SetState(ctx context.Context, id, revision int64, state model.EntryState) error

	// Delete removes an entry. Returns ErrEntryNotFound if it does not exist.
	Delete(ctx context.Context, id int64) error
}
