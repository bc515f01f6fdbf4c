package model

import "time"

// EntryState describes whether a configured account can currently be used.
type EntryState string

const (
	EntryStateLoaded         EntryState = "loaded"
	EntryStateSetupError     EntryState = "setup_error"
	EntryStateReauthRequired EntryState = "reauth_required"
)

// ConfigEntry is a persisted, configured pet-tracker account. UniqueID is the
// remote account identifier; at most one entry exists per UniqueID.
// Revision increases each time the stored credentials change.
type ConfigEntry struct {
	ID        int64
	Title     string
	UniqueID  string
	Data      Credentials
	State     EntryState
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
