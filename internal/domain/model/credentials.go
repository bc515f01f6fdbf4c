package model

// Credentials are the account login details the user submits to a flow.
// They are persisted only as part of a ConfigEntry, with the password
// encrypted at rest by the store adapter.
type Credentials struct {
	Email    string
	Password string
}
