package model

// Step identifiers understood by the config flow.
const (
	StepUser   = "user"
	StepReauth = "reauth"
)

// Error and abort codes surfaced to the host. The host maps them to
// user-facing text.
const (
	ErrorBase = "base"

	ErrorInvalidAuth = "invalid_auth"
	ErrorUnknown     = "unknown"
	ErrorRequired    = "required"

	AbortAlreadyConfigured = "already_configured"
	AbortReauthSuccessful  = "reauth_successful"
)

// Form field names.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
)

// ResultType is the kind of directive a flow step returns to the host.
type ResultType string

const (
	ResultTypeForm        ResultType = "form"
	ResultTypeCreateEntry ResultType = "create_entry"
	ResultTypeAbort       ResultType = "abort"
)

// FormField describes one input the host should render.
type FormField struct {
	Name     string
	Type     string
	Required bool
	Default  string
}

// FlowResult is returned from every flow step. Only the fields relevant to
// Type are populated.
type FlowResult struct {
	Type   ResultType
	StepID string

	// Form results.
	Schema []FormField
	Errors map[string]string

	// Create-entry results.
	Title string
	Data  Credentials
	Entry *ConfigEntry

	// Abort results.
	Reason string
}

// IsTerminal reports whether the flow session ends with this result.
func (r FlowResult) IsTerminal() bool {
	return r.Type == ResultTypeCreateEntry || r.Type == ResultTypeAbort
}
