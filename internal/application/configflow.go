package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/petlink/internal/domain/model"
	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

// ValidationKind classifies why credentials could not be validated.
type ValidationKind int

const (
	// ValidationOther covers every failure other than rejected credentials.
	ValidationOther ValidationKind = iota
	// ValidationUnauthorized means the remote service rejected the credentials.
	ValidationUnauthorized
)

// ValidationError is returned by validateInput. Err holds the underlying cause.
type ValidationError struct {
	Kind ValidationKind
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Kind == ValidationUnauthorized {
		return fmt.Sprintf("invalid auth: %v", e.Err)
	}
	return fmt.Sprintf("validate credentials: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// accountInfo is what a successful validation yields.
type accountInfo struct {
	title  string
	userID string
}

// ConfigFlow is one interactive setup or re-authentication session for a
// pet-tracker account. The host calls StepUser or StepReauth, renders any
// form result, and calls the same step again with the submitted credentials.
// A ConfigFlow is not safe for concurrent use; the host runs one step at a time.
type ConfigFlow struct {
	clients  driven.AccountClientFactory
	entries  driven.EntryStore
	logger   *slog.Logger
	email    string
	uniqueID string
}

// NewConfigFlow creates a flow session.
func NewConfigFlow(clients driven.AccountClientFactory, entries driven.EntryStore, logger *slog.Logger) *ConfigFlow {
	return &ConfigFlow{
		clients: clients,
		entries: entries,
		logger:  logger,
	}
}

// UniqueID returns the remote account identifier set by the last successful
// validation, or "" if none has succeeded yet.
func (f *ConfigFlow) UniqueID() string {
	return f.uniqueID
}

// StepUser handles the initial setup step. A nil input asks the host to show
// the credentials form.
func (f *ConfigFlow) StepUser(ctx context.Context, input *model.Credentials) (model.FlowResult, error) {
	if input == nil {
		return showForm(model.StepUser, userSchema(), nil), nil
	}

	if errs := missingFields(*input); len(errs) > 0 {
		return showForm(model.StepUser, userSchema(), errs), nil
	}

	errs := map[string]string{}

	info, err := f.validateInput(ctx, *input)
	if err != nil {
		errs[model.ErrorBase] = f.errorCode(err)
		return showForm(model.StepUser, userSchema(), errs), nil
	}

	f.uniqueID = info.userID

	existing, err := f.entries.GetByUniqueID(ctx, info.userID)
	if err != nil {
		return model.FlowResult{}, fmt.Errorf("look up entry %q: %w", info.userID, err)
	}
	if existing != nil {
		return abort(model.AbortAlreadyConfigured), nil
	}

	entry, err := f.entries.Create(ctx, model.ConfigEntry{
		Title:    info.title,
		UniqueID: info.userID,
		Data:     *input,
		State:    model.EntryStateLoaded,
	})
	if errors.Is(err, driven.ErrEntryAlreadyExists) {
		// Another flow created the entry between lookup and insert.
		return abort(model.AbortAlreadyConfigured), nil
	}
	if err != nil {
		return model.FlowResult{}, fmt.Errorf("create entry %q: %w", info.userID, err)
	}

	return model.FlowResult{
		Type:   model.ResultTypeCreateEntry,
		StepID: model.StepUser,
		Title:  info.title,
		Data:   *input,
		Entry:  &entry,
	}, nil
}

// StepReauth handles re-authentication of an existing entry. The form
// pre-fills the email submitted earlier in this session.
func (f *ConfigFlow) StepReauth(ctx context.Context, input *model.Credentials) (model.FlowResult, error) {
	errs := map[string]string{}

	if input != nil {
		f.email = input.Email

		if missing := missingFields(*input); len(missing) > 0 {
			return showForm(model.StepReauth, reauthSchema(f.email), missing), nil
		}

		info, err := f.validateInput(ctx, *input)
		if err != nil {
			errs[model.ErrorBase] = f.errorCode(err)
		} else {
			f.uniqueID = info.userID

			entry, err := f.entries.GetByUniqueID(ctx, info.userID)
			if err != nil {
				return model.FlowResult{}, fmt.Errorf("look up entry %q: %w", info.userID, err)
			}
			if entry != nil {
				if err := f.entries.UpdateCredentials(ctx, entry.ID, *input); err != nil {
					return model.FlowResult{}, fmt.Errorf("update entry %d: %w", entry.ID, err)
				}
				return abort(model.AbortReauthSuccessful), nil
			}

			// Valid credentials for an account that has no entry. The form is
			// shown again without an error.
			f.logger.Warn("reauth validated an account with no config entry", "unique_id", info.userID)
		}
	}

	return showForm(model.StepReauth, reauthSchema(f.email), errs), nil
}

// validateInput checks the credentials against the remote account API. The
// client is always closed before returning.
func (f *ConfigFlow) validateInput(ctx context.Context, creds model.Credentials) (info accountInfo, err error) {
	client := f.clients(creds.Email, creds.Password)
	defer func() {
		if closeErr := client.Close(); closeErr != nil && err == nil {
			err = &ValidationError{Kind: ValidationOther, Err: fmt.Errorf("close client: %w", closeErr)}
		}
	}()

	userID, err := client.UserID(ctx)
	if errors.Is(err, driven.ErrUnauthorized) {
		return accountInfo{}, &ValidationError{Kind: ValidationUnauthorized, Err: err}
	}
	if err != nil {
		return accountInfo{}, &ValidationError{Kind: ValidationOther, Err: err}
	}

	return accountInfo{title: creds.Email, userID: userID}, nil
}

// errorCode maps a validation failure to the code shown to the user.
// Unexpected failures are logged; their detail never reaches the form.
func (f *ConfigFlow) errorCode(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) && verr.Kind == ValidationUnauthorized {
		return model.ErrorInvalidAuth
	}
	f.logger.Error("unexpected error validating credentials", "error", err)
	return model.ErrorUnknown
}

// missingFields reports required form fields left empty. Submissions with
// missing fields never reach the remote API.
func missingFields(creds model.Credentials) map[string]string {
	errs := map[string]string{}
	if strings.TrimSpace(creds.Email) == "" {
		errs[model.FieldEmail] = model.ErrorRequired
	}
	if creds.Password == "" {
		errs[model.FieldPassword] = model.ErrorRequired
	}
	return errs
}

func userSchema() []model.FormField {
	return []model.FormField{
		{Name: model.FieldEmail, Type: "string", Required: true},
		{Name: model.FieldPassword, Type: "string", Required: true},
	}
}

func reauthSchema(email string) []model.FormField {
	return []model.FormField{
		{Name: model.FieldEmail, Type: "string", Required: true, Default: email},
		{Name: model.FieldPassword, Type: "string", Required: true},
	}
}

func showForm(stepID string, schema []model.FormField, errs map[string]string) model.FlowResult {
	if errs == nil {
		errs = map[string]string{}
	}
	return model.FlowResult{
		Type:   model.ResultTypeForm,
		StepID: stepID,
		Schema: schema,
		Errors: errs,
	}
}

func abort(reason string) model.FlowResult {
	return model.FlowResult{Type: model.ResultTypeAbort, Reason: reason}
}
