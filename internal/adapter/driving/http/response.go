package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/petlink/internal/application"
	"github.com/ericfisherdev/petlink/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// StartFlowRequest is the JSON body for POST /api/v1/flows.
type StartFlowRequest struct {
	Step string `json:"step"`
}

// CredentialsRequest is the JSON body submitted to a flow step.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// FieldResponse is the JSON representation of one form field.
type FieldResponse struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
	Default  string `json:"default,omitempty"`
}

// FlowResponse is the JSON representation of a flow step result.
type FlowResponse struct {
	FlowID     string            `json:"flow_id"`
	Type       string            `json:"type"`
	StepID     string            `json:"step_id,omitempty"`
	DataSchema []FieldResponse   `json:"data_schema,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
	Messages   map[string]string `json:"messages,omitempty"`

	Title string         `json:"title,omitempty"`
	Entry *EntryResponse `json:"entry,omitempty"`

	Reason        string `json:"reason,omitempty"`
	ReasonMessage string `json:"reason_message,omitempty"`
}

// EntryResponse is the JSON representation of a config entry. The password
// is never included.
type EntryResponse struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	UniqueID  string `json:"unique_id"`
	Email     string `json:"email"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// CheckResponse is the JSON representation of an auth check summary.
type CheckResponse struct {
	Entries        int `json:"entries"`
	Loaded         int `json:"loaded"`
	ReauthRequired int `json:"reauth_required"`
	SetupError     int `json:"setup_error"`
}

// HealthResponse is the JSON response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	LiveFlows int    `json:"live_flows"`
}

func toFlowResponse(view application.FlowView) FlowResponse {
	r := view.Result
	resp := FlowResponse{
		FlowID: view.FlowID,
		Type:   string(r.Type),
		StepID: r.StepID,
		Title:  r.Title,
		Reason: r.Reason,
	}

	for _, f := range r.Schema {
		resp.DataSchema = append(resp.DataSchema, FieldResponse{
			Name:     f.Name,
			Type:     f.Type,
			Required: f.Required,
			Default:  f.Default,
		})
	}

	if len(r.Errors) > 0 {
		resp.Errors = make(map[string]string, len(r.Errors))
		resp.Messages = make(map[string]string, len(r.Errors))
		for field, code := range r.Errors {
			resp.Errors[field] = code
			resp.Messages[field] = errorMessage(code)
		}
	}

	if r.Entry != nil {
		entry := toEntryResponse(*r.Entry)
		resp.Entry = &entry
	}

	if r.Type == model.ResultTypeAbort {
		resp.ReasonMessage = abortMessage(r.Reason)
	}

	return resp
}

func toEntryResponse(e model.ConfigEntry) EntryResponse {
	return EntryResponse{
		ID:        e.ID,
		Title:     e.Title,
		UniqueID:  e.UniqueID,
		Email:     e.Data.Email,
		State:     string(e.State),
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toCheckResponse(s application.CheckSummary) CheckResponse {
	return CheckResponse{
		Entries:        s.Entries,
		Loaded:         s.Loaded,
		ReauthRequired: s.ReauthRequired,
		SetupError:     s.SetupError,
	}
}
