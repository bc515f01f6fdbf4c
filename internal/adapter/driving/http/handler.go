package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/petlink/internal/application"
	"github.com/ericfisherdev/petlink/internal/domain/model"
	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

const maxRequestBody = 16 << 10

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	flows   *application.FlowManager
	entries driven.EntryStore
	monitor *application.AuthMonitor
	logger  *slog.Logger
}

// NewHandler creates a Handler. monitor may be nil when background auth
// checks are disabled.
func NewHandler(
	flows *application.FlowManager,
	entries driven.EntryStore,
	monitor *application.AuthMonitor,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		flows:   flows,
		entries: entries,
		monitor: monitor,
		logger:  logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("POST /api/v1/flows", h.StartFlow)
	mux.HandleFunc("GET /api/v1/flows/{id}", h.GetFlow)
	mux.HandleFunc("POST /api/v1/flows/{id}", h.ConfigureFlow)
	mux.HandleFunc("DELETE /api/v1/flows/{id}", h.AbortFlow)

	mux.HandleFunc("GET /api/v1/entries", h.ListEntries)
	mux.HandleFunc("POST /api/v1/entries/check", h.CheckEntries)
	mux.HandleFunc("GET /api/v1/entries/{id}", h.GetEntry)
	mux.HandleFunc("DELETE /api/v1/entries/{id}", h.DeleteEntry)
	mux.HandleFunc("POST /api/v1/entries/{id}/reauth", h.ReauthEntry)

	// Recovery innermost so panics are caught before logging.
	wrapped := maxBodyMiddleware(maxRequestBody, mux)
	wrapped = recoveryMiddleware(logger, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// StartFlow begins a new config flow. An empty body starts the user step.
func (h *Handler) StartFlow(w http.ResponseWriter, r *http.Request) {
	var req StartFlowRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Step == "" {
		req.Step = model.StepUser
	}

	view, err := h.flows.Init(r.Context(), req.Step, nil)
	if err != nil {
		h.writeFlowError(w, "failed to start flow", err)
		return
	}

	writeJSON(w, http.StatusOK, toFlowResponse(view))
}

// GetFlow returns the last result of a live flow.
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	view, err := h.flows.Get(r.PathValue("id"))
	if err != nil {
		h.writeFlowError(w, "failed to get flow", err)
		return
	}

	writeJSON(w, http.StatusOK, toFlowResponse(view))
}

// ConfigureFlow submits credentials to a live flow.
func (h *Handler) ConfigureFlow(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := model.Credentials{Email: req.Email, Password: req.Password}
	view, err := h.flows.Configure(r.Context(), r.PathValue("id"), &input)
	if err != nil {
		h.writeFlowError(w, "failed to configure flow", err)
		return
	}

	writeJSON(w, http.StatusOK, toFlowResponse(view))
}

// AbortFlow discards a live flow.
func (h *Handler) AbortFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.flows.Abort(r.PathValue("id")); err != nil {
		h.writeFlowError(w, "failed to abort flow", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListEntries returns all configured accounts.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entries.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list entries", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetEntry returns a single configured account.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get entry", "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(*entry))
}

// DeleteEntry removes a configured account.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	if err := h.entries.Delete(r.Context(), id); err != nil {
		if errors.Is(err, driven.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		h.logger.Error("failed to delete entry", "entry_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("entry removed", "entry_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// ReauthEntry starts a re-authentication flow for an existing account.
func (h *Handler) ReauthEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	view, err := h.flows.StartReauth(r.Context(), id)
	if err != nil {
		h.writeFlowError(w, "failed to start reauth", err)
		return
	}

	writeJSON(w, http.StatusOK, toFlowResponse(view))
}

// CheckEntries re-validates every stored account now.
func (h *Handler) CheckEntries(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		writeError(w, http.StatusServiceUnavailable, "auth monitor disabled")
		return
	}

	summary, err := h.monitor.CheckNow(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "auth check did not complete")
		return
	}

	writeJSON(w, http.StatusOK, toCheckResponse(summary))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Time:      time.Now().UTC().Format(time.RFC3339),
		LiveFlows: h.flows.Len(),
	})
}

// writeFlowError maps flow manager errors to HTTP status codes.
func (h *Handler) writeFlowError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, application.ErrFlowNotFound):
		writeError(w, http.StatusNotFound, "flow not found")
	case errors.Is(err, application.ErrUnknownStep):
		writeError(w, http.StatusBadRequest, "unknown flow step")
	case errors.Is(err, driven.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	default:
		h.logger.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// entryID parses the {id} path value, writing a 400 when it is malformed.
func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return 0, false
	}
	return id, true
}

// decodeOptionalBody decodes JSON into v, treating an empty body as valid.
func decodeOptionalBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
