package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/petlink/internal/domain/model"
	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

// Sentinel errors returned by FlowManager.
var (
	ErrFlowNotFound = errors.New("flow not found")
	ErrUnknownStep  = errors.New("unknown flow step")
)

// flowSession is a live ConfigFlow plus the host-side bookkeeping around it.
// mu serialises steps of the same flow. busy and expiresAt are guarded by the
// manager's mutex.
type flowSession struct {
	mu        sync.Mutex
	id        string
	step      string
	flow      *ConfigFlow
	last      model.FlowResult
	busy      bool
	expiresAt time.Time
}

// FlowManager drives ConfigFlow sessions on behalf of a host that renders
// forms. Sessions are keyed by a random flow ID, resumed with user input, and
// discarded once a step returns a terminal result or the session sits idle
// past its TTL.
type FlowManager struct {
	mu       sync.RWMutex
	sessions map[string]*flowSession
	clients  driven.AccountClientFactory
	entries  driven.EntryStore
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewFlowManager creates a FlowManager. ttl bounds how long an idle session
// is kept between steps.
func NewFlowManager(clients driven.AccountClientFactory, entries driven.EntryStore, ttl time.Duration, logger *slog.Logger) *FlowManager {
	return &FlowManager{
		sessions: make(map[string]*flowSession),
		clients:  clients,
		entries:  entries,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// FlowView is a step result tagged with the flow it belongs to.
type FlowView struct {
	FlowID string
	Result model.FlowResult
}

// Init starts a new flow at the given step and runs it once with input
// (usually nil, which yields the empty form).
func (m *FlowManager) Init(ctx context.Context, step string, input *model.Credentials) (FlowView, error) {
	if step != model.StepUser && step != model.StepReauth {
		return FlowView{}, fmt.Errorf("init flow: %w: %q", ErrUnknownStep, step)
	}

	s := &flowSession{
		id:   uuid.NewString(),
		step: step,
		flow: NewConfigFlow(m.clients, m.entries, m.logger),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m.mu.Lock()
	m.sweepLocked()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("flow started", "flow_id", s.id, "step", step)

	return m.run(ctx, s, input)
}

// StartReauth starts a re-authentication flow for an existing entry. The
// entry's stored credentials are submitted as the first input, so a still
// valid entry completes immediately and an invalid one returns the form with
// the email filled in.
func (m *FlowManager) StartReauth(ctx context.Context, entryID int64) (FlowView, error) {
	entry, err := m.entries.GetByID(ctx, entryID)
	if err != nil {
		return FlowView{}, fmt.Errorf("start reauth for entry %d: %w", entryID, err)
	}
	if entry == nil {
		return FlowView{}, fmt.Errorf("start reauth for entry %d: %w", entryID, driven.ErrEntryNotFound)
	}

	creds := entry.Data
	return m.Init(ctx, model.StepReauth, &creds)
}

// Configure resumes a flow with user input.
func (m *FlowManager) Configure(ctx context.Context, flowID string, input *model.Credentials) (FlowView, error) {
	s, err := m.lookup(flowID)
	if err != nil {
		return FlowView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The session may have finished while we waited for the lock.
	if _, err := m.lookup(flowID); err != nil {
		return FlowView{}, err
	}

	return m.run(ctx, s, input)
}

// Get returns the last result of a live flow.
func (m *FlowManager) Get(flowID string) (FlowView, error) {
	s, err := m.lookup(flowID)
	if err != nil {
		return FlowView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return FlowView{FlowID: s.id, Result: s.last}, nil
}

// Abort discards a live flow.
func (m *FlowManager) Abort(flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[flowID]; !ok {
		return fmt.Errorf("abort flow %s: %w", flowID, ErrFlowNotFound)
	}
	delete(m.sessions, flowID)
	m.logger.Info("flow aborted by host", "flow_id", flowID)
	return nil
}

// Len returns the number of live flows.
func (m *FlowManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// run executes the session's step. The caller must hold s.mu.
func (m *FlowManager) run(ctx context.Context, s *flowSession, input *model.Credentials) (FlowView, error) {
	var (
		result model.FlowResult
		err    error
	)

	m.markBusy(s)

	switch s.step {
	case model.StepUser:
		result, err = s.flow.StepUser(ctx, input)
	case model.StepReauth:
		result, err = s.flow.StepReauth(ctx, input)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownStep, s.step)
	}

	if err != nil {
		m.remove(s.id)
		return FlowView{}, fmt.Errorf("flow %s step %s: %w", s.id, s.step, err)
	}

	s.last = result

	if result.IsTerminal() {
		m.remove(s.id)
		m.logger.Info("flow finished",
			"flow_id", s.id,
			"step", s.step,
			"result", result.Type,
			"reason", result.Reason,
			"unique_id", s.flow.UniqueID(),
		)
	} else {
		m.touch(s)
	}

	return FlowView{FlowID: s.id, Result: result}, nil
}

func (m *FlowManager) lookup(flowID string) (*flowSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked()

	s, ok := m.sessions[flowID]
	if !ok {
		return nil, fmt.Errorf("flow %s: %w", flowID, ErrFlowNotFound)
	}
	return s, nil
}

// markBusy keeps the sweep away from a session while its step runs.
func (m *FlowManager) markBusy(s *flowSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.busy = true
}

func (m *FlowManager) touch(s *flowSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.busy = false
	s.expiresAt = m.now().Add(m.ttl)
}

func (m *FlowManager) remove(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, flowID)
}

// sweepLocked drops idle sessions past their expiry. Sessions running a step
// or that have not completed their first step are kept. The caller must hold
// m.mu.
func (m *FlowManager) sweepLocked() {
	now := m.now()
	for id, s := range m.sessions {
		if s.busy || s.expiresAt.IsZero() {
			continue
		}
		if now.After(s.expiresAt) {
			delete(m.sessions, id)
			m.logger.Debug("flow expired", "flow_id", id)
		}
	}
}
