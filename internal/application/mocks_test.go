package application_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/petlink/internal/domain/model"
	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

// --- Mock implementations ---

// mockAccountClient returns a preset user id or error and records Close.
type mockAccountClient struct {
	userID   string
	err      error
	closed   bool
	closeErr error

	// When gate is set, UserID signals entered and waits for gate to close.
	gate    chan struct{}
	entered chan struct{}
}

func (m *mockAccountClient) UserID(ctx context.Context) (string, error) {
	if m.gate != nil {
		m.entered <- struct{}{}
		select {
		case <-m.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.userID, m.err
}

func (m *mockAccountClient) Close() error {
	m.closed = true
	return m.closeErr
}

// mockRemote hands out clients and remembers them so tests can assert that
// every client was closed.
type mockRemote struct {
	mu       sync.Mutex
	accounts map[model.Credentials]string
	err      error
	closeErr error
	clients  []*mockAccountClient
	gate     chan struct{}
	entered  chan struct{}
}

func newMockRemote() *mockRemote {
	return &mockRemote{accounts: make(map[model.Credentials]string)}
}

func (r *mockRemote) addAccount(email, password, userID string) {
	r.accounts[model.Credentials{Email: email, Password: password}] = userID
}

func (r *mockRemote) factory() driven.AccountClientFactory {
	return func(email, password string) driven.AccountClient {
		r.mu.Lock()
		defer r.mu.Unlock()

		c := &mockAccountClient{closeErr: r.closeErr, gate: r.gate, entered: r.entered}
		switch {
		case r.err != nil:
			c.err = r.err
		default:
			userID, ok := r.accounts[model.Credentials{Email: email, Password: password}]
			if ok {
				c.userID = userID
			} else {
				c.err = driven.ErrUnauthorized
			}
		}
		r.clients = append(r.clients, c)
		return c
	}
}

func (r *mockRemote) allClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if !c.closed {
			return false
		}
	}
	return true
}

// mockEntryStore is an in-memory driven.EntryStore.
type mockEntryStore struct {
	mu        sync.Mutex
	entries   map[int64]model.ConfigEntry
	nextID    int64
	lookupErr error
	createErr error
	states    []model.EntryState

	// beforeSetState runs outside the lock at the start of SetState.
	beforeSetState func()
}

func newMockEntryStore() *mockEntryStore {
	return &mockEntryStore{entries: make(map[int64]model.ConfigEntry), nextID: 1}
}

func (m *mockEntryStore) Create(_ context.Context, entry model.ConfigEntry) (model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return model.ConfigEntry{}, m.createErr
	}
	for _, e := range m.entries {
		if e.UniqueID == entry.UniqueID {
			return model.ConfigEntry{}, driven.ErrEntryAlreadyExists
		}
	}
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *mockEntryStore) GetByID(_ context.Context, id int64) (*model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *mockEntryStore) GetByUniqueID(_ context.Context, uniqueID string) (*model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, e := range m.entries {
		if e.UniqueID == uniqueID {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *mockEntryStore) ListAll(_ context.Context) ([]model.ConfigEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ConfigEntry, 0, len(m.entries))
	for id := int64(1); id < m.nextID; id++ {
		if e, ok := m.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntryStore) UpdateCredentials(_ context.Context, id int64, creds model.Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return driven.ErrEntryNotFound
	}
	e.Data = creds
	e.State = model.EntryStateLoaded
	e.Revision++
	m.entries[id] = e
	return nil
}

func (m *mockEntryStore) SetState(_ context.Context, id, revision int64, state model.EntryState) error {
	if m.beforeSetState != nil {
		m.beforeSetState()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return driven.ErrEntryNotFound
	}
	if e.Revision != revision {
		return driven.ErrEntryModified
	}
	e.State = state
	m.entries[id] = e
	m.states = append(m.states, state)
	return nil
}

func (m *mockEntryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return driven.ErrEntryNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *mockEntryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// --- Test helpers ---

// newTestLogger returns a logger writing to buf so tests can inspect output.
func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
