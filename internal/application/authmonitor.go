// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ericfisherdev/petlink/internal/domain/model"
	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

// checkRequest represents a manual check trigger.
type checkRequest struct {
	done chan CheckSummary
}

// CheckSummary counts the outcome of one pass over all entries.
type CheckSummary struct {
	Entries        int
	Loaded         int
	ReauthRequired int
	SetupError     int
}

// AuthMonitor periodically re-validates the credentials of every stored
// entry and records the entry state, so the host knows when to offer
// re-authentication.
type AuthMonitor struct {
	clients  driven.AccountClientFactory
	entries  driven.EntryStore
	interval time.Duration
	checkCh  chan checkRequest
	logger   *slog.Logger
}

// NewAuthMonitor creates a new AuthMonitor with all required dependencies.
func NewAuthMonitor(
	clients driven.AccountClientFactory,
	entries driven.EntryStore,
	interval time.Duration,
	logger *slog.Logger,
) *AuthMonitor {
	return &AuthMonitor{
		clients:  clients,
		entries:  entries,
		interval: interval,
		checkCh:  make(chan checkRequest),
		logger:   logger,
	}
}

// Start runs an immediate check, then checks on the configured interval. It
// also serves manual CheckNow requests. Start blocks until the context is
// canceled.
func (s *AuthMonitor) Start(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("auth monitor stopped")
			return
		case <-ticker.C:
			s.checkAll(ctx)
		case req := <-s.checkCh:
			req.done <- s.checkAll(ctx)
		}
	}
}

// CheckNow triggers an immediate check of all entries. It blocks until the
// check completes or the context is canceled.
func (s *AuthMonitor) CheckNow(ctx context.Context) (CheckSummary, error) {
	done := make(chan CheckSummary, 1)

	select {
	case s.checkCh <- checkRequest{done: done}:
	case <-ctx.Done():
		return CheckSummary{}, ctx.Err()
	}

	select {
	case summary := <-done:
		return summary, nil
	case <-ctx.Done():
		return CheckSummary{}, ctx.Err()
	}
}

// checkAll validates every entry and stores its resulting state.
func (s *AuthMonitor) checkAll(ctx context.Context) CheckSummary {
	start := time.Now()
	var summary CheckSummary

	entries, err := s.entries.ListAll(ctx)
	if err != nil {
		s.logger.Error("list entries for auth check failed", "error", err)
		return summary
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		summary.Entries++

		state := s.checkEntry(ctx, entry)
		switch state {
		case model.EntryStateLoaded:
			summary.Loaded++
		case model.EntryStateReauthRequired:
			summary.ReauthRequired++
		case model.EntryStateSetupError:
			summary.SetupError++
		}

		if state == entry.State {
			continue
		}
		err := s.entries.SetState(ctx, entry.ID, entry.Revision, state)
		if errors.Is(err, driven.ErrEntryModified) {
			// Credentials were replaced while the check ran; the result is stale.
			s.logger.Debug("entry changed during auth check, state kept", "entry_id", entry.ID)
			continue
		}
		if err != nil {
			s.logger.Error("set entry state failed", "entry_id", entry.ID, "state", state, "error", err)
			continue
		}
		s.logger.Info("entry state changed", "entry_id", entry.ID, "from", entry.State, "to", state)
	}

	s.logger.Info("auth check complete",
		"entries", summary.Entries,
		"reauth_required", summary.ReauthRequired,
		"setup_error", summary.SetupError,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return summary
}

func (s *AuthMonitor) checkEntry(ctx context.Context, entry model.ConfigEntry) model.EntryState {
	client := s.clients(entry.Data.Email, entry.Data.Password)
	defer func() {
		if err := client.Close(); err != nil {
			s.logger.Warn("close account client failed", "entry_id", entry.ID, "error", err)
		}
	}()

	userID, err := client.UserID(ctx)
	switch {
	case errors.Is(err, driven.ErrUnauthorized):
		return model.EntryStateReauthRequired
	case err != nil:
		s.logger.Error("auth check failed", "entry_id", entry.ID, "error", err)
		return model.EntryStateSetupError
	case userID != entry.UniqueID:
		// The credentials now belong to a different account.
		s.logger.Warn("auth check returned a different account", "entry_id", entry.ID, "unique_id", entry.UniqueID)
		return model.EntryStateReauthRequired
	default:
		return model.EntryStateLoaded
	}
}
