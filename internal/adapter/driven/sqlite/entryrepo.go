package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/petlink/internal/domain/model"
	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EntryStore = (*EntryRepo)(nil)

// EntryRepo is the SQLite implementation of the EntryStore port interface.
// Passwords are encrypted with AES-256-GCM before write and decrypted after read.
type EntryRepo struct {
	db  *DB
	box secretBox
}

// NewEntryRepo creates a new EntryRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (operations returning or writing
// credentials will fail with ErrEncryptionKeyNotSet).
func NewEntryRepo(db *DB, key []byte) *EntryRepo {
	return &EntryRepo{db: db, box: secretBox{key: key}}
}

const entryColumns = `id, title, unique_id, email, password_enc, state, revision, created_at, updated_at`

// Create inserts a new entry. Returns ErrEntryAlreadyExists if an entry with
// the same unique_id already exists.
func (r *EntryRepo) Create(ctx context.Context, entry model.ConfigEntry) (model.ConfigEntry, error) {
	sealed, err := r.box.seal(entry.Data.Password)
	if err != nil {
		return model.ConfigEntry{}, fmt.Errorf("create entry %q: %w", entry.UniqueID, err)
	}

	state := entry.State
	if state == "" {
		state = model.EntryStateLoaded
	}
	now := time.Now().UTC()

	const query = `INSERT INTO config_entries (title, unique_id, email, password_enc, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.Writer.ExecContext(ctx, query,
		entry.Title, entry.UniqueID, entry.Data.Email, sealed, string(state),
		formatTime(now), formatTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.ConfigEntry{}, fmt.Errorf("create entry %q: %w", entry.UniqueID, driven.ErrEntryAlreadyExists)
		}
		return model.ConfigEntry{}, fmt.Errorf("create entry %q: %w", entry.UniqueID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return model.ConfigEntry{}, fmt.Errorf("last insert id: %w", err)
	}

	entry.ID = id
	entry.State = state
	entry.CreatedAt = now
	entry.UpdatedAt = now
	return entry, nil
}

// GetByID retrieves an entry by ID. Returns nil, nil if it does not exist.
func (r *EntryRepo) GetByID(ctx context.Context, id int64) (*model.ConfigEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM config_entries WHERE id = ?`

	entry, err := r.scanEntry(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	return &entry, nil
}

// GetByUniqueID retrieves the entry for a remote account identifier.
// Returns nil, nil if it does not exist.
func (r *EntryRepo) GetByUniqueID(ctx context.Context, uniqueID string) (*model.ConfigEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM config_entries WHERE unique_id = ?`

	entry, err := r.scanEntry(r.db.Reader.QueryRowContext(ctx, query, uniqueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by unique id %q: %w", uniqueID, err)
	}
	return &entry, nil
}

// ListAll returns all entries ordered by ID.
func (r *EntryRepo) ListAll(ctx context.Context) ([]model.ConfigEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM config_entries ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []model.ConfigEntry{}
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// UpdateCredentials replaces the entry's stored credentials, bumps its revision
// and marks it loaded.
func (r *EntryRepo) UpdateCredentials(ctx context.Context, id int64, creds model.Credentials) error {
	sealed, err := r.box.seal(creds.Password)
	if err != nil {
		return fmt.Errorf("update entry %d: %w", id, err)
	}

	const query = `UPDATE config_entries
		SET email = ?, password_enc = ?, state = ?, revision = revision + 1, updated_at = ?
		WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		creds.Email, sealed, string(model.EntryStateLoaded), formatTime(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("update entry %d: %w", id, err)
	}
	return requireAffected(result, fmt.Sprintf("update entry %d", id))
}

// SetState records the entry's state if its revision still matches. A miss is
// reported as ErrEntryModified when the row exists and ErrEntryNotFound when
// it does not.
func (r *EntryRepo) SetState(ctx context.Context, id, revision int64, state model.EntryState) error {
	const query = `UPDATE config_entries SET state = ?, updated_at = ? WHERE id = ? AND revision = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(state), formatTime(time.Now().UTC()), id, revision)
	if err != nil {
		return fmt.Errorf("set state of entry %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = r.db.Writer.QueryRowContext(ctx, `SELECT 1 FROM config_entries WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("set state of entry %d: %w", id, driven.ErrEntryNotFound)
	}
	if err != nil {
		return fmt.Errorf("set state of entry %d: %w", id, err)
	}
	return fmt.Errorf("set state of entry %d at revision %d: %w", id, revision, driven.ErrEntryModified)
}

// Delete removes an entry by ID.
func (r *EntryRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM config_entries WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete entry %d: %w", id, err)
	}
	return requireAffected(result, fmt.Sprintf("delete entry %d", id))
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *EntryRepo) scanEntry(row rowScanner) (model.ConfigEntry, error) {
	var (
		entry     model.ConfigEntry
		sealed    string
		state     string
		createdAt string
		updatedAt string
	)

	err := row.Scan(&entry.ID, &entry.Title, &entry.UniqueID, &entry.Data.Email, &sealed, &state, &entry.Revision, &createdAt, &updatedAt)
	if err != nil {
		return model.ConfigEntry{}, err
	}

	entry.Data.Password, err = r.box.open(sealed)
	if err != nil {
		return model.ConfigEntry{}, fmt.Errorf("decrypt entry %d: %w", entry.ID, err)
	}
	entry.State = model.EntryState(state)

	entry.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.ConfigEntry{}, fmt.Errorf("parse created_at for entry %d: %w", entry.ID, err)
	}
	entry.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.ConfigEntry{}, fmt.Errorf("parse updated_at for entry %d: %w", entry.ID, err)
	}

	return entry, nil
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, driven.ErrEntryNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// parseTime parses the time formats SQLite and the driver may hand back.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05.999999999-07:00",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
