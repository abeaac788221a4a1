package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
)

// Entry is a sealed journal entry. ID always equals Date.
type Entry struct {
	ID         string `json:"id"`
	Date       string `json:"date"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
}

// Sealed returns the entry's ciphertext and nonce.
func (e *Entry) Sealed() keyring.Sealed {
	return keyring.Sealed{Ciphertext: e.Ciphertext, IV: e.IV}
}

// Validate checks the entry's identity and timestamps.
func (e *Entry) Validate() error {
	if _, err := period.ParseDate(e.Date); err != nil {
		return fmt.Errorf("%w: entry date: %w", ErrInvalidRecord, err)
	}
	if e.ID != e.Date {
		return fmt.Errorf("%w: entry id %q does not match date %q", ErrInvalidRecord, e.ID, e.Date)
	}
	if e.Ciphertext == "" || e.IV == "" {
		return fmt.Errorf("%w: entry %s has no ciphertext", ErrInvalidRecord, e.ID)
	}
	if _, err := ParseTimestamp(e.CreatedAt); err != nil {
		return err
	}
	if _, err := ParseTimestamp(e.UpdatedAt); err != nil {
		return err
	}
	return nil
}

// EntryMeta is an entry's identity and timestamps, without ciphertext.
type EntryMeta struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// PutEntry inserts or replaces the entry with e.ID.
func (s *Store) PutEntry(ctx context.Context, e *Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO entries (id, date, ciphertext, iv, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			iv = excluded.iv,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		e.ID, e.Date, e.Ciphertext, e.IV, e.CreatedAt, e.UpdatedAt); err != nil {
		return unavailable("put entry", err)
	}
	return nil
}

// GetEntry returns the entry with id or ErrNotFound.
func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	query := `SELECT id, date, ciphertext, iv, created_at, updated_at FROM entries WHERE id = ?`
	e := &Entry{}
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&e.ID, &e.Date, &e.Ciphertext, &e.IV, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, unavailable("get entry", err)
	}
	return e, nil
}

// DeleteEntry removes the entry with id, or returns ErrNotFound.
func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return unavailable("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete entry", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	return nil
}

// ListEntryMetadata returns every entry's identity and timestamps,
// newest date first.
func (s *Store) ListEntryMetadata(ctx context.Context) ([]EntryMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, created_at, updated_at FROM entries ORDER BY date DESC`)
	if err != nil {
		return nil, unavailable("list entries", err)
	}
	defer rows.Close()

	var result []EntryMeta
	for rows.Next() {
		var m EntryMeta
		if err := rows.Scan(&m.ID, &m.Date, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, unavailable("list entries", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list entries", err)
	}
	return result, nil
}

// ListByDateRange returns entries with start <= date <= end, oldest first.
func (s *Store) ListByDateRange(ctx context.Context, start, end string) ([]*Entry, error) {
	return s.queryEntries(ctx, "list entries by range",
		`SELECT id, date, ciphertext, iv, created_at, updated_at FROM entries
		WHERE date >= ? AND date <= ? ORDER BY date ASC`, start, end)
}

// AllEntries returns every entry, oldest first.
func (s *Store) AllEntries(ctx context.Context) ([]*Entry, error) {
	return s.queryEntries(ctx, "all entries",
		`SELECT id, date, ciphertext, iv, created_at, updated_at FROM entries ORDER BY date ASC`)
}

// CountEntries returns the number of stored entries.
func (s *Store) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, unavailable("count entries", err)
	}
	return n, nil
}

func (s *Store) queryEntries(ctx context.Context, op, query string, args ...any) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.Date, &e.Ciphertext, &e.IV, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, unavailable(op, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return result, nil
}
