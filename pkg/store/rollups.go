package store

import (
	"context"
	"fmt"

	"github.com/peoplesafe/sdlcjournal/pkg/keyring"
	"github.com/peoplesafe/sdlcjournal/pkg/period"
)

// Rollup is a sealed period reflection. Empty Ciphertext and IV mean no
// reflection has been written yet.
type Rollup struct {
	ID         string      `json:"id"`
	Type       period.Type `json:"type"`
	PeriodKey  string      `json:"periodKey"`
	Ciphertext string      `json:"ciphertext"`
	IV         string      `json:"iv"`
	CreatedAt  string      `json:"createdAt"`
	UpdatedAt  string      `json:"updatedAt"`
}

// RollupID returns the id "type:periodKey".
func RollupID(t period.Type, periodKey string) string {
	return t.String() + ":" + periodKey
}

// Sealed returns the reflection's ciphertext and nonce.
func (r *Rollup) Sealed() keyring.Sealed {
	return keyring.Sealed{Ciphertext: r.Ciphertext, IV: r.IV}
}

// Validate checks the rollup's identity and timestamps.
func (r *Rollup) Validate() error {
	if err := period.ValidateKey(r.Type, r.PeriodKey); err != nil {
		return fmt.Errorf("%w: rollup %q: %w", ErrInvalidRecord, r.ID, err)
	}
	if r.ID != RollupID(r.Type, r.PeriodKey) {
		return fmt.Errorf("%w: rollup id %q does not match %s", ErrInvalidRecord, r.ID, RollupID(r.Type, r.PeriodKey))
	}
	if (r.Ciphertext == "") != (r.IV == "") {
		return fmt.Errorf("%w: rollup %s has ciphertext without iv", ErrInvalidRecord, r.ID)
	}
	if _, err := ParseTimestamp(r.CreatedAt); err != nil {
		return err
	}
	if _, err := ParseTimestamp(r.UpdatedAt); err != nil {
		return err
	}
	return nil
}

// PutRollup inserts or replaces the rollup with r.ID.
func (s *Store) PutRollup(ctx context.Context, r *Rollup) error {
	if err := r.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO rollups (id, type, period_key, ciphertext, iv, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			iv = excluded.iv,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query,
		r.ID, r.Type.String(), r.PeriodKey, r.Ciphertext, r.IV, r.CreatedAt, r.UpdatedAt); err != nil {
		return unavailable("put rollup", err)
	}
	return nil
}

// GetRollup returns the rollup with id or ErrNotFound.
func (s *Store) GetRollup(ctx context.Context, id string) (*Rollup, error) {
	query := `SELECT id, type, period_key, ciphertext, iv, created_at, updated_at FROM rollups WHERE id = ?`
	rows, err := s.queryRollups(ctx, "get rollup", query, id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: rollup %s", ErrNotFound, id)
	}
	return rows[0], nil
}

// ListRollupsByType returns every rollup of type t ordered by period key.
func (s *Store) ListRollupsByType(ctx context.Context, t period.Type) ([]*Rollup, error) {
	return s.queryRollups(ctx, "list rollups",
		`SELECT id, type, period_key, ciphertext, iv, created_at, updated_at FROM rollups
		WHERE type = ? ORDER BY period_key ASC`, t.String())
}

// AllRollups returns every rollup ordered by id.
func (s *Store) AllRollups(ctx context.Context) ([]*Rollup, error) {
	return s.queryRollups(ctx, "all rollups",
		`SELECT id, type, period_key, ciphertext, iv, created_at, updated_at FROM rollups ORDER BY id ASC`)
}

// CountRollups returns the number of stored rollups.
func (s *Store) CountRollups(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rollups`).Scan(&n); err != nil {
		return 0, unavailable("count rollups", err)
	}
	return n, nil
}

func (s *Store) queryRollups(ctx context.Context, op, query string, args ...any) ([]*Rollup, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var result []*Rollup
	for rows.Next() {
		var typ string
		r := &Rollup{}
		if err := rows.Scan(&r.ID, &typ, &r.PeriodKey, &r.Ciphertext, &r.IV, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, unavailable(op, err)
		}
		if r.Type, err = period.ParseType(typ); err != nil {
			return nil, fmt.Errorf("%w: rollup %s: %w", ErrInvalidRecord, r.ID, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return result, nil
}
