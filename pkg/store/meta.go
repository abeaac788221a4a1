package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Meta keys written at setup.
const (
	MetaKeySalt        = "keySalt"
	MetaPassphraseSalt = "passphraseSalt"
	MetaPassphraseHash = "passphraseHash"
)

// Meta is a single key/value pair.
type Meta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetMeta returns the value for key or ErrNotFound.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: meta %s", ErrNotFound, key)
	}
	if err != nil {
		return "", unavailable("get meta", err)
	}
	return value, nil
}

// SetMeta upserts a meta value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty meta key", ErrInvalidRecord)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return unavailable("set meta", err)
	}
	return nil
}

// PutMeta writes all pairs in one transaction.
func (s *Store) PutMeta(ctx context.Context, pairs []Meta) error {
	return s.WithTx(ctx, func(ctx context.Context, tx *Store) error {
		for _, m := range pairs {
			if err := tx.SetMeta(ctx, m.Key, m.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMeta returns every meta pair ordered by key.
func (s *Store) ListMeta(ctx context.Context) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta ORDER BY key ASC`)
	if err != nil {
		return nil, unavailable("list meta", err)
	}
	defer rows.Close()

	var result []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.Key, &m.Value); err != nil {
			return nil, unavailable("list meta", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list meta", err)
	}
	return result, nil
}

// HasPassphrase reports whether a passphrase hash is stored. A journal
// without one is first-time.
func (s *Store) HasPassphrase(ctx context.Context) (bool, error) {
	_, err := s.GetMeta(ctx, MetaPassphraseHash)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
