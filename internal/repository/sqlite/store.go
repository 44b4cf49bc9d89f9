package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/avorobev/chatauth/internal/logger"
	"github.com/avorobev/chatauth/internal/models"
	"github.com/avorobev/chatauth/internal/repository"
)

// Store persists the token record in a local sqlite file.
// This is the default backend: a per-user durable credential cache.
type Store struct {
	db     *sql.DB
	logger logger.Logger
}

func NewStore(db *sql.DB, l logger.Logger) *Store {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &Store{db: db, logger: l.With("component", "tokenstore.sqlite")}
}

const getEntry = `-- name: Get single credential entry
SELECT value FROM credentials WHERE key = ?`

const setEntry = `-- name: Upsert credential entry
INSERT INTO credentials (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`

const deleteEntries = `-- name: Delete both credential entries
DELETE FROM credentials WHERE key IN (?, ?)`

// Load reads both entries and parses the expiry.
// Partial or malformed data is wiped and reported as absent, never as an error.
func (s *Store) Load(ctx context.Context) (models.TokenRecord, bool) {
	token, okToken := s.getValue(ctx, repository.KeyToken)
	raw, okExpires := s.getValue(ctx, repository.KeyExpiresAt)
	if !okToken || !okExpires {
		if okToken || okExpires {
			// One entry without the other is a broken record, wipe it
			_ = s.Clear(ctx)
		}
		return models.TokenRecord{}, false
	}

	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.logger.Warn("Persisted expiry is not parseable, clearing record", "error", err)
		_ = s.Clear(ctx)
		return models.TokenRecord{}, false
	}

	return models.TokenRecord{Value: token, ExpiresAt: expiresAt}, true
}

func (s *Store) Save(ctx context.Context, record models.TokenRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.NewStorageError("save", err)
	}
	defer tx.Rollback() // nolint:errcheck

	if _, err := tx.ExecContext(ctx, setEntry, repository.KeyToken, record.Value); err != nil {
		return repository.NewStorageError("save", err)
	}
	if _, err := tx.ExecContext(ctx, setEntry, repository.KeyExpiresAt, record.ExpiresAt.Format(time.RFC3339)); err != nil {
		return repository.NewStorageError("save", err)
	}

	if err := tx.Commit(); err != nil {
		return repository.NewStorageError("save", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, deleteEntries, repository.KeyToken, repository.KeyExpiresAt)
	if err != nil {
		return repository.NewStorageError("clear", err)
	}
	return nil
}

func (s *Store) getValue(ctx context.Context, key string) (string, bool) {
	var value string
	err := s.db.QueryRowContext(ctx, getEntry, key).Scan(&value)

	switch {
	case err == nil:
		return value, true
	case errors.Is(err, sql.ErrNoRows):
		return "", false
	default:
		s.logger.Warn("Failed to read credential entry", "key", key, "error", err)
		return "", false
	}
}

var _ repository.TokenStore = (*Store)(nil)
