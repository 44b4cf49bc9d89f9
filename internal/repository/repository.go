package repository

import (
	"context"

	"github.com/avorobev/chatauth/internal/models"
)

// Fixed keys the persisted session occupies in the backing store.
// Absence of either key means "no session".
const (
	KeyToken     = "auth.token"
	KeyExpiresAt = "auth.token_expires_at"
)

// TokenStore persists a single token record in durable key/value storage.
//
// Implementations keep two string entries under the fixed keys above,
// with the expiry serialized as RFC3339.
type TokenStore interface {
	// Load returns the persisted record if both entries are present and parse.
	// Malformed or partial data is treated as absent and implicitly cleared,
	// it is never surfaced as an error.
	Load(ctx context.Context) (models.TokenRecord, bool)

	// Save persists the record. A failed save returns *StorageError so the
	// caller can decide whether to keep the in-memory token anyway.
	Save(ctx context.Context, record models.TokenRecord) error

	// Clear removes any persisted record. Idempotent.
	Clear(ctx context.Context) error
}

// StorageError indicates the backing store failed to persist or wipe a record
type StorageError struct {
	Op  string // "save" or "clear"
	Err error
}

func (e *StorageError) Error() string {
	return "token store: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError wraps a backend failure with the failed operation name
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
