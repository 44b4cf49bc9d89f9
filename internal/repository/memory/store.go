package memory

import (
	"context"
	"sync"
	"time"

	"github.com/avorobev/chatauth/internal/models"
	"github.com/avorobev/chatauth/internal/repository"
)

// Store keeps the token record in process memory.
// Used in tests and in the ephemeral "memory" backend mode.
type Store struct {
	mu      sync.Mutex
	entries map[string]string

	// SaveErr, when set, is returned by every Save call.
	// Lets tests simulate a failing backend (e.g. quota exceeded).
	SaveErr error
}

func NewStore() *Store {
	return &Store{entries: map[string]string{}}
}

func (s *Store) Load(_ context.Context) (models.TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, okToken := s.entries[repository.KeyToken]
	raw, okExpires := s.entries[repository.KeyExpiresAt]
	if !okToken || !okExpires {
		return models.TokenRecord{}, false
	}

	expiresAt, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Malformed entry is the same as no entry
		delete(s.entries, repository.KeyToken)
		delete(s.entries, repository.KeyExpiresAt)
		return models.TokenRecord{}, false
	}

	return models.TokenRecord{Value: token, ExpiresAt: expiresAt}, true
}

func (s *Store) Save(_ context.Context, record models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return repository.NewStorageError("save", s.SaveErr)
	}

	s.entries[repository.KeyToken] = record.Value
	s.entries[repository.KeyExpiresAt] = record.ExpiresAt.Format(time.RFC3339)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, repository.KeyToken)
	delete(s.entries, repository.KeyExpiresAt)
	return nil
}

var _ repository.TokenStore = (*Store)(nil)
