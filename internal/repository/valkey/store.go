package valkey

import (
	"context"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/avorobev/chatauth/internal/logger"
	"github.com/avorobev/chatauth/internal/models"
	"github.com/avorobev/chatauth/internal/repository"
)

// Store keeps the token record in a Valkey compatible database.
// Meant for deployments where several client processes share one session.
type Store struct {
	client valkey.Client
	prefix string
	logger logger.Logger
}

func NewStore(client valkey.Client, prefix string, l logger.Logger) *Store {
	if prefix == "" {
		prefix = "chatauth"
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &Store{client: client, prefix: prefix, logger: l.With("component", "tokenstore.valkey")}
}

func (s *Store) Load(ctx context.Context) (models.TokenRecord, bool) {
	token, okToken := s.getValue(ctx, s.key(repository.KeyToken))
	raw, okExpires := s.getValue(ctx, s.key(repository.KeyExpiresAt))
	if !okToken || !okExpires {
		if okToken || okExpires {
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

// Save stores both entries with a TTL matching the token expiry, so stale
// sessions disappear from the shared store on their own.
func (s *Store) Save(ctx context.Context, record models.TokenRecord) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}

	err := s.setValue(ctx, s.key(repository.KeyToken), record.Value, ttl)
	if err != nil {
		return repository.NewStorageError("save", err)
	}
	err = s.setValue(ctx, s.key(repository.KeyExpiresAt), record.ExpiresAt.Format(time.RFC3339), ttl)
	if err != nil {
		return repository.NewStorageError("save", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	cmd := s.client.B().Del().Key(s.key(repository.KeyToken), s.key(repository.KeyExpiresAt)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return repository.NewStorageError("clear", err)
	}
	return nil
}

func (s *Store) getValue(ctx context.Context, key string) (string, bool) {
	cmd := s.client.B().Get().Key(key).Build()
	value, err := s.client.Do(ctx, cmd).ToString()
	if err != nil {
		if !valkey.IsValkeyNil(err) {
			s.logger.Warn("Failed to read credential entry", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

func (s *Store) setValue(ctx context.Context, key, value string, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(key).Value(value).Ex(ttl).Build()
	return s.client.Do(ctx, cmd).Error()
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

var _ repository.TokenStore = (*Store)(nil)
