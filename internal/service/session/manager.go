package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avorobev/chatauth/internal/logger"
	"github.com/avorobev/chatauth/internal/models"
	"github.com/avorobev/chatauth/internal/repository"
)

// DefaultExpiryWarningWindow is how close to expiry a session counts as "expiring soon"
const DefaultExpiryWarningWindow = 24 * time.Hour

type Config struct {
	// Store for durable persistence
	// Required to be set
	Store repository.TokenStore

	// Logger, noop if not set
	Logger logger.Logger

	// Clock override for tests
	// If not set than time.Now is used
	Now func() time.Time
}

// Manager owns the current token and its time based validity.
//
// One instance per process, constructed at the composition root with the
// backing store injected. Concurrent SetToken or Clear calls are last write
// wins, the UI layer is expected to prevent double submits.
type Manager struct {
	mu      sync.Mutex
	record  models.TokenRecord
	present bool

	store  repository.TokenStore
	logger logger.Logger
	now    func() time.Time
}

// NewManager loads persisted state once. A record that is already past due
// is discarded and the store is cleared eagerly, so a later Load finds nothing.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("token store must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{
		store:  cfg.Store,
		logger: cfg.Logger.With("component", "session.manager"),
		now:    cfg.Now,
	}

	record, ok := cfg.Store.Load(ctx)
	switch {
	case !ok:
		// Nothing persisted, start unauthenticated
	case record.Expired(m.now()):
		m.logger.Info("Persisted token is expired, clearing it", "expired_at", record.ExpiresAt)
		if err := cfg.Store.Clear(ctx); err != nil {
			m.logger.Warn("Failed to clear expired token from store", "error", err)
		}
	default:
		m.record = record
		m.present = true
	}

	return m, nil
}

// IsAuthenticated is true while a token is present and not past due
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Token()
	return ok
}

// Token returns the current token while it is still valid.
// Expiry is evaluated lazily on read, the state is not cleared here.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.present || m.record.Expired(m.now()) {
		return "", false
	}
	return m.record.Value, true
}

// SetToken replaces the current token and persists it.
// On a storage failure the in-memory token is kept so the session stays
// usable for this process lifetime, but the error is still returned.
func (m *Manager) SetToken(ctx context.Context, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = models.TokenRecord{Value: token, ExpiresAt: expiresAt}
	m.present = true

	if err := m.store.Save(ctx, m.record); err != nil {
		m.logger.Warn("Token kept in memory only, persistence failed", "error", err)
		return fmt.Errorf("token accepted but not persisted: %w", err)
	}
	return nil
}

// Clear drops the token from memory and storage. Idempotent.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = models.TokenRecord{}
	m.present = false

	if err := m.store.Clear(ctx); err != nil {
		m.logger.Warn("Failed to clear token from store", "error", err)
	}
}

// TimeUntilExpiry returns the remaining session time, zero when no token
func (m *Manager) TimeUntilExpiry() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.present {
		return 0
	}

	remaining := m.record.ExpiresAt.Sub(m.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsExpiringSoon is true when the session is alive but ends within the window
func (m *Manager) IsExpiringSoon(window time.Duration) bool {
	if window <= 0 {
		window = DefaultExpiryWarningWindow
	}

	remaining := m.TimeUntilExpiry()
	return remaining > 0 && remaining <= window
}

// ExpiryMessage renders the remaining time with the largest nonzero unit only,
// so "1 day" and never "1 day 1 hour"
func (m *Manager) ExpiryMessage() string {
	remaining := m.TimeUntilExpiry()
	if remaining <= 0 {
		return ""
	}

	switch {
	case remaining >= 24*time.Hour:
		return fmt.Sprintf("Your access token expires in %s.", plural(int(remaining/(24*time.Hour)), "day"))
	case remaining >= time.Hour:
		return fmt.Sprintf("Your access token expires in %s.", plural(int(remaining/time.Hour), "hour"))
	case remaining >= time.Minute:
		return fmt.Sprintf("Your access token expires in %s.", plural(int(remaining/time.Minute), "minute"))
	default:
		return "Your access token expires in less than a minute."
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
