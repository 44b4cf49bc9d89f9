package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avorobev/chatauth/internal/models"
	"github.com/avorobev/chatauth/internal/repository"
	"github.com/avorobev/chatauth/internal/repository/memory"
	"github.com/avorobev/chatauth/internal/testutil"
)

func newTestManager(t *testing.T, store repository.TokenStore, clock *testutil.Clock) *Manager {
	t.Helper()

	m, err := NewManager(t.Context(), Config{Store: store, Now: clock.Now})
	require.NoError(t, err, "manager should be created without errors")
	return m
}

func Test_Manager_New(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("requires store", func(t *testing.T) {
		_, err := NewManager(t.Context(), Config{})
		require.Error(t, err)
	})

	t.Run("starts unauthenticated on empty store", func(t *testing.T) {
		m := newTestManager(t, memory.NewStore(), testutil.NewClock(start))

		assert.False(t, m.IsAuthenticated())
		_, ok := m.Token()
		assert.False(t, ok)
	})

	t.Run("loads persisted valid token", func(t *testing.T) {
		store := memory.NewStore()
		record := models.TokenRecord{Value: "stored-token", ExpiresAt: start.Add(48 * time.Hour)}
		require.NoError(t, store.Save(t.Context(), record))

		m := newTestManager(t, store, testutil.NewClock(start))

		token, ok := m.Token()
		require.True(t, ok)
		assert.Equal(t, "stored-token", token)
	})

	t.Run("discards past due record and clears store", func(t *testing.T) {
		store := memory.NewStore()
		record := models.TokenRecord{Value: "stale-token", ExpiresAt: start.Add(-time.Hour)}
		require.NoError(t, store.Save(t.Context(), record))

		m := newTestManager(t, store, testutil.NewClock(start))

		assert.False(t, m.IsAuthenticated(), "expired record should not authenticate")

		// Store was cleared eagerly: a second load also finds nothing
		_, ok := store.Load(t.Context())
		assert.False(t, ok, "store should be cleared on load of expired record")
	})
}

func Test_Manager_SetToken(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("set then get returns exactly the token", func(t *testing.T) {
		m := newTestManager(t, memory.NewStore(), testutil.NewClock(start))

		expiresAt := start.Add(30 * 24 * time.Hour)
		require.NoError(t, m.SetToken(t.Context(), "fresh-token", expiresAt))

		token, ok := m.Token()
		require.True(t, ok)
		assert.Equal(t, "fresh-token", token)
		assert.Equal(t, 30*24*time.Hour, m.TimeUntilExpiry())
	})

	t.Run("persists to store", func(t *testing.T) {
		store := memory.NewStore()
		m := newTestManager(t, store, testutil.NewClock(start))

		require.NoError(t, m.SetToken(t.Context(), "fresh-token", start.Add(time.Hour)))

		got, ok := store.Load(t.Context())
		require.True(t, ok)
		assert.Equal(t, "fresh-token", got.Value)
	})

	t.Run("keeps in-memory token on storage failure", func(t *testing.T) {
		store := memory.NewStore()
		store.SaveErr = errors.New("quota exceeded")
		m := newTestManager(t, store, testutil.NewClock(start))

		err := m.SetToken(t.Context(), "unpersisted-token", start.Add(time.Hour))

		var storageErr *repository.StorageError
		require.ErrorAs(t, err, &storageErr, "storage failure should be reported")

		// Session stays usable for this process anyway
		token, ok := m.Token()
		require.True(t, ok)
		assert.Equal(t, "unpersisted-token", token)
	})
}

func Test_Manager_Expiry(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("authenticated flips to false after expiry", func(t *testing.T) {
		clock := testutil.NewClock(start)
		m := newTestManager(t, memory.NewStore(), clock)

		require.NoError(t, m.SetToken(t.Context(), "token", start.Add(86400*time.Second)))
		assert.True(t, m.IsAuthenticated())

		clock.Advance(86400*time.Second + time.Second)

		assert.False(t, m.IsAuthenticated())
		_, ok := m.Token()
		assert.False(t, ok, "expired token should not be returned")
	})

	t.Run("time until expiry is zero without token", func(t *testing.T) {
		m := newTestManager(t, memory.NewStore(), testutil.NewClock(start))

		assert.Zero(t, m.TimeUntilExpiry())
	})

	t.Run("time until expiry never negative", func(t *testing.T) {
		clock := testutil.NewClock(start)
		m := newTestManager(t, memory.NewStore(), clock)

		require.NoError(t, m.SetToken(t.Context(), "token", start.Add(time.Minute)))
		clock.Advance(time.Hour)

		assert.Zero(t, m.TimeUntilExpiry())
	})

	t.Run("expiring soon", func(t *testing.T) {
		tests := []struct {
			name      string
			remaining time.Duration
			window    time.Duration
			expected  bool
		}{
			{"inside default window", 23 * time.Hour, 0, true},
			{"outside default window", 25 * time.Hour, 0, false},
			{"exactly at window edge", 24 * time.Hour, 0, true},
			{"custom window", 90 * time.Minute, time.Hour, false},
			{"no token", 0, 0, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				clock := testutil.NewClock(start)
				m := newTestManager(t, memory.NewStore(), clock)

				if tt.remaining > 0 {
					require.NoError(t, m.SetToken(t.Context(), "token", start.Add(tt.remaining)))
				}

				assert.Equal(t, tt.expected, m.IsExpiringSoon(tt.window))
			})
		}
	})
}

func Test_Manager_ExpiryMessage(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		remaining time.Duration
		expected  string
	}{
		{"days only even with extra hour", 90061 * time.Second, "Your access token expires in 1 day."}, // 1d 1h 1m 1s
		{"several days", 72 * time.Hour, "Your access token expires in 3 days."},
		{"hours", 5*time.Hour + 30*time.Minute, "Your access token expires in 5 hours."},
		{"single hour", time.Hour, "Your access token expires in 1 hour."},
		{"minutes", 45 * time.Minute, "Your access token expires in 45 minutes."},
		{"under a minute", 30 * time.Second, "Your access token expires in less than a minute."},
		{"no token", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := testutil.NewClock(start)
			m := newTestManager(t, memory.NewStore(), clock)

			if tt.remaining > 0 {
				require.NoError(t, m.SetToken(t.Context(), "token", start.Add(tt.remaining)))
			}

			assert.Equal(t, tt.expected, m.ExpiryMessage())
		})
	}
}

func Test_Manager_Clear(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("clear removes state and is idempotent", func(t *testing.T) {
		store := memory.NewStore()
		m := newTestManager(t, store, testutil.NewClock(start))

		require.NoError(t, m.SetToken(t.Context(), "token", start.Add(time.Hour)))

		m.Clear(t.Context())
		m.Clear(t.Context())

		assert.False(t, m.IsAuthenticated())
		_, ok := store.Load(t.Context())
		assert.False(t, ok, "store should be cleared too")
	})
}
