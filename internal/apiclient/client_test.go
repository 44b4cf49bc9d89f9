package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper collects the backoff delays instead of waiting them out
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type staticTokens struct {
	token string
	ok    bool
}

func (s staticTokens) Token() (string, bool) {
	return s.token, s.ok
}

func newTestClient(t *testing.T, serverURL string, cfg Config) (*Client, *recordingSleeper) {
	t.Helper()

	sleeper := &recordingSleeper{}
	cfg.BaseURL = serverURL
	cfg.Sleep = sleeper.Sleep
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}

	client, err := New(cfg)
	require.NoError(t, err, "client should be created without errors")
	return client, sleeper
}

func Test_Client_New(t *testing.T) {
	t.Parallel()

	t.Run("requires base url", func(t *testing.T) {
		_, err := New(Config{})
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		c, err := New(Config{BaseURL: "http://localhost:9000"})
		require.NoError(t, err)

		assert.Equal(t, defaultMaxAttempts, c.maxAttempts)
		assert.Equal(t, defaultAttemptTimeout, c.attemptTimeout)
		assert.Equal(t, defaultBaseBackoff, c.baseBackoff)
	})
}

func Test_Client_Retry(t *testing.T) {
	t.Parallel()

	t.Run("exhausts budget on 503 and keeps last status", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, sleeper := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		_, err := client.Do(t.Context(), http.MethodGet, "/api/v1/anything", Options{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status, "final error should preserve original status")
		assert.Contains(t, apiErr.Endpoint, "/api/v1/anything")

		assert.Equal(t, 3, attempts, "should make exactly maxAttempts attempts")
		require.Len(t, sleeper.delays, 2, "backoff runs between attempts only, never after the final one")
		assert.Less(t, sleeper.delays[0], sleeper.delays[1], "linear backoff should grow with attempt number")
	})

	t.Run("client error terminates immediately", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client, sleeper := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		_, err := client.Do(t.Context(), http.MethodGet, "/missing", Options{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)

		assert.Equal(t, 1, attempts, "4xx other than 408 is never retried")
		assert.Empty(t, sleeper.delays)
	})

	t.Run("no retry option caps budget at one", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		_, err := client.Do(t.Context(), http.MethodPost, "/api/v1/auth/logout", Options{NoRetry: true})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"success": true, "data": {"status": "ok"}}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		resp, err := client.Do(t.Context(), http.MethodGet, "/api/v1/status", Options{})

		require.NoError(t, err)
		assert.Equal(t, KindData, resp.Kind)
		assert.Equal(t, 3, attempts)
	})

	t.Run("network failure is retried and reported without status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // nothing listens anymore

		client, sleeper := newTestClient(t, server.URL, Config{MaxAttempts: 2})

		_, err := client.Do(t.Context(), http.MethodGet, "/", Options{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Zero(t, apiErr.Status, "no HTTP status was ever observed")
		assert.Equal(t, "cannot connect to server", apiErr.Message)
		assert.Len(t, sleeper.delays, 1)
	})

	t.Run("attempt timeout surfaces as 408 and is retried", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				return
			}
			_, _ = w.Write([]byte(`{"success": true, "message": "done"}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{MaxAttempts: 2})

		resp, err := client.Do(t.Context(), http.MethodGet, "/slow", Options{Timeout: 50 * time.Millisecond})

		require.NoError(t, err, "second attempt should succeed after first one timed out")
		assert.Equal(t, KindMessage, resp.Kind)
		assert.Equal(t, 2, attempts)
	})

	t.Run("canceled context stops the loop", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		client, _ := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		_, err := client.Do(ctx, http.MethodGet, "/", Options{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.ErrorIs(t, apiErr, context.Canceled)
	})
}

func Test_Client_Headers(t *testing.T) {
	t.Parallel()

	t.Run("attaches bearer token and request id", func(t *testing.T) {
		var gotAuth, gotRequestID, gotContentType string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotRequestID = r.Header.Get("X-Request-Id")
			gotContentType = r.Header.Get("Content-Type")
			_, _ = w.Write([]byte(`{"success": true, "message": "ok"}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{Tokens: staticTokens{token: "abc123", ok: true}})

		_, err := client.Do(t.Context(), http.MethodPost, "/api/v1/chat", Options{Body: map[string]string{"q": "hi"}})
		require.NoError(t, err)

		assert.Equal(t, "Bearer abc123", gotAuth)
		assert.NotEmpty(t, gotRequestID)
		assert.Equal(t, "application/json", gotContentType)
	})

	t.Run("no authorization header without token", func(t *testing.T) {
		var gotAuth string
		var sawAuth bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, sawAuth = r.Header["Authorization"]
			_, _ = w.Write([]byte(`{"success": true, "message": "ok"}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{Tokens: staticTokens{ok: false}})

		_, err := client.Do(t.Context(), http.MethodGet, "/api/v1/public", Options{})
		require.NoError(t, err)

		assert.False(t, sawAuth, "anonymous request should carry no Authorization header, got %q", gotAuth)
	})

	t.Run("request id stable across attempts", func(t *testing.T) {
		var ids []string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ids = append(ids, r.Header.Get("X-Request-Id"))
			if len(ids) < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"success": true, "message": "ok"}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{MaxAttempts: 2})

		_, err := client.Do(t.Context(), http.MethodGet, "/", Options{})
		require.NoError(t, err)

		require.Len(t, ids, 2)
		assert.Equal(t, ids[0], ids[1], "attempts of one logical request share the request id")
	})
}

func Test_Client_Failure(t *testing.T) {
	t.Parallel()

	t.Run("failure envelope becomes terminal error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": false, "error": "task does not exist"}`))
		}))
		defer server.Close()

		client, sleeper := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		_, err := client.Do(t.Context(), http.MethodGet, "/api/v1/task", Options{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "task does not exist", apiErr.Message)
		assert.Empty(t, sleeper.delays, "failure envelope is not a transient error")
	})

	t.Run("unrecognized shape is fatal and not retried", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			_, _ = w.Write([]byte(`{"success": true}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{MaxAttempts: 3})

		_, err := client.Do(t.Context(), http.MethodGet, "/api/v1/odd", Options{})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("structured detail message is preserved", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"detail": "Email address is not registered"}`))
		}))
		defer server.Close()

		client, _ := newTestClient(t, server.URL, Config{})

		_, err := client.Do(t.Context(), http.MethodPost, "/api/v1/auth/request-token", Options{})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Email address is not registered", apiErr.Message)

		var stored map[string]any
		require.NoError(t, json.Unmarshal(apiErr.Body, &stored), "raw body should ride along for the interceptor")
	})
}
