package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avorobev/chatauth/internal/logger"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 30 * time.Second
	defaultBaseBackoff    = time.Second

	// Response bodies are error payloads or small JSON envelopes, cap reads
	responseBodyLimit = 1 << 20
)

// APIError is the terminal failure of one logical request.
// Status is zero when the failure never produced an HTTP response.
// Body keeps the raw payload so callers can run the auth error interceptor on it.
type APIError struct {
	Message  string
	Status   int
	Endpoint string
	Body     []byte
	Err      error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request %s failed: status=%d: %s", e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// TokenSource provides the current access token when one is held.
// Satisfied by the session manager.
type TokenSource interface {
	Token() (string, bool)
}

type Config struct {
	// Base address of the backend, e.g. https://chat.example.com
	// Required to be set
	BaseURL string

	// Retry budget for one logical request
	// If not set than default is used
	MaxAttempts int

	// Timeout of a single attempt
	// If not set than default is used
	AttemptTimeout time.Duration

	// Base delay of the linear backoff between attempts
	// If not set than default is used
	BaseBackoff time.Duration

	// Source of the bearer token to attach, may be nil for anonymous clients
	Tokens TokenSource

	HTTPClient *http.Client
	Logger     logger.Logger

	// Sleep override so tests can run the retry loop without real timers
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is the fault tolerant request layer every API consumer goes through.
// It owns the timeout, retry budget, backoff and response normalization and
// nothing else: token eviction on 401 is the callers' job.
type Client struct {
	baseURL        string
	maxAttempts    int
	attemptTimeout time.Duration
	baseBackoff    time.Duration

	tokens     TokenSource
	httpClient *http.Client
	logger     logger.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}

	return &Client{
		baseURL:        cfg.BaseURL,
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: cfg.AttemptTimeout,
		baseBackoff:    cfg.BaseBackoff,
		tokens:         cfg.Tokens,
		httpClient:     cfg.HTTPClient,
		logger:         cfg.Logger.With("component", "apiclient"),
		sleep:          cfg.Sleep,
	}, nil
}

// Options tune one logical request
type Options struct {
	// Body is marshaled to JSON when not nil
	Body any

	// Extra headers, set after the defaults so they may override them
	Headers map[string]string

	// NoRetry caps the attempt budget at one
	NoRetry bool

	// Timeout overrides the configured per attempt timeout
	Timeout time.Duration
}

// Do runs one logical request and normalizes the response envelope.
// Exactly one of a normalized response or a terminal *APIError comes back.
func (c *Client) Do(ctx context.Context, method string, path string, opts Options) (Response, error) {
	status, body, err := c.DoRaw(ctx, method, path, opts)
	if err != nil {
		return Response{}, err
	}

	resp, err := NormalizeResponse(body)
	if err != nil {
		// Unrecognized shape is fatal, never retried
		return Response{}, &APIError{Message: err.Error(), Status: status, Endpoint: c.baseURL + path, Body: body, Err: err}
	}
	if resp.Kind == KindFailure {
		return Response{}, &APIError{Message: resp.FailureMessage, Status: status, Endpoint: c.baseURL + path, Body: body}
	}
	return resp, nil
}

// DoRaw runs one logical request: up to the retry budget of sequential
// attempts, each raced against the attempt timeout, with linear backoff in
// between. Returns the raw body of the first 2xx answer. The auth flows use
// this directly because their endpoints answer outside the common envelopes.
func (c *Client) DoRaw(ctx context.Context, method string, path string, opts Options) (int, []byte, error) {
	endpoint := c.baseURL + path

	var payload []byte
	if opts.Body != nil {
		var err error
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return 0, nil, &APIError{Message: "failed to encode request body", Endpoint: endpoint, Err: err}
		}
	}

	maxAttempts := c.maxAttempts
	if opts.NoRetry {
		maxAttempts = 1
	}
	timeout := c.attemptTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	requestID := uuid.NewString()
	var lastErr *APIError

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			// Linear backoff, only between attempts
			delay := c.baseBackoff * time.Duration(attempt-1)
			c.logger.Warn("Transient failure, retrying",
				"endpoint", endpoint, "attempt", attempt, "max_attempts", maxAttempts,
				"delay", delay, "status", lastErr.Status)

			if err := c.sleep(ctx, delay); err != nil {
				return 0, nil, &APIError{Message: "request canceled", Endpoint: endpoint, Err: err}
			}
		}

		status, body, err := c.attempt(ctx, method, endpoint, payload, opts.Headers, requestID, timeout)
		switch {
		case err != nil && ctx.Err() != nil:
			// Caller gave up, stop immediately
			return 0, nil, &APIError{Message: "request canceled", Endpoint: endpoint, Err: ctx.Err()}
		case err != nil:
			// Network level failure, no status observed. Always retryable.
			lastErr = &APIError{Message: "cannot connect to server", Endpoint: endpoint, Err: err}
			continue
		case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
			lastErr = &APIError{Message: httpErrorMessage(status, body), Status: status, Endpoint: endpoint, Body: body}
			continue
		case status >= http.StatusBadRequest:
			// Client errors terminate immediately, no more attempts
			return 0, nil, &APIError{Message: httpErrorMessage(status, body), Status: status, Endpoint: endpoint, Body: body}
		}

		return status, body, nil
	}

	return 0, nil, lastErr
}

// attempt performs a single HTTP exchange within its own timeout.
// A fired timeout is reported as status 408 so the retry predicate treats it
// like any other transient failure.
func (c *Client) attempt(ctx context.Context, method, endpoint string, payload []byte, headers map[string]string, requestID string, timeout time.Duration) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, endpoint, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			// The attempt timed out, not the caller
			return http.StatusRequestTimeout, nil, nil
		}
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// httpErrorMessage picks a user presentable message for a failed status
func httpErrorMessage(status int, body []byte) string {
	if detail := serverDetailMessage(body); detail != "" {
		return detail
	}

	switch {
	case status == http.StatusRequestTimeout:
		return "The server took too long to respond. Please try again."
	case status == http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment and try again."
	case status >= http.StatusInternalServerError:
		return "The server had a problem. Please try again later."
	default:
		return fmt.Sprintf("Request failed with status %d.", status)
	}
}

// serverDetailMessage digs a human readable message out of a structured
// error payload: {"detail": "..."} or {"detail": {"message"|"ui_message": ...}}
func serverDetailMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(envelope.Detail, &plain); err == nil {
		return plain
	}

	var structured struct {
		UIMessage string `json:"ui_message"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Detail, &structured); err == nil {
		if structured.UIMessage != "" {
			return structured.UIMessage
		}
		return structured.Message
	}

	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
