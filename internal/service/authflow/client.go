package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/avorobev/chatauth/internal/apiclient"
	"github.com/avorobev/chatauth/internal/logger"
	"github.com/avorobev/chatauth/internal/models"
)

const (
	requestTokenPath  = "/api/v1/auth/request-token"
	validateTokenPath = "/api/v1/auth/validate-token"
	logoutPath        = "/api/v1/auth/logout"

	// Used when the server omits expires_in
	defaultTokenTTL = 30 * 24 * time.Hour
)

var validate = validator.New()

// API is what the auth flows need from the request layer.
// The raw form is used because the auth endpoints answer outside the
// common response envelopes.
type API interface {
	DoRaw(ctx context.Context, method string, path string, opts apiclient.Options) (int, []byte, error)
}

// SessionManager is the slice of the lifecycle manager the flows mutate
type SessionManager interface {
	SetToken(ctx context.Context, token string, expiresAt time.Time) error
	Clear(ctx context.Context)
}

type Config struct {
	// Required to be set
	API      API
	Sessions SessionManager

	// Logger, noop if not set
	Logger logger.Logger

	// Clock override for tests
	Now func() time.Time
}

// Service drives the two step out of band auth flow: request a token by
// email, validate the received code. It also owns the shared 401 interceptor
// every authenticated caller runs its failures through.
type Service struct {
	api      API
	sessions SessionManager
	logger   logger.Logger
	now      func() time.Time
}

func NewService(cfg Config) (*Service, error) {
	if cfg.API == nil || cfg.Sessions == nil {
		return nil, errors.New("api client and session manager must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		api:      cfg.API,
		sessions: cfg.Sessions,
		logger:   cfg.Logger.With("component", "authflow"),
		now:      cfg.Now,
	}, nil
}

type requestTokenPayload struct {
	Email string `json:"email" validate:"required,email"`
}

// RequestToken asks the backend to email an access token.
// The outcome always carries a user presentable message.
func (s *Service) RequestToken(ctx context.Context, email string) models.RequestResult {
	payload := requestTokenPayload{Email: strings.TrimSpace(email)}
	if err := validate.Struct(payload); err != nil {
		return models.RequestResult{
			Message:   "Please enter a valid email address.",
			ErrorType: models.ErrTypeValidation,
		}
	}

	_, body, err := s.api.DoRaw(ctx, http.MethodPost, requestTokenPath, apiclient.Options{Body: payload})
	if err != nil {
		return s.classifyRequestFailure(err)
	}

	var resp struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &resp)
	if resp.Message == "" {
		resp.Message = "Check your email for an access token."
	}

	return models.RequestResult{Success: true, Message: resp.Message}
}

func (s *Service) classifyRequestFailure(err error) models.RequestResult {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return models.RequestResult{
			Message:   "Cannot connect to the server. Please try again later.",
			ErrorType: models.ErrTypeNetwork,
		}
	}

	switch {
	case apiErr.Status == http.StatusBadRequest:
		// Server supplied detail explains what is wrong with the input
		return models.RequestResult{Message: apiErr.Message, ErrorType: models.ErrTypeValidation}
	case apiErr.Status == http.StatusTooManyRequests:
		return models.RequestResult{
			Message:   "Too many requests. Please wait a moment before trying again.",
			ErrorType: models.ErrTypeRateLimited,
		}
	case apiErr.Status >= http.StatusInternalServerError:
		return models.RequestResult{
			Message:   "The server had a problem. Please try again later.",
			ErrorType: models.ErrTypeServer,
		}
	default:
		return models.RequestResult{
			Message:   "Cannot connect to the server. Please try again later.",
			ErrorType: models.ErrTypeNetwork,
		}
	}
}

type validateTokenPayload struct {
	Token string `json:"token" validate:"required"`
}

// ValidateToken submits the emailed code. On acceptance the session manager
// stores the token, a storage failure downgrades to a log line because the
// session is still usable in memory.
func (s *Service) ValidateToken(ctx context.Context, code string) models.ValidationResult {
	payload := validateTokenPayload{Token: strings.TrimSpace(code)}
	if err := validate.Struct(payload); err != nil {
		return rejected(models.ErrTypeMissingToken, "Please enter your access token.", models.ActionRequestNewToken)
	}

	_, body, err := s.api.DoRaw(ctx, http.MethodPost, validateTokenPath, apiclient.Options{Body: payload})
	if err != nil {
		return s.classifyValidateFailure(ctx, err)
	}

	var resp struct {
		Success        bool   `json:"success"`
		Valid          bool   `json:"valid"`
		ExpiresIn      *int64 `json:"expires_in"`
		DaysRemaining  *int   `json:"days_remaining"`
		HoursRemaining *int   `json:"hours_remaining"`
		Error          string `json:"error"`
		ErrorType      string `json:"error_type"`
		ActionRequired string `json:"action_required"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return rejected(models.ErrTypeServer, "The server sent an unexpected response. Please try again.", models.ActionRetryOrRequestNewToken)
	}

	if !resp.Success || !resp.Valid {
		errorType := resp.ErrorType
		if errorType == "" {
			errorType = models.ErrTypeInvalidToken
		}
		message := resp.Error
		if message == "" {
			message = rejectionMessage(errorType)
		}
		action := resp.ActionRequired
		if action == "" {
			action = models.ActionRequestNewToken
		}
		return rejected(errorType, message, action)
	}

	ttl := defaultTokenTTL
	if resp.ExpiresIn != nil {
		ttl = time.Duration(*resp.ExpiresIn) * time.Second
	}
	expiresAt := s.now().Add(ttl)

	if err := s.sessions.SetToken(ctx, payload.Token, expiresAt); err != nil {
		s.logger.Warn("Token accepted but not persisted", "error", err)
	}

	days := int(ttl / (24 * time.Hour))
	hours := int(ttl / time.Hour)
	if resp.DaysRemaining != nil {
		days = *resp.DaysRemaining
	}
	if resp.HoursRemaining != nil {
		hours = *resp.HoursRemaining
	}

	return models.ValidationResult{
		Accepted:       true,
		Token:          payload.Token,
		ExpiresAt:      expiresAt,
		DaysRemaining:  days,
		HoursRemaining: hours,
	}
}

func (s *Service) classifyValidateFailure(ctx context.Context, err error) models.ValidationResult {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		return rejected(models.ErrTypeNetwork, "Unable to reach the server. Please check your connection and try again.", models.ActionRetryOrRequestNewToken)
	}

	switch {
	case apiErr.Status == http.StatusUnauthorized:
		if info := s.HandleAPIAuthError(ctx, apiErr); info.IsAuthError {
			return rejected(info.ErrorType, info.Message, info.ActionRequired)
		}
		return rejected(models.ErrTypeInvalidToken, rejectionMessage(models.ErrTypeInvalidToken), models.ActionRequestNewToken)

	case apiErr.Status == http.StatusBadRequest:
		// Malformed input: the user may fix the code and retry, a new token
		// is not forced on them
		message := apiErr.Message
		if message == "" {
			message = rejectionMessage(models.ErrTypeFormat)
		}
		return rejected(models.ErrTypeFormat, message, models.ActionRetryOrRequestNewToken)

	default:
		return rejected(models.ErrTypeNetwork, "Unable to reach the server. Please check your connection and try again.", models.ActionRetryOrRequestNewToken)
	}
}

// Logout notifies the backend best effort and always clears local state.
// A failed notification is logged and swallowed, never surfaced.
func (s *Service) Logout(ctx context.Context) {
	_, _, err := s.api.DoRaw(ctx, http.MethodPost, logoutPath, apiclient.Options{NoRetry: true})
	if err != nil {
		s.logger.Warn("Logout notification failed, clearing local session anyway", "error", err)
	}

	s.sessions.Clear(ctx)
}

// HandleAPIAuthError is the single point of truth for "should this error
// evict the current token". Any authenticated caller runs its failures
// through here. Only a 401 with a structured detail payload counts as an
// auth error; expired and invalid tokens are cleared immediately.
func (s *Service) HandleAPIAuthError(ctx context.Context, err error) models.AuthErrorInfo {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return models.AuthErrorInfo{}
	}

	detail, ok := parseAuthDetail(apiErr.Body)
	if !ok {
		return models.AuthErrorInfo{}
	}

	message := detail.UIMessage
	if message == "" {
		message = detail.Message
	}
	if message == "" {
		message = rejectionMessage(detail.Error)
	}

	if detail.Error == models.ErrTypeTokenExpired || detail.Error == models.ErrTypeInvalidToken {
		s.logger.Info("Evicting local token", "error_type", detail.Error)
		s.sessions.Clear(ctx)
	}

	return models.AuthErrorInfo{
		IsAuthError:    true,
		ErrorType:      detail.Error,
		Message:        message,
		ActionRequired: models.ActionRequestNewToken,
	}
}

type authDetail struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	UIMessage string `json:"ui_message"`
}

func parseAuthDetail(body []byte) (authDetail, bool) {
	if len(body) == 0 {
		return authDetail{}, false
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return authDetail{}, false
	}

	var detail authDetail
	if err := json.Unmarshal(envelope.Detail, &detail); err != nil || detail.Error == "" {
		return authDetail{}, false
	}

	return detail, true
}

func rejected(errorType, message, action string) models.ValidationResult {
	return models.ValidationResult{
		ErrorType:      errorType,
		Message:        message,
		ActionRequired: action,
	}
}

// rejectionMessage provides the precomputed user copy per error type, so
// presentation layers never branch on the type for wording
func rejectionMessage(errorType string) string {
	switch errorType {
	case models.ErrTypeTokenExpired:
		return "Your access token has expired. Please request a new one."
	case models.ErrTypeInvalidToken:
		return "That access token is not valid. Please request a new one."
	case models.ErrTypeTokenNotFound:
		return "That access token was not found. Please request a new one."
	case models.ErrTypeMissingToken:
		return "No access token was provided."
	case models.ErrTypeFormat:
		return "That token does not look right. Please check it and try again."
	default:
		return "Token validation failed. Please try again."
	}
}
