package models

import (
	"time"
)

// Error types the backend (or the client itself) may classify a failure with
const (
	ErrTypeTokenExpired  = "token_expired"
	ErrTypeInvalidToken  = "invalid_token"
	ErrTypeTokenNotFound = "token_not_found"
	ErrTypeFormat        = "format_error"
	ErrTypeMissingToken  = "missing_token"
	ErrTypeNetwork       = "network_error"
	ErrTypeServer        = "server_error"
	ErrTypeValidation    = "validation_error"
	ErrTypeRateLimited   = "rate_limited"
)

// Actions the UI should offer the user after a rejection
const (
	ActionRequestNewToken        = "request_new_token"
	ActionRetryOrRequestNewToken = "retry_or_request_new_token"
)

// ValidationResult is the outcome of the token validation flow.
// Either Accepted is true and the token fields are set, or it is false
// and the rejection fields carry a ready to show user message.
type ValidationResult struct {
	Accepted bool

	// Set on success only
	Token          string
	ExpiresAt      time.Time
	DaysRemaining  int
	HoursRemaining int

	// Set on rejection only
	ErrorType      string
	Message        string
	ActionRequired string
}

// RequestResult is the outcome of the token request flow
type RequestResult struct {
	Success bool
	Message string

	// Set on failure only
	ErrorType string
}

// AuthErrorInfo is what the shared 401 interceptor reports back to callers
type AuthErrorInfo struct {
	IsAuthError    bool
	ErrorType      string
	Message        string
	ActionRequired string
}
