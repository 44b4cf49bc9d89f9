package apperrors

import (
	"errors"
)

var (
	// ErrNotAuthenticated is returned by operations that need a live session
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUnexpectedShape marks a response that matched no known envelope
	ErrUnexpectedShape = errors.New("unexpected response shape")
)
