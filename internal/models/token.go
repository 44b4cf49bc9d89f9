package models

import (
	"time"
)

// TokenRecord is the locally cached access credential.
// The value is opaque to the client: only the expiry is ever interpreted.
type TokenRecord struct {
	Value     string
	ExpiresAt time.Time
}

// Expired reports whether the record is past due at the given moment.
// A record with ExpiresAt exactly equal to now is treated as expired.
func (t TokenRecord) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
