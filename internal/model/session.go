package model

import "time"

// Credential is a per-user session loaded from the secret store. When Valid
// is false, Err holds a human-readable cause (not signed in, expired,
// unreadable).
type Credential struct {
	ExpiresAt time.Time
	Username  string
	Token     string
	UserID    string
	Err       string
	Valid     bool
}

// Expired reports whether the credential's expiry has passed. A credential
// without an expiry is treated as expired: the expiry is the only proof the
// session was ever issued for a bounded window.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt.IsZero() || now.After(c.ExpiresAt)
}
