package domain

import "time"

// Association is the tenant that owns events. Only active associations
// may pass the access gate.
type Association struct {
	ID        string
	Name      string
	Email     string
	Active    bool
	CreatedAt time.Time
}

// Session binds an opaque bearer token to an association. Only the token
// hash is persisted.
type Session struct {
	TokenHash     string
	AssociationID string
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type IdentityEventKind string

const (
	IdentitySignedIn    IdentityEventKind = "signed_in"
	IdentitySignedOut   IdentityEventKind = "signed_out"
	IdentityDeactivated IdentityEventKind = "deactivated"
)

// IdentityEvent is published by the access gate whenever an association's
// session state changes.
type IdentityEvent struct {
	Kind          IdentityEventKind
	AssociationID string
	At            time.Time
}
