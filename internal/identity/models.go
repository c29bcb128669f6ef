package identity

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("identity: not found")

// Identity is the connected telephony account of one CRM user.
//
// Invariants:
// - At most one row per UserID.
// - Absence means "not connected".
// - AccessToken/RefreshToken are secrets; never log them.
type Identity struct {
	UserID            string    `json:"user_id" db:"user_id"`
	ProviderAccountID string    `json:"provider_account_id,omitempty" db:"provider_account_id"`
	AccessToken       string    `json:"-" db:"access_token"`
	RefreshToken      string    `json:"-" db:"refresh_token"`
	TokenExpiresAt    time.Time `json:"token_expires_at" db:"token_expires_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Expired reports whether the access token is past its expiry at now.
func (i Identity) Expired(now time.Time) bool {
	return !now.Before(i.TokenExpiresAt)
}

// Store persists identities.
//
// Upsert overwrites the token pair and expiry. An empty ProviderAccountID keeps
// the stored one (refresh grants do not return it).
type Store interface {
	Get(ctx context.Context, userID string) (Identity, error)
	Upsert(ctx context.Context, in Identity) (Identity, error)
	Delete(ctx context.Context, userID string) error
	// ListExpiringBefore returns user ids whose tokens expire before t.
	ListExpiringBefore(ctx context.Context, t time.Time) ([]string, error)
}
