package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - user_id is required; every telephony event belongs to one CRM user.
// - Recording is best-effort; do not block connection flows on audit failures.
//
// Storage (Postgres): table telephony_audit_events with an INSERT-only policy.
type Event struct {
	ID     string    `json:"id" db:"id"`
	UserID string    `json:"user_id" db:"user_id"`
	Type   EventType `json:"type" db:"type"`

	// ProviderAccountID is the connected provider account, when known.
	ProviderAccountID string `json:"provider_account_id,omitempty" db:"provider_account_id"`

	// IPAddress is the resolved client IP for user-initiated events.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	// Never put tokens or provider response bodies here.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeTelephonyConnected    EventType = "telephony_connected"
	EventTypeTelephonyDisconnected EventType = "telephony_disconnected"
	EventTypeTokenRefreshFailed    EventType = "token_refresh_failed"
)
