package calls

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("calls: not found")
	ErrInvalidRecord = errors.New("calls: invalid record")
)

// CallRecord is one phone call seen by the CRM, placed from the app or
// reported by the provider.
//
// Invariants:
// - ProviderCallID, when present, is unique: later events update the same row.
// - Records without ProviderCallID are insert-only.
// - DurationSeconds >= 0; 0 means unknown.
type CallRecord struct {
	ID        string     `json:"id" db:"id"`
	Direction Direction  `json:"direction" db:"direction"`
	Status    CallStatus `json:"status" db:"status"`

	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	DurationSeconds int    `json:"duration_seconds,omitempty" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`

	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	MatchedContactID string `json:"matched_contact_id,omitempty" db:"matched_contact_id"`
	MatchedDealID    string `json:"matched_deal_id,omitempty" db:"matched_deal_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// CallStatus is one of the constants below or a lower-cased provider string.
type CallStatus string

const (
	CallStatusInitiated CallStatus = "initiated"
	CallStatusRinging   CallStatus = "ringing"
	CallStatusCompleted CallStatus = "completed"
	CallStatusMissed    CallStatus = "missed"
	CallStatusBusy      CallStatus = "busy"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusUnknown   CallStatus = "unknown"
)

// Terminal reports whether no further progress is expected for the call.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusMissed, CallStatusBusy, CallStatusRejected:
		return true
	default:
		return false
	}
}

// Provisional statuses may be replaced by anything; a terminal status is
// never replaced by one of these.
func (s CallStatus) Provisional() bool {
	switch s {
	case CallStatusInitiated, CallStatusRinging, CallStatusUnknown, "":
		return true
	default:
		return false
	}
}

// Merge applies incoming onto existing for the same provider call.
//
// Status is last-write-wins except that a terminal status is kept over a
// provisional one (out-of-order delivery). Empty incoming duration,
// recording and matches keep the stored values.
func Merge(existing, incoming CallRecord) CallRecord {
	out := existing
	if !(existing.Status.Terminal() && incoming.Status.Provisional()) && incoming.Status != "" {
		out.Status = incoming.Status
	}
	if incoming.DurationSeconds > 0 {
		out.DurationSeconds = incoming.DurationSeconds
	}
	if incoming.RecordingURL != "" {
		out.RecordingURL = incoming.RecordingURL
	}
	if incoming.MatchedContactID != "" {
		out.MatchedContactID = incoming.MatchedContactID
	}
	if incoming.MatchedDealID != "" {
		out.MatchedDealID = incoming.MatchedDealID
	}
	if out.FromNumber == "" {
		out.FromNumber = incoming.FromNumber
	}
	if out.ToNumber == "" {
		out.ToNumber = incoming.ToNumber
	}
	if !incoming.UpdatedAt.IsZero() {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}
