package ringcentral

import (
	"strings"
	"time"
)

// TokenSet is the result of an authorization-code or refresh-token grant.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	// OwnerID is the provider account/extension owner; only set by code exchange.
	OwnerID string
}

type PhoneNumberInfo struct {
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type RingOutRequest struct {
	From       string
	To         string
	PlayPrompt bool
}

type ringOutBody struct {
	From       PhoneNumberInfo `json:"from"`
	To         PhoneNumberInfo `json:"to"`
	PlayPrompt bool            `json:"playPrompt"`
}

type RingOutStatus struct {
	CallStatus   string `json:"callStatus,omitempty"`
	CallerStatus string `json:"callerStatus,omitempty"`
	CalleeStatus string `json:"calleeStatus,omitempty"`
}

// RingOutResult is the provider's session for a placed call. ID may be empty.
type RingOutResult struct {
	ID     string        `json:"id"`
	URI    string        `json:"uri,omitempty"`
	Status RingOutStatus `json:"status"`
}

type Recording struct {
	ID         string `json:"id,omitempty"`
	ContentURI string `json:"contentUri,omitempty"`
}

// CallLogRecord is one entry of a call-log listing or call-log notification.
// Field presence varies between the two sources; see From/To accessors.
type CallLogRecord struct {
	ID         string           `json:"id" validate:"required"`
	SessionID  string           `json:"sessionId,omitempty"`
	Direction  string           `json:"direction" validate:"required,oneof=Inbound Outbound inbound outbound"`
	Result     string           `json:"result,omitempty"`
	Duration   int              `json:"duration,omitempty" validate:"gte=0"`
	StartTime  string           `json:"startTime,omitempty"`
	From       *PhoneNumberInfo `json:"from,omitempty"`
	To         *PhoneNumberInfo `json:"to,omitempty"`
	FromNumber string           `json:"fromNumber,omitempty"`
	ToNumber   string           `json:"toNumber,omitempty"`
	Recording  *Recording       `json:"recording,omitempty"`
}

func (r CallLogRecord) FromPhone() string {
	if r.From != nil && strings.TrimSpace(r.From.PhoneNumber) != "" {
		return strings.TrimSpace(r.From.PhoneNumber)
	}
	return strings.TrimSpace(r.FromNumber)
}

func (r CallLogRecord) ToPhone() string {
	if r.To != nil && strings.TrimSpace(r.To.PhoneNumber) != "" {
		return strings.TrimSpace(r.To.PhoneNumber)
	}
	return strings.TrimSpace(r.ToNumber)
}

func (r CallLogRecord) RecordingURL() string {
	if r.Recording == nil {
		return ""
	}
	return r.Recording.ContentURI
}

type callLogPage struct {
	Records    []CallLogRecord `json:"records"`
	Navigation struct {
		NextPage *struct {
			URI string `json:"uri"`
		} `json:"nextPage,omitempty"`
	} `json:"navigation"`
}
