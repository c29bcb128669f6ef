package telephony

import (
	"context"
	"time"

	"crm-telephony/internal/audit"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/crm"
	"crm-telephony/internal/ringcentral"
)

// Provider is the telephony provider API used by this package.
// *ringcentral.Client implements it.
//
// Access tokens are passed per call; implementations must not keep any user's
// token between calls.
type Provider interface {
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (ringcentral.TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (ringcentral.TokenSet, error)
	RingOut(ctx context.Context, accessToken string, req ringcentral.RingOutRequest) (ringcentral.RingOutResult, error)
	CallLog(ctx context.Context, accessToken string, from, to time.Time) ([]ringcentral.CallLogRecord, error)
}

type Matcher interface {
	MatchByPhone(ctx context.Context, number string) (crm.Match, error)
}

type Reconciler interface {
	Upsert(ctx context.Context, rec calls.CallRecord) (calls.CallRecord, error)
}

type Auditor interface {
	Record(ctx context.Context, userID string, t audit.EventType, providerAccountID, message string) error
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, string, audit.EventType, string, string) error { return nil }
