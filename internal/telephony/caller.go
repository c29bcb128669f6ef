package telephony

import (
	"context"
	"time"

	"go.uber.org/zap"

	"crm-telephony/internal/calls"
	"crm-telephony/internal/observer"
	"crm-telephony/internal/phone"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/pkg/logger"
)

type PlaceCallRequest struct {
	UserID string
	To     string
	// From overrides the configured main number.
	From string
}

type PlaceCallResult struct {
	ProviderCallID string `json:"provider_call_id,omitempty"`
	CallRecordID   string `json:"call_record_id,omitempty"`
	From           string `json:"from"`
	To             string `json:"to"`
}

// Caller places outbound calls and logs the attempt.
type Caller struct {
	tokens     *TokenManager
	provider   Provider
	matcher    Matcher
	reconciler Reconciler
	mainNumber string
	region     string
}

func NewCaller(tokens *TokenManager, provider Provider, matcher Matcher, reconciler Reconciler, mainNumber, region string) *Caller {
	return &Caller{
		tokens:     tokens,
		provider:   provider,
		matcher:    matcher,
		reconciler: reconciler,
		mainNumber: mainNumber,
		region:     region,
	}
}

// PlaceCall rings out from the user's extension to req.To.
//
// Once the provider accepts the call, matching and logging failures are
// logged and never returned: the call is already placed.
func (c *Caller) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if req.UserID == "" {
		return PlaceCallResult{}, invalidArgument("user id is required")
	}
	to, err := c.normalize(req.To)
	if err != nil {
		return PlaceCallResult{}, invalidArgument("to: " + err.Error())
	}
	fromRaw := req.From
	if fromRaw == "" {
		fromRaw = c.mainNumber
	}
	if fromRaw == "" {
		return PlaceCallResult{}, invalidArgument("no from number configured")
	}
	from, err := c.normalize(fromRaw)
	if err != nil {
		return PlaceCallResult{}, invalidArgument("from: " + err.Error())
	}

	log := logger.From(ctx).With(zap.String("user_id", req.UserID))

	var res ringcentral.RingOutResult
	err = c.tokens.WithAccessToken(ctx, req.UserID, func(token string) error {
		start := time.Now()
		var callErr error
		res, callErr = c.provider.RingOut(ctx, token, ringcentral.RingOutRequest{From: from, To: to, PlayPrompt: true})
		observer.ObserveProvider("ring_out", start, callErr)
		return callErr
	})
	if err != nil {
		observer.Inc(observer.CallsPlacedTotal, "failure")
		return PlaceCallResult{}, callError(err)
	}
	observer.Inc(observer.CallsPlacedTotal, "success")

	out := PlaceCallResult{ProviderCallID: res.ID, From: from, To: to}
	rec := calls.CallRecord{
		Direction:      calls.DirectionOutbound,
		Status:         calls.CallStatusInitiated,
		FromNumber:     from,
		ToNumber:       to,
		ProviderCallID: res.ID,
	}
	if c.matcher != nil {
		m, err := c.matcher.MatchByPhone(ctx, to)
		if err != nil {
			log.Warn("contact match failed for outbound call", zap.Error(err))
		}
		rec.MatchedContactID = m.ContactID()
		rec.MatchedDealID = m.DealID()
	}
	saved, err := c.reconciler.Upsert(ctx, rec)
	if err != nil {
		log.Error("failed to log outbound call", zap.String("provider_call_id", res.ID), zap.Error(err))
		return out, nil
	}
	out.CallRecordID = saved.ID
	log.Info("outbound call placed", zap.String("provider_call_id", res.ID), zap.String("call_record_id", saved.ID))
	return out, nil
}

func (c *Caller) normalize(raw string) (string, error) {
	if raw == "" {
		return "", errEmptyNumber
	}
	n, ok := phone.Normalize(raw, c.region)
	if !ok {
		return "", errUnparseableNumber
	}
	return n, nil
}

// callError maps provider failures to the call error taxonomy. Token errors
// (not connected, refresh failed, unauthorized) pass through.
func callError(err error) error {
	switch {
	case errorsIsAny(err, ErrNotConnected, ErrRefreshFailed, ErrUnauthorized, ErrInvalidArgument):
		return err
	default:
		return &CallFailedError{StatusCode: ringcentral.StatusCode(err), Err: err}
	}
}
