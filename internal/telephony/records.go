package telephony

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crm-telephony/internal/calls"
	"crm-telephony/internal/phone"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/internal/validator"
	"crm-telephony/pkg/logger"
)

// MapResult maps a provider call result to a CallStatus. Unrecognized
// results pass through lower-cased.
func MapResult(result string) calls.CallStatus {
	r := strings.ToLower(strings.TrimSpace(result))
	switch r {
	case "":
		return calls.CallStatusUnknown
	case "call connected", "call finished", "hang up", "accepted", "completed":
		return calls.CallStatusCompleted
	case "no answer", "missed":
		return calls.CallStatusMissed
	case "busy":
		return calls.CallStatusBusy
	case "rejected", "declined":
		return calls.CallStatusRejected
	case "ringing":
		return calls.CallStatusRinging
	default:
		return calls.CallStatus(r)
	}
}

// MapDirection accepts the provider's "Inbound"/"Outbound" in any case.
func MapDirection(direction string) (calls.Direction, bool) {
	d := calls.Direction(strings.ToLower(strings.TrimSpace(direction)))
	return d, d.Valid()
}

// NormalizeRecord converts one provider record into a CallRecord and picks the
// customer number: the callee of outbound calls, the caller of inbound ones.
func NormalizeRecord(rec ringcentral.CallLogRecord, region string) (calls.CallRecord, string, error) {
	if err := validator.Validate(rec); err != nil {
		return calls.CallRecord{}, "", fmt.Errorf("%w: %w", errInvalidRecord, err)
	}
	dir, ok := MapDirection(rec.Direction)
	if !ok {
		return calls.CallRecord{}, "", fmt.Errorf("%w: unknown direction %q", errInvalidRecord, rec.Direction)
	}

	from, _ := phone.Normalize(rec.FromPhone(), region)
	to, _ := phone.Normalize(rec.ToPhone(), region)

	out := calls.CallRecord{
		Direction:       dir,
		Status:          MapResult(rec.Result),
		FromNumber:      from,
		ToNumber:        to,
		DurationSeconds: rec.Duration,
		RecordingURL:    rec.RecordingURL(),
		ProviderCallID:  strings.TrimSpace(rec.ID),
	}
	customer := from
	if dir == calls.DirectionOutbound {
		customer = to
	}
	return out, customer, nil
}

// recordPipeline runs normalize, match and reconcile for one provider record.
// It is shared by webhook ingestion and call-log sync.
type recordPipeline struct {
	matcher    Matcher
	reconciler Reconciler
	region     string
}

func (p recordPipeline) process(ctx context.Context, rec ringcentral.CallLogRecord) (calls.CallRecord, error) {
	cr, customer, err := NormalizeRecord(rec, p.region)
	if err != nil {
		return calls.CallRecord{}, err
	}

	if customer != "" && p.matcher != nil {
		m, err := p.matcher.MatchByPhone(ctx, customer)
		if err != nil {
			// Matching is best-effort; an unmatched call is still logged.
			logger.From(ctx).Warn("contact match failed",
				zap.String("provider_call_id", cr.ProviderCallID),
				zap.Error(err),
			)
		}
		cr.MatchedContactID = m.ContactID()
		cr.MatchedDealID = m.DealID()
	}

	out, err := p.reconciler.Upsert(ctx, cr)
	if err != nil {
		return calls.CallRecord{}, fmt.Errorf("reconcile record: %w", err)
	}
	return out, nil
}
