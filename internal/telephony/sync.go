package telephony

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"crm-telephony/internal/observer"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/pkg/logger"
)

// MaxSyncRange bounds one call-log sync request.
const MaxSyncRange = 31 * 24 * time.Hour

type SyncResult struct {
	Fetched    int `json:"fetched"`
	Reconciled int `json:"reconciled"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// CallLogSync pulls the provider call log and reconciles it with the same
// rules as webhook ingestion. It backfills calls whose notifications were lost.
type CallLogSync struct {
	tokens   *TokenManager
	provider Provider
	pipeline recordPipeline
}

func NewCallLogSync(tokens *TokenManager, provider Provider, matcher Matcher, reconciler Reconciler, region string) *CallLogSync {
	return &CallLogSync{
		tokens:   tokens,
		provider: provider,
		pipeline: recordPipeline{matcher: matcher, reconciler: reconciler, region: region},
	}
}

func (s *CallLogSync) Sync(ctx context.Context, userID string, from, to time.Time) (SyncResult, error) {
	if userID == "" {
		return SyncResult{}, invalidArgument("user id is required")
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	if !to.After(from) || to.Sub(from) > MaxSyncRange {
		return SyncResult{}, invalidArgument("sync range must be positive and at most 31 days")
	}

	var records []ringcentral.CallLogRecord
	err := s.tokens.WithAccessToken(ctx, userID, func(token string) error {
		start := time.Now()
		var err error
		records, err = s.provider.CallLog(ctx, token, from, to)
		observer.ObserveProvider("call_log", start, err)
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}

	log := logger.From(ctx).With(zap.String("user_id", userID))
	res := SyncResult{Fetched: len(records)}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		_, err := s.pipeline.process(ctx, rec)
		switch {
		case errors.Is(err, errInvalidRecord):
			res.Skipped++
		case err != nil:
			res.Failed++
			log.Error("call-log record not reconciled", zap.String("provider_call_id", rec.ID), zap.Error(err))
		default:
			res.Reconciled++
		}
	}
	log.Info("call-log sync finished",
		zap.Int("fetched", res.Fetched),
		zap.Int("reconciled", res.Reconciled),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}
