package telephony

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"crm-telephony/internal/identity"
	"crm-telephony/pkg/logger"
)

type SweepResult struct {
	Candidates int `json:"candidates"`
	Refreshed  int `json:"refreshed"`
	Failed     int `json:"failed"`
}

// Sweeper proactively refreshes tokens that expire within the window. It is
// run by an external scheduler; nothing in the request path depends on it.
type Sweeper struct {
	store   identity.Store
	tokens  *TokenManager
	window  time.Duration
	workers int
	clock   func() time.Time
}

func NewSweeper(store identity.Store, tokens *TokenManager, window time.Duration, workers int) *Sweeper {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	if workers <= 0 {
		workers = 1
	}
	return &Sweeper{store: store, tokens: tokens, window: window, workers: workers, clock: time.Now}
}

func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	log := logger.From(ctx)

	userIDs, err := s.store.ListExpiringBefore(ctx, s.clock().Add(s.window))
	if err != nil {
		return SweepResult{}, fmt.Errorf("list expiring identities: %w", err)
	}
	res := SweepResult{Candidates: len(userIDs)}
	if len(userIDs) == 0 {
		return res, nil
	}

	var (
		wg        sync.WaitGroup
		refreshed atomic.Int64
		failed    atomic.Int64
	)
	pool, err := ants.NewPoolWithFunc(s.workers, func(i interface{}) {
		defer wg.Done()
		userID := i.(string)
		ok, err := s.tokens.RefreshIfNearExpiry(ctx, userID, s.window)
		switch {
		case err != nil:
			failed.Add(1)
			log.Warn("sweep refresh failed", zap.String("user_id", userID), zap.Error(err))
		case ok:
			refreshed.Add(1)
		}
	}, ants.WithPanicHandler(func(p interface{}) {
		log.Error("sweep worker panicked", zap.Any("panic", p))
	}))
	if err != nil {
		return res, fmt.Errorf("create sweep pool: %w", err)
	}
	defer pool.Release()

	for _, id := range userIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		if err := pool.Invoke(id); err != nil {
			wg.Done()
			failed.Add(1)
			log.Warn("sweep submit failed", zap.String("user_id", id), zap.Error(err))
		}
	}
	wg.Wait()

	res.Refreshed = int(refreshed.Load())
	res.Failed = int(failed.Load())
	log.Info("token sweep finished",
		zap.Int("candidates", res.Candidates),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("failed", res.Failed),
	)
	return res, ctx.Err()
}
