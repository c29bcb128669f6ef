// Command refresh-sweep refreshes provider tokens that expire within
// TOKEN_REFRESH_WINDOW, then exits. Run it from cron or a scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"crm-telephony/internal/audit"
	"crm-telephony/internal/config"
	"crm-telephony/internal/identity"
	"crm-telephony/internal/observer"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/internal/telephony"
	"crm-telephony/pkg/logger"
	"crm-telephony/pkg/utils"
)

const sweepTimeout = 10 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(log)
	observer.InitMetrics(false)

	code := 0
	if err := run(logger.With(ctx, log), cfg); err != nil {
		log.Error("refresh sweep failed", zap.Error(err))
		code = 1
	}
	_ = logger.ShutdownFlush(context.Background(), log, 2*time.Second)
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	cipher, err := identity.NewCipher(cfg.Tokens.EncryptionKey)
	if err != nil {
		return fmt.Errorf("token cipher init: %w", err)
	}
	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.Tokens.SweepWorkers + 2})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()

	provider := ringcentral.NewClient(ringcentral.Config{
		ServerURL:    cfg.RingCentral.ServerURL,
		ClientID:     cfg.RingCentral.ClientID,
		ClientSecret: cfg.RingCentral.ClientSecret,
		RedirectURI:  cfg.RingCentral.RedirectURI,
		Scopes:       cfg.RingCentral.Scopes,
		Timeout:      cfg.RingCentral.HTTPTimeout,
	}, nil)

	store := identity.NewPostgresStore(db, cipher)
	tokens := telephony.NewTokenManager(store, provider, audit.NewService(audit.NewPostgresRepo(db)))
	sweeper := telephony.NewSweeper(store, tokens, cfg.Tokens.RefreshWindow, cfg.Tokens.SweepWorkers)

	res, err := sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d token refreshes failed", res.Failed, res.Candidates)
	}
	return nil
}
