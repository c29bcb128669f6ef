package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-telephony/internal/audit"
	"crm-telephony/internal/auth"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/config"
	"crm-telephony/internal/crm"
	"crm-telephony/internal/httpapi"
	"crm-telephony/internal/identity"
	"crm-telephony/internal/observer"
	"crm-telephony/internal/reporting"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/internal/telephony"
	"crm-telephony/pkg/logger"
	"crm-telephony/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	if err := run(rootCtx, stop, cfg, log); err != nil {
		log.Error("api exited", zap.Error(err))
		_ = logger.ShutdownFlush(context.Background(), log, 2*time.Second)
		os.Exit(1)
	}
	_ = logger.ShutdownFlush(context.Background(), log, 2*time.Second)
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, log *zap.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.RingCentral.AllowUnsignedWebhooks {
		log.Warn("webhook signature verification disabled: RINGCENTRAL_WEBHOOK_SECRET is empty")
	}
	observer.InitMetrics(cfg.Metrics.Enabled)

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth init: %w", err)
	}
	cipher, err := identity.NewCipher(cfg.Tokens.EncryptionKey)
	if err != nil {
		return fmt.Errorf("token cipher init: %w", err)
	}
	if cfg.Tokens.EncryptionKey == "" {
		log.Warn("provider tokens are stored unencrypted: TOKEN_ENCRYPTION_KEY is empty")
	}

	db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		return fmt.Errorf("redis init: %w", err)
	}
	defer rdb.Close()

	provider := ringcentral.NewClient(ringcentral.Config{
		ServerURL:    cfg.RingCentral.ServerURL,
		ClientID:     cfg.RingCentral.ClientID,
		ClientSecret: cfg.RingCentral.ClientSecret,
		RedirectURI:  cfg.RingCentral.RedirectURI,
		Scopes:       cfg.RingCentral.Scopes,
		Timeout:      cfg.RingCentral.HTTPTimeout,
	}, nil)

	region := cfg.Phone.DefaultRegion
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	tokens := telephony.NewTokenManager(identity.NewPostgresStore(db, cipher), provider, auditSvc)
	matcher := crm.NewMatcher(crm.NewPostgresContactRepo(db), crm.NewPostgresDealRepo(db), region)
	reconciler := calls.NewReconciler(calls.NewPostgresRepo(db))

	deps := routeDeps{
		auth:       authManager,
		cookieName: cfg.Auth.CookieName,
		metrics:    cfg.Metrics.Enabled,
		health: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
		webhook: telephony.WebhookHandler{Ingestor: telephony.NewWebhookIngestor(telephony.WebhookConfig{
			Secret:        cfg.RingCentral.WebhookSecret,
			AllowUnsigned: cfg.RingCentral.AllowUnsignedWebhooks,
			Region:        region,
		}, matcher, reconciler)},
		api: httpapi.Handlers{
			Tokens:  tokens,
			Consent: provider,
			States:  telephony.NewRedisStateStore(rdb),
			Caller:  telephony.NewCaller(tokens, provider, matcher, reconciler, cfg.RingCentral.MainNumber, region),
			Sync:    telephony.NewCallLogSync(tokens, provider, matcher, reconciler, region),
			Reports: reporting.NewService(reconciler),
			AppURL:  cfg.App.URL,
		},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
