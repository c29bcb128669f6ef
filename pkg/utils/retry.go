package utils

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"crm-telephony/pkg/logger"
)

const (
	defaultRetryInitialInterval = 50 * time.Millisecond
	defaultRetryMaxInterval     = 500 * time.Millisecond
	defaultRetryMaxElapsed      = 3 * time.Second
)

// RetryDB runs op with exponential backoff while it fails with a transient
// database error. Any other error stops the retry loop immediately.
func RetryDB(ctx context.Context, opName string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = defaultRetryInitialInterval
	b.MaxInterval = defaultRetryMaxInterval
	b.MaxElapsedTime = defaultRetryMaxElapsed
	b.Reset()

	notify := func(err error, d time.Duration) {
		logger.From(ctx).Warn("retrying db operation",
			zap.String("operation", opName),
			zap.Error(err),
			zap.Duration("after", d),
		)
	}

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), notify)
}

// IsTransient reports whether err looks like a temporary database condition
// (connection loss, resource exhaustion, serialization conflict).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception, class 53: insufficient resources,
		// 40001/40P01: serialization failure and deadlock.
		return strings.HasPrefix(pgErr.Code, "08") ||
			strings.HasPrefix(pgErr.Code, "53") ||
			pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
