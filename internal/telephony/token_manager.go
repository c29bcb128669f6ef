package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"crm-telephony/internal/audit"
	"crm-telephony/internal/identity"
	"crm-telephony/internal/observer"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/pkg/logger"
)

const DefaultRefreshWindow = 24 * time.Hour

const (
	triggerExpired   = "expired"
	triggerProactive = "proactive"
	triggerForced    = "forced"
)

// TokenManager hands out valid provider access tokens per user.
//
// Every read goes to the store and every refresh is persisted before the
// token is returned. Concurrent refreshes for one user are tolerated: the
// last upsert wins.
type TokenManager struct {
	store    identity.Store
	provider Provider
	audit    Auditor
	clock    func() time.Time
}

func NewTokenManager(store identity.Store, provider Provider, auditor Auditor) *TokenManager {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return &TokenManager{store: store, provider: provider, audit: auditor, clock: time.Now}
}

// ConnectionStatus describes a user's telephony connection.
type ConnectionStatus struct {
	Connected         bool       `json:"connected"`
	Expired           bool       `json:"expired"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	ProviderAccountID string     `json:"provider_account_id,omitempty"`
}

func (m *TokenManager) load(ctx context.Context, userID string) (identity.Identity, error) {
	if userID == "" {
		return identity.Identity{}, invalidArgument("user id is required")
	}
	in, err := m.store.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Identity{}, ErrNotConnected
		}
		return identity.Identity{}, fmt.Errorf("load identity: %w", err)
	}
	if in.AccessToken == "" {
		return identity.Identity{}, ErrNotConnected
	}
	return in, nil
}

// ValidAccessToken returns the stored access token, refreshing it first when
// it has expired.
func (m *TokenManager) ValidAccessToken(ctx context.Context, userID string) (string, error) {
	in, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	if !in.Expired(m.clock()) {
		return in.AccessToken, nil
	}

	logger.From(ctx).Info("telephony token expired, refreshing", zap.String("user_id", userID))
	out, err := m.refresh(ctx, in, triggerExpired)
	if err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// RefreshIfNearExpiry refreshes when the token expires within window
// (DefaultRefreshWindow when window <= 0). It reports whether a refresh
// happened. Users without an identity are skipped.
func (m *TokenManager) RefreshIfNearExpiry(ctx context.Context, userID string, window time.Duration) (bool, error) {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	in, err := m.load(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return false, nil
		}
		return false, err
	}
	if in.TokenExpiresAt.After(m.clock().Add(window)) {
		return false, nil
	}
	if _, err := m.refresh(ctx, in, triggerProactive); err != nil {
		return false, err
	}
	return true, nil
}

// ForceRefresh refreshes regardless of the stored expiry.
func (m *TokenManager) ForceRefresh(ctx context.Context, userID string) (string, error) {
	in, err := m.load(ctx, userID)
	if err != nil {
		return "", err
	}
	out, err := m.refresh(ctx, in, triggerForced)
	if err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

// WithAccessToken runs fn with a valid token. When the provider answers 401
// the token is force-refreshed and fn is retried once; a second 401 yields
// ErrUnauthorized.
func (m *TokenManager) WithAccessToken(ctx context.Context, userID string, fn func(accessToken string) error) error {
	token, err := m.ValidAccessToken(ctx, userID)
	if err != nil {
		return err
	}
	err = fn(token)
	if ringcentral.StatusCode(err) != http.StatusUnauthorized {
		return err
	}

	logger.From(ctx).Warn("provider rejected access token, forcing refresh", zap.String("user_id", userID))
	token, err = m.ForceRefresh(ctx, userID)
	if err != nil {
		return err
	}
	err = fn(token)
	if ringcentral.StatusCode(err) == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}

// Connect exchanges an authorization code and stores the resulting identity.
func (m *TokenManager) Connect(ctx context.Context, userID, code string) (identity.Identity, error) {
	if userID == "" {
		return identity.Identity{}, invalidArgument("user id is required")
	}
	if code == "" {
		return identity.Identity{}, invalidArgument("authorization code is required")
	}

	start := time.Now()
	ts, err := m.provider.ExchangeCode(ctx, code)
	observer.ObserveProvider("exchange_code", start, err)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("exchange authorization code: %w", err)
	}

	out, err := m.store.Upsert(ctx, identity.Identity{
		UserID:            userID,
		ProviderAccountID: ts.OwnerID,
		AccessToken:       ts.AccessToken,
		RefreshToken:      ts.RefreshToken,
		TokenExpiresAt:    ts.Expiry.UTC(),
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("store identity: %w", err)
	}
	m.record(ctx, userID, audit.EventTypeTelephonyConnected, out.ProviderAccountID, "telephony account connected")
	return out, nil
}

// Disconnect removes the user's identity. Disconnecting twice is not an error.
func (m *TokenManager) Disconnect(ctx context.Context, userID string) error {
	if userID == "" {
		return invalidArgument("user id is required")
	}
	if err := m.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	m.record(ctx, userID, audit.EventTypeTelephonyDisconnected, "", "telephony account disconnected")
	return nil
}

func (m *TokenManager) Status(ctx context.Context, userID string) (ConnectionStatus, error) {
	in, err := m.load(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			return ConnectionStatus{}, nil
		}
		return ConnectionStatus{}, err
	}
	exp := in.TokenExpiresAt
	return ConnectionStatus{
		Connected:         true,
		Expired:           in.Expired(m.clock()),
		ExpiresAt:         &exp,
		ProviderAccountID: in.ProviderAccountID,
	}, nil
}

func (m *TokenManager) refresh(ctx context.Context, in identity.Identity, trigger string) (identity.Identity, error) {
	log := logger.From(ctx).With(zap.String("user_id", in.UserID), zap.String("trigger", trigger))

	start := time.Now()
	ts, err := m.provider.RefreshToken(ctx, in.RefreshToken)
	observer.ObserveProvider("refresh_token", start, err)
	if err != nil {
		observer.Inc(observer.TokenRefreshesTotal, trigger, "failure")
		log.Warn("telephony token refresh failed",
			zap.Int("provider_status", ringcentral.StatusCode(err)),
			zap.Error(err),
		)
		m.record(ctx, in.UserID, audit.EventTypeTokenRefreshFailed, in.ProviderAccountID,
			fmt.Sprintf("refresh failed (%s)", trigger))
		return identity.Identity{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := identity.Identity{
		UserID:            in.UserID,
		ProviderAccountID: in.ProviderAccountID,
		AccessToken:       ts.AccessToken,
		RefreshToken:      ts.RefreshToken,
		TokenExpiresAt:    ts.Expiry.UTC(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = in.RefreshToken
	}
	out, err := m.store.Upsert(ctx, next)
	if err != nil {
		observer.Inc(observer.TokenRefreshesTotal, trigger, "failure")
		return identity.Identity{}, fmt.Errorf("store refreshed identity: %w", err)
	}
	observer.Inc(observer.TokenRefreshesTotal, trigger, "success")
	log.Info("telephony token refreshed", zap.Time("expires_at", out.TokenExpiresAt))
	return out, nil
}

func (m *TokenManager) record(ctx context.Context, userID string, t audit.EventType, accountID, msg string) {
	if err := m.audit.Record(ctx, userID, t, accountID, msg); err != nil {
		logger.From(ctx).Warn("audit append failed", zap.String("type", string(t)), zap.Error(err))
	}
}
