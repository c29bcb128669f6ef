package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-telephony/internal/auth"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/config"
	"crm-telephony/internal/crm"
	"crm-telephony/internal/httpapi"
	"crm-telephony/internal/reporting"
	"crm-telephony/internal/telephony"
)

func newTestRouter(t *testing.T, health func(context.Context) error) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
	require.NoError(t, err)

	people := crm.NewMemoryRepo()
	reconciler := calls.NewReconciler(calls.NewMemoryRepo())
	r := gin.New()
	registerRoutes(r, routeDeps{
		auth:       m,
		cookieName: "access_token",
		metrics:    true,
		health:     health,
		webhook: telephony.WebhookHandler{Ingestor: telephony.NewWebhookIngestor(
			telephony.WebhookConfig{Secret: "s", Region: "US"},
			crm.NewMatcher(people, people, "US"), reconciler,
		)},
		api: httpapi.Handlers{Reports: reporting.NewService(reconciler), AppURL: "https://crm.test"},
	})
	return r, m
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)

	r, _ = newTestRouter(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestMetricsExposed(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookIsPublicButSigned(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ringcentral", strings.NewReader(`{"event":"x"}`))
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestTelephonyRoutesRequireSession(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/telephony/auth"},
		{http.MethodGet, "/api/telephony/status"},
		{http.MethodPost, "/api/telephony/call"},
		{http.MethodPost, "/api/telephony/disconnect"},
		{http.MethodPost, "/api/telephony/sync"},
		{http.MethodGet, "/api/telephony/calls/summary"},
	} {
		w := serve(r, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, tc.path)
	}
}

func TestCallsSummaryRequiresManager(t *testing.T) {
	r, m := newTestRouter(t, nil)

	userTok, err := m.Issue(time.Now(), "u1", "user")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/telephony/calls/summary", nil)
	req.Header.Set("Authorization", "Bearer "+userTok)
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	mgrTok, err := m.Issue(time.Now(), "u2", "manager")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/telephony/calls/summary", nil)
	req.Header.Set("Authorization", "Bearer "+mgrTok)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}
