package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-telephony/internal/audit"
	"crm-telephony/internal/auth"
	"crm-telephony/internal/calls"
	"crm-telephony/internal/crm"
	"crm-telephony/internal/identity"
	"crm-telephony/internal/reporting"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/internal/telephony"
)

type stubProvider struct {
	ringOutErr error
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (p *stubProvider) ExchangeCode(ctx context.Context, code string) (ringcentral.TokenSet, error) {
	return ringcentral.TokenSet{AccessToken: "a-" + code, RefreshToken: "r-" + code, Expiry: time.Now().Add(time.Hour), OwnerID: "acct"}, nil
}

func (p *stubProvider) RefreshToken(ctx context.Context, refreshToken string) (ringcentral.TokenSet, error) {
	return ringcentral.TokenSet{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}, nil
}

func (p *stubProvider) RingOut(ctx context.Context, accessToken string, req ringcentral.RingOutRequest) (ringcentral.RingOutResult, error) {
	if p.ringOutErr != nil {
		return ringcentral.RingOutResult{}, p.ringOutErr
	}
	return ringcentral.RingOutResult{ID: "ring-1"}, nil
}

func (p *stubProvider) CallLog(ctx context.Context, accessToken string, from, to time.Time) ([]ringcentral.CallLogRecord, error) {
	return nil, nil
}

type apiFixture struct {
	provider *stubProvider
	store    *identity.MemoryStore
	states   *telephony.MemoryStateStore
	calls    *calls.MemoryRepo
	router   *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &apiFixture{
		provider: &stubProvider{},
		store:    identity.NewMemoryStore(),
		states:   telephony.NewMemoryStateStore(),
		calls:    calls.NewMemoryRepo(),
	}
	people := crm.NewMemoryRepo()
	matcher := crm.NewMatcher(people, people, "US")
	reconciler := calls.NewReconciler(f.calls)
	tokens := telephony.NewTokenManager(f.store, f.provider, audit.NewService(audit.NewMemoryRepo()))

	h := Handlers{
		Tokens:  tokens,
		Consent: f.provider,
		States:  f.states,
		Caller:  telephony.NewCaller(tokens, f.provider, matcher, reconciler, "+15550000000", "US"),
		Sync:    telephony.NewCallLogSync(tokens, f.provider, matcher, reconciler, "US"),
		Reports: reporting.NewService(reconciler),
		AppURL:  "https://crm.test",
	}

	r := gin.New()
	r.GET("/callback", h.Callback)
	authed := r.Group("/", func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u1", "user"))
		c.Next()
	})
	authed.GET("/auth", h.StartAuth)
	authed.GET("/status", h.Status)
	authed.POST("/call", h.PlaceCall)
	authed.POST("/disconnect", h.Disconnect)
	authed.POST("/sync", h.SyncCallLog)
	authed.GET("/summary", h.CallsSummary)
	f.router = r
	return f
}

func (f *apiFixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) connect(t *testing.T) {
	t.Helper()
	_, err := f.store.Upsert(context.Background(), identity.Identity{
		UserID: "u1", AccessToken: "a", RefreshToken: "r", TokenExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
}

func TestStartAuthAndCallback(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodGet, "/auth", "")
	require.Equal(t, http.StatusFound, w.Code)
	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	w = f.do(http.MethodGet, "/callback?code=xyz&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://crm.test/settings?rc=connected", w.Header().Get("Location"))

	in, err := f.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a-xyz", in.AccessToken)

	// state is single use
	w = f.do(http.MethodGet, "/callback?code=xyz&state="+url.QueryEscape(state), "")
	assert.Equal(t, "https://crm.test/settings?error=invalid_state", w.Header().Get("Location"))
}

func TestCallback_ProviderError(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/callback?error=access_denied", "")
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://crm.test/settings?error=access_denied", w.Header().Get("Location"))
}

func TestPlaceCall(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(http.MethodPost, "/call", `{"to":"+15551234567"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "reconnect_required")
	})

	t.Run("missing to", func(t *testing.T) {
		f := newAPIFixture(t)
		f.connect(t)
		w := f.do(http.MethodPost, "/call", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unparseable to", func(t *testing.T) {
		f := newAPIFixture(t)
		f.connect(t)
		w := f.do(http.MethodPost, "/call", `{"to":"abc"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		f := newAPIFixture(t)
		f.connect(t)
		f.provider.ringOutErr = &ringcentral.APIError{StatusCode: http.StatusInternalServerError}
		w := f.do(http.MethodPost, "/call", `{"to":"+15551234567"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Empty(t, f.calls.Records())
	})

	t.Run("success", func(t *testing.T) {
		f := newAPIFixture(t)
		f.connect(t)
		w := f.do(http.MethodPost, "/call", `{"to":"(555) 123-4567"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var res telephony.PlaceCallResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "ring-1", res.ProviderCallID)
		assert.Equal(t, "+15551234567", res.To)
		require.Len(t, f.calls.Records(), 1)
	})
}

func TestStatusAndDisconnect(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(t)

	w := f.do(http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":true`)

	w = f.do(http.MethodPost, "/disconnect", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/status", "")
	assert.Contains(t, w.Body.String(), `"connected":false`)
}

func TestSyncAndSummary(t *testing.T) {
	f := newAPIFixture(t)
	f.connect(t)

	w := f.do(http.MethodPost, "/sync", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"fetched":0`)

	w = f.do(http.MethodGet, "/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_calls":0`)

	w = f.do(http.MethodGet, "/summary?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
