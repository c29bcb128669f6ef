package ringcentral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		ServerURL:    srv.URL,
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "http://localhost/api/telephony/callback",
		Scopes:       []string{"ReadCallLog", "CallControl"},
		Timeout:      2 * time.Second,
	}, srv.Client())
	return c, srv
}

func tokenHandler(t *testing.T, wantGrant string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "expected basic auth")
		assert.Equal(t, "cid", user)
		assert.Equal(t, "csecret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, wantGrant, r.PostForm.Get("grant_type"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "bearer",
			"expires_in":    3600,
			"owner_id":      "acct-42",
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler())
	raw := c.AuthCodeURL("state-1")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+pathAuthorize, u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "cid", u.Query().Get("client_id"))
	assert.Equal(t, "ReadCallLog CallControl", u.Query().Get("scope"))
}

func TestExchangeCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathToken, tokenHandler(t, "authorization_code"))
	c, _ := newTestClient(t, mux)

	before := time.Now()
	ts, err := c.ExchangeCode(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "new-access", ts.AccessToken)
	assert.Equal(t, "new-refresh", ts.RefreshToken)
	assert.Equal(t, "acct-42", ts.OwnerID)
	assert.WithinDuration(t, before.Add(time.Hour), ts.Expiry, 5*time.Second)
}

func TestRefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathToken, tokenHandler(t, "refresh_token"))
	c, _ := newTestClient(t, mux)

	ts, err := c.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", ts.AccessToken)
	assert.Equal(t, "new-refresh", ts.RefreshToken)
}

func TestRefreshToken_RejectedReturnsAPIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathToken, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	c, _ := newTestClient(t, mux)

	_, err := c.RefreshToken(context.Background(), "revoked")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestRingOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathRingOut, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var body ringOutBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+15551234567", body.To.PhoneNumber)
		assert.Equal(t, "+15550000000", body.From.PhoneNumber)
		assert.True(t, body.PlayPrompt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ro-1","status":{"callStatus":"InProgress"}}`))
	})
	c, _ := newTestClient(t, mux)

	res, err := c.RingOut(context.Background(), "tok", RingOutRequest{From: "+15550000000", To: "+15551234567", PlayPrompt: true})
	require.NoError(t, err)
	assert.Equal(t, "ro-1", res.ID)
	assert.Equal(t, "InProgress", res.Status.CallStatus)
}

func TestRingOut_Unauthorized(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathRingOut, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.RingOut(context.Background(), "tok", RingOutRequest{From: "+1", To: "+2"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestRingOut_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(pathRingOut, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	c, _ := newTestClient(t, mux)
	c.timeout = 50 * time.Millisecond

	_, err := c.RingOut(context.Background(), "tok", RingOutRequest{From: "+1", To: "+2"})
	require.Error(t, err)
	assert.Equal(t, 0, StatusCode(err))
}

func TestCallLog_FollowsPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc(pathCallLog, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"records":[{"id":"c2","direction":"Outbound","result":"Missed","toNumber":"+15551112222"}],"navigation":{}}`))
			return
		}
		assert.Equal(t, "2026-01-01T00:00:00Z", r.URL.Query().Get("dateFrom"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{{
				"id":        "c1",
				"direction": "Inbound",
				"result":    "Call connected",
				"duration":  42,
				"from":      map[string]any{"phoneNumber": "+15559876543"},
				"recording": map[string]any{"contentUri": "https://media/rec1"},
			}},
			"navigation": map[string]any{"nextPage": map[string]any{"uri": srvURL + pathCallLog + "?page=2"}},
		})
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	recs, err := c.CallLog(context.Background(), "tok", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "+15559876543", recs[0].FromPhone())
	assert.Equal(t, "https://media/rec1", recs[0].RecordingURL())
	assert.Equal(t, 42, recs[0].Duration)
	assert.Equal(t, "+15551112222", recs[1].ToPhone())
}
