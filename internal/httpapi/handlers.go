package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-telephony/internal/audit"
	"crm-telephony/internal/auth"
	"crm-telephony/internal/reporting"
	"crm-telephony/internal/telephony"
	"crm-telephony/internal/validator"
	"crm-telephony/pkg/logger"
)

const defaultSummaryRange = 30 * 24 * time.Hour

// AuthURLer builds the provider consent URL.
type AuthURLer interface {
	AuthCodeURL(state string) string
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Tokens   *telephony.TokenManager
	Consent  AuthURLer
	States   telephony.StateStore
	Caller   *telephony.Caller
	Sync     *telephony.CallLogSync
	Reports  *reporting.Service
	AppURL   string
	StateTTL time.Duration
}

// --- OAuth ---

// StartAuth binds a fresh state to the caller and redirects to provider consent.
func (h Handlers) StartAuth(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ttl := h.StateTTL
	if ttl <= 0 {
		ttl = telephony.StateTTL
	}
	state := telephony.NewState()
	if err := h.States.Save(c.Request.Context(), state, userID, ttl); err != nil {
		logger.FromGin(c).Error("save oauth state failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Redirect(http.StatusFound, h.Consent.AuthCodeURL(state))
}

// Callback completes the consent round trip. The user is resolved from state,
// never from the session.
func (h Handlers) Callback(c *gin.Context) {
	log := logger.FromGin(c)
	if e := c.Query("error"); e != "" {
		log.Warn("provider returned oauth error", zap.String("error", e))
		h.redirectSettings(c, url.Values{"error": {e}})
		return
	}

	userID, err := h.States.Consume(c.Request.Context(), c.Query("state"))
	if err != nil {
		log.Warn("oauth state rejected", zap.Error(err))
		h.redirectSettings(c, url.Values{"error": {"invalid_state"}})
		return
	}
	code := c.Query("code")
	if code == "" {
		h.redirectSettings(c, url.Values{"error": {"missing_code"}})
		return
	}

	ctx := audit.WithClientIP(c.Request.Context(), c.ClientIP())
	if _, err := h.Tokens.Connect(ctx, userID, code); err != nil {
		log.Error("telephony connect failed", zap.String("user_id", userID), zap.Error(err))
		h.redirectSettings(c, url.Values{"error": {"connect_failed"}})
		return
	}
	h.redirectSettings(c, url.Values{"rc": {"connected"}})
}

func (h Handlers) redirectSettings(c *gin.Context, q url.Values) {
	c.Redirect(http.StatusFound, h.AppURL+"/settings?"+q.Encode())
}

// --- Connection ---

func (h Handlers) Status(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	st, err := h.Tokens.Status(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h Handlers) Disconnect(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := audit.WithClientIP(c.Request.Context(), c.ClientIP())
	if err := h.Tokens.Disconnect(ctx, userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connected": false})
}

// --- Calls ---

type placeCallRequest struct {
	To   string `json:"to" validate:"required"`
	From string `json:"from,omitempty"`
}

func (h Handlers) PlaceCall(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req placeCallRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Caller.PlaceCall(c.Request.Context(), telephony.PlaceCallRequest{UserID: userID, To: req.To, From: req.From})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type syncRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (h Handlers) SyncCallLog(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req syncRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.Sync.Sync(c.Request.Context(), userID, req.From, req.To)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CallsSummary reads RFC 3339 from/to query params; defaults to the last 30 days.
func (h Handlers) CallsSummary(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-defaultSummaryRange)
	var err error
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
			return
		}
	}
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
			return
		}
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		Range: reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func requireUser(c *gin.Context) (string, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", false
	}
	return userID, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return false
	}
	if err := validator.Validate(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// writeError maps telephony errors to HTTP responses. Token problems ask the
// client to reconnect rather than retry.
func writeError(c *gin.Context, err error) {
	var callErr *telephony.CallFailedError
	switch {
	case errors.Is(err, telephony.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, telephony.ErrNotConnected), errors.Is(err, telephony.ErrRefreshFailed):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "reconnect_required"})
	case errors.Is(err, telephony.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "provider_unauthorized"})
	case errors.As(err, &callErr):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "call_failed", "provider_status": callErr.StatusCode})
	default:
		logger.FromGin(c).Error("request failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
