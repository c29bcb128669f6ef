package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crm-telephony/internal/auth"
	"crm-telephony/internal/httpapi"
	"crm-telephony/internal/rbac"
	"crm-telephony/internal/telephony"
	"crm-telephony/pkg/logger"
)

type routeDeps struct {
	auth       *auth.Manager
	cookieName string
	metrics    bool
	health     func(ctx context.Context) error
	webhook    telephony.WebhookHandler
	api        httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.GET("/healthz", func(c *gin.Context) {
		if d.health != nil {
			if err := d.health(c.Request.Context()); err != nil {
				logger.FromGin(c).Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Provider webhooks are public; the ingestor checks the HMAC signature.
	r.POST("/webhooks/ringcentral", d.webhook.Handle)

	tel := r.Group("/api/telephony")
	// The consent redirect lands here without a session; state identifies the user.
	tel.GET("/callback", d.api.Callback)

	authed := tel.Group("")
	authed.Use(auth.RequireSession(d.auth, d.cookieName))
	{
		authed.GET("/auth", d.api.StartAuth)
		authed.GET("/status", d.api.Status)
		authed.POST("/call", d.api.PlaceCall)
		authed.POST("/disconnect", d.api.Disconnect)
		authed.POST("/sync", d.api.SyncCallLog)
		authed.GET("/calls/summary", rbac.RequireAnyRole(rbac.RoleManager), d.api.CallsSummary)
	}
}
