package telephony

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crm-telephony/pkg/logger"
)

const (
	validationTokenHeader = "Validation-Token"
	maxWebhookBody        = 1 << 20
)

// WebhookHandler adapts the provider webhook to WebhookIngestor.
//
// No business logic here. The raw body is passed through unparsed because the
// signature covers the exact bytes.
type WebhookHandler struct {
	Ingestor *WebhookIngestor
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Ingestor == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook ingestor not configured"})
		return
	}

	// Subscription handshake: echo the token back, no body.
	if tok := c.GetHeader(validationTokenHeader); tok != "" {
		c.Header(validationTokenHeader, tok)
		c.Status(http.StatusOK)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		// Read failures are acknowledged like processing failures.
		log.Error("webhook body read failed", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	code := h.Ingestor.HandleWebhook(c.Request.Context(), raw, c.GetHeader(SignatureHeader))
	if code == http.StatusUnauthorized {
		c.AbortWithStatusJSON(code, gin.H{"error": "invalid signature"})
		return
	}
	c.JSON(code, gin.H{"received": true})
}
