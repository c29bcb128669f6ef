package telephony

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"crm-telephony/internal/observer"
	"crm-telephony/internal/ringcentral"
	"crm-telephony/pkg/logger"
)

const SignatureHeader = "X-RingCentral-Signature"

// EventKind is the parsed type of a webhook envelope.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventCallLog
)

var callLogEventRe = regexp.MustCompile(`^/restapi/v1\.0/account/[^/?]+/extension/[^/?]+/call-log(?:[?].*)?$`)

// ClassifyEvent maps an event filter path to its kind.
func ClassifyEvent(event string) EventKind {
	if callLogEventRe.MatchString(strings.TrimSpace(event)) {
		return EventCallLog
	}
	return EventUnknown
}

type envelope struct {
	UUID           string          `json:"uuid"`
	Event          string          `json:"event"`
	SubscriptionID string          `json:"subscriptionId"`
	Body           json.RawMessage `json:"body"`
}

type callLogBody struct {
	Records []json.RawMessage `json:"records"`
}

// Event is a parsed webhook delivery. Records is only set for EventCallLog;
// entries that failed to decode are reported in Invalid.
type Event struct {
	Kind    EventKind
	Name    string
	Records []ringcentral.CallLogRecord
	Invalid int
}

// ParseEvent decodes the envelope and, for call-log events, each record.
// A record that does not decode is counted and skipped.
func ParseEvent(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	ev := Event{Kind: ClassifyEvent(env.Event), Name: env.Event}
	if ev.Kind != EventCallLog {
		return ev, nil
	}
	var body callLogBody
	if len(env.Body) == 0 {
		return ev, nil
	}
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return Event{}, fmt.Errorf("decode call-log body: %w", err)
	}
	for _, r := range body.Records {
		var rec ringcentral.CallLogRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			ev.Invalid++
			continue
		}
		ev.Records = append(ev.Records, rec)
	}
	return ev, nil
}

// VerifySignature checks a hex HMAC-SHA256 of raw keyed by secret in constant time.
func VerifySignature(raw []byte, signature, secret string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hmac.Equal(got, mac.Sum(nil))
}

// Sign returns the hex HMAC-SHA256 of raw. Useful for tests and tooling.
func Sign(raw []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(raw)
	return hex.EncodeToString(mac.Sum(nil))
}

type WebhookConfig struct {
	Secret string
	// AllowUnsigned skips verification when Secret is empty. Never set in production.
	AllowUnsigned bool
	Region        string
}

// WebhookIngestor verifies and processes provider notifications.
type WebhookIngestor struct {
	cfg      WebhookConfig
	pipeline recordPipeline
}

func NewWebhookIngestor(cfg WebhookConfig, matcher Matcher, reconciler Reconciler) *WebhookIngestor {
	return &WebhookIngestor{
		cfg:      cfg,
		pipeline: recordPipeline{matcher: matcher, reconciler: reconciler, region: cfg.Region},
	}
}

// HandleWebhook returns 401 when the signature check fails and 200 otherwise.
// Processing failures after verification are logged, never surfaced.
func (w *WebhookIngestor) HandleWebhook(ctx context.Context, raw []byte, signature string) int {
	log := logger.From(ctx)

	if err := w.verify(ctx, raw, signature); err != nil {
		observer.Inc(observer.WebhookDeliveriesTotal, "rejected")
		log.Warn("webhook rejected", zap.Error(err))
		return http.StatusUnauthorized
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				observer.Inc(observer.WebhookDeliveriesTotal, "failed")
				log.Error("webhook processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		w.process(ctx, raw)
	}()
	return http.StatusOK
}

func (w *WebhookIngestor) verify(ctx context.Context, raw []byte, signature string) error {
	if w.cfg.Secret == "" {
		if w.cfg.AllowUnsigned {
			logger.From(ctx).Warn("webhook secret not configured, skipping signature verification")
			return nil
		}
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}
	if !VerifySignature(raw, signature, w.cfg.Secret) {
		return ErrInvalidSignature
	}
	return nil
}

func (w *WebhookIngestor) process(ctx context.Context, raw []byte) {
	log := logger.From(ctx)

	ev, err := ParseEvent(raw)
	if err != nil {
		observer.Inc(observer.WebhookDeliveriesTotal, "failed")
		log.Error("webhook payload invalid", zap.Error(err))
		return
	}
	if ev.Kind != EventCallLog {
		observer.Inc(observer.WebhookDeliveriesTotal, "ignored")
		log.Info("webhook event ignored", zap.String("event", ev.Name))
		return
	}
	for i := 0; i < ev.Invalid; i++ {
		observer.Inc(observer.WebhookRecordsTotal, "skipped")
	}
	if ev.Invalid > 0 {
		log.Warn("webhook records skipped", zap.Int("count", ev.Invalid))
	}

	for _, rec := range ev.Records {
		out, err := w.pipeline.process(ctx, rec)
		if errors.Is(err, errInvalidRecord) {
			observer.Inc(observer.WebhookRecordsTotal, "skipped")
			log.Warn("webhook record skipped", zap.String("provider_call_id", rec.ID), zap.Error(err))
			continue
		}
		if err != nil {
			observer.Inc(observer.WebhookRecordsTotal, "failed")
			log.Error("webhook record not reconciled", zap.String("provider_call_id", rec.ID), zap.Error(err))
			continue
		}
		observer.Inc(observer.WebhookRecordsTotal, "reconciled")
		log.Debug("webhook record reconciled",
			zap.String("provider_call_id", out.ProviderCallID),
			zap.String("status", string(out.Status)),
		)
	}
	observer.Inc(observer.WebhookDeliveriesTotal, "processed")
}
