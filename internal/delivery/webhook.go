// Package delivery posts events to subscriber endpoints.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
)

// Request is one delivery of an event to a target
type Request struct {
	Target         string
	SubscriptionID string
	Event          *domain.Event
	Replay         bool
}

// Deliverer sends an event to a target synchronously
type Deliverer interface {
	Deliver(ctx context.Context, req Request) error
}

// Body is the JSON document posted to webhook targets
type Body struct {
	SubscriptionID string        `json:"subscription_id,omitempty"`
	Replay         bool          `json:"replay"`
	DeliveredAt    time.Time     `json:"delivered_at"`
	Event          *domain.Event `json:"event"`
}

// StatusError is returned for non-2xx webhook responses
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// WebhookConfig configures the webhook deliverer
type WebhookConfig struct {
	Timeout   time.Duration
	RateLimit float64
	RateBurst int
}

// WebhookDeliverer posts events as JSON over HTTP
type WebhookDeliverer struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	policy  RetryPolicy
	metrics *metrics.Metrics
	log     *zap.Logger
}

var _ Deliverer = (*WebhookDeliverer)(nil)

// NewWebhookDeliverer creates a deliverer; a nil client uses a fresh http.Client
func NewWebhookDeliverer(config WebhookConfig, client *http.Client, policy RetryPolicy, m *metrics.Metrics, log *zap.Logger) *WebhookDeliverer {
	if client == nil {
		client = &http.Client{}
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}
	if policy == nil {
		policy = NoRetry{}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), burst)
	}

	return &WebhookDeliverer{
		client:  client,
		limiter: limiter,
		timeout: config.Timeout,
		policy:  policy,
		metrics: m,
		log:     log,
	}
}

// Deliver posts the event, retrying as the policy allows. Every attempt has its own timeout.
func (w *WebhookDeliverer) Deliver(ctx context.Context, req Request) error {
	if req.Event == nil {
		return apperrors.Validation("delivery requires an event")
	}

	start := time.Now()
	defer func() {
		w.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(Body{
		SubscriptionID: req.SubscriptionID,
		Replay:         req.Replay,
		DeliveredAt:    time.Now().UTC(),
		Event:          req.Event,
	})
	if err != nil {
		w.metrics.Deliveries.WithLabelValues("failure").Inc()
		return apperrors.Delivery("failed to marshal delivery body", err)
	}

	for attempt := 1; ; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			w.metrics.Deliveries.WithLabelValues("failure").Inc()
			return apperrors.Delivery("delivery rate limiter", err)
		}

		err = w.post(ctx, req, body, attempt)
		if err == nil {
			w.metrics.Deliveries.WithLabelValues("success").Inc()
			return nil
		}

		delay, retry := w.policy.Next(attempt, err)
		if !retry {
			break
		}

		w.log.Debug("Retrying webhook delivery",
			zap.String("event_id", req.Event.EventID),
			zap.String("target", req.Target),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.metrics.Deliveries.WithLabelValues("failure").Inc()
			return apperrors.Delivery("delivery cancelled", ctx.Err())
		case <-timer.C:
		}
	}

	w.metrics.Deliveries.WithLabelValues("failure").Inc()
	return apperrors.Delivery(fmt.Sprintf("failed to deliver event %s to %s", req.Event.EventID, req.Target), err)
}

func (w *WebhookDeliverer) post(ctx context.Context, req Request, body []byte, attempt int) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Event-ID", req.Event.EventID)
	httpReq.Header.Set("X-Event-Type", req.Event.EventType)
	httpReq.Header.Set("X-Delivery-Attempt", strconv.Itoa(attempt))
	if req.SubscriptionID != "" {
		httpReq.Header.Set("X-Subscription-ID", req.SubscriptionID)
	}
	if req.Replay {
		httpReq.Header.Set("X-Replay", "true")
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
