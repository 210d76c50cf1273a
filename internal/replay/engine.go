// Package replay re-drives historical events through the delivery path.
package replay

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/delivery"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
)

// Selector picks the events to replay. Exactly one of the three forms may be set.
type Selector struct {
	EventIDs []string
	StreamID string
	From     *time.Time
	To       *time.Time
}

// Request describes one replay run
type Request struct {
	Selector Selector
	// Target overrides subscription matching when set
	Target string
	DryRun bool
}

// Result reports what a replay selected and how delivery went
type Result struct {
	DryRun   bool     `json:"dry_run"`
	Count    int      `json:"count"`
	EventIDs []string `json:"event_ids,omitempty"`
	Replayed int      `json:"replayed"`
	Failed   int      `json:"failed"`
	Missing  []string `json:"missing,omitempty"`
}

// Matcher returns the subscriptions currently selecting an event
type Matcher interface {
	Match(event *domain.Event) []*domain.Subscription
}

// Engine resolves selectors against the store and delivers the selected events in order
type Engine struct {
	events    repository.EventRepository
	matcher   Matcher
	deliverer delivery.Deliverer
	emitter   signal.Emitter
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewEngine creates a replay engine
func NewEngine(events repository.EventRepository, matcher Matcher, deliverer delivery.Deliverer, emitter signal.Emitter, m *metrics.Metrics, log *zap.Logger) *Engine {
	return &Engine{
		events:    events,
		matcher:   matcher,
		deliverer: deliverer,
		emitter:   emitter,
		metrics:   m,
		log:       log,
	}
}

// Replay selects events and, unless DryRun is set, delivers them.
// A dry run has no side effects.
func (e *Engine) Replay(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	events, missing, err := e.selectEvents(ctx, req.Selector)
	if err != nil {
		return nil, err
	}

	result := &Result{
		DryRun:   req.DryRun,
		Count:    len(events),
		EventIDs: make([]string, 0, len(events)),
		Missing:  missing,
	}
	for _, event := range events {
		result.EventIDs = append(result.EventIDs, event.EventID)
	}

	if req.DryRun {
		e.log.Info("Replay dry run",
			zap.Int("count", result.Count),
			zap.Int("missing", len(missing)))
		return result, nil
	}

	e.emitter.Emit(ctx, signal.New(signal.TypeReplayStarted, describe(req.Selector), map[string]any{
		"count":  result.Count,
		"target": req.Target,
	}))

	for _, event := range events {
		if e.deliver(ctx, req.Target, event) {
			result.Replayed++
			e.metrics.ReplayedEvents.WithLabelValues("replayed").Inc()
		} else {
			result.Failed++
			e.metrics.ReplayedEvents.WithLabelValues("failed").Inc()
		}
	}

	e.log.Info("Replay finished",
		zap.Int("count", result.Count),
		zap.Int("replayed", result.Replayed),
		zap.Int("failed", result.Failed))

	return result, nil
}

// deliver sends one event to the explicit target or to every matching subscription
func (e *Engine) deliver(ctx context.Context, target string, event *domain.Event) bool {
	if target != "" {
		return e.send(ctx, delivery.Request{Target: target, Event: event, Replay: true})
	}

	ok := true
	for _, sub := range e.matcher.Match(event) {
		req := delivery.Request{Target: sub.Target, SubscriptionID: sub.ID, Event: event, Replay: true}
		if !e.send(ctx, req) {
			ok = false
		}
	}
	return ok
}

func (e *Engine) send(ctx context.Context, req delivery.Request) bool {
	if err := e.deliverer.Deliver(ctx, req); err != nil {
		e.log.Warn("Replay delivery failed",
			zap.String("event_id", req.Event.EventID),
			zap.String("target", req.Target),
			zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) selectEvents(ctx context.Context, sel Selector) ([]*domain.Event, []string, error) {
	switch {
	case len(sel.EventIDs) > 0:
		events := make([]*domain.Event, 0, len(sel.EventIDs))
		var missing []string
		for _, id := range sel.EventIDs {
			event, err := e.events.Get(ctx, id)
			if errors.Is(err, apperrors.ErrNotFound) {
				missing = append(missing, id)
				continue
			}
			if err != nil {
				return nil, nil, err
			}
			events = append(events, event)
		}
		return events, missing, nil

	case sel.StreamID != "":
		stream, err := e.events.GetStream(ctx, domain.StreamID(sel.StreamID), 0)
		if err != nil {
			return nil, nil, err
		}
		return stream.Events, nil, nil

	default:
		events, err := e.events.ListByTimeRange(ctx, *sel.From, *sel.To)
		if err != nil {
			return nil, nil, err
		}
		return events, nil, nil
	}
}

func validate(req Request) error {
	sel := req.Selector
	kinds := 0
	if len(sel.EventIDs) > 0 {
		kinds++
	}
	if strings.TrimSpace(sel.StreamID) != "" {
		kinds++
	}
	if sel.From != nil || sel.To != nil {
		kinds++
		if sel.From == nil || sel.To == nil {
			return apperrors.Validation("time range replay needs both from and to")
		}
		if sel.From.After(*sel.To) {
			return apperrors.Validation("from must not be after to")
		}
	}
	if kinds != 1 {
		return apperrors.Validation("exactly one of event_ids, stream_id or from/to must be set")
	}

	if req.Target != "" {
		u, err := url.Parse(req.Target)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.Validation("target must be an absolute http(s) URL, got %q", req.Target)
		}
	}
	return nil
}

func describe(sel Selector) string {
	switch {
	case len(sel.EventIDs) > 0:
		return "event_ids"
	case sel.StreamID != "":
		return sel.StreamID
	default:
		return sel.From.UTC().Format(time.RFC3339) + "/" + sel.To.UTC().Format(time.RFC3339)
	}
}
