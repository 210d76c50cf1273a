package subscription

import (
	"cmp"
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/delivery"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
	"github.com/BarkinBalci/event-sourcing-service/internal/signal"
)

// AsyncDeliverer queues a delivery without waiting for it
type AsyncDeliverer interface {
	DeliverAsync(req delivery.Request) bool
}

// Service handles subscription administration and fan-out of processed events
type Service struct {
	repository repository.SubscriptionRepository
	index      *Index
	deliverer  AsyncDeliverer
	emitter    signal.Emitter
	log        *zap.Logger
	now        func() time.Time
}

// NewService creates a subscription service with an empty index
func NewService(repo repository.SubscriptionRepository, deliverer AsyncDeliverer, emitter signal.Emitter, log *zap.Logger) *Service {
	return &Service{
		repository: repo,
		index:      NewIndex(),
		deliverer:  deliverer,
		emitter:    emitter,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// LoadIndex fills the index from the repository
func (s *Service) LoadIndex(ctx context.Context) error {
	subs, err := s.repository.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	s.index.Load(subs)
	s.log.Debug("Subscription index loaded", zap.Int("count", len(subs)))
	return nil
}

// RunRefresh reloads the index every interval until ctx is cancelled, picking up
// subscriptions created or toggled by other processes sharing the repository.
func (s *Service) RunRefresh(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperrors.Validation("subscription refresh interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("Subscription refresh started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Subscription refresh stopped")
			return nil
		case <-ticker.C:
			if err := s.LoadIndex(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("Failed to refresh subscription index", zap.Error(err))
			}
		}
	}
}

// Create validates and persists a subscription, then indexes it
func (s *Service) Create(ctx context.Context, req *dto.CreateSubscriptionRequest) (*domain.Subscription, error) {
	sub, err := s.build(req)
	if err != nil {
		return nil, err
	}

	if err := s.repository.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.index.Put(sub)

	s.emitter.Emit(ctx, signal.New(signal.TypeSubscriptionCreated, sub.ID, map[string]any{
		"event_types": sub.EventTypes,
		"target":      sub.Target,
	}))

	s.log.Info("Subscription created",
		zap.String("subscription_id", sub.ID),
		zap.Strings("event_types", sub.EventTypes),
		zap.String("target", sub.Target))

	return sub, nil
}

// Get returns one subscription
func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.repository.GetSubscription(ctx, id)
}

// List returns all subscriptions
func (s *Service) List(ctx context.Context) ([]*domain.Subscription, error) {
	return s.repository.ListSubscriptions(ctx)
}

// Enable turns a subscription on
func (s *Service) Enable(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.setEnabled(ctx, id, true)
}

// Disable turns a subscription off; it stops matching immediately
func (s *Service) Disable(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.setEnabled(ctx, id, false)
}

// Match returns the enabled subscriptions selecting the event, in creation order
func (s *Service) Match(event *domain.Event) []*domain.Subscription {
	candidates := s.index.Candidates(event.EventType)

	matched := make([]*domain.Subscription, 0, len(candidates))
	for _, sub := range candidates {
		if Matches(sub, event) {
			matched = append(matched, sub)
		}
	}
	slices.SortFunc(matched, func(a, b *domain.Subscription) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return matched
}

// HandleProcessed queues a delivery to every matching subscription.
// Each match is confirmed against the repository so a disable made elsewhere
// takes effect before the next index refresh.
func (s *Service) HandleProcessed(ctx context.Context, event *domain.Event) {
	for _, sub := range s.Match(event) {
		sub = s.confirm(ctx, sub)
		if !Matches(sub, event) {
			continue
		}
		accepted := s.deliverer.DeliverAsync(delivery.Request{
			Target:         sub.Target,
			SubscriptionID: sub.ID,
			Event:          event,
		})
		if accepted {
			s.log.Debug("Delivery queued",
				zap.String("event_id", event.EventID),
				zap.String("subscription_id", sub.ID))
		}
	}
}

// confirm returns the stored copy of sub, falling back to the indexed one when the read fails
func (s *Service) confirm(ctx context.Context, sub *domain.Subscription) *domain.Subscription {
	current, err := s.repository.GetSubscription(ctx, sub.ID)
	if err != nil {
		s.log.Warn("Failed to confirm subscription, using indexed copy",
			zap.String("subscription_id", sub.ID),
			zap.Error(err))
		return sub
	}
	if current.Enabled != sub.Enabled {
		s.index.Put(current)
	}
	return current
}

func (s *Service) setEnabled(ctx context.Context, id string, enabled bool) (*domain.Subscription, error) {
	sub, err := s.repository.SetSubscriptionEnabled(ctx, id, enabled, s.now())
	if err != nil {
		return nil, err
	}
	if !s.index.Put(sub) {
		s.log.Debug("Index already holds a newer copy", zap.String("subscription_id", id))
	}

	s.log.Info("Subscription updated",
		zap.String("subscription_id", id),
		zap.Bool("enabled", enabled))
	return sub, nil
}

func (s *Service) build(req *dto.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if req == nil {
		return nil, apperrors.Validation("request body is required")
	}

	eventTypes := make([]string, 0, len(req.EventTypes))
	for _, t := range req.EventTypes {
		if t = strings.TrimSpace(t); t != "" && !slices.Contains(eventTypes, t) {
			eventTypes = append(eventTypes, t)
		}
	}
	if len(eventTypes) == 0 {
		return nil, apperrors.Validation("event_types must contain at least one event type")
	}

	if err := validateTarget(req.Target); err != nil {
		return nil, err
	}

	sources := make([]domain.Source, 0, len(req.EventSources))
	for _, raw := range req.EventSources {
		source := domain.Source(strings.TrimSpace(raw))
		if !source.Valid() {
			return nil, apperrors.Validation("unknown event source %q", raw)
		}
		sources = append(sources, source)
	}

	categories := make([]domain.Category, 0, len(req.EventCategories))
	for _, raw := range req.EventCategories {
		category := domain.Category(strings.TrimSpace(raw))
		if !category.Valid() {
			return nil, apperrors.Validation("unknown event category %q", raw)
		}
		categories = append(categories, category)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperrors.Infrastructure("failed to generate subscription id", err)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := s.now()
	return &domain.Subscription{
		ID:              id.String(),
		Name:            strings.TrimSpace(req.Name),
		EventTypes:      eventTypes,
		EventSources:    sources,
		EventCategories: categories,
		Target:          strings.TrimSpace(req.Target),
		Enabled:         enabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func validateTarget(target string) error {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.Validation("target must be an absolute http(s) URL, got %q", target)
	}
	return nil
}
