package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/apperrors"
	"github.com/BarkinBalci/event-sourcing-service/internal/domain"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
	"github.com/BarkinBalci/event-sourcing-service/internal/metrics"
	"github.com/BarkinBalci/event-sourcing-service/internal/replay"
	"github.com/BarkinBalci/event-sourcing-service/internal/service"
)

// SubscriptionServicer defines the subscription administration operations
type SubscriptionServicer interface {
	Create(ctx context.Context, req *dto.CreateSubscriptionRequest) (*domain.Subscription, error)
	Get(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context) ([]*domain.Subscription, error)
	Enable(ctx context.Context, id string) (*domain.Subscription, error)
	Disable(ctx context.Context, id string) (*domain.Subscription, error)
}

// ProjectionServicer defines the projection administration operations
type ProjectionServicer interface {
	Create(ctx context.Context, entityType, entityID string) (*domain.Projection, error)
	Get(ctx context.Context, id string) (*domain.Projection, error)
	Rebuild(ctx context.Context, id string) (*domain.Projection, error)
}

// Replayer re-drives historical events
type Replayer interface {
	Replay(ctx context.Context, req replay.Request) (*replay.Result, error)
}

// RetryRunner resets failed events for another attempt
type RetryRunner interface {
	RetryFailed(ctx context.Context, maxRetries, batchSize int) (int, error)
}

// Services bundles the operations exposed over HTTP
type Services struct {
	Events        service.EventServicer
	Subscriptions SubscriptionServicer
	Projections   ProjectionServicer
	Replay        Replayer
	Retry         RetryRunner
}

type Handler struct {
	services Services
	metrics  *metrics.Metrics
	router   *gin.Engine
	log      *zap.Logger
}

func NewHandler(services Services, m *metrics.Metrics, log *zap.Logger) *Handler {
	h := &Handler{
		services: services,
		metrics:  m,
		router:   gin.New(),
		log:      log,
	}

	h.router.Use(gin.Recovery(), h.observe())
	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	h.router.POST("/events", h.ingestEvent)
	h.router.POST("/events/bulk", h.ingestEventsBulk)
	h.router.GET("/events", h.queryEvents)
	h.router.GET("/events/:id", h.getEvent)
	h.router.GET("/events/:id/results", h.getResults)
	h.router.GET("/streams/:stream_id", h.getStream)

	h.router.POST("/subscriptions", h.createSubscription)
	h.router.GET("/subscriptions", h.listSubscriptions)
	h.router.GET("/subscriptions/:id", h.getSubscription)
	h.router.POST("/subscriptions/:id/enable", h.enableSubscription)
	h.router.POST("/subscriptions/:id/disable", h.disableSubscription)

	h.router.POST("/projections", h.createProjection)
	h.router.GET("/projections/:id", h.getProjection)
	h.router.POST("/projections/:id/rebuild", h.rebuildProjection)

	h.router.POST("/replay", h.replay)
	h.router.POST("/admin/retry", h.retryFailed)
}

// observe records request counts and latency, and logs each request
func (h *Handler) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		h.metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		h.metrics.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(elapsed.Seconds())

		if route != "/metrics" && route != "/health" {
			h.log.Debug("Request served",
				zap.String("method", c.Request.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("duration", elapsed))
		}
	}
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service is running and the event store is reachable
// @Tags health
// @Produce json
// @Success 200 {object} dto.HealthResponse
// @Failure 503 {object} dto.HealthResponse
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.services.Events.Ping(ctx); err != nil {
		h.log.Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{
			Status:  "unhealthy",
			Storage: "unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:  "healthy",
		Storage: "ok",
	})
}

// badRequest answers a binding failure
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.log.Warn("Invalid request",
		zap.String("route", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   string(apperrors.CodeValidation),
		Message: err.Error(),
	})
}

// fail maps a service error to its HTTP status and error body
func (h *Handler) fail(c *gin.Context, err error, msg string) {
	code := apperrors.CodeOf(err)
	status := apperrors.HTTPStatus(code)

	message := err.Error()
	var appErr *apperrors.Error
	if status >= http.StatusInternalServerError {
		h.log.Error(msg, zap.String("route", c.FullPath()), zap.Error(err))
		if errors.As(err, &appErr) {
			message = appErr.Message
		} else {
			message = "internal error"
		}
	} else {
		h.log.Info(msg, zap.String("route", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, dto.ErrorResponse{
		Error:   string(code),
		Message: message,
	})
}
