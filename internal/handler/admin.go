package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BarkinBalci/event-sourcing-service/internal/consumer"
	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
	"github.com/BarkinBalci/event-sourcing-service/internal/replay"
	"github.com/BarkinBalci/event-sourcing-service/internal/repository"
)

// replay handles POST /replay
// @Summary Replay events
// @Description Select events by id list, stream or time range and deliver them again; dry_run only reports the selection
// @Tags replay
// @Accept json
// @Produce json
// @Param replay body dto.ReplayRequest true "Replay selection"
// @Success 200 {object} dto.ReplayResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /replay [post]
func (h *Handler) replay(c *gin.Context) {
	var req dto.ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.services.Replay.Replay(c.Request.Context(), replay.Request{
		Selector: replay.Selector{
			EventIDs: req.EventIDs,
			StreamID: req.StreamID,
			From:     req.From,
			To:       req.To,
		},
		Target: req.Target,
		DryRun: req.DryRun,
	})
	if err != nil {
		h.fail(c, err, "Failed to replay events")
		return
	}

	c.JSON(http.StatusOK, dto.ReplayResponse{
		DryRun:   result.DryRun,
		Count:    result.Count,
		EventIDs: result.EventIDs,
		Replayed: result.Replayed,
		Failed:   result.Failed,
		Missing:  result.Missing,
	})
}

// retryFailed handles POST /admin/retry
// @Summary Retry failed events
// @Description Move failed events below the retry bound back to pending and queue them
// @Tags admin
// @Accept json
// @Produce json
// @Param retry body dto.RetryRequest false "Retry bounds"
// @Success 200 {object} dto.RetryResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /admin/retry [post]
func (h *Handler) retryFailed(c *gin.Context) {
	var req dto.RetryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	maxRetries := consumer.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	batchSize := repository.DefaultLimit
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}

	retried, err := h.services.Retry.RetryFailed(c.Request.Context(), maxRetries, batchSize)
	if err != nil {
		h.fail(c, err, "Failed to retry events")
		return
	}

	c.JSON(http.StatusOK, dto.RetryResponse{Retried: retried})
}
