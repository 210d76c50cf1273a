package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
)

// ingestEvent handles POST /events
// @Summary Ingest a single event
// @Description Validate, normalize and append one event, then queue it for processing
// @Tags events
// @Accept json
// @Produce json
// @Param event body dto.IngestEventRequest true "Event data"
// @Success 202 {object} dto.IngestEventResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events [post]
func (h *Handler) ingestEvent(c *gin.Context) {
	var req dto.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	eventID, err := h.services.Events.Ingest(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "Failed to ingest event")
		return
	}

	c.JSON(http.StatusAccepted, dto.IngestEventResponse{
		EventID: eventID,
		Status:  "accepted",
	})
}

// ingestEventsBulk handles POST /events/bulk
// @Summary Ingest multiple events
// @Description Ingest events one by one; invalid items are reported without failing the rest
// @Tags events
// @Accept json
// @Produce json
// @Param events body dto.IngestBulkRequest true "Bulk events data"
// @Success 202 {object} dto.IngestBulkResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /events/bulk [post]
func (h *Handler) ingestEventsBulk(c *gin.Context) {
	var req dto.IngestBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	eventIDs, errs := h.services.Events.IngestBulk(c.Request.Context(), req.Events)

	h.log.Info("Bulk events processed",
		zap.Int("accepted", len(eventIDs)),
		zap.Int("rejected", len(errs)),
		zap.Int("total", len(req.Events)))

	c.JSON(http.StatusAccepted, dto.IngestBulkResponse{
		Accepted: len(eventIDs),
		Rejected: len(errs),
		EventIDs: eventIDs,
		Errors:   errs,
	})
}

// queryEvents handles GET /events
// @Summary Query events
// @Description Filter events; results are newest first
// @Tags events
// @Produce json
// @Param user_id query string false "User id"
// @Param entity_type query string false "Entity type"
// @Param entity_id query string false "Entity id"
// @Param event_type query string false "Event type"
// @Param event_source query string false "Event source"
// @Param event_category query string false "Event category"
// @Param status query string false "Processing status"
// @Param correlation_id query string false "Correlation id"
// @Param start_time query string false "RFC3339 lower bound"
// @Param end_time query string false "RFC3339 upper bound"
// @Param limit query int false "Page size (1-1000)" default(100)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} dto.QueryEventsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /events [get]
func (h *Handler) queryEvents(c *gin.Context) {
	var req dto.QueryEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.services.Events.QueryEvents(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "Failed to query events")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getEvent handles GET /events/:id
// @Summary Get an event
// @Tags events
// @Produce json
// @Param id path string true "Event id"
// @Success 200 {object} domain.Event
// @Failure 404 {object} dto.ErrorResponse
// @Router /events/{id} [get]
func (h *Handler) getEvent(c *gin.Context) {
	event, err := h.services.Events.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get event")
		return
	}

	c.JSON(http.StatusOK, event)
}

// getResults handles GET /events/:id/results
// @Summary Get processing results
// @Description List every processor outcome recorded for an event
// @Tags events
// @Produce json
// @Param id path string true "Event id"
// @Success 200 {object} dto.ResultsResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /events/{id}/results [get]
func (h *Handler) getResults(c *gin.Context) {
	eventID := c.Param("id")
	results, err := h.services.Events.GetResults(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "Failed to get processing results")
		return
	}

	c.JSON(http.StatusOK, dto.ResultsResponse{
		EventID: eventID,
		Results: results,
	})
}

// getStream handles GET /streams/:stream_id
// @Summary Read a stream
// @Description Events of one entity in append order, after from_version
// @Tags streams
// @Produce json
// @Param stream_id path string true "Stream id (entity_type:entity_id)"
// @Param from_version query int false "Exclusive lower version bound" default(0)
// @Success 200 {object} domain.Stream
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /streams/{stream_id} [get]
func (h *Handler) getStream(c *gin.Context) {
	var req dto.GetStreamRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	stream, err := h.services.Events.GetStream(c.Request.Context(), c.Param("stream_id"), req.FromVersion)
	if err != nil {
		h.fail(c, err, "Failed to read stream")
		return
	}

	c.JSON(http.StatusOK, stream)
}
