package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
)

// createSubscription handles POST /subscriptions
// @Summary Register a subscription
// @Description Deliver processed events matching the filters to the target URL
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param subscription body dto.CreateSubscriptionRequest true "Subscription"
// @Success 201 {object} domain.Subscription
// @Failure 400 {object} dto.ErrorResponse
// @Router /subscriptions [post]
func (h *Handler) createSubscription(c *gin.Context) {
	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sub, err := h.services.Subscriptions.Create(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, err, "Failed to create subscription")
		return
	}

	c.JSON(http.StatusCreated, sub)
}

// listSubscriptions handles GET /subscriptions
// @Summary List subscriptions
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.SubscriptionListResponse
// @Router /subscriptions [get]
func (h *Handler) listSubscriptions(c *gin.Context) {
	subs, err := h.services.Subscriptions.List(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to list subscriptions")
		return
	}

	c.JSON(http.StatusOK, dto.SubscriptionListResponse{
		Items: subs,
		Total: len(subs),
	})
}

// getSubscription handles GET /subscriptions/:id
// @Summary Get a subscription
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription id"
// @Success 200 {object} domain.Subscription
// @Failure 404 {object} dto.ErrorResponse
// @Router /subscriptions/{id} [get]
func (h *Handler) getSubscription(c *gin.Context) {
	sub, err := h.services.Subscriptions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get subscription")
		return
	}

	c.JSON(http.StatusOK, sub)
}

// enableSubscription handles POST /subscriptions/:id/enable
// @Summary Enable a subscription
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription id"
// @Success 200 {object} domain.Subscription
// @Failure 404 {object} dto.ErrorResponse
// @Router /subscriptions/{id}/enable [post]
func (h *Handler) enableSubscription(c *gin.Context) {
	sub, err := h.services.Subscriptions.Enable(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to enable subscription")
		return
	}

	c.JSON(http.StatusOK, sub)
}

// disableSubscription handles POST /subscriptions/:id/disable
// @Summary Disable a subscription
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription id"
// @Success 200 {object} domain.Subscription
// @Failure 404 {object} dto.ErrorResponse
// @Router /subscriptions/{id}/disable [post]
func (h *Handler) disableSubscription(c *gin.Context) {
	sub, err := h.services.Subscriptions.Disable(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to disable subscription")
		return
	}

	c.JSON(http.StatusOK, sub)
}
