package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BarkinBalci/event-sourcing-service/internal/dto"
)

// createProjection handles POST /projections
// @Summary Build a projection
// @Description Fold an entity stream into a read model; an existing projection is returned caught up
// @Tags projections
// @Accept json
// @Produce json
// @Param projection body dto.CreateProjectionRequest true "Entity identity"
// @Success 201 {object} domain.Projection
// @Failure 400 {object} dto.ErrorResponse
// @Router /projections [post]
func (h *Handler) createProjection(c *gin.Context) {
	var req dto.CreateProjectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	projection, err := h.services.Projections.Create(c.Request.Context(), req.EntityType, req.EntityID)
	if err != nil {
		h.fail(c, err, "Failed to create projection")
		return
	}

	c.JSON(http.StatusCreated, projection)
}

// getProjection handles GET /projections/:id
// @Summary Get a projection
// @Tags projections
// @Produce json
// @Param id path string true "Projection id (entity_type:entity_id)"
// @Success 200 {object} domain.Projection
// @Failure 404 {object} dto.ErrorResponse
// @Router /projections/{id} [get]
func (h *Handler) getProjection(c *gin.Context) {
	projection, err := h.services.Projections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to get projection")
		return
	}

	c.JSON(http.StatusOK, projection)
}

// rebuildProjection handles POST /projections/:id/rebuild
// @Summary Rebuild a projection
// @Description Discard cached state and replay the stream from the beginning
// @Tags projections
// @Produce json
// @Param id path string true "Projection id (entity_type:entity_id)"
// @Success 200 {object} domain.Projection
// @Failure 404 {object} dto.ErrorResponse
// @Router /projections/{id}/rebuild [post]
func (h *Handler) rebuildProjection(c *gin.Context) {
	projection, err := h.services.Projections.Rebuild(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "Failed to rebuild projection")
		return
	}

	c.JSON(http.StatusOK, projection)
}
