package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/dto"
	"github.com/SscSPs/mma_recurring/internal/middleware"
)

// referenceHandler lets the owning application mirror accounts and categories into
// an embedded store.
type referenceHandler struct {
	referenceService portssvc.ReferenceSvc
}

// RegisterReferenceRoutes registers the account and category mirror routes.
func RegisterReferenceRoutes(rg *gin.RouterGroup, referenceService portssvc.ReferenceSvc) {
	h := &referenceHandler{referenceService: referenceService}

	refs := rg.Group("/references")
	{
		refs.PUT("/accounts/:id", h.upsertAccount)
		refs.PUT("/categories/:id", h.upsertCategory)
		refs.DELETE("/categories/:id", h.deleteCategory)
	}
}

// upsertAccount godoc
// @Summary Register or update an account
// @Description Marks the account as existing for materialization. isActive=false makes postings fail as if it were deleted.
// @Tags references
// @Accept  json
// @Param   id path string true "Account ID"
// @Param   account body dto.UpsertAccountRequest true "Account details"
// @Success 204
// @Failure 400 {object} map[string]string "Invalid input format"
// @Security BearerAuth
// @Router /references/accounts/{id} [put]
func (h *referenceHandler) upsertAccount(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("account_id", c.Param("id")))
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var req dto.UpsertAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := h.referenceService.UpsertAccount(c.Request.Context(), householdID, c.Param("id"), req); err != nil {
		respondError(c, logger, err, "Failed to register account")
		return
	}
	c.Status(http.StatusNoContent)
}

// upsertCategory godoc
// @Summary Register or update a category
// @Tags references
// @Accept  json
// @Param   id path string true "Category ID"
// @Param   category body dto.UpsertCategoryRequest true "Category details"
// @Success 204
// @Security BearerAuth
// @Router /references/categories/{id} [put]
func (h *referenceHandler) upsertCategory(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("category_id", c.Param("id")))
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var req dto.UpsertCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}
	if err := h.referenceService.UpsertCategory(c.Request.Context(), householdID, c.Param("id"), req); err != nil {
		respondError(c, logger, err, "Failed to register category")
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteCategory godoc
// @Summary Delete a category
// @Description Schedules still pointing at it fail to post until edited.
// @Tags references
// @Param   id path string true "Category ID"
// @Success 204
// @Failure 404 {object} map[string]string "Category not found"
// @Security BearerAuth
// @Router /references/categories/{id} [delete]
func (h *referenceHandler) deleteCategory(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("category_id", c.Param("id")))
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	err := h.referenceService.DeleteCategory(c.Request.Context(), householdID, c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	default:
		respondError(c, logger, err, "Failed to delete category")
	}
}
