package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/mma_recurring/internal/apperrors"
)

// respondError maps service errors onto HTTP statuses and writes the body.
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		logger.Warn("Validation error", slog.String("field", verr.Field), slog.String("error", verr.Message))
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, apperrors.ErrValidation):
		logger.Warn("Validation error", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		logger.Warn("Schedule not found", slog.String("error", err.Error()))
		c.JSON(http.StatusNotFound, gin.H{"error": "Schedule not found"})
	case errors.Is(err, apperrors.ErrInvalidTransition), errors.Is(err, apperrors.ErrDuplicate):
		logger.Warn("Conflicting state change", slog.String("error", err.Error()))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrDependency):
		logger.Warn("Missing dependency", slog.String("error", err.Error()))
		c.JSON(http.StatusFailedDependency, gin.H{"error": err.Error()})
	default:
		logger.Error(fallback, slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
