package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/dto"
	"github.com/SscSPs/mma_recurring/internal/middleware"
)

// scheduleHandler handles HTTP requests related to recurring schedules.
type scheduleHandler struct {
	scheduleService portssvc.ScheduleSvcFacade
}

// newScheduleHandler creates a new scheduleHandler.
func newScheduleHandler(ss portssvc.ScheduleSvcFacade) *scheduleHandler {
	return &scheduleHandler{
		scheduleService: ss,
	}
}

// RegisterScheduleRoutes registers routes related to recurring schedules.
func RegisterScheduleRoutes(rg *gin.RouterGroup, scheduleService portssvc.ScheduleSvcFacade) {
	h := newScheduleHandler(scheduleService)

	schedules := rg.Group("/schedules")
	{
		schedules.POST("", h.createSchedule)
		schedules.GET("", h.listSchedules)
		schedules.GET("/:id", h.getSchedule)
		schedules.PATCH("/:id", h.updateSchedule)
		schedules.DELETE("/:id", h.deleteSchedule)
		schedules.PUT("/:id/active", h.setActive)
		schedules.POST("/:id/skip", h.skipOccurrence)
		schedules.POST("/:id/materialize", h.materializeNow)
		schedules.GET("/:id/preview", h.previewOccurrences)
		schedules.GET("/:id/occurrences", h.listOccurrences)
	}
}

// identity pulls the caller's user and household ids, writing 401 when missing.
func identity(c *gin.Context, logger *slog.Logger) (userID, householdID string, ok bool) {
	userID, okUser := middleware.GetUserIDFromContext(c)
	householdID, okHousehold := middleware.GetHouseholdIDFromContext(c)
	if !okUser || !okHousehold {
		logger.Error("User or household ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", "", false
	}
	return userID, householdID, true
}

// createSchedule godoc
// @Summary Create a recurring schedule
// @Description Creates a schedule positioned on its first occurrence
// @Tags schedules
// @Accept  json
// @Produce  json
// @Param   schedule body dto.CreateScheduleRequest true "Schedule details"
// @Success 201 {object} dto.ScheduleResponse
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Failed to create schedule"
// @Security BearerAuth
// @Router /schedules [post]
func (h *scheduleHandler) createSchedule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	userID, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var req dto.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for CreateSchedule", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	schedule, err := h.scheduleService.CreateSchedule(c.Request.Context(), householdID, req, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to create schedule")
		return
	}

	c.JSON(http.StatusCreated, dto.ToScheduleResponse(schedule))
}

// listSchedules godoc
// @Summary List schedules
// @Description Lists the household's schedules in creation order
// @Tags schedules
// @Produce  json
// @Param   limit query int false "Page size (1-100)"
// @Param   nextToken query string false "Token from the previous page"
// @Param   status query string false "ACTIVE, PAUSED or COMPLETED"
// @Success 200 {object} dto.ListSchedulesResponse
// @Failure 400 {object} map[string]string "Invalid query parameters"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Security BearerAuth
// @Router /schedules [get]
func (h *scheduleHandler) listSchedules(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var params dto.ListSchedulesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Invalid list parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	res, err := h.scheduleService.ListSchedules(c.Request.Context(), householdID, params)
	if err != nil {
		respondError(c, logger, err, "Failed to list schedules")
		return
	}
	c.JSON(http.StatusOK, res)
}

// getSchedule godoc
// @Summary Get a schedule
// @Tags schedules
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 404 {object} map[string]string "Schedule not found"
// @Security BearerAuth
// @Router /schedules/{id} [get]
func (h *scheduleHandler) getSchedule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	schedule, err := h.scheduleService.GetSchedule(c.Request.Context(), householdID, c.Param("id"))
	if err != nil {
		respondError(c, logger, err, "Failed to retrieve schedule")
		return
	}
	c.JSON(http.StatusOK, dto.ToScheduleResponse(schedule))
}

// updateSchedule godoc
// @Summary Update a schedule
// @Description Partial update. Changing recurrence fields recomputes the next occurrence.
// @Tags schedules
// @Accept  json
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Param   schedule body dto.UpdateScheduleRequest true "Fields to change"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 400 {object} map[string]string "Invalid input format or validation error"
// @Failure 404 {object} map[string]string "Schedule not found"
// @Security BearerAuth
// @Router /schedules/{id} [patch]
func (h *scheduleHandler) updateSchedule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	userID, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var req dto.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Failed to bind JSON for UpdateSchedule", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	schedule, err := h.scheduleService.UpdateSchedule(c.Request.Context(), householdID, c.Param("id"), req, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to update schedule")
		return
	}
	c.JSON(http.StatusOK, dto.ToScheduleResponse(schedule))
}

// deleteSchedule godoc
// @Summary Delete a schedule
// @Description Removes the schedule. Transactions it already posted are kept.
// @Tags schedules
// @Param   id path string true "Schedule ID"
// @Success 204
// @Failure 404 {object} map[string]string "Schedule not found"
// @Security BearerAuth
// @Router /schedules/{id} [delete]
func (h *scheduleHandler) deleteSchedule(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	userID, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	if err := h.scheduleService.DeleteSchedule(c.Request.Context(), householdID, c.Param("id"), userID); err != nil {
		respondError(c, logger, err, "Failed to delete schedule")
		return
	}
	c.Status(http.StatusNoContent)
}

// setActive godoc
// @Summary Pause or resume a schedule
// @Tags schedules
// @Accept  json
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Param   body body dto.SetActiveRequest true "Desired state"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 409 {object} map[string]string "Schedule is completed"
// @Security BearerAuth
// @Router /schedules/{id}/active [put]
func (h *scheduleHandler) setActive(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	userID, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	schedule, err := h.scheduleService.SetActive(c.Request.Context(), householdID, c.Param("id"), *req.IsActive, userID)
	if err != nil {
		respondError(c, logger, err, "Failed to change schedule state")
		return
	}
	c.JSON(http.StatusOK, dto.ToScheduleResponse(schedule))
}

// skipOccurrence godoc
// @Summary Skip the pending occurrence
// @Tags schedules
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 409 {object} map[string]string "Schedule is completed"
// @Security BearerAuth
// @Router /schedules/{id}/skip [post]
func (h *scheduleHandler) skipOccurrence(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	userID, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	schedule, err := h.scheduleService.SkipOccurrence(c.Request.Context(), householdID, c.Param("id"), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to skip occurrence")
		return
	}
	c.JSON(http.StatusOK, dto.ToScheduleResponse(schedule))
}

// materializeNow godoc
// @Summary Confirm a manual schedule's pending occurrence
// @Description Posts the pending occurrence of a schedule created with autoCreate=false
// @Tags schedules
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Success 200 {object} dto.MaterializeResponse
// @Failure 409 {object} map[string]string "Schedule is posted automatically"
// @Failure 424 {object} map[string]string "Account or category no longer exists"
// @Security BearerAuth
// @Router /schedules/{id}/materialize [post]
func (h *scheduleHandler) materializeNow(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	userID, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	res, err := h.scheduleService.MaterializeNow(c.Request.Context(), householdID, c.Param("id"), userID)
	if err != nil {
		respondError(c, logger, err, "Failed to materialize schedule")
		return
	}

	out := dto.MaterializeResponse{
		Outcome:  string(res.Outcome),
		Schedule: dto.ToScheduleResponse(&res.Schedule),
	}
	if res.Transaction != nil {
		out.TransactionID = &res.Transaction.TransactionID
	}
	c.JSON(http.StatusOK, out)
}

// previewOccurrences godoc
// @Summary Preview upcoming occurrences
// @Tags schedules
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Param   count query int false "How many dates (1-60, default 5)"
// @Success 200 {object} dto.PreviewResponse
// @Security BearerAuth
// @Router /schedules/{id}/preview [get]
func (h *scheduleHandler) previewOccurrences(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var params dto.PreviewParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	dates, err := h.scheduleService.PreviewOccurrences(c.Request.Context(), householdID, c.Param("id"), params.Count)
	if err != nil {
		respondError(c, logger, err, "Failed to preview occurrences")
		return
	}
	c.JSON(http.StatusOK, dto.PreviewResponse{ScheduleID: c.Param("id"), Occurrences: dates})
}

// listOccurrences godoc
// @Summary List posted occurrences
// @Tags schedules
// @Produce  json
// @Param   id path string true "Schedule ID"
// @Param   limit query int false "Maximum entries, newest first"
// @Success 200 {array} dto.OccurrenceResponse
// @Security BearerAuth
// @Router /schedules/{id}/occurrences [get]
func (h *scheduleHandler) listOccurrences(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context()).With(slog.String("schedule_id", c.Param("id")))
	_, householdID, ok := identity(c, logger)
	if !ok {
		return
	}

	var params dto.ListOccurrencesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}

	occ, err := h.scheduleService.ListOccurrences(c.Request.Context(), householdID, c.Param("id"), params.Limit)
	if err != nil {
		respondError(c, logger, err, "Failed to list occurrences")
		return
	}
	c.JSON(http.StatusOK, dto.ToOccurrenceResponses(occ))
}
