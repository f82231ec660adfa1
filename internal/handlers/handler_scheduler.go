package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/middleware"
)

// schedulerHandler exposes the runner to operators.
type schedulerHandler struct {
	runner  portssvc.RunnerSvc
	clock   func() time.Time
	timeout time.Duration
}

// RegisterSchedulerRoutes registers the admin routes of the scheduler. Callers must
// guard rg with the admin role.
func RegisterSchedulerRoutes(rg *gin.RouterGroup, runner portssvc.RunnerSvc, clock func() time.Time, timeout time.Duration) {
	if clock == nil {
		clock = time.Now
	}
	h := &schedulerHandler{runner: runner, clock: clock, timeout: timeout}
	rg.POST("/scheduler/tick", h.tick)
}

// tick godoc
// @Summary Run the scheduler now
// @Description Materializes every due schedule, exactly like the periodic run
// @Tags scheduler
// @Produce  json
// @Success 200 {object} services.TickReport
// @Failure 403 {object} map[string]string "Forbidden"
// @Security BearerAuth
// @Router /scheduler/tick [post]
func (h *schedulerHandler) tick(c *gin.Context) {
	logger := middleware.GetLoggerFromCtx(c.Request.Context())
	logger.Info("Manual scheduler tick requested")

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	report := h.runner.Tick(ctx, h.clock())
	logger.Info("Manual scheduler tick finished",
		slog.Int("materialized", report.Materialized),
		slog.Int("failures", len(report.Failures)))
	c.JSON(http.StatusOK, report)
}
