package handlers

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
	"github.com/SscSPs/mma_recurring/internal/dto"
	"github.com/SscSPs/mma_recurring/internal/middleware"
	"github.com/SscSPs/mma_recurring/internal/platform/config"
	"github.com/SscSPs/mma_recurring/internal/utils"
)

// RegisterValidators installs the schedule binding tags on gin's validator.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return dto.RegisterValidators(v)
}

// RegisterRoutes sets up all application routes, injecting dependencies using interfaces
func RegisterRoutes(
	r *gin.Engine,
	cfg *config.Config,
	services *portssvc.ServiceContainer,
) error {
	if err := RegisterValidators(); err != nil {
		return err
	}

	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	setupAPIV1Routes(r, cfg, services)
	return nil
}

// setupAPIV1Routes configures the /api/v1 group and delegates to specific entity route registrations
func setupAPIV1Routes(
	r *gin.Engine,
	cfg *config.Config,
	service *portssvc.ServiceContainer,
) {
	// An admin key authenticates first; everything else needs a JWT.
	v1 := r.Group("/api/v1",
		middleware.AdminKeyAuth(cfg.AdminAPIKey),
		middleware.AuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer),
	)

	RegisterScheduleRoutes(v1, service.Schedule)
	if service.References != nil {
		RegisterReferenceRoutes(v1, service.References)
	}

	admin := v1.Group("", middleware.RequireRole(utils.RoleSchedulerAdmin))
	RegisterSchedulerRoutes(admin, service.Runner, time.Now, cfg.Scheduler.TickTimeout)
}
