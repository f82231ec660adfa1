package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/SscSPs/mma_recurring/internal/core/domain"
	"github.com/SscSPs/mma_recurring/internal/utils"
)

// AdminKeyAuth lets an external job runner authenticate with the x-api-key header.
// A matching key is granted the scheduler admin role and skips JWT auth; any other
// request falls through to the next auth middleware.
func AdminKeyAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("x-api-key")
		if adminKey == "" || key == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			GetLoggerFromCtx(c.Request.Context()).Warn("Invalid admin api key")
			c.Next()
			return
		}
		withIdentity(c, domain.SystemUserID, "", []string{utils.RoleSchedulerAdmin}, authMethodAdmin)
		c.Next()
	}
}
