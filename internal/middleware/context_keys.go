package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// contextKey is used for values stored in the request context.
// Using a custom type prevents collisions.
type contextKey string

const (
	loggerCtxKey    = contextKey("logger")
	userIDKey       = contextKey("userID")
	householdIDKey  = contextKey("householdID")
	rolesKey        = contextKey("roles")
	authMethodKey   = "authMethod"
	authMethodJWT   = "jwt"
	authMethodAdmin = "api_key"
)

// GetUserIDFromContext retrieves the authenticated user ID from the Gin context.
// It returns the user ID and a boolean indicating if it was found.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	return stringFromCtx(c, userIDKey)
}

// GetHouseholdIDFromContext retrieves the household the caller acts for.
func GetHouseholdIDFromContext(c *gin.Context) (string, bool) {
	return stringFromCtx(c, householdIDKey)
}

// HasRole reports whether the authenticated caller was granted role.
func HasRole(c *gin.Context, role string) bool {
	roles, _ := c.Request.Context().Value(rolesKey).([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func stringFromCtx(c *gin.Context, key contextKey) (string, bool) {
	if v, exists := c.Get(string(key)); exists {
		s, ok := v.(string)
		return s, ok && s != ""
	}
	// check in the request context as well
	s, ok := c.Request.Context().Value(key).(string)
	return s, ok && s != ""
}

// withIdentity stores the caller's identity in both the Gin and the request context.
func withIdentity(c *gin.Context, userID, householdID string, roles []string, method string) {
	ctx := context.WithValue(c.Request.Context(), userIDKey, userID)
	ctx = context.WithValue(ctx, householdIDKey, householdID)
	ctx = context.WithValue(ctx, rolesKey, roles)

	logger := GetLoggerFromCtx(ctx).With(
		"user_id", userID,
		"household_id", householdID,
	)
	c.Request = c.Request.WithContext(WithLogger(ctx, logger))
	c.Set(string(userIDKey), userID)
	c.Set(string(householdIDKey), householdID)
	c.Set(authMethodKey, method)
}
