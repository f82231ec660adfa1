package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SscSPs/mma_recurring/internal/utils"
)

const secret = "test-secret"

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		user, _ := GetUserIDFromContext(c)
		household, _ := GetHouseholdIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user": user, "household": household, "admin": HasRole(c, utils.RoleSchedulerAdmin)})
	})
	return r
}

func get(r http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(AuthMiddleware(secret, "mma"))

	token, err := utils.GenerateJWT("user-1", "hh-1", nil, secret, time.Hour, "mma")
	require.NoError(t, err)
	w := get(r, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"user-1","household":"hh-1","admin":false}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{"Authorization": token}).Code)

	expired, err := utils.GenerateJWT("user-1", "", nil, secret, -time.Minute, "mma")
	require.NoError(t, err)
	w = get(r, map[string]string{"Authorization": "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")
}

func TestAdminKeyAuthSkipsJWT(t *testing.T) {
	r := newRouter(AdminKeyAuth("k3y"), AuthMiddleware(secret, ""), RequireRole(utils.RoleSchedulerAdmin))

	w := get(r, map[string]string{"x-api-key": "k3y"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"admin":true`)

	assert.Equal(t, http.StatusUnauthorized, get(r, map[string]string{"x-api-key": "wrong"}).Code)

	token, err := utils.GenerateJWT("user-1", "", nil, secret, time.Hour, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, map[string]string{"Authorization": "Bearer " + token}).Code)
}

func TestRateLimit(t *testing.T) {
	l, err := NewRateLimiter("2-M")
	require.NoError(t, err)
	r := newRouter(RateLimit(l))

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	w := get(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	_, err = NewRateLimiter("nonsense")
	assert.Error(t, err)
}

func TestStructuredLoggingKeepsRequestID(t *testing.T) {
	r := newRouter(StructuredLoggingMiddleware(discardLogger()))

	w := get(r, map[string]string{"X-Request-ID": "abc"})
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = get(r, nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
