package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseJWT(t *testing.T) {
	token, err := GenerateJWT("user-1", "hh-1", []string{RoleSchedulerAdmin}, "secret", time.Hour, "mma")
	require.NoError(t, err)

	claims, err := ParseAndValidateJWT(token, "secret", "mma")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "hh-1", claims.Household())
	assert.True(t, claims.HasRole(RoleSchedulerAdmin))
	assert.False(t, claims.HasRole("other"))
}

func TestHouseholdDefaultsToSubject(t *testing.T) {
	token, err := GenerateJWT("user-1", "", nil, "secret", time.Hour, "mma")
	require.NoError(t, err)

	claims, err := ParseAndValidateJWT(token, "secret", "")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Household())
}

func TestParseAndValidateJWTRejects(t *testing.T) {
	good, err := GenerateJWT("user-1", "", nil, "secret", time.Hour, "mma")
	require.NoError(t, err)

	_, err = ParseAndValidateJWT(good, "other-secret", "")
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseAndValidateJWT(good, "secret", "someone-else")
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	expired, err := GenerateJWT("user-1", "", nil, "secret", -time.Minute, "mma")
	require.NoError(t, err)
	_, err = ParseAndValidateJWT(expired, "secret", "")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noSubject, err := GenerateJWT("", "", nil, "secret", time.Hour, "mma")
	require.NoError(t, err)
	_, err = ParseAndValidateJWT(noSubject, "secret", "")
	assert.Error(t, err)
}
