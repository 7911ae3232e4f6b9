package backend

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedKey(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestKeyRole(t *testing.T) {
	t.Run("anon", func(t *testing.T) {
		role, err := KeyRole(signedKey(t, jwt.MapClaims{"iss": "supabase", "role": "anon"}))
		require.NoError(t, err)
		assert.Equal(t, "anon", role)
	})

	t.Run("service_role", func(t *testing.T) {
		role, err := KeyRole(signedKey(t, jwt.MapClaims{"role": "service_role"}))
		require.NoError(t, err)
		assert.Equal(t, "service_role", role)
	})

	t.Run("missing_role", func(t *testing.T) {
		_, err := KeyRole(signedKey(t, jwt.MapClaims{"iss": "supabase"}))
		assert.Error(t, err)
	})

	t.Run("not_a_jwt", func(t *testing.T) {
		_, err := KeyRole("sb_publishable_abc123")
		assert.Error(t, err)
	})
}
