package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/paylynx-policy/services"
)

const testSecret = "test-secret-with-enough-length"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(sub string) Claims {
	now := time.Now()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    "paylynx",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: "agent@example.com",
	}
}

func TestNewJWTValidator(t *testing.T) {
	_, err := NewJWTValidator(Config{})
	assert.Error(t, err)

	v, err := NewJWTValidator(Config{AllowUnverified: true})
	require.NoError(t, err)
	assert.True(t, v.Unverified())

	v, err = NewJWTValidator(Config{Secret: testSecret, AllowUnverified: true})
	require.NoError(t, err)
	assert.False(t, v.Unverified(), "a configured secret always wins")
}

func TestJWTValidator_ValidateToken(t *testing.T) {
	ctx := context.Background()
	v, err := NewJWTValidator(Config{Secret: testSecret, Issuer: "paylynx"})
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("did:privy:abc"))

		claims, err := v.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "did:privy:abc", claims.Sub)
		assert.Equal(t, "agent@example.com", claims.Email)
		assert.Equal(t, "paylynx", claims.Iss)
		assert.NotZero(t, claims.Exp)
	})

	t.Run("expired token", func(t *testing.T) {
		c := validClaims("user-1")
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c)

		_, err := v.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, services.ErrTokenExpired)
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"wrong secret", func(t *testing.T) string {
			return signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), validClaims("user-1"))
		}},
		{"wrong issuer", func(t *testing.T) string {
			c := validClaims("user-1")
			c.Issuer = "someone-else"
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c)
		}},
		{"unexpected algorithm", func(t *testing.T) string {
			return signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("user-1"))
		}},
		{"missing expiry", func(t *testing.T) string {
			c := validClaims("user-1")
			c.ExpiresAt = nil
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), c)
		}},
		{"missing subject", func(t *testing.T) string {
			return signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(""))
		}},
		{"garbage", func(t *testing.T) string { return "not-a-jwt" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(ctx, tt.token(t))
			require.Error(t, err)
			assert.True(t, services.IsUnauthorizedError(err))
		})
	}
}

func TestJWTValidator_Unverified(t *testing.T) {
	ctx := context.Background()
	v, err := NewJWTValidator(Config{AllowUnverified: true})
	require.NoError(t, err)

	token := signToken(t, jwt.SigningMethodHS256, []byte("any-key"), validClaims("user-9"))
	claims, err := v.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Sub)

	expired := validClaims("user-9")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	_, err = v.ValidateToken(ctx, signToken(t, jwt.SigningMethodHS256, []byte("any-key"), expired))
	assert.ErrorIs(t, err, services.ErrTokenExpired)
}
