package service

import (
	"testing"
	"time"

	"marketplace-escrow/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-chars-long", time.Hour, "marketplace-escrow")
	userID := uuid.New()

	token, expiresAt, err := svc.Generate(userID, domain.RoleSeeker)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	actor, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, actor.UserID)
	assert.Equal(t, domain.RoleSeeker, actor.Role)
}

func TestJWTTokenService_Validate_WrongSecret(t *testing.T) {
	issuer := NewJWTTokenService("secret-one-aaaaaaaaaaaaaaaaaaaaaaaa", time.Hour, "marketplace-escrow")
	verifier := NewJWTTokenService("secret-two-bbbbbbbbbbbbbbbbbbbbbbbb", time.Hour, "marketplace-escrow")

	token, _, err := issuer.Generate(uuid.New(), domain.RoleProvider)
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.Error(t, err)
}

func TestJWTTokenService_Validate_Expired(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-chars-long", -time.Minute, "marketplace-escrow")

	token, _, err := svc.Generate(uuid.New(), domain.RoleSeeker)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}

func TestJWTTokenService_Validate_Garbage(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-chars-long", time.Hour, "marketplace-escrow")

	_, err := svc.Validate("not.a.token")
	assert.Error(t, err)
}

func TestJWTTokenService_Validate_MissingRole(t *testing.T) {
	secret := "test-secret-at-least-32-chars-long"
	svc := NewJWTTokenService(secret, time.Hour, "marketplace-escrow")

	claims := jwt.MapClaims{
		"sub": uuid.New().String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "role")
}

func TestJWTTokenService_Validate_RejectsNoneAlgorithm(t *testing.T) {
	svc := NewJWTTokenService("test-secret-at-least-32-chars-long", time.Hour, "marketplace-escrow")

	claims := jwt.MapClaims{
		"sub":  uuid.New().String(),
		"role": string(domain.RoleAdmin),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.Error(t, err)
}
