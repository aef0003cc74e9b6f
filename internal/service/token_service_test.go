package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-authoring-api/internal/models"
	appErrors "github.com/noah-isme/edu-authoring-api/pkg/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "edu", Expiry: time.Hour})
	token, expiresAt, err := svc.Issue(models.UserInfo{ID: "teacher-1", Role: models.RoleTeacher, FullName: "Prof. Lima"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	assert.Equal(t, "Prof. Lima", claims.Info().FullName)
}

func TestTokenRejectsForeignSignatureAndExpiry(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "other", Issuer: "edu"})
	token, _, err := issuer.Issue(models.UserInfo{ID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)

	verifier := NewTokenService(TokenConfig{Secret: "secret", Issuer: "edu"})
	_, err = verifier.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	expired := NewTokenService(TokenConfig{Secret: "secret", Issuer: "edu", Expiry: time.Minute})
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, _, err = expired.Issue(models.UserInfo{ID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	_, err = verifier.ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestTokenRejectsUnknownRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: "ADMIN", RegisteredClaims: jwt.RegisteredClaims{Issuer: "edu"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenService(TokenConfig{Secret: "secret", Issuer: "edu"}).ValidateToken(token)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, _, err = NewTokenService(TokenConfig{Secret: "secret"}).Issue(models.UserInfo{ID: "u1", Role: "ADMIN"})
	assert.Error(t, err)
}
