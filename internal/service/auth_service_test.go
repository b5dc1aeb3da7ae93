package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/univ-lab/timetable-api/internal/models"
	appErrors "github.com/univ-lab/timetable-api/pkg/errors"
)

func testAuthConfig(t *testing.T, key string) AuthServiceConfig {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	require.NoError(t, err)
	return AuthServiceConfig{
		ClientID:          "portal",
		APIKeyHash:        string(hash),
		AccessTokenSecret: "secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "timetable-api",
		Audience:          "timetable-clients",
	}
}

func TestAuthServiceIssueTokenSuccess(t *testing.T) {
	svc := NewAuthService(validator.New(), zap.NewNop(), testAuthConfig(t, "letmein"))

	res, err := svc.IssueToken(context.Background(), models.TokenRequest{APIKey: "letmein"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.Equal(t, int64(3600), res.ExpiresIn)

	claims, err := svc.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "portal", claims.ClientID)
	assert.Equal(t, "portal", claims.Subject)
}

func TestAuthServiceIssueTokenWrongKey(t *testing.T) {
	svc := NewAuthService(validator.New(), zap.NewNop(), testAuthConfig(t, "letmein"))

	_, err := svc.IssueToken(context.Background(), models.TokenRequest{APIKey: "guess"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceIssueTokenUnconfigured(t *testing.T) {
	cfg := testAuthConfig(t, "letmein")
	cfg.APIKeyHash = ""
	svc := NewAuthService(validator.New(), zap.NewNop(), cfg)

	_, err := svc.IssueToken(context.Background(), models.TokenRequest{APIKey: "letmein"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErr.Code)
}

func TestAuthServiceIssueTokenMissingKey(t *testing.T) {
	svc := NewAuthService(validator.New(), zap.NewNop(), testAuthConfig(t, "letmein"))

	_, err := svc.IssueToken(context.Background(), models.TokenRequest{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := NewAuthService(validator.New(), zap.NewNop(), testAuthConfig(t, "letmein"))
	res, err := issuer.IssueToken(context.Background(), models.TokenRequest{APIKey: "letmein"})
	require.NoError(t, err)

	cfg := testAuthConfig(t, "letmein")
	cfg.AccessTokenSecret = "other"
	verifier := NewAuthService(validator.New(), zap.NewNop(), cfg)

	_, err = verifier.ValidateToken(res.AccessToken)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	issuer := NewAuthService(validator.New(), zap.NewNop(), testAuthConfig(t, "letmein"))
	res, err := issuer.IssueToken(context.Background(), models.TokenRequest{APIKey: "letmein"})
	require.NoError(t, err)

	cfg := testAuthConfig(t, "letmein")
	cfg.Issuer = "someone-else"
	verifier := NewAuthService(validator.New(), zap.NewNop(), cfg)

	_, err = verifier.ValidateToken(res.AccessToken)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
