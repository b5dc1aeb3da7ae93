package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest exchanges the admin API key for a signed access token.
type TokenRequest struct {
	APIKey string `json:"api_key" validate:"required"`
}

// TokenResponse returns the issued access token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// JWTClaims represents the JWT payload for access tokens. ClientID names the
// configured tenant the token was issued to.
type JWTClaims struct {
	ClientID string `json:"client_id"`
	jwt.RegisteredClaims
}
