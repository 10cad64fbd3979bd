package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	OnepagerToken TokenType = "onepager"
)

var ErrWrongTokenType = errors.New("wrong token type")

// Claims represents the JWT claims
type Claims struct {
	ArtworkID string    `json:"artwork_id"`
	Gallery   bool      `json:"gallery,omitempty"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateOnepagerToken generates a short-lived token allowing one artwork's
// one-pager to be downloaded without the API secret.
func GenerateOnepagerToken(artworkID string, gallery bool, secret string, duration time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := Claims{
		ArtworkID: artworkID,
		Gallery:   gallery,
		TokenType: OnepagerToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   artworkID,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// ValidateOnepagerToken validates tokenString and checks it is a one-pager token.
func ValidateOnepagerToken(tokenString string, secret string) (*Claims, error) {
	claims, err := ValidateToken(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != OnepagerToken || claims.ArtworkID == "" {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
