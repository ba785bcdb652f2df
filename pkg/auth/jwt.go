// Package auth implements the identity verification contract against
// bearer tokens. Token issuance belongs to the external identity provider;
// GenerateToken exists for the dev login endpoint and tests.
package auth

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindcare/realtime/pkg/model"
)

var (
	// ErrTokenExpired means the credential's validity window has elapsed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("invalid token")
)

var jwtKey = func() []byte {
	if k := os.Getenv("JWT_SECRET"); k != "" {
		return []byte(k)
	}
	return []byte("dev_secret_key")
}()

type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed token for a user id and role.
func GenerateToken(userID, role string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

// Verify parses and validates a bearer token and returns the identity it
// carries. Expired credentials are distinguishable from malformed ones so
// the gateway can close the transport with the right status.
func Verify(tokenString string) (model.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return jwtKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, ErrTokenExpired
		}
		return model.Identity{}, ErrTokenInvalid
	}
	if !token.Valid || claims.UserID == "" {
		return model.Identity{}, ErrTokenInvalid
	}
	return model.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}
