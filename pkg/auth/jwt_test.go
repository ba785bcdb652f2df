package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken("alice", "therapist")
	req.NoError(err)

	id, err := Verify(token)
	req.NoError(err)
	req.Equal("alice", id.UserID)
	req.Equal("therapist", id.Role)
}

func TestVerifyExpiredToken(t *testing.T) {
	req := require.New(t)
	claims := &Claims{
		UserID: "alice",
		Role:   "patient",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtKey)
	req.NoError(err)

	_, err = Verify(token)
	req.ErrorIs(err, ErrTokenExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	req := require.New(t)
	for _, bad := range []string{"", "not.a.token", "aaaa.bbbb.cccc"} {
		_, err := Verify(bad)
		req.ErrorIs(err, ErrTokenInvalid)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	req := require.New(t)
	claims := &Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("someone_else"))
	req.NoError(err)

	_, err = Verify(token)
	req.ErrorIs(err, ErrTokenInvalid)
}

func TestVerifyRejectsMissingUserID(t *testing.T) {
	req := require.New(t)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtKey)
	req.NoError(err)

	_, err = Verify(token)
	req.ErrorIs(err, ErrTokenInvalid)
}

func TestBearerToken(t *testing.T) {
	req := require.New(t)

	r := httptest.NewRequest("GET", "/ws/one-to-one/r1", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	req.Equal("abc123", BearerToken(r))

	r = httptest.NewRequest("GET", "/ws/one-to-one/r1?token=qp456", nil)
	req.Equal("qp456", BearerToken(r))

	// Header wins over the query parameter.
	r = httptest.NewRequest("GET", "/ws/one-to-one/r1?token=qp456", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	req.Equal("abc123", BearerToken(r))

	r = httptest.NewRequest("GET", "/ws/one-to-one/r1", nil)
	req.Empty(BearerToken(r))
}
