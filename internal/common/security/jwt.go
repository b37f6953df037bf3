package security

import (
	"errors"
	"fmt"
	"time"

	"image_gen/internal/common"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ClaimUserID = "user_id"
	ClaimRole   = "role"
)

// Claims is the identity carried by a verified token.
type Claims struct {
	UserID string
	Role   string
}

// TokenIssuer signs HS256 identity tokens with one process-wide key.
type TokenIssuer struct {
	auth *jwtauth.JWTAuth
	now  func() time.Time
}

func NewTokenIssuer(secret []byte) *TokenIssuer {
	return &TokenIssuer{
		auth: jwtauth.New("HS256", secret, nil),
		now:  time.Now,
	}
}

// JWTAuth exposes the underlying verifier for jwtauth.Verify in the router.
func (t *TokenIssuer) JWTAuth() *jwtauth.JWTAuth {
	return t.auth
}

func (t *TokenIssuer) Issue(userID, role string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := jwt.MapClaims{
		ClaimUserID: userID,
		ClaimRole:   role,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
	_, tokenString, err := t.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return tokenString, nil
}

// ClaimsFromMap extracts the identity from a decoded claim set.
func ClaimsFromMap(m map[string]interface{}) (Claims, error) {
	userID, err := GetUserIDFromClaims(m)
	if err != nil {
		return Claims{}, fmt.Errorf("%v: %w", err, common.ErrUnauthenticated)
	}
	role, err := GetUserRoleFromClaims(m)
	if err != nil {
		return Claims{}, fmt.Errorf("%v: %w", err, common.ErrUnauthenticated)
	}
	return Claims{UserID: userID, Role: role}, nil
}

func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	id, ok := claims[ClaimUserID].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims map[string]interface{}) (string, error) {
	role, ok := claims[ClaimRole].(string)
	if !ok || role == "" {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
