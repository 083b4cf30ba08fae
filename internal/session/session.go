package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the claim set SkillForge issues with every login: the account id
// and its role ("learner", "tutor" or "admin").
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Session is the authenticated identity the client operates as. It wraps the
// raw bearer token together with the claims decoded from it.
type Session struct {
	Token  string
	UserID string
	Role   string
}

// GenerateToken signs a token for the given identity. The client itself never
// mints tokens in production; this exists for the dev CLI and tests.
func GenerateToken(userID, role, secret string, validity time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a bearer token against the shared secret.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// FromToken builds a Session from an issued token. When secret is non-empty
// the signature is verified; otherwise the claims are decoded unverified,
// which is how the browser client reads its own token.
func FromToken(tokenString, secret string) (*Session, error) {
	if secret != "" {
		claims, err := ValidateToken(tokenString, secret)
		if err != nil {
			return nil, err
		}
		return &Session{Token: tokenString, UserID: claims.UserID, Role: claims.Role}, nil
	}

	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &Session{Token: tokenString, UserID: claims.UserID, Role: claims.Role}, nil
}
