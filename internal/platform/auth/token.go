package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RolePatient = "patient"
	RoleAdmin   = "admin"

	// TokenTTL is the fixed validity window for issued tokens.
	TokenTTL = time.Hour
)

var (
	// ErrUnauthorized covers every token failure without distinguishing the
	// cause. Missing, malformed, expired and forged tokens all look the same
	// to the caller.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the caller is authenticated but the role or
	// ownership check denied the operation.
	ErrForbidden = errors.New("forbidden")
)

// Claims is the token payload. Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role      string  `json:"role"`
	PatientID *string `json:"patient_id,omitempty"`
}

func (c *Claims) UserID() string {
	return c.Subject
}

func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// KeySource supplies the HMAC signing key. Satisfied by secrets.Provider.
type KeySource interface {
	SigningKey(ctx context.Context) ([]byte, error)
}

// TokenService issues and validates HS256 bearer tokens.
type TokenService struct {
	keys KeySource
}

func NewTokenService(keys KeySource) *TokenService {
	return &TokenService{keys: keys}
}

// Issue signs a token for the given identity, valid for TokenTTL.
func (s *TokenService) Issue(ctx context.Context, userID, role string, patientID *string) (string, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return "", fmt.Errorf("signing key: %w", err)
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Role:      role,
		PatientID: patientID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token. Any verification failure returns
// ErrUnauthorized; only a signing-key fetch failure surfaces separately so
// the transport can answer 503 instead of 401.
func (s *TokenService) Validate(ctx context.Context, tokenStr string) (*Claims, error) {
	key, err := s.keys.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
