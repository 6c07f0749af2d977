package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sjc1990app/server/internal/apperr"
	"github.com/sjc1990app/server/internal/model"
)

const accessTokenExpiry = 24 * time.Hour

// JWTClaims represents the access token claims
type JWTClaims struct {
	AccountID   uuid.UUID           `json:"sub"`
	PhoneNumber string              `json:"phone_number"`
	Status      model.AccountStatus `json:"status"`
	Role        model.Role          `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token carries the admin role
func (c *JWTClaims) IsAdmin() bool {
	return c.Role == model.RoleAdmin
}

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	now    func() time.Time
}

// NewJWTService creates a new JWT service. The secret comes from configuration
// and is held for the lifetime of the service.
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *JWTService) WithClock(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// Issue creates an HS256 access token valid for 24 hours
func (s *JWTService) Issue(accountID uuid.UUID, phoneNumber string, status model.AccountStatus, role model.Role) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(accessTokenExpiry)
	claims := &JWTClaims{
		AccountID:   accountID,
		PhoneNumber: phoneNumber,
		Status:      status,
		Role:        role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	// NumericDate truncates to seconds
	return tokenString, claims.ExpiresAt.Time, nil
}

// Verify checks signature, algorithm and expiry and returns the claims
func (s *JWTService) Verify(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid or expired token").Wrap(err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.AccountID == uuid.Nil {
		return nil, apperr.Unauthorized("Invalid or expired token")
	}

	return claims, nil
}

// ExtractFromHeader returns the token of a "Bearer <token>" Authorization header
func ExtractFromHeader(header string) (string, error) {
	if header == "" {
		return "", apperr.Unauthorized("Missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", apperr.Unauthorized("Invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}
