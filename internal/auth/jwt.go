package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lumina-signage/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims holds JWT claims for users and paired displays. For device tokens
// Role is "display" and Subject carries the display ID.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret            []byte
	expireHours       int
	deviceExpireHours int
}

// NewJWTService creates a JWT service. Device tokens live longer than user
// tokens so an unattended display does not need re-pairing every day.
func NewJWTService(secret string, expireHours, deviceExpireHours int) *JWTService {
	if deviceExpireHours <= 0 {
		deviceExpireHours = 24 * 30
	}
	return &JWTService{
		secret:            []byte(secret),
		expireHours:       expireHours,
		deviceExpireHours: deviceExpireHours,
	}
}

// Generate creates a new JWT for a user.
func (s *JWTService) Generate(userID uuid.UUID, email, role string) (string, error) {
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// GenerateDeviceToken creates a device-scoped JWT for a paired display.
func (s *JWTService) GenerateDeviceToken(displayID uuid.UUID) (string, error) {
	claims := Claims{
		Role: string(models.RoleDisplay),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   displayID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.deviceExpireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
