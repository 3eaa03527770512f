package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"launchpad/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService validates founder tokens issued by the funding platform
type AuthService struct {
	jwtSecret []byte
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{jwtSecret: []byte(secret)}
}

// ValidateFounderToken validates a founder JWT and returns its claims
func (s *AuthService) ValidateFounderToken(tokenString string) (*model.FounderClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.FounderClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*model.FounderClaims)
	if !ok || !token.Valid || claims.FounderID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateFounderToken signs a founder token. The platform issues real
// tokens; this exists for local development and tests.
func (s *AuthService) GenerateFounderToken(founderID, email string, ttl time.Duration) (string, error) {
	claims := &model.FounderClaims{
		FounderID: founderID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
