package model

import "github.com/golang-jwt/jwt/v5"

// FounderClaims are JWT claims issued to a founder by the platform
type FounderClaims struct {
	FounderID string `json:"founderId"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
