package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims represents the claims carried by an access token
type AccessClaims struct {
	Account  AccountView `json:"account"`
	DeviceID string      `json:"deviceId,omitempty"` // set only when device binding is enabled
	jwt.RegisteredClaims
}
