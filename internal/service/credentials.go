package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mansoorceksport/deviceauth/internal/config"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// opaqueTokenBytes gives refresh tokens 256 bits of entropy
const opaqueTokenBytes = 32

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenSigner issues and verifies access tokens
type TokenSigner interface {
	Sign(claims domain.AccessClaims) (string, error)
	Parse(token string) (*domain.AccessClaims, error)
}

// BcryptHasher hashes passwords with bcrypt. Callers must not log or
// persist plaintext passwords.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher with cost clamped to bcrypt's range
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify compares in constant time; a malformed hash never verifies
func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateOpaqueToken returns a random URL-safe refresh token
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// JWTSigner signs HS256 access tokens carrying issuer, audience and subject
type JWTSigner struct {
	key      []byte
	issuer   string
	audience string
	subject  string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTSigner creates a signer from the JWT configuration
func NewJWTSigner(cfg config.JWTConfig) *JWTSigner {
	return &JWTSigner{
		key:      []byte(cfg.Key),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		subject:  cfg.Subject,
		ttl:      cfg.AccessTokenExpiry,
		now:      time.Now,
	}
}

// TTL returns the access token lifetime
func (s *JWTSigner) TTL() time.Duration {
	return s.ttl
}

// Sign fills in the registered claims and signs the token
func (s *JWTSigner) Sign(claims domain.AccessClaims) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		Audience:  jwt.ClaimStrings{s.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer, audience, subject and expiry
func (s *JWTSigner) Parse(tokenString string) (*domain.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &domain.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.key, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithSubject(s.subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*domain.AccessClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
