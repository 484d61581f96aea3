package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "festpass-registration"

// ErrWrongTokenType is returned when a refresh token is presented as an access token or vice versa
var ErrWrongTokenType = errors.New("invalid token type")

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims identify an admin. Roles are only carried on access tokens.
type Claims struct {
	AdminID   uuid.UUID `json:"admin_id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles,omitempty"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type keyPair struct {
	secret []byte
	ttl    time.Duration
}

// Service signs and validates HS256 admin tokens
type Service struct {
	keys map[TokenType]keyPair
}

// NewService creates a new JWT service
func NewService(accessSecret, refreshSecret string, accessExpiry, refreshExpiry time.Duration) *Service {
	return &Service{keys: map[TokenType]keyPair{
		AccessToken:  {secret: []byte(accessSecret), ttl: accessExpiry},
		RefreshToken: {secret: []byte(refreshSecret), ttl: refreshExpiry},
	}}
}

// AccessTokenExpiry returns the configured access token lifetime
func (s *Service) AccessTokenExpiry() time.Duration {
	return s.keys[AccessToken].ttl
}

func (s *Service) GenerateAccessToken(adminID uuid.UUID, email string, roles []string) (string, error) {
	return s.sign(Claims{AdminID: adminID, Email: email, Roles: roles, TokenType: AccessToken})
}

func (s *Service) GenerateRefreshToken(adminID uuid.UUID, email string) (string, error) {
	return s.sign(Claims{AdminID: adminID, Email: email, TokenType: RefreshToken})
}

func (s *Service) sign(claims Claims) (string, error) {
	key := s.keys[claims.TokenType]
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(key.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    issuer,
		Subject:   claims.AdminID.String(),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, AccessToken)
}

func (s *Service) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, RefreshToken)
}

func (s *Service) parse(tokenString string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.keys[want].secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse %s token: %w", want, err)
	}

	if claims.TokenType != want {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrWrongTokenType, want, claims.TokenType)
	}
	return claims, nil
}
