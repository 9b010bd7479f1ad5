// Package auth validates the bearer tokens that identify the caller of the
// discovery API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type constants for the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Token expiration durations.
const (
	AccessTokenExpiry  = 15 * time.Minute
	RefreshTokenExpiry = 7 * 24 * time.Hour
)

// DefaultLeeway is the clock skew tolerated when checking exp and iat.
const DefaultLeeway = 30 * time.Second

var (
	// ErrInvalidToken is returned when token validation fails.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrWrongTokenType is returned when a refresh token is presented where
	// an access token is required.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrEmptyUserID is returned when userID is empty.
	ErrEmptyUserID = errors.New("userID cannot be empty")
)

// Claims are the JWT claims issued to users. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Config configures a JWTService.
type Config struct {
	// Secret signs new tokens and validates presented ones.
	Secret string
	// PreviousSecret is also accepted during validation while a key
	// rotation is in progress. Empty when no rotation is happening.
	PreviousSecret string
	// Issuer, when set, is written to new tokens and required on
	// presented ones.
	Issuer string
	// Leeway defaults to DefaultLeeway.
	Leeway time.Duration
}

// JWTService issues and validates HS256 tokens. Tokens are always signed
// with the current secret but validate against either secret.
type JWTService struct {
	secrets [][]byte
	issuer  string
	leeway  time.Duration
	now     func() time.Time
}

// NewJWTService creates a JWTService.
func NewJWTService(cfg Config) *JWTService {
	if cfg.Leeway <= 0 {
		cfg.Leeway = DefaultLeeway
	}
	s := &JWTService{
		secrets: [][]byte{[]byte(cfg.Secret)},
		issuer:  cfg.Issuer,
		leeway:  cfg.Leeway,
		now:     time.Now,
	}
	if cfg.PreviousSecret != "" {
		s.secrets = append(s.secrets, []byte(cfg.PreviousSecret))
	}
	return s
}

// GenerateAccessToken creates an access token for userID.
func (s *JWTService) GenerateAccessToken(userID string) (string, error) {
	return s.generate(userID, TokenTypeAccess, AccessTokenExpiry)
}

// GenerateRefreshToken creates a refresh token for userID.
func (s *JWTService) GenerateRefreshToken(userID string) (string, error) {
	return s.generate(userID, TokenTypeRefresh, RefreshTokenExpiry)
}

func (s *JWTService) generate(userID, typ string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", ErrEmptyUserID
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type: typ,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secrets[0])
}

// ValidateToken parses and validates a token of any type.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(s.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	var lastErr error
	for _, secret := range s.secrets {
		token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		}, opts...)
		if err == nil {
			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid || claims.Subject == "" {
				return nil, ErrInvalidToken
			}
			return claims, nil
		}
		lastErr = err
		// An expired token signed with this secret will not verify with
		// the other one either.
		if errors.Is(err, jwt.ErrTokenExpired) {
			break
		}
	}
	if errors.Is(lastErr, jwt.ErrTokenExpired) {
		return nil, ErrExpiredToken
	}
	return nil, ErrInvalidToken
}

// ValidateAccessToken validates a token and requires it to be an access
// token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
