// Package auth issues and verifies dashboard tokens and hashes passwords.
//
// Access and refresh tokens are HS256 JWTs (github.com/golang-jwt/jwt/v5)
// signed with separate secrets. Passwords are stored as bcrypt hashes.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/avellano/avellano-bot/internal/models"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// bcryptCost is the work factor for stored password hashes.
	bcryptCost = 12

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	// ErrMissingSecret is returned when a token secret is not configured.
	ErrMissingSecret = errors.New("jwt secrets must be provided")
	// ErrInvalidToken is returned for malformed, expired or mistyped tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the dashboard token claims.
type Claims struct {
	Email        string             `json:"email,omitempty"`
	Role         models.Role        `json:"rol,omitempty"`
	OperatorType models.Responsable `json:"tipoOperador,omitempty"`
	Type         string             `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// Pair is an access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Opts holds TokenService configuration.
type Opts struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Option configures a TokenService.
type Option func(*Opts)

// WithTTLs overrides the access and refresh lifetimes.
func WithTTLs(access, refresh time.Duration) Option {
	return func(o *Opts) {
		o.AccessTTL = access
		o.RefreshTTL = refresh
	}
}

// WithClock sets the time source used to stamp and verify tokens.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// TokenService signs and parses dashboard tokens.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenService creates a token service. Both secrets are required.
func NewTokenService(accessSecret, refreshSecret string, opts ...Option) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, ErrMissingSecret
	}
	cfg := Opts{AccessTTL: DefaultAccessTTL, RefreshTTL: DefaultRefreshTTL, Now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           cfg.Now,
	}, nil
}

// IssuePair signs a new access and refresh token for u.
func (s *TokenService) IssuePair(u *models.User) (Pair, error) {
	now := s.now()
	access, err := s.sign(&Claims{
		Email:        u.Email,
		Role:         u.Role,
		OperatorType: u.OperatorType,
		Type:         tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}, s.accessSecret)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.sign(&Claims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
			// The id keeps two refresh tokens issued in the same second distinct.
			ID: fmt.Sprintf("%d", now.UnixNano()),
		},
	}, s.refreshSecret)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.accessTTL.Seconds())}, nil
}

func (s *TokenService) sign(c *Claims, secret []byte) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", c.Type, err)
	}
	return signed, nil
}

// ParseAccess verifies an access token.
func (s *TokenService) ParseAccess(token string) (*Claims, error) {
	return s.parse(token, s.accessSecret, tokenTypeAccess)
}

// ParseRefresh verifies a refresh token.
func (s *TokenService) ParseRefresh(token string) (*Claims, error) {
	return s.parse(token, s.refreshSecret, tokenTypeRefresh)
}

func (s *TokenService) parse(token string, secret []byte, typ string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Type != typ || claims.Subject == "" {
		return nil, fmt.Errorf("%w: expected %s token", ErrInvalidToken, typ)
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
