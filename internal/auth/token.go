package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTTL is the lifetime of a session token.
const TokenTTL = 24 * time.Hour

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified content of a session token.
type Claims struct {
	UserID    int
	TokenID   string
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a TokenService.
type Option func(*TokenService)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService constructs a TokenService signing with secret.
func NewTokenService(secret string, opts ...Option) *TokenService {
	s := &TokenService{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue returns a signed token for userID that expires exactly TokenTTL
// after issuance.
func (s *TokenService) Issue(userID int) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Every failure is reported as ErrInvalidToken.
func (s *TokenService) Verify(tokenString string) (Claims, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return Claims{}, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}

	return Claims{
		UserID:    userID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
