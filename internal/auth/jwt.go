// Package auth provides identity extraction from JWT bearer tokens.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultLeeway absorbs small clock skew between token issuer and
	// validator.
	DefaultLeeway = 30 * time.Second

	// TokenExpiry bounds the lifetime of issued tokens.
	TokenExpiry = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptyUserID  = errors.New("userID cannot be empty")
)

// User is the authenticated caller. A nil *User means an anonymous
// request, which may still read public projects.
type User struct {
	ID          string
	IsSuperuser bool
}

// Claims represents the JWT claims carried by application tokens.
type Claims struct {
	jwt.RegisteredClaims
	IsSuperuser bool `json:"is_superuser,omitempty"`
}

// JWTService signs tokens with the current secret and accepts tokens
// signed with either the current or the previous secret, so secrets can
// rotate without logging everyone out.
type JWTService struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewJWTService creates a service with a single signing secret.
func NewJWTService(secret string) *JWTService {
	return NewJWTServiceWithRotation(secret, "")
}

// NewJWTServiceWithRotation creates a service that also accepts tokens
// signed with previousSecret. Pass an empty previousSecret when no
// rotation is in progress.
func NewJWTServiceWithRotation(currentSecret, previousSecret string) *JWTService {
	svc := &JWTService{
		currentSecret: []byte(currentSecret),
		leeway:        DefaultLeeway,
	}
	if previousSecret != "" {
		svc.previousSecret = []byte(previousSecret)
	}
	return svc
}

// GenerateToken creates a token for the given user.
func (s *JWTService) GenerateToken(user User) (string, error) {
	if user.ID == "" {
		return "", ErrEmptyUserID
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
		},
		IsSuperuser: user.IsSuperuser,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.currentSecret)
}

// ValidateToken parses and validates a bearer token and returns the
// caller identity. The current secret is tried before the previous one.
func (s *JWTService) ValidateToken(tokenString string) (*User, error) {
	claims, err := s.parse(tokenString, s.currentSecret)
	if err != nil && s.previousSecret != nil {
		if prevClaims, prevErr := s.parse(tokenString, s.previousSecret); prevErr == nil {
			claims, err = prevClaims, nil
		}
	}
	switch {
	case err == nil:
		return &User{ID: claims.Subject, IsSuperuser: claims.IsSuperuser}, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	default:
		return nil, ErrInvalidToken
	}
}

func (s *JWTService) parse(tokenString string, secret []byte) (*Claims, error) {
	keyFunc := func(token *jwt.Token) (any, error) {
		// Pin the algorithm; "alg: none" and RS/HS confusion both fail here.
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc, jwt.WithLeeway(s.leeway))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type contextKey struct{}

// WithUser returns a context carrying the authenticated user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(contextKey{}).(*User)
	return user
}
