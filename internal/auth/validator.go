package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims of an embedded-app session token.
type SessionClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// SessionTokenValidator verifies HS256 session tokens signed with the app secret.
type SessionTokenValidator struct {
	secret   []byte
	apiKey   string
	leeway   time.Duration
	timeFunc func() time.Time
}

// NewSessionTokenValidator creates a validator. apiKey, when set, must match the aud claim.
func NewSessionTokenValidator(secret, apiKey string) (*SessionTokenValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("app secret is required")
	}
	return &SessionTokenValidator{
		secret:   []byte(secret),
		apiKey:   apiKey,
		leeway:   5 * time.Second,
		timeFunc: time.Now,
	}, nil
}

// Validate checks the token and returns the shop domain it was issued for.
func (v *SessionTokenValidator) Validate(ctx context.Context, token string) (shop string, err error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.timeFunc),
	}
	if v.apiKey != "" {
		opts = append(opts, jwt.WithAudience(v.apiKey))
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to parse session token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("invalid token")
	}

	shop, err = shopFromDest(claims.Dest)
	if err != nil {
		return "", fmt.Errorf("claim validation failed: %w", err)
	}
	return shop, nil
}

func shopFromDest(dest string) (string, error) {
	if strings.TrimSpace(dest) == "" {
		return "", fmt.Errorf("dest claim is missing")
	}
	u, err := url.Parse(dest)
	if err != nil {
		return "", fmt.Errorf("dest claim is not a url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("dest claim has no host")
	}
	return u.Hostname(), nil
}

// ExtractTokenFromAuthHeader extracts the token from an Authorization header
func ExtractTokenFromAuthHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}

	return authHeader
}
