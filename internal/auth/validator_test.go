package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "shpss_test_secret"
	testAPIKey = "app-api-key"
)

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims SessionClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(now time.Time) SessionClaims {
	return SessionClaims{
		Dest: "https://acme.myshopify.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://acme.myshopify.com/admin",
			Audience:  jwt.ClaimStrings{testAPIKey},
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func TestSessionTokenValidator_Validate(t *testing.T) {
	now := time.Now()
	v, err := NewSessionTokenValidator(testSecret, testAPIKey)
	require.NoError(t, err)

	expired := validClaims(now)
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))

	wrongAudience := validClaims(now)
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}

	noDest := validClaims(now)
	noDest.Dest = ""

	noExp := validClaims(now)
	noExp.ExpiresAt = nil

	tests := []struct {
		name     string
		token    string
		expected string
		wantErr  bool
	}{
		{name: "empty token", token: "", wantErr: true},
		{name: "valid", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(now)), expected: "acme.myshopify.com"},
		{name: "bearer prefix", token: "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(now)), expected: "acme.myshopify.com"},
		{name: "wrong secret", token: sign(t, jwt.SigningMethodHS256, []byte("nope"), validClaims(now)), wantErr: true},
		{name: "wrong algorithm", token: sign(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims(now)), wantErr: true},
		{name: "expired", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), expired), wantErr: true},
		{name: "wrong audience", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAudience), wantErr: true},
		{name: "missing dest", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), noDest), wantErr: true},
		{name: "missing exp", token: sign(t, jwt.SigningMethodHS256, []byte(testSecret), noExp), wantErr: true},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shop, err := v.Validate(context.Background(), tt.token)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, shop)
		})
	}
}

func TestNewSessionTokenValidator_RequiresSecret(t *testing.T) {
	_, err := NewSessionTokenValidator("", testAPIKey)
	require.Error(t, err)
}

func TestExtractTokenFromAuthHeader(t *testing.T) {
	tests := []struct {
		name       string
		authHeader string
		expected   string
	}{
		{name: "empty header", authHeader: "", expected: ""},
		{name: "bearer token", authHeader: "Bearer abc.def.ghi", expected: "abc.def.ghi"},
		{name: "token without bearer", authHeader: "abc.def.ghi", expected: "abc.def.ghi"},
		{name: "lowercase bearer", authHeader: "bearer abc.def.ghi", expected: "abc.def.ghi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractTokenFromAuthHeader(tt.authHeader))
		})
	}
}
