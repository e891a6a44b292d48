// Package identitytest mints tokens and runs a stand-in OpenID Connect realm for tests.
package identitytest

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// hmacKey signs tokens that are only ever decoded, never verified
var hmacKey = []byte("identitytest")

// TokenOption customises the claims of a minted token
type TokenOption func(jwtlib.MapClaims)

func WithSubject(sub string) TokenOption {
	return func(c jwtlib.MapClaims) { c["sub"] = sub }
}

func WithUsername(username string) TokenOption {
	return func(c jwtlib.MapClaims) { c["preferred_username"] = username }
}

func WithRealmRoles(roles ...string) TokenOption {
	return func(c jwtlib.MapClaims) {
		list := make([]any, 0, len(roles))
		for _, r := range roles {
			list = append(list, r)
		}
		c["realm_access"] = map[string]any{"roles": list}
	}
}

func WithClaim(key string, value any) TokenOption {
	return func(c jwtlib.MapClaims) { c[key] = value }
}

// Claims builds a Keycloak-shaped access token claim set expiring at exp
func Claims(exp time.Time, opts ...TokenOption) jwtlib.MapClaims {
	claims := jwtlib.MapClaims{
		"sub":                "user-1",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"given_name":         "Jane",
		"family_name":        "Doe",
		"name":               "Jane Doe",
		"realm_access":       map[string]any{"roles": []any{"user", "offline_access"}},
		"iat":                exp.Add(-5 * time.Minute).Unix(),
		"exp":                exp.Unix(),
		"jti":                uuid.NewString(),
	}
	for _, opt := range opts {
		opt(claims)
	}
	return claims
}

// AccessToken mints an HS256 token expiring at exp. It panics on signing
// failure, which cannot happen with a fixed HMAC key.
func AccessToken(exp time.Time, opts ...TokenOption) string {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims(exp, opts...))
	signed, err := token.SignedString(hmacKey)
	if err != nil {
		panic(err)
	}
	return signed
}
