package identity

import (
	"fmt"
	"slices"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-ticket-client/internal/errors"
	"github.com/jrsteele09/go-ticket-client/internal/utils"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type Role string

const (
	RoleUser       Role = "USER"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

var knownRoles = []Role{RoleUser, RoleTechnician, RoleAdmin}

// Claims is the subset of access token claims the client relies on
type Claims struct {
	Subject    string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	Name       string
	RealmRoles []string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// User is the authenticated identity derived from the token
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	FullName  string `json:"fullName"`
	Roles     []Role `json:"roles"`
}

func (u User) HasRole(role Role) bool {
	return slices.Contains(u.Roles, role)
}

// ParseClaims decodes an access token without verifying its signature.
// The token has already been validated by the provider that issued it.
func ParseClaims(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.ErrInvalidToken
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidToken, "parse token: %v", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("error extracting claims: %w", errors.ErrInvalidToken)
	}

	c := &Claims{
		Subject:    utils.StringClaim(claims, "sub"),
		Username:   utils.StringClaim(claims, "preferred_username"),
		Email:      utils.StringClaim(claims, "email"),
		GivenName:  utils.StringClaim(claims, "given_name"),
		FamilyName: utils.StringClaim(claims, "family_name"),
		Name:       utils.StringClaim(claims, "name"),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if realmAccess, ok := claims["realm_access"].(map[string]any); ok {
		if roles, ok := realmAccess["roles"].([]any); ok {
			c.RealmRoles = utils.ToStringSlice(roles)
		}
	}
	return c, nil
}

// ExpiresIn returns the remaining validity relative to now. It is negative
// for expired tokens and zero when no expiry is known.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c == nil || c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Roles upper-cases the realm roles and keeps the ones the ticket API knows
func (c *Claims) Roles() []Role {
	roles := make([]Role, 0)
	for _, r := range c.RealmRoles {
		role := Role(strings.ToUpper(r))
		if slices.Contains(knownRoles, role) && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	return roles
}

func (c *Claims) User() User {
	return User{
		ID:        c.Subject,
		Username:  c.Username,
		Email:     c.Email,
		FirstName: c.GivenName,
		LastName:  c.FamilyName,
		FullName:  c.Name,
		Roles:     c.Roles(),
	}
}
