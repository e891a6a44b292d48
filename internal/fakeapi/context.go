package fakeapi

import (
	"context"

	"github.com/jrsteele09/go-ticket-client/identity"
)

func withClaims(ctx context.Context, c *identity.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func claimsFrom(ctx context.Context) *identity.Claims {
	c, _ := ctx.Value(claimsKey{}).(*identity.Claims)
	return c
}
