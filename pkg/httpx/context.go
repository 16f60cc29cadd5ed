package httpx

import (
	"context"

	"github.com/aussiebroadwan/schoolgate/pkg/jwtx"
	"github.com/aussiebroadwan/schoolgate/pkg/rbac"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyClaims ctxKey = "claims"
)

// ContextWithClaims attaches verified session claims to ctx.
func ContextWithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}

// ClaimsFromContext returns the claims the Gate attached, if any.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// RoleFromContext returns the caller's role, or PUBLIC when unauthenticated.
func RoleFromContext(ctx context.Context) rbac.Role {
	if c, ok := ClaimsFromContext(ctx); ok {
		return c.Role
	}
	return rbac.RolePublic
}
