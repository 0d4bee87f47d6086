package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/portal-crm-backend/pkg/enums"
)

type principalKey struct{}

// Principal is the authenticated caller. SessionID is the token jti.
type Principal struct {
	UserID    uuid.UUID
	Role      enums.MemberRole
	SessionID string
}

// WithPrincipal stores p on ctx for downstream handlers.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the caller set by Auth, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserIDFromContext returns the caller's id, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.UserID == uuid.Nil {
		return ""
	}
	return p.UserID.String()
}

func RoleFromContext(ctx context.Context) enums.MemberRole {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}
