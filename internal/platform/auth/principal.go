package auth

import "context"

type contextKey string

const principalKey contextKey = "principal"

// Role identifies which side of a case the authenticated user is on.
type Role string

const (
	RoleLawyer Role = "lawyer"
	RoleClient Role = "client"
)

// Principal is the authenticated identity attached to every request.
type Principal struct {
	Role Role
	ID   int64
}

func (p Principal) IsLawyer() bool { return p.Role == RoleLawyer }
func (p Principal) IsClient() bool { return p.Role == RoleClient }

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
