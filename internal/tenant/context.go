package tenant

import (
	"context"

	"dineflow/internal/domain"
)

// Context request-scoped caller identity. Built once per request by the Resolver
// and passed by value; nothing mutates it afterwards.
type Context struct {
	UserID       string
	RestaurantID string
	Role         domain.Role
	Permissions  []string
}

// EffectiveRole satisfies access.Subject
func (c Context) EffectiveRole() domain.Role {
	return c.Role
}

// Guest tokens carry no user id
func (c Context) Guest() bool {
	return c.UserID == ""
}

// Scoped reports whether the caller is bound to a restaurant
func (c Context) Scoped() bool {
	return c.RestaurantID != ""
}

// HasPermission reports whether "<Entity>:<op>" was granted at resolution time
func (c Context) HasPermission(p string) bool {
	for _, have := range c.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

type ctxKey struct{}

// WithContext attaches tc to ctx
func WithContext(ctx context.Context, tc Context) context.Context {
	perms := make([]string, len(tc.Permissions))
	copy(perms, tc.Permissions)
	tc.Permissions = perms
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the caller attached by WithContext
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}
