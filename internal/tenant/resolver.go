package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dineflow/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// MembershipLookup returns the active membership of userID in restaurantID, or an
// error wrapping domain.ErrNotFound.
type MembershipLookup interface {
	ActiveMembership(ctx context.Context, userID, restaurantID string) (*domain.Membership, error)
}

// Claims token payload; Subject is the user id (empty for guest tokens)
type Claims struct {
	RestaurantID string `json:"restaurant_id,omitempty"`
	Role         string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Resolver turns a signed token into a Context
type Resolver struct {
	secret      []byte
	memberships MembershipLookup
	permissions func(domain.Role) []string
	now         func() time.Time
}

// NewResolver permissions may be nil
func NewResolver(secret string, memberships MembershipLookup, permissions func(domain.Role) []string) *Resolver {
	return &Resolver{
		secret:      []byte(secret),
		memberships: memberships,
		permissions: permissions,
		now:         time.Now,
	}
}

// Resolve verifies token and loads the caller's role.
//   - user + restaurant: role comes from the active membership; none means denied
//   - user only: global identity, CUSTOMER with no tenant scope
//   - guest (no subject): CUSTOMER, optionally scoped to a restaurant (table QR codes)
func (r *Resolver) Resolve(ctx context.Context, token string) (Context, error) {
	if token == "" {
		return Context{}, fmt.Errorf("%w: missing token", domain.ErrUnauthenticated)
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.now),
	)
	if err != nil || !parsed.Valid {
		return Context{}, fmt.Errorf("%w: invalid token: %v", domain.ErrUnauthenticated, err)
	}

	tc := Context{
		UserID:       claims.Subject,
		RestaurantID: claims.RestaurantID,
		Role:         domain.RoleCustomer,
	}

	switch {
	case tc.UserID == "":
		if claims.Role != "" {
			if role, ok := domain.ParseRole(claims.Role); !ok || role != domain.RoleCustomer {
				return Context{}, fmt.Errorf("%w: guest tokens are limited to CUSTOMER", domain.ErrUnauthenticated)
			}
		}
	case tc.RestaurantID != "":
		m, err := r.memberships.ActiveMembership(ctx, tc.UserID, tc.RestaurantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return Context{}, fmt.Errorf("%w: no active membership in restaurant %s", domain.ErrPermissionDenied, tc.RestaurantID)
			}
			return Context{}, fmt.Errorf("failed to load membership: %w", err)
		}
		if !m.IsActive || !m.Role.Valid() {
			return Context{}, fmt.Errorf("%w: membership is not active", domain.ErrPermissionDenied)
		}
		tc.Role = m.Role
	}

	if r.permissions != nil {
		tc.Permissions = r.permissions(tc.Role)
	}
	return tc, nil
}

// Issue signs a token; used by the dev bootstrap and tests.
func (r *Resolver) Issue(userID, restaurantID string, role domain.Role, ttl time.Duration) (string, error) {
	now := r.now()
	claims := &Claims{
		RestaurantID: restaurantID,
		Role:         string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
