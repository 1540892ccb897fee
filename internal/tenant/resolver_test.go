package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dineflow/internal/domain"
)

type fakeMemberships map[string]*domain.Membership

func (f fakeMemberships) ActiveMembership(ctx context.Context, userID, restaurantID string) (*domain.Membership, error) {
	if m, ok := f[userID+"|"+restaurantID]; ok {
		return m, nil
	}
	return nil, domain.ErrNotFound
}

func newTestResolver() *Resolver {
	return NewResolver("test-secret", fakeMemberships{
		"u1|r1": {UserID: "u1", RestaurantID: "r1", Role: domain.RoleManager, IsActive: true},
		"u2|r1": {UserID: "u2", RestaurantID: "r1", Role: domain.RoleStaff, IsActive: false},
	}, func(r domain.Role) []string { return []string{string(r) + ":perm"} })
}

func TestResolve_MemberRoleComesFromMembership(t *testing.T) {
	r := newTestResolver()
	// the role claim is ignored for members
	token, err := r.Issue("u1", "r1", domain.RoleOwner, time.Hour)
	require.NoError(t, err)

	tc, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", tc.UserID)
	assert.Equal(t, "r1", tc.RestaurantID)
	assert.Equal(t, domain.RoleManager, tc.Role)
	assert.True(t, tc.HasPermission("MANAGER:perm"))
	assert.False(t, tc.Guest())
}

func TestResolve_NoMembershipIsDenied(t *testing.T) {
	r := newTestResolver()
	token, err := r.Issue("u1", "r2", domain.RoleOwner, time.Hour)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	token, err = r.Issue("u2", "r1", domain.RoleStaff, time.Hour)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestResolve_Guest(t *testing.T) {
	r := newTestResolver()
	token, err := r.Issue("", "r1", domain.RoleCustomer, time.Hour)
	require.NoError(t, err)

	tc, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, tc.Guest())
	assert.True(t, tc.Scoped())
	assert.Equal(t, domain.RoleCustomer, tc.Role)

	token, err = r.Issue("", "r1", domain.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestResolve_GlobalIdentity(t *testing.T) {
	r := newTestResolver()
	token, err := r.Issue("u9", "", domain.RoleOwner, time.Hour)
	require.NoError(t, err)

	tc, err := r.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.False(t, tc.Scoped())
	assert.Equal(t, domain.RoleCustomer, tc.Role)
}

func TestResolve_RejectsBadTokens(t *testing.T) {
	r := newTestResolver()

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = r.Resolve(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	expired, err := r.Issue("u1", "r1", domain.RoleStaff, -time.Minute)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), expired)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	other := NewResolver("other-secret", nil, nil)
	forged, err := other.Issue("u1", "r1", domain.RoleStaff, time.Hour)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), forged)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, &Claims{
		RestaurantID: "r1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), hs384)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

type failingMemberships struct{}

func (failingMemberships) ActiveMembership(ctx context.Context, userID, restaurantID string) (*domain.Membership, error) {
	return nil, errors.New("connection reset")
}

func TestResolve_LookupFailureIsNotADenial(t *testing.T) {
	r := NewResolver("test-secret", failingMemberships{}, nil)
	token, err := r.Issue("u1", "r1", domain.RoleStaff, time.Hour)
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), token)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPermissionDenied)
	assert.NotErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestWithContext_CopiesPermissions(t *testing.T) {
	perms := []string{"Order:read"}
	ctx := WithContext(context.Background(), Context{UserID: "u1", RestaurantID: "r1", Role: domain.RoleStaff, Permissions: perms})
	perms[0] = "Order:delete"

	tc, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"Order:read"}, tc.Permissions)
	assert.Equal(t, domain.RoleStaff, tc.EffectiveRole())

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
