package repository

import (
	"context"
	"fmt"

	"dineflow/internal/domain"
)

// MembershipResolver looks up memberships for token resolution. It reads the store
// directly: it runs before a tenant context exists, so it cannot go through the
// gateway.
type MembershipResolver struct {
	store Store
}

func NewMembershipResolver(store Store) *MembershipResolver {
	return &MembershipResolver{store: store}
}

// ActiveMembership returns domain.ErrNotFound when the user has no active membership.
func (r *MembershipResolver) ActiveMembership(ctx context.Context, userID, restaurantID string) (*domain.Membership, error) {
	if userID == "" || restaurantID == "" {
		return nil, fmt.Errorf("%w: user_id and restaurant_id are required", domain.ErrNotFound)
	}

	recs, err := r.store.Find(ctx, domain.EntityMembership, Query{
		Where: []Cond{
			Eq("user_id", userID),
			Eq("restaurant_id", restaurantID),
			Eq("is_active", true),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query membership: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: membership user_id=%s restaurant_id=%s", domain.ErrNotFound, userID, restaurantID)
	}
	return MembershipFromRecord(recs[0]), nil
}

// MembershipFromRecord converts a memberships row
func MembershipFromRecord(rec Record) *domain.Membership {
	role, _ := domain.ParseRole(AsString(rec["role"]))
	return &domain.Membership{
		ID:           AsString(rec["id"]),
		UserID:       AsString(rec["user_id"]),
		RestaurantID: AsString(rec["restaurant_id"]),
		Role:         role,
		IsActive:     AsBool(rec["is_active"]),
		InvitedBy:    AsStringPtr(rec["invited_by"]),
	}
}
