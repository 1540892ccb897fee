package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dineflow/internal/domain"
	"dineflow/internal/gateway"
	"dineflow/internal/repository"
	"dineflow/internal/tenant"
)

// MembershipService grants and revokes restaurant roles. Memberships are
// deactivated, never deleted.
type MembershipService struct {
	gw     *gateway.Gateway
	logger *zap.Logger
	now    func() time.Time
}

func NewMembershipService(gw *gateway.Gateway, logger *zap.Logger) *MembershipService {
	return &MembershipService{gw: gw, logger: logger, now: time.Now}
}

// InviteRequest grant role to user in the caller's restaurant
type InviteRequest struct {
	UserID string
	Role   string
}

// Invite creates or reactivates a membership. Nobody can grant a role above their
// own or modify a member who outranks them.
func (s *MembershipService) Invite(ctx context.Context, req InviteRequest) (*domain.Membership, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, req.Role)
	}
	if role.Rank() > tc.Role.Rank() {
		return nil, fmt.Errorf("%w: cannot grant %s as %s", domain.ErrPermissionDenied, role, tc.Role)
	}

	var out *domain.Membership
	err := s.gw.InTx(ctx, func(ctx context.Context, tx *gateway.Gateway) error {
		existing, err := tx.Find(ctx, domain.EntityMembership, repository.Query{
			Where: []repository.Cond{repository.Eq("user_id", req.UserID)},
			Limit: 1,
		})
		if err != nil {
			return err
		}
		if len(existing) == 1 {
			current := repository.MembershipFromRecord(existing[0])
			if current.Role.Rank() > tc.Role.Rank() {
				return fmt.Errorf("%w: member outranks caller", domain.ErrPermissionDenied)
			}
		}

		now := s.now().UTC()
		rec := repository.Record{
			"id":         uuid.NewString(),
			"user_id":    req.UserID,
			"role":       string(role),
			"is_active":  true,
			"created_at": now,
			"updated_at": now,
		}
		if tc.UserID != "" {
			rec["invited_by"] = tc.UserID
		}
		saved, err := tx.Upsert(ctx, domain.EntityMembership, []string{"user_id", "restaurant_id"}, rec)
		if err != nil {
			return err
		}
		out = repository.MembershipFromRecord(saved)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Membership granted",
		zap.String("user_id", out.UserID),
		zap.String("restaurant_id", out.RestaurantID),
		zap.String("role", string(out.Role)),
	)
	return out, nil
}

// Deactivate soft-removes userID from the caller's restaurant.
func (s *MembershipService) Deactivate(ctx context.Context, userID string) (*domain.Membership, error) {
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	if userID == tc.UserID {
		return nil, fmt.Errorf("%w: cannot deactivate your own membership", domain.ErrInvalidInput)
	}

	var out *domain.Membership
	err := s.gw.InTx(ctx, func(ctx context.Context, tx *gateway.Gateway) error {
		rec, err := tx.FindOne(ctx, domain.EntityMembership, repository.Eq("user_id", userID))
		if err != nil {
			return err
		}
		current := repository.MembershipFromRecord(rec)
		if current.Role.Rank() > tc.Role.Rank() {
			return fmt.Errorf("%w: member outranks caller", domain.ErrPermissionDenied)
		}

		recs, err := tx.Update(ctx, domain.EntityMembership, repository.Record{
			"is_active":  false,
			"updated_at": s.now().UTC(),
		}, repository.Eq("id", current.ID))
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("%w: membership %s", domain.ErrNotFound, current.ID)
		}
		out = repository.MembershipFromRecord(recs[0])
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Membership deactivated",
		zap.String("user_id", out.UserID),
		zap.String("restaurant_id", out.RestaurantID),
	)
	return out, nil
}
