package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dineflow/internal/access"
	"dineflow/internal/domain"
	"dineflow/internal/repository"
	"dineflow/internal/tenant"
)

// Access rejects calls the caller's role does not permit. A call without a tenant
// context is unauthenticated.
func Access(logger *zap.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, store repository.Store, call *Call) (*Result, error) {
			tc, ok := tenant.FromContext(ctx)
			if !ok {
				return nil, domain.ErrUnauthenticated
			}
			d := access.Evaluate(tc, call.Entity, call.Op)
			if !d.Allowed {
				logger.Warn("Access denied",
					zap.String("user_id", tc.UserID),
					zap.String("restaurant_id", tc.RestaurantID),
					zap.String("entity", call.Entity.String()),
					zap.String("op", string(call.Op)),
					zap.String("reason", d.Reason),
				)
				return nil, fmt.Errorf("%w: %s", domain.ErrPermissionDenied, d.Reason)
			}
			return next(ctx, store, call)
		}
	}
}
