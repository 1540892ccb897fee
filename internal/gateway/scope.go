package gateway

import (
	"context"
	"fmt"

	"dineflow/internal/access"
	"dineflow/internal/domain"
	"dineflow/internal/repository"
	"dineflow/internal/tenant"
)

// Scope confines every call on a tenant-scoped entity to the caller's restaurant.
//
// Reads, updates and deletes get the restaurant predicate appended to their where
// clause. Creates and upserts get the restaurant column forced onto the data. A
// caller that names a different restaurant explicitly is denied rather than silently
// rewritten. Entities scoped through a parent (order_items via orders) are filtered
// with a sub-select on the parent, and creates must reference an in-scope parent.
func Scope() Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, store repository.Store, call *Call) (*Result, error) {
			meta, ok := call.Entity.Meta()
			if !ok || meta.Scope == nil {
				return next(ctx, store, call)
			}
			tc, ok := tenant.FromContext(ctx)
			if !ok {
				return nil, domain.ErrUnauthenticated
			}
			if tc.RestaurantID == "" {
				return nil, fmt.Errorf("%w: %s requires a restaurant context", domain.ErrPermissionDenied, call.Entity)
			}

			scoped, err := applyScope(ctx, store, call, *meta.Scope, tc.RestaurantID)
			if err != nil {
				return nil, err
			}
			return next(ctx, store, scoped)
		}
	}
}

func applyScope(ctx context.Context, store repository.Store, call *Call, sc domain.Scope, restaurantID string) (*Call, error) {
	out := call.Clone()
	if err := checkWhere(call.Entity, out.Query.Where, sc, restaurantID); err != nil {
		return nil, err
	}

	switch call.Op {
	case access.OpCreate, access.OpUpsert:
		if sc.Via == 0 {
			if v, set := out.Data[sc.Column]; set && v != nil && repository.AsString(v) != restaurantID {
				return nil, crossTenant(call.Entity)
			}
			out.Data[sc.Column] = restaurantID
			return out, nil
		}
		if err := checkParent(ctx, store, sc, out.Data[sc.Column], restaurantID); err != nil {
			return nil, err
		}
		return out, nil

	case access.OpUpdate:
		if v, set := out.Data[sc.Column]; set {
			if sc.Via != 0 || repository.AsString(v) != restaurantID {
				return nil, fmt.Errorf("%w: %s.%s cannot be changed", domain.ErrPermissionDenied, call.Entity, sc.Column)
			}
		}
	}

	out.Query.Where = append(out.Query.Where, scopeCond(sc, restaurantID))
	return out, nil
}

// scopeCond predicate selecting rows owned by restaurantID
func scopeCond(sc domain.Scope, restaurantID string) repository.Cond {
	if sc.Via == 0 {
		return repository.Eq(sc.Column, restaurantID)
	}
	parent, _ := sc.Via.Meta()
	return repository.InSelect(sc.Column, repository.SubSelect{
		Entity: sc.Via,
		Column: "id",
		Where:  []repository.Cond{scopeCond(*parent.Scope, restaurantID)},
	})
}

// checkWhere denies explicit predicates on the scope column naming another restaurant.
func checkWhere(e domain.Entity, where []repository.Cond, sc domain.Scope, restaurantID string) error {
	if sc.Via != 0 {
		return nil
	}
	for _, c := range where {
		if c.Column != sc.Column {
			continue
		}
		switch c.Op {
		case repository.OpEq:
			if repository.AsString(c.Value) != restaurantID {
				return crossTenant(e)
			}
		case repository.OpIn:
			for _, v := range inValues(c.Value) {
				if repository.AsString(v) != restaurantID {
					return crossTenant(e)
				}
			}
		}
	}
	return nil
}

func checkParent(ctx context.Context, store repository.Store, sc domain.Scope, parentID any, restaurantID string) error {
	if parentID == nil || repository.AsString(parentID) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, sc.Column)
	}
	parent, _ := sc.Via.Meta()
	n, err := store.Count(ctx, sc.Via, []repository.Cond{
		repository.Eq("id", parentID),
		scopeCond(*parent.Scope, restaurantID),
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return crossTenant(sc.Via)
	}
	return nil
}

func crossTenant(e domain.Entity) error {
	return fmt.Errorf("%w: %s belongs to another restaurant", domain.ErrPermissionDenied, e)
}

func inValues(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return []any{v}
}
