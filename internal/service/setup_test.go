package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dineflow/internal/audit"
	"dineflow/internal/domain"
	"dineflow/internal/gateway"
	"dineflow/internal/idempotency"
	"dineflow/internal/notify"
	"dineflow/internal/repository"
	"dineflow/internal/store"
	"dineflow/internal/tenant"
)

const (
	restaurantA = "r-a"
	restaurantB = "r-b"

	itemBurger   = "mi-burger"
	itemSoda     = "mi-soda"
	itemSoldOut  = "mi-soldout"
	itemOldMenu  = "mi-oldmenu"
	itemOtherTen = "mi-other"

	tableActive   = "tbl-1"
	tableInactive = "tbl-2"
	tableOther    = "tbl-b"
)

var fixedNow = time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)

type capturedEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *capturedEvents) Dispatch(ctx context.Context, ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturedEvents) all() []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Event(nil), c.events...)
}

type testEnv struct {
	mem         *repository.MemoryStore
	gw          *gateway.Gateway
	recorder    *audit.Recorder
	orders      *OrderService
	memberships *MembershipService
	events      *capturedEvents
}

func setupEnv(t *testing.T, extra ...gateway.Interceptor) *testEnv {
	t.Helper()
	mem := repository.NewMemoryStore()
	seedMenu(t, mem)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := zap.NewNop()
	recorder := audit.NewRecorder(repository.NewAuditLogRepository(mem), logger)
	interceptors := append([]gateway.Interceptor{gateway.Access(logger), gateway.Scope()}, extra...)
	interceptors = append(interceptors, recorder.Interceptor())
	gw := gateway.New(mem, interceptors...)

	coordinator := idempotency.NewCoordinator(store.NewRedisKV(client), idempotency.Config{
		RetryDelay: 5 * time.Millisecond,
		MaxRetries: 400,
	}, logger)
	events := &capturedEvents{}

	orders := NewOrderService(gw, coordinator, events, OrderServiceConfig{}, logger)
	orders.now = func() time.Time { return fixedNow }
	memberships := NewMembershipService(gw, logger)
	memberships.now = func() time.Time { return fixedNow }

	return &testEnv{mem: mem, gw: gw, recorder: recorder, orders: orders, memberships: memberships, events: events}
}

func seedMenu(t *testing.T, mem *repository.MemoryStore) {
	t.Helper()
	rows := []struct {
		e   domain.Entity
		rec repository.Record
	}{
		{domain.EntityRestaurant, repository.Record{"id": restaurantA, "name": "A", "timezone": "UTC"}},
		{domain.EntityRestaurant, repository.Record{"id": restaurantB, "name": "B", "timezone": "UTC", "tax_rate": decimal.RequireFromString("0.08")}},
		{domain.EntityMenuVersion, repository.Record{"id": "mv-a", "restaurant_id": restaurantA, "status": domain.MenuVersionStatusActive}},
		{domain.EntityMenuVersion, repository.Record{"id": "mv-a-old", "restaurant_id": restaurantA, "status": "ARCHIVED"}},
		{domain.EntityMenuVersion, repository.Record{"id": "mv-b", "restaurant_id": restaurantB, "status": domain.MenuVersionStatusActive}},
		{domain.EntityMenuItem, repository.Record{"id": itemBurger, "restaurant_id": restaurantA, "menu_version_id": "mv-a", "name": "Burger", "price": decimal.RequireFromString("12.99"), "status": domain.MenuItemStatusAvailable, "prep_time_minutes": int64(12)}},
		{domain.EntityMenuItem, repository.Record{"id": itemSoda, "restaurant_id": restaurantA, "menu_version_id": "mv-a", "name": "Soda", "price": decimal.RequireFromString("2.50"), "status": domain.MenuItemStatusAvailable}},
		{domain.EntityMenuItem, repository.Record{"id": itemSoldOut, "restaurant_id": restaurantA, "menu_version_id": "mv-a", "name": "Special", "price": decimal.RequireFromString("20.00"), "status": domain.MenuItemStatusUnavailable}},
		{domain.EntityMenuItem, repository.Record{"id": itemOldMenu, "restaurant_id": restaurantA, "menu_version_id": "mv-a-old", "name": "Retired", "price": decimal.RequireFromString("9.00"), "status": domain.MenuItemStatusAvailable}},
		{domain.EntityMenuItem, repository.Record{"id": itemOtherTen, "restaurant_id": restaurantB, "menu_version_id": "mv-b", "name": "Noodles", "price": decimal.RequireFromString("10.00"), "status": domain.MenuItemStatusAvailable, "prep_time_minutes": int64(8)}},
		{domain.EntityTable, repository.Record{"id": tableActive, "restaurant_id": restaurantA, "label": "T1", "is_active": true}},
		{domain.EntityTable, repository.Record{"id": tableInactive, "restaurant_id": restaurantA, "label": "T2", "is_active": false}},
		{domain.EntityTable, repository.Record{"id": tableOther, "restaurant_id": restaurantB, "label": "B1", "is_active": true}},
	}
	for _, r := range rows {
		_, err := mem.Insert(context.Background(), r.e, r.rec)
		require.NoError(t, err)
	}
}

func callerCtx(userID, restaurantID string, role domain.Role) context.Context {
	return tenant.WithContext(context.Background(), tenant.Context{UserID: userID, RestaurantID: restaurantID, Role: role})
}

func strPtr(s string) *string { return &s }

func auditRows(t *testing.T, mem *repository.MemoryStore, action domain.AuditAction) []repository.Record {
	t.Helper()
	recs, err := mem.Find(context.Background(), domain.EntityAuditLog, repository.Query{
		Where: []repository.Cond{repository.Eq("action", string(action))},
	})
	require.NoError(t, err)
	return recs
}
