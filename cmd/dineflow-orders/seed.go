package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dineflow/internal/domain"
	"dineflow/internal/repository"
	"dineflow/internal/tenant"
)

// Fixed dev ids so tokens stay valid across restarts
const (
	devRestaurantID = "00000000-0000-0000-0000-000000000001"
	devOwnerID      = "00000000-0000-0000-0000-000000000002"
	devMenuID       = "00000000-0000-0000-0000-000000000003"
	devTableID      = "00000000-0000-0000-0000-000000000004"
)

// seedDevData populates the memory store with one restaurant, an owner, an active
// menu and a table, and logs tokens for trying the API without a database.
func seedDevData(ctx context.Context, mem *repository.MemoryStore, resolver *tenant.Resolver, log *zap.Logger) error {
	rows := []struct {
		e   domain.Entity
		rec repository.Record
	}{
		{domain.EntityRestaurant, repository.Record{"id": devRestaurantID, "name": "Dev Bistro", "timezone": "UTC", "status": "ACTIVE"}},
		{domain.EntityUser, repository.Record{"id": devOwnerID, "email": "owner@dev.local", "display_name": "Dev Owner"}},
		{domain.EntityMembership, repository.Record{"id": "00000000-0000-0000-0000-000000000005", "user_id": devOwnerID, "restaurant_id": devRestaurantID, "role": string(domain.RoleOwner), "is_active": true}},
		{domain.EntityMenuVersion, repository.Record{"id": devMenuID, "restaurant_id": devRestaurantID, "name": "All day", "status": domain.MenuVersionStatusActive}},
		{domain.EntityMenuItem, repository.Record{"id": "00000000-0000-0000-0000-000000000006", "restaurant_id": devRestaurantID, "menu_version_id": devMenuID, "name": "Margherita", "price": decimal.RequireFromString("12.99"), "status": domain.MenuItemStatusAvailable, "prep_time_minutes": int64(12)}},
		{domain.EntityMenuItem, repository.Record{"id": "00000000-0000-0000-0000-000000000007", "restaurant_id": devRestaurantID, "menu_version_id": devMenuID, "name": "Lemonade", "price": decimal.RequireFromString("3.50"), "status": domain.MenuItemStatusAvailable, "prep_time_minutes": int64(2)}},
		{domain.EntityTable, repository.Record{"id": devTableID, "restaurant_id": devRestaurantID, "label": "T1", "is_active": true}},
	}
	for _, r := range rows {
		if _, err := mem.Insert(ctx, r.e, r.rec); err != nil {
			return err
		}
	}

	owner, err := resolver.Issue(devOwnerID, devRestaurantID, domain.RoleOwner, 24*time.Hour)
	if err != nil {
		return err
	}
	guest, err := resolver.Issue("", devRestaurantID, domain.RoleCustomer, 24*time.Hour)
	if err != nil {
		return err
	}
	log.Info("Seeded dev data in memory store",
		zap.String("restaurant_id", devRestaurantID),
		zap.String("table_id", devTableID),
		zap.String("owner_token", owner),
		zap.String("guest_token", guest),
	)
	return nil
}
