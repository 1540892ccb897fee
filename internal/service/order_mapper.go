package service

import (
	"dineflow/internal/domain"
	"dineflow/internal/repository"
)

func orderFromRecord(rec repository.Record) *domain.Order {
	status, _ := domain.ParseOrderStatus(repository.AsString(rec["status"]))
	return &domain.Order{
		ID:            repository.AsString(rec["id"]),
		RestaurantID:  repository.AsString(rec["restaurant_id"]),
		TableID:       repository.AsStringPtr(rec["table_id"]),
		OrderNumber:   repository.AsString(rec["order_number"]),
		Status:        status,
		Version:       repository.AsInt64(rec["version"]),
		CustomerName:  repository.AsStringPtr(rec["customer_name"]),
		CustomerPhone: repository.AsStringPtr(rec["customer_phone"]),
		Notes:         repository.AsStringPtr(rec["notes"]),
		Subtotal:      repository.AsDecimal(rec["subtotal"]),
		Tax:           repository.AsDecimal(rec["tax"]),
		Total:         repository.AsDecimal(rec["total"]),
		EstimatedTime: int(repository.AsInt64(rec["estimated_time"])),
		RequestID:     repository.AsStringPtr(rec["request_id"]),
		PlacedBy:      repository.AsStringPtr(rec["placed_by"]),
		PlacedAt:      repository.AsTime(rec["placed_at"]),
		ConfirmedAt:   repository.AsTimePtr(rec["confirmed_at"]),
		CompletedAt:   repository.AsTimePtr(rec["completed_at"]),
		CreatedAt:     repository.AsTime(rec["created_at"]),
		UpdatedAt:     repository.AsTime(rec["updated_at"]),
	}
}

func orderItemFromRecord(rec repository.Record) domain.OrderItem {
	return domain.OrderItem{
		ID:              repository.AsString(rec["id"]),
		OrderID:         repository.AsString(rec["order_id"]),
		MenuItemID:      repository.AsString(rec["menu_item_id"]),
		Name:            repository.AsString(rec["name"]),
		Quantity:        int(repository.AsInt64(rec["quantity"])),
		UnitPrice:       repository.AsDecimal(rec["unit_price"]),
		TotalPrice:      repository.AsDecimal(rec["total_price"]),
		SpecialRequests: repository.AsStringPtr(rec["special_requests"]),
	}
}

func menuItemFromRecord(rec repository.Record) domain.MenuItem {
	prep := domain.DefaultPrepTimeMinutes
	if p := repository.AsIntPtr(rec["prep_time_minutes"]); p != nil {
		prep = *p
	}
	return domain.MenuItem{
		ID:              repository.AsString(rec["id"]),
		RestaurantID:    repository.AsString(rec["restaurant_id"]),
		MenuVersionID:   repository.AsString(rec["menu_version_id"]),
		Name:            repository.AsString(rec["name"]),
		Price:           repository.AsDecimal(rec["price"]),
		Status:          repository.AsString(rec["status"]),
		PrepTimeMinutes: prep,
	}
}
