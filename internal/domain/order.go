package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus order lifecycle state
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// AllOrderStatuses every state, in lifecycle order
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// from -> allowed targets; the empty status is "no prior status".
var orderTransitions = map[OrderStatus][]OrderStatus{
	"":                   {OrderStatusPending},
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ParseOrderStatus ok is false for anything outside the lifecycle
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	if st == "" {
		return "", false
	}
	_, ok := orderTransitions[st]
	return st, ok
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal DELIVERED and CANCELLED
func (s OrderStatus) Terminal() bool {
	targets, ok := orderTransitions[s]
	return ok && s != "" && len(targets) == 0
}

// Order order aggregate (orders table)
type Order struct {
	ID            string
	RestaurantID  string
	TableID       *string
	OrderNumber   string
	Status        OrderStatus
	Version       int64
	CustomerName  *string
	CustomerPhone *string
	Notes         *string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	EstimatedTime int
	RequestID     *string
	PlacedBy      *string
	PlacedAt      time.Time
	ConfirmedAt   *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items []OrderItem
}

// OrderItem order line; UnitPrice is the menu price captured at order time
type OrderItem struct {
	ID              string
	OrderID         string
	MenuItemID      string
	Name            string
	Quantity        int
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	SpecialRequests *string
}
