package domain

import "github.com/shopspring/decimal"

const (
	MenuItemStatusAvailable   = "AVAILABLE"
	MenuItemStatusUnavailable = "UNAVAILABLE"

	MenuVersionStatusActive = "ACTIVE"
)

// DefaultPrepTimeMinutes used when a menu item has no preparation time
const DefaultPrepTimeMinutes = 15

// MenuItem read-only view used by order pricing
type MenuItem struct {
	ID              string
	RestaurantID    string
	MenuVersionID   string
	Name            string
	Price           decimal.Decimal
	Status          string
	PrepTimeMinutes int
}

// Table dining table
type Table struct {
	ID           string
	RestaurantID string
	Label        string
	IsActive     bool
}
