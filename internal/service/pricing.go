package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate applied when the restaurant has no rate of its own
var DefaultTaxRate = decimal.RequireFromString("0.10")

const (
	minEstimatedMinutes = 5
	maxEstimatedMinutes = 60
)

// pricedLine one order line with the menu snapshot taken at creation time
type pricedLine struct {
	MenuItemID      string
	Name            string
	UnitPrice       decimal.Decimal
	Quantity        int
	PrepTimeMinutes int
	SpecialRequests *string
}

func (l pricedLine) total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// priceOrder subtotal = sum(unit x qty), tax = subtotal x rate rounded to cents,
// total = subtotal + tax.
func priceOrder(lines []pricedLine, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.total())
	}
	subtotal = subtotal.Round(2)
	tax = subtotal.Mul(taxRate).Round(2)
	total = subtotal.Add(tax)
	return subtotal, tax, total
}

// estimateMinutes clamp(maxPrep + ceil(sum(prep x qty) / 10), 5, 60)
func estimateMinutes(lines []pricedLine) int {
	maxPrep, load := 0, 0
	for _, l := range lines {
		prep := l.PrepTimeMinutes
		if prep > maxPrep {
			maxPrep = prep
		}
		load += prep * l.Quantity
	}
	est := maxPrep + (load+9)/10
	if est < minEstimatedMinutes {
		return minEstimatedMinutes
	}
	if est > maxEstimatedMinutes {
		return maxEstimatedMinutes
	}
	return est
}

// dayWindow [start, end) of the UTC calendar day containing t
func dayWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// formatOrderNumber ORD-YYYYMMDD-NNN; seq is 1-based and widens past 999.
func formatOrderNumber(day time.Time, seq int) string {
	return fmt.Sprintf("ORD-%s-%03d", day.UTC().Format("20060102"), seq)
}
