package cart

import "github.com/shopspring/decimal"

// Line is a cart item with its computed subtotal
type Line struct {
	Item
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Snapshot is an immutable view of a cart.
// Total is the amount due: Subtotal - Discount, rounded and floored at zero.
type Snapshot struct {
	Lines    []Line          `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// IsEmpty reports whether the snapshot has no lines
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}
