// Package cart holds the in-progress sale of the till: ordered line items and
// a discount, validated against catalog stock on every mutation.
package cart

import (
	"context"
	"fmt"

	"pos-service/internal/models"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places money is rounded to
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Catalog is the read side of the catalog the cart validates against
type Catalog interface {
	FindProductByCode(ctx context.Context, code string) (*models.Product, error)
}

// Item is one cart line. UnitPrice is the catalog price when the line was
// first added.
type Item struct {
	ProductID int64           `json:"product_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Qty       int             `json:"qty"`
}

// Subtotal returns UnitPrice * Qty, unrounded
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Qty)))
}

// Cart is not safe for concurrent use.
type Cart struct {
	catalog  Catalog
	items    map[string]*Item
	order    []string
	discount decimal.Decimal
}

// New creates an empty cart backed by catalog
func New(catalog Catalog) *Cart {
	return &Cart{
		catalog:  catalog,
		items:    make(map[string]*Item),
		discount: decimal.Zero,
	}
}

// AddItem adds qty units of the product with this code, merging with an
// existing line. The merged quantity must not exceed current stock.
func (c *Cart) AddItem(ctx context.Context, code string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("add %q x%d: %w", code, qty, models.ErrInvalidQuantity)
	}

	product, err := c.lookup(ctx, code)
	if err != nil {
		return err
	}

	if existing, ok := c.items[code]; ok {
		if existing.Qty+qty > product.Stock {
			return fmt.Errorf("add %q: %d in cart + %d exceeds stock %d: %w",
				code, existing.Qty, qty, product.Stock, models.ErrInsufficientStock)
		}
		existing.Qty += qty
		return nil
	}

	if qty > product.Stock {
		return fmt.Errorf("add %q: %d exceeds stock %d: %w",
			code, qty, product.Stock, models.ErrInsufficientStock)
	}

	c.items[code] = &Item{
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		UnitPrice: product.UnitPrice,
		Qty:       qty,
	}
	c.order = append(c.order, code)
	return nil
}

// RemoveItem removes the line for code
func (c *Cart) RemoveItem(code string) error {
	if _, ok := c.items[code]; !ok {
		return fmt.Errorf("remove %q: %w", code, models.ErrItemNotInCart)
	}

	delete(c.items, code)
	for i, k := range c.order {
		if k == code {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// ChangeQty overwrites the quantity of the line for code. A quantity of zero
// or less removes the line.
func (c *Cart) ChangeQty(ctx context.Context, code string, qty int) error {
	item, ok := c.items[code]
	if !ok {
		return fmt.Errorf("change %q: %w", code, models.ErrItemNotInCart)
	}

	if qty <= 0 {
		return c.RemoveItem(code)
	}

	product, err := c.lookup(ctx, code)
	if err != nil {
		return err
	}

	if qty > product.Stock {
		return fmt.Errorf("change %q to %d: exceeds stock %d: %w",
			code, qty, product.Stock, models.ErrInsufficientStock)
	}

	item.Qty = qty
	return nil
}

// Total returns the sum of line subtotals
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, code := range c.order {
		total = total.Add(c.items[code].Subtotal())
	}
	return total
}

// Discount returns the absolute discount currently applied
func (c *Cart) Discount() decimal.Decimal {
	return c.discount
}

// ApplyDiscountPercent sets the discount to pct percent of the current total
func (c *Cart) ApplyDiscountPercent(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("percent %s outside [0,100]: %w", pct, models.ErrInvalidDiscount)
	}

	c.discount = c.Total().Mul(pct).Div(hundred).Round(MoneyPlaces)
	return nil
}

// ApplyDiscountAmount sets an absolute discount, at most the current total.
// Later item changes do not re-validate it.
func (c *Cart) ApplyDiscountAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || amount.GreaterThan(c.Total()) {
		return fmt.Errorf("amount %s outside [0,%s]: %w", amount, c.Total(), models.ErrInvalidDiscount)
	}

	c.discount = amount.Round(MoneyPlaces)
	return nil
}

// Clear empties the cart and resets the discount
func (c *Cart) Clear() {
	c.items = make(map[string]*Item)
	c.order = nil
	c.discount = decimal.Zero
}

// IsEmpty reports whether the cart has no lines
func (c *Cart) IsEmpty() bool {
	return len(c.order) == 0
}

// Items returns a copy of the lines in insertion order
func (c *Cart) Items() []Item {
	items := make([]Item, 0, len(c.order))
	for _, code := range c.order {
		items = append(items, *c.items[code])
	}
	return items
}

// Snapshot returns a read-only copy of the cart for display and receipts
func (c *Cart) Snapshot() Snapshot {
	items := c.Items()
	lines := make([]Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line{Item: item, Subtotal: item.Subtotal()})
	}

	total := c.Total()
	return Snapshot{
		Lines:    lines,
		Subtotal: total,
		Discount: c.discount,
		Total:    FinalTotal(total, c.discount),
	}
}

func (c *Cart) lookup(ctx context.Context, code string) (*models.Product, error) {
	product, err := c.catalog.FindProductByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", code, err)
	}
	if product == nil {
		return nil, fmt.Errorf("code %q: %w", code, models.ErrProductNotFound)
	}
	return product, nil
}

// FinalTotal returns total - discount rounded to cents, floored at zero
func FinalTotal(total, discount decimal.Decimal) decimal.Decimal {
	due := total.Sub(discount).Round(MoneyPlaces)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}
