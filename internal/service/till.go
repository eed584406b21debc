package service

import (
	"context"
	"fmt"
	"sync"

	"pos-service/internal/cart"
	"pos-service/internal/models"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Discount kinds accepted by Till.ApplyDiscount
const (
	DiscountPercent = "percent"
	DiscountAmount  = "amount"
)

// Till owns the single cart of the point of sale. Every operation holds the
// till lock, so concurrent callers see the cart as a single actor would.
type Till struct {
	mu     sync.Mutex
	cart   *cart.Cart
	sales  *SaleService
	logger *zap.Logger
}

// NewTill creates a till with an empty cart
func NewTill(catalog cart.Catalog, sales *SaleService) *Till {
	return &Till{
		cart:   cart.New(catalog),
		sales:  sales,
		logger: util.GetLogger(),
	}
}

// Snapshot returns the current cart
func (t *Till) Snapshot() cart.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cart.Snapshot()
}

// AddItem adds qty units of code to the cart
func (t *Till) AddItem(ctx context.Context, code string, qty int) (cart.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.cart.AddItem(ctx, code, qty)
	return t.result("add_item", err)
}

// ChangeQty sets the quantity of code; zero or less removes the line
func (t *Till) ChangeQty(ctx context.Context, code string, qty int) (cart.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.cart.ChangeQty(ctx, code, qty)
	return t.result("change_qty", err)
}

// RemoveItem drops the line for code
func (t *Till) RemoveItem(code string) (cart.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := t.cart.RemoveItem(code)
	return t.result("remove_item", err)
}

// ApplyDiscount applies a percent or absolute discount to the current total
func (t *Till) ApplyDiscount(kind string, value decimal.Decimal) (cart.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var err error
	switch kind {
	case DiscountPercent:
		err = t.cart.ApplyDiscountPercent(value)
	case DiscountAmount:
		err = t.cart.ApplyDiscountAmount(value)
	default:
		err = fmt.Errorf("unknown discount type %q: %w", kind, models.ErrInvalidDiscount)
	}
	return t.result("discount", err)
}

// Cancel empties the cart without recording anything
func (t *Till) Cancel() cart.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cart.Clear()
	util.CartOperationsTotal.WithLabelValues("cancel", "ok").Inc()
	return t.cart.Snapshot()
}

// Checkout commits the cart. The cart is cleared whenever a sale was
// recorded, including when only the receipt failed.
func (t *Till) Checkout(ctx context.Context) (*CommitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	result, err := t.sales.Commit(ctx, t.cart)
	if result != nil {
		t.cart.Clear()
	}
	util.CartOperationsTotal.WithLabelValues("checkout", util.ResultLabel(err)).Inc()
	return result, err
}

func (t *Till) result(op string, err error) (cart.Snapshot, error) {
	util.CartOperationsTotal.WithLabelValues(op, util.ResultLabel(err)).Inc()
	if err != nil {
		t.logger.Debug("Cart operation rejected", zap.String("operation", op), zap.Error(err))
	}
	return t.cart.Snapshot(), err
}
