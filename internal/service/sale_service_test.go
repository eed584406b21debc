package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"pos-service/internal/cart"
	"pos-service/internal/models"
	"pos-service/internal/receipt"
	"pos-service/internal/redisclient"

	"github.com/alicebob/miniredis/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommit_SingleLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", "Widget", "10.00", 5)

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 3))

	result, err := f.sales.Commit(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, result)

	sale, err := f.store.GetSaleByID(ctx, result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, "30.00", sale.Total.StringFixed(2))
	assert.Equal(t, "0.00", sale.Discount.StringFixed(2))
	assert.True(t, fixedCommitTime.Equal(sale.CreatedAt))

	items, err := f.store.GetSaleItemsBySaleID(ctx, result.SaleID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, p1.ID, items[0].ProductID)
	assert.Equal(t, 3, items[0].Qty)
	assert.Equal(t, "10.00", items[0].UnitPrice.StringFixed(2))

	assert.Equal(t, 2, f.stockOf(t, "P1"))

	require.NotNil(t, result.Receipt)
	content, err := afero.ReadFile(f.fs, result.Receipt.Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "3 x Widget @ 10.00 = 30.00\n")
	assert.Contains(t, string(content), "TOTAL: 30.00\n")

	// the cart is the caller's to clear
	assert.False(t, c.IsEmpty())
}

func TestCommit_WithDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "P1", "Widget", "10.00", 5)

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 3))
	require.NoError(t, c.ApplyDiscountAmount(dec("5")))

	result, err := f.sales.Commit(ctx, c)
	require.NoError(t, err)

	sale, err := f.store.GetSaleByID(ctx, result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", sale.Total.StringFixed(2))
	assert.Equal(t, "5.00", sale.Discount.StringFixed(2))
	assert.Equal(t, 2, f.stockOf(t, "P1"))

	content, err := afero.ReadFile(f.fs, result.Receipt.Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "SUBTOTAL: 30.00\n")
	assert.Contains(t, string(content), "DISCOUNT: 5.00\n")
	assert.Contains(t, string(content), "TOTAL: 25.00\n")
}

func TestCommit_MultipleLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "A", "Apple", "0.35", 100)
	f.addProduct(t, "B", "Bread", "2.49", 10)

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "B", 2))
	require.NoError(t, c.AddItem(ctx, "A", 7))
	require.NoError(t, c.ApplyDiscountPercent(dec("10")))

	result, err := f.sales.Commit(ctx, c)
	require.NoError(t, err)

	// 4.98 + 2.45 = 7.43; 10% = 0.743 -> 0.74; due 6.69
	assert.Equal(t, "6.69", result.Sale.Total.StringFixed(2))
	assert.Equal(t, "0.74", result.Sale.Discount.StringFixed(2))

	require.Len(t, result.Items, 2)
	assert.Equal(t, 2, result.Items[0].Qty)
	assert.Equal(t, 7, result.Items[1].Qty)

	assert.Equal(t, 8, f.stockOf(t, "B"))
	assert.Equal(t, 93, f.stockOf(t, "A"))
}

func TestCommit_EmptyCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.sales.Commit(ctx, cart.New(f.catalog))
	assert.ErrorIs(t, err, models.ErrEmptyCart)
	assert.Nil(t, result)

	n, err := f.store.CountSales(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.publisher.sales)
}

func TestCommit_StaleCartRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "P1", "Widget", "10.00", 5)
	f.addProduct(t, "P2", "Gadget", "1.00", 5)

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P2", 1))
	require.NoError(t, c.AddItem(ctx, "P1", 3))

	// stock drops below the cart quantity after the item was added
	stock := 1
	_, err := f.catalog.UpdateProduct(ctx, "P1", models.ProductUpdate{Stock: &stock})
	require.NoError(t, err)

	result, err := f.sales.Commit(ctx, c)
	assert.ErrorIs(t, err, models.ErrPersistence)
	assert.Nil(t, result)

	n, err := f.store.CountSales(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.stockOf(t, "P1"))
	assert.Equal(t, 5, f.stockOf(t, "P2"))

	files, err := afero.ReadDir(f.fs, "receipts")
	if err == nil {
		assert.Empty(t, files)
	}
}

func TestCommit_ReceiptFailureKeepsSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "P1", "Widget", "10.00", 5)

	f.sales.receipts = receipt.NewEmitterFs(afero.NewReadOnlyFs(afero.NewMemMapFs()), "receipts", time.UTC)

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 2))

	result, err := f.sales.Commit(ctx, c)
	assert.ErrorIs(t, err, models.ErrReceiptWrite)
	require.NotNil(t, result)
	assert.NotZero(t, result.SaleID)
	assert.Nil(t, result.Receipt)

	sale, err := f.store.GetSaleByID(ctx, result.SaleID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", sale.Total.StringFixed(2))
	assert.Equal(t, 3, f.stockOf(t, "P1"))
}

func TestCommit_PublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.addProduct(t, "P1", "Widget", "10.00", 5)

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 3))

	result, err := f.sales.Commit(ctx, c)
	require.NoError(t, err)

	require.Len(t, f.publisher.sales, 1)
	event := f.publisher.sales[0]
	assert.Equal(t, models.EventTypeSaleCommitted, event.EventType)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, result.SaleID, event.SaleID)
	assert.Equal(t, "30.00", event.Total.StringFixed(2))
	require.Len(t, event.Items, 1)
	assert.Equal(t, p1.ID, event.Items[0].ProductID)
	assert.Equal(t, "P1", event.Items[0].Code)
	assert.Equal(t, 3, event.Items[0].Qty)
	assert.Equal(t, "10.00", event.Items[0].UnitPrice.StringFixed(2))
}

func TestCommit_PublishFailureDoesNotFailSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "P1", "Widget", "10.00", 5)
	f.publisher.err = errors.New("broker down")

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 1))

	result, err := f.sales.Commit(ctx, c)
	require.NoError(t, err)
	assert.NotNil(t, result.Receipt)
	assert.Equal(t, 4, f.stockOf(t, "P1"))
}

func TestCommit_RedisLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "P1", "Widget", "10.00", 5)

	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	f.sales.redis = rc

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 1))

	// another till holds the lock
	token, err := rc.AcquireLock(ctx, commitLockName, time.Minute)
	require.NoError(t, err)

	result, err := f.sales.Commit(ctx, c)
	assert.ErrorIs(t, err, models.ErrCommitInProgress)
	assert.Nil(t, result)

	n, err := f.store.CountSales(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, rc.ReleaseLock(ctx, commitLockName, token))

	result, err = f.sales.Commit(ctx, c)
	require.NoError(t, err)
	assert.NotZero(t, result.SaleID)
	assert.False(t, mr.Exists("lock:"+commitLockName), "lock must be released after commit")
}

func TestCommit_RedisDownStillCommits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addProduct(t, "P1", "Widget", "10.00", 5)

	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	f.sales.redis = rc
	mr.Close()

	c := cart.New(f.catalog)
	require.NoError(t, c.AddItem(ctx, "P1", 1))

	result, err := f.sales.Commit(ctx, c)
	require.NoError(t, err)
	assert.NotZero(t, result.SaleID)
}
