package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/receipt"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.NewStore(store.DriverSQLite, filepath.Join(t.TempDir(), "pos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recordingPublisher struct {
	mu       sync.Mutex
	sales    []*models.SaleCommittedEvent
	products []*models.ProductEvent
	err      error
}

func (p *recordingPublisher) PublishSaleCommitted(_ context.Context, e *models.SaleCommittedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sales = append(p.sales, e)
	return nil
}

func (p *recordingPublisher) PublishProductEvent(_ context.Context, e *models.ProductEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.products = append(p.products, e)
	return nil
}

type fixture struct {
	store     *store.Store
	fs        afero.Fs
	catalog   *CatalogService
	sales     *SaleService
	publisher *recordingPublisher
}

var fixedCommitTime = time.Date(2026, 10, 15, 14, 3, 9, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := newTestStore(t)
	fs := afero.NewMemMapFs()
	pub := &recordingPublisher{}

	sales := NewSaleService(st, receipt.NewEmitterFs(fs, "receipts", time.UTC), nil, pub, 0)
	sales.clock = func() time.Time { return fixedCommitTime }

	return &fixture{
		store:     st,
		fs:        fs,
		catalog:   NewCatalogService(st, pub),
		sales:     sales,
		publisher: pub,
	}
}

func (f *fixture) addProduct(t *testing.T, code, name, price string, stock int) *models.Product {
	t.Helper()

	p, err := f.catalog.AddProduct(context.Background(), code, name, dec(price), stock)
	require.NoError(t, err)
	return p
}

func (f *fixture) stockOf(t *testing.T, code string) int {
	t.Helper()

	p, err := f.store.FindProductByCode(context.Background(), code)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Stock
}
