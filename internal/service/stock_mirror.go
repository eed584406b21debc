package service

import (
	"context"
	"fmt"

	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"go.uber.org/zap"
)

// StockMirror serves stock levels from the Redis mirror, falling back to the
// database when the mirror is disabled or has no entry
type StockMirror struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewStockMirror creates a new stock mirror. redis may be nil.
func NewStockMirror(store *store.Store, redis *redisclient.Client) *StockMirror {
	return &StockMirror{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// GetStock returns the stock of the product with this code
func (m *StockMirror) GetStock(ctx context.Context, code string) (int, error) {
	ctx, span := util.StartSpan(ctx, "StockMirror.GetStock")
	defer span.End()

	if m.redis != nil {
		stock, known, err := m.redis.GetStock(ctx, code)
		if err != nil {
			m.logger.Warn("Redis stock lookup failed, falling back to DB",
				zap.String("code", code),
				zap.Error(err))
		} else if known {
			return stock, nil
		}
	}

	product, err := m.store.FindProductByCode(ctx, code)
	if err != nil {
		return 0, err
	}
	if product == nil {
		return 0, fmt.Errorf("code %q: %w", code, models.ErrNotFound)
	}

	if m.redis != nil {
		if err := m.redis.SetStock(ctx, product.Code, product.Stock); err != nil {
			m.logger.Warn("Failed to refill stock mirror", zap.String("code", code), zap.Error(err))
		}
	}
	return product.Stock, nil
}

// Sync copies the stock of every product into Redis
func (m *StockMirror) Sync(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}

	m.logger.Info("Starting stock sync to Redis")

	products, err := m.store.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		if err := m.redis.SetStock(ctx, product.Code, product.Stock); err != nil {
			m.logger.Error("Failed to init Redis stock",
				zap.String("code", product.Code),
				zap.Error(err))
		}
	}

	m.logger.Info("Stock sync completed", zap.Int("count", len(products)))
	return nil
}
