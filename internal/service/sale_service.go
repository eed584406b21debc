package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/cart"
	"pos-service/internal/models"
	"pos-service/internal/receipt"
	"pos-service/internal/redisclient"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	commitLockName       = "sale-commit"
	defaultCommitLockTTL = 10 * time.Second
	publishTimeout       = 5 * time.Second
)

// SaleService turns a cart into a persisted sale
type SaleService struct {
	store     *store.Store
	receipts  *receipt.Emitter
	redis     *redisclient.Client
	publisher broker.Publisher
	lockTTL   time.Duration
	clock     func() time.Time
	logger    *zap.Logger
}

// CommitResult describes a committed sale. Receipt is nil when the receipt
// could not be written.
type CommitResult struct {
	SaleID  int64             `json:"sale_id"`
	Sale    models.Sale       `json:"sale"`
	Items   []models.SaleItem `json:"items"`
	Receipt *receipt.Handle   `json:"receipt,omitempty"`
}

// NewSaleService creates a new sale service. redis and publisher are
// optional; without redis commits are only serialized by the database.
func NewSaleService(
	store *store.Store,
	receipts *receipt.Emitter,
	redis *redisclient.Client,
	publisher broker.Publisher,
	lockTTL time.Duration,
) *SaleService {
	if publisher == nil {
		publisher = broker.NopPublisher{}
	}
	if lockTTL <= 0 {
		lockTTL = defaultCommitLockTTL
	}
	return &SaleService{
		store:     store,
		receipts:  receipts,
		redis:     redis,
		publisher: publisher,
		lockTTL:   lockTTL,
		clock: func() time.Time {
			return time.Now().UTC().Truncate(time.Second)
		},
		logger: util.GetLogger(),
	}
}

// Commit records the cart as a sale, decrements stock and writes the receipt.
//
// The sale row, its items and the stock changes are written in one
// transaction; on failure nothing is persisted and the error wraps
// models.ErrPersistence. A receipt failure does not undo the sale: the result
// is returned together with an error wrapping models.ErrReceiptWrite.
// The cart is left untouched; clearing it is up to the caller.
func (s *SaleService) Commit(ctx context.Context, c *cart.Cart) (*CommitResult, error) {
	ctx, span := util.StartSpan(ctx, "SaleService.Commit")
	defer span.End()

	if c.IsEmpty() {
		util.SalesFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, models.ErrEmptyCart
	}

	release, err := s.acquireCommitLock(ctx)
	if err != nil {
		util.SalesFailedTotal.WithLabelValues("locked").Inc()
		return nil, err
	}
	defer release()

	snapshot := c.Snapshot()
	sale := models.Sale{
		CreatedAt: s.clock(),
		Total:     snapshot.Total,
		Discount:  snapshot.Discount,
	}

	start := time.Now()
	var items []models.SaleItem
	err = s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		items = make([]models.SaleItem, 0, len(snapshot.Lines))

		ids := make([]int64, 0, len(snapshot.Lines))
		for _, line := range snapshot.Lines {
			ids = append(ids, line.ProductID)
		}
		if err := s.store.LockProducts(ctx, tx, ids); err != nil {
			return err
		}

		if err := s.store.CreateSale(ctx, tx, &sale); err != nil {
			return err
		}

		for _, line := range snapshot.Lines {
			item := models.SaleItem{
				SaleID:    sale.ID,
				ProductID: line.ProductID,
				Qty:       line.Qty,
				UnitPrice: line.UnitPrice,
			}
			if err := s.store.CreateSaleItem(ctx, tx, &item); err != nil {
				return err
			}
			if err := s.store.DecrementStock(ctx, tx, line.ProductID, line.Qty); err != nil {
				return err
			}
			items = append(items, item)
		}
		return nil
	})
	util.SaleCommitLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		util.SalesFailedTotal.WithLabelValues("db_error").Inc()
		s.logger.Error("Sale commit rolled back", zap.Error(err))
		if !errors.Is(err, models.ErrPersistence) {
			err = fmt.Errorf("failed to commit sale: %w: %w", models.ErrPersistence, err)
		}
		return nil, err
	}

	util.SalesCommittedTotal.Inc()
	util.SaleAmountTotal.Add(sale.Total.InexactFloat64())
	s.logger.Info("Sale committed",
		zap.Int64("sale_id", sale.ID),
		zap.String("total", sale.Total.StringFixed(cart.MoneyPlaces)),
		zap.String("discount", sale.Discount.StringFixed(cart.MoneyPlaces)),
		zap.Int("lines", len(items)))

	result := &CommitResult{SaleID: sale.ID, Sale: sale, Items: items}

	handle, receiptErr := s.receipts.Emit(sale.ID, snapshot, sale.CreatedAt, sale.Total)
	if receiptErr != nil {
		util.ReceiptsFailedTotal.Inc()
		s.logger.Error("Failed to write receipt",
			zap.Int64("sale_id", sale.ID),
			zap.Error(receiptErr))
	} else {
		util.ReceiptsWrittenTotal.Inc()
		result.Receipt = &handle
	}

	s.publishSaleCommitted(ctx, sale, snapshot)

	return result, receiptErr
}

// acquireCommitLock takes the cross-process commit lock when Redis is
// configured. Redis being unreachable does not block the till; contention
// does.
func (s *SaleService) acquireCommitLock(ctx context.Context) (func(), error) {
	noop := func() {}
	if s.redis == nil {
		return noop, nil
	}

	token, err := s.redis.AcquireLock(ctx, commitLockName, s.lockTTL)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, fmt.Errorf("acquire commit lock: %w", models.ErrCommitInProgress)
	}
	if err != nil {
		s.logger.Warn("Commit lock unavailable, relying on database constraints", zap.Error(err))
		return noop, nil
	}

	return func() {
		// ctx may already be cancelled; the lock must still be released
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := s.redis.ReleaseLock(releaseCtx, commitLockName, token); err != nil {
			s.logger.Warn("Failed to release commit lock", zap.Error(err))
		}
	}, nil
}

func (s *SaleService) publishSaleCommitted(ctx context.Context, sale models.Sale, snapshot cart.Snapshot) {
	itemData := make([]models.SaleItemData, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		itemData = append(itemData, models.SaleItemData{
			ProductID: line.ProductID,
			Code:      line.Code,
			Qty:       line.Qty,
			UnitPrice: line.UnitPrice,
		})
	}

	event := &models.SaleCommittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleCommitted,
			Timestamp: sale.CreatedAt,
		},
		SaleID:   sale.ID,
		Total:    sale.Total,
		Discount: sale.Discount,
		Items:    itemData,
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := s.publisher.PublishSaleCommitted(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(models.EventTypeSaleCommitted).Inc()
		s.logger.Error("Failed to publish SaleCommitted event",
			zap.Int64("sale_id", sale.ID),
			zap.Error(err))
	}
}
