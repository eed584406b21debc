package worker

import (
	"context"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/redisclient"
	"pos-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const processedMarkerTTL = 24 * time.Hour

var hundred = decimal.NewFromInt(100)

// StockMirrorWorker applies sale and catalog events to the Redis stock mirror
// and the per-day sales counters
type StockMirrorWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	redis        *redisclient.Client
	location     *time.Location
	logger       *zap.Logger
}

// NewStockMirrorWorker creates a new stock mirror worker. Sales are counted
// on their calendar day in location.
func NewStockMirrorWorker(
	consumer *broker.Consumer,
	redis *redisclient.Client,
	location *time.Location,
) *StockMirrorWorker {
	if location == nil {
		location = time.Local
	}

	w := &StockMirrorWorker{
		consumer: consumer,
		redis:    redis,
		location: location,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSaleCommitted(w.HandleSaleCommitted)
	eventHandler.OnProductEvent(w.HandleProductEvent)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockMirrorWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock mirror worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockMirrorWorker) Stop() error {
	w.logger.Info("Stopping stock mirror worker")
	return w.consumer.Close()
}

// HandleSaleCommitted decrements the mirrored stock of every line and counts
// the sale. Redelivered events are ignored.
func (w *StockMirrorWorker) HandleSaleCommitted(ctx context.Context, event *models.SaleCommittedEvent) error {
	lines := make([]redisclient.SaleLine, 0, len(event.Items))
	for _, item := range event.Items {
		lines = append(lines, redisclient.SaleLine{Code: item.Code, Qty: item.Qty})
	}

	day := event.Timestamp.In(w.location).Format("2006-01-02")
	cents := event.Total.Mul(hundred).Round(0).IntPart()

	applied, err := w.redis.ApplySale(ctx, event.EventID, day, cents, lines, processedMarkerTTL)
	if err != nil {
		return err
	}
	if !applied {
		w.logger.Info("Duplicate sale event ignored",
			zap.String("event_id", event.EventID),
			zap.Int64("sale_id", event.SaleID))
		return nil
	}

	w.logger.Debug("Sale applied to stock mirror",
		zap.Int64("sale_id", event.SaleID),
		zap.String("day", day))
	return nil
}

// HandleProductEvent mirrors catalog changes
func (w *StockMirrorWorker) HandleProductEvent(ctx context.Context, event *models.ProductEvent) error {
	first, err := w.redis.MarkEventProcessed(ctx, event.EventID, processedMarkerTTL)
	if err != nil {
		return err
	}
	if !first {
		w.logger.Info("Duplicate product event ignored", zap.String("event_id", event.EventID))
		return nil
	}

	switch event.EventType {
	case models.EventTypeProductDeleted:
		err = w.redis.DeleteStock(ctx, event.Code)
	default:
		err = w.redis.SetStock(ctx, event.Code, event.Stock)
	}
	if err != nil {
		w.logger.Error("Failed to mirror product event",
			zap.String("event_type", event.EventType),
			zap.String("code", event.Code),
			zap.Error(err))
		if uerr := w.redis.UnmarkEventProcessed(ctx, event.EventID); uerr != nil {
			w.logger.Warn("Failed to clear processed marker", zap.Error(uerr))
		}
		return err
	}
	return nil
}
