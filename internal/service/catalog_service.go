package service

import (
	"context"
	"time"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/store"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService handles product management
type CatalogService struct {
	store     *store.Store
	publisher broker.Publisher
	logger    *zap.Logger
}

// NewCatalogService creates a new catalog service. A nil publisher disables
// catalog events.
func NewCatalogService(store *store.Store, publisher broker.Publisher) *CatalogService {
	if publisher == nil {
		publisher = broker.NopPublisher{}
	}
	return &CatalogService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// FindProductByCode returns the product with this code, or nil when unknown
func (s *CatalogService) FindProductByCode(ctx context.Context, code string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.FindProductByCode")
	defer span.End()

	return s.store.FindProductByCode(ctx, code)
}

// ListProducts returns every product ordered by name
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	return s.store.ListProducts(ctx)
}

// AddProduct creates a product with an initial stock level
func (s *CatalogService) AddProduct(ctx context.Context, code, name string, unitPrice decimal.Decimal, stock int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.AddProduct")
	defer span.End()

	product := &models.Product{
		Code:      code,
		Name:      name,
		UnitPrice: unitPrice,
		Stock:     stock,
	}

	err := s.store.AddProduct(ctx, product)
	util.CatalogOperationsTotal.WithLabelValues("add", util.ResultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product added",
		zap.Int64("product_id", product.ID),
		zap.String("code", product.Code),
		zap.Int("stock", product.Stock))

	s.publishProductEvent(ctx, models.EventTypeProductCreated, product)
	return product, nil
}

// UpdateProduct overwrites the fields set in upd
func (s *CatalogService) UpdateProduct(ctx context.Context, code string, upd models.ProductUpdate) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct")
	defer span.End()

	product, err := s.store.UpdateProduct(ctx, code, upd)
	util.CatalogOperationsTotal.WithLabelValues("update", util.ResultLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.logger.Info("Product updated",
		zap.Int64("product_id", product.ID),
		zap.String("code", product.Code),
		zap.Int("stock", product.Stock))

	s.publishProductEvent(ctx, models.EventTypeProductUpdated, product)
	return product, nil
}

// DeleteProduct removes a product. Sale history referencing it is kept.
func (s *CatalogService) DeleteProduct(ctx context.Context, code string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct")
	defer span.End()

	product, err := s.store.DeleteProduct(ctx, code)
	util.CatalogOperationsTotal.WithLabelValues("delete", util.ResultLabel(err)).Inc()
	if err != nil {
		return err
	}

	s.logger.Info("Product deleted",
		zap.Int64("product_id", product.ID),
		zap.String("code", product.Code))

	product.Stock = 0
	s.publishProductEvent(ctx, models.EventTypeProductDeleted, product)
	return nil
}

func (s *CatalogService) publishProductEvent(ctx context.Context, eventType string, product *models.Product) {
	event := &models.ProductEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now(),
		},
		ProductID: product.ID,
		Code:      product.Code,
		Stock:     product.Stock,
	}

	if err := s.publisher.PublishProductEvent(ctx, event); err != nil {
		util.EventsPublishFailedTotal.WithLabelValues(eventType).Inc()
		s.logger.Error("Failed to publish product event",
			zap.String("event_type", eventType),
			zap.String("code", product.Code),
			zap.Error(err))
	}
}
