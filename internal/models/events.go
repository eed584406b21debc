package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeSaleCommitted  = "SALE_COMMITTED"
	EventTypeProductCreated = "PRODUCT_CREATED"
	EventTypeProductUpdated = "PRODUCT_UPDATED"
	EventTypeProductDeleted = "PRODUCT_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SaleCommittedEvent published after a sale transaction commits
type SaleCommittedEvent struct {
	BaseEvent
	SaleID   int64           `json:"sale_id"`
	Total    decimal.Decimal `json:"total"`
	Discount decimal.Decimal `json:"discount"`
	Items    []SaleItemData  `json:"items"`
}

// SaleItemData represents item data in events
type SaleItemData struct {
	ProductID int64           `json:"product_id"`
	Code      string          `json:"code"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ProductEvent published on catalog changes.
// Stock is the stock level after the change; zero for deletions.
type ProductEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Code      string `json:"code"`
	Stock     int    `json:"stock"`
}
