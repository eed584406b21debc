package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID        int64           `db:"id" json:"id"`
	Code      string          `db:"code" json:"code"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Stock     int             `db:"stock" json:"stock"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// ProductUpdate carries the fields to overwrite; nil keeps the current value
type ProductUpdate struct {
	Name      *string          `json:"name,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Stock     *int             `json:"stock,omitempty"`
}

// Sale represents a committed sale header
type Sale struct {
	ID        int64           `db:"id" json:"id"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Discount  decimal.Decimal `db:"discount" json:"discount"`
}

// SaleItem represents a frozen cart line of a sale
type SaleItem struct {
	ID        int64           `db:"id" json:"id"`
	SaleID    int64           `db:"sale_id" json:"sale_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Qty       int             `db:"qty" json:"qty"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// SalesReportRow is one (sale, line) pair of the sales export.
// Product columns are nil when the product was deleted after the sale.
type SalesReportRow struct {
	SaleID       int64               `db:"sale_id" json:"sale_id"`
	CreatedAt    time.Time           `db:"created_at" json:"datetime"`
	SaleTotal    decimal.Decimal     `db:"sale_total" json:"sale_total"`
	SaleDiscount decimal.Decimal     `db:"sale_discount" json:"sale_discount"`
	ProductID    *int64              `db:"product_id" json:"product_id"`
	ProductCode  *string             `db:"product_code" json:"product_code"`
	ProductName  *string             `db:"product_name" json:"product_name"`
	Qty          *int                `db:"qty" json:"qty"`
	UnitPrice    decimal.NullDecimal `db:"unit_price" json:"unit_price"`
}

// DailyReport summarizes the sales of one calendar day
type DailyReport struct {
	Date           string          `json:"date"`
	Sales          []Sale          `json:"sales"`
	SalesCount     int             `json:"sales_count"`
	GrossTotal     decimal.Decimal `json:"gross_total"`
	TotalDiscounts decimal.Decimal `json:"total_discounts"`
}
