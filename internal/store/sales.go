package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateSale inserts a sale header within tx. CreatedAt must be set.
func (s *Store) CreateSale(ctx context.Context, tx *sqlx.Tx, sale *models.Sale) error {
	query := `
		INSERT INTO sales (created_at, total, discount)
		VALUES (?, ?, ?)
		RETURNING id`

	if err := tx.GetContext(ctx, &sale.ID, tx.Rebind(query),
		sale.CreatedAt, sale.Total, sale.Discount); err != nil {
		return persistErr("insert sale", err)
	}
	return nil
}

// CreateSaleItem inserts a sale line within tx
func (s *Store) CreateSaleItem(ctx context.Context, tx *sqlx.Tx, item *models.SaleItem) error {
	query := `
		INSERT INTO sale_items (sale_id, product_id, qty, unit_price)
		VALUES (?, ?, ?, ?)
		RETURNING id`

	if err := tx.GetContext(ctx, &item.ID, tx.Rebind(query),
		item.SaleID, item.ProductID, item.Qty, item.UnitPrice); err != nil {
		return persistErr("insert sale item", err)
	}
	return nil
}

// GetSaleByID retrieves a sale by ID
func (s *Store) GetSaleByID(ctx context.Context, id int64) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.GetContext(ctx, &sale,
		s.db.Rebind("SELECT id, created_at, total, discount FROM sales WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sale %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get sale", err)
	}
	return &sale, nil
}

// GetSaleItemsBySaleID retrieves all items of a sale in insertion order
func (s *Store) GetSaleItemsBySaleID(ctx context.Context, saleID int64) ([]models.SaleItem, error) {
	items := []models.SaleItem{}
	err := s.db.SelectContext(ctx, &items,
		s.db.Rebind("SELECT id, sale_id, product_id, qty, unit_price FROM sale_items WHERE sale_id = ? ORDER BY id"),
		saleID)
	if err != nil {
		return nil, persistErr("get sale items", err)
	}
	return items, nil
}

// CountSales returns the number of committed sales
func (s *Store) CountSales(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM sales"); err != nil {
		return 0, persistErr("count sales", err)
	}
	return n, nil
}

// ListSalesBetween retrieves sales with from <= created_at < to, oldest first
func (s *Store) ListSalesBetween(ctx context.Context, from, to time.Time) ([]models.Sale, error) {
	sales := []models.Sale{}
	err := s.db.SelectContext(ctx, &sales,
		s.db.Rebind(`
			SELECT id, created_at, total, discount
			FROM sales
			WHERE created_at >= ? AND created_at < ?
			ORDER BY created_at, id`),
		from.UTC(), to.UTC())
	if err != nil {
		return nil, persistErr("list sales", err)
	}
	return sales, nil
}

// ListSalesReportRows joins sales with their lines and the current product
// identity for from <= created_at < to. Lines of deleted products keep their
// quantities but have no product code or name.
func (s *Store) ListSalesReportRows(ctx context.Context, from, to time.Time) ([]models.SalesReportRow, error) {
	rows := []models.SalesReportRow{}
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind(`
			SELECT s.id AS sale_id, s.created_at AS created_at,
			       s.total AS sale_total, s.discount AS sale_discount,
			       si.product_id AS product_id, p.code AS product_code, p.name AS product_name,
			       si.qty AS qty, si.unit_price AS unit_price
			FROM sales s
			LEFT JOIN sale_items si ON si.sale_id = s.id
			LEFT JOIN products p ON p.id = si.product_id
			WHERE s.created_at >= ? AND s.created_at < ?
			ORDER BY s.created_at, s.id, si.id`),
		from.UTC(), to.UTC())
	if err != nil {
		return nil, persistErr("list sales report", err)
	}
	return rows, nil
}
