package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = "id, code, name, unit_price, stock, created_at, updated_at"

// FindProductByCode retrieves a product by its business code.
// It returns nil without an error when the code is unknown.
func (s *Store) FindProductByCode(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		s.db.Rebind("SELECT "+productColumns+" FROM products WHERE code = ?"), code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("find product", err)
	}
	return &product, nil
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		s.db.Rebind("SELECT "+productColumns+" FROM products WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, persistErr("get product", err)
	}
	return &product, nil
}

// ListProducts retrieves all products ordered by name
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products,
		"SELECT "+productColumns+" FROM products ORDER BY name, code")
	if err != nil {
		return nil, persistErr("list products", err)
	}
	return products, nil
}

// AddProduct creates a new product. The code must not exist yet.
func (s *Store) AddProduct(ctx context.Context, product *models.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}

	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		err := tx.GetContext(ctx, &exists,
			tx.Rebind("SELECT EXISTS(SELECT 1 FROM products WHERE code = ?)"), product.Code)
		if err != nil {
			return persistErr("check product code", err)
		}
		if exists {
			return fmt.Errorf("code %q: %w", product.Code, models.ErrDuplicateCode)
		}

		ts := now()
		query := `
			INSERT INTO products (code, name, unit_price, stock, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`

		err = tx.GetContext(ctx, &product.ID, tx.Rebind(query),
			product.Code, product.Name, product.UnitPrice, product.Stock, ts, ts)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("code %q: %w", product.Code, models.ErrDuplicateCode)
			}
			return persistErr("insert product", err)
		}

		product.CreatedAt = ts
		product.UpdatedAt = ts
		return nil
	})
}

// UpdateProduct overwrites the given fields of the product with this code
func (s *Store) UpdateProduct(ctx context.Context, code string, upd models.ProductUpdate) (*models.Product, error) {
	var product models.Product

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &product,
			tx.Rebind("SELECT "+productColumns+" FROM products WHERE code = ?"+s.forUpdate()), code)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("code %q: %w", code, models.ErrNotFound)
		}
		if err != nil {
			return persistErr("load product", err)
		}

		if upd.Name != nil {
			product.Name = *upd.Name
		}
		if upd.UnitPrice != nil {
			product.UnitPrice = *upd.UnitPrice
		}
		if upd.Stock != nil {
			product.Stock = *upd.Stock
		}
		if err := validateProduct(&product); err != nil {
			return err
		}

		product.UpdatedAt = now()
		_, err = tx.ExecContext(ctx,
			tx.Rebind("UPDATE products SET name = ?, unit_price = ?, stock = ?, updated_at = ? WHERE id = ?"),
			product.Name, product.UnitPrice, product.Stock, product.UpdatedAt, product.ID)
		if err != nil {
			return persistErr("update product", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// DeleteProduct removes the product with this code. Sale items that reference
// it keep their product id.
func (s *Store) DeleteProduct(ctx context.Context, code string) (*models.Product, error) {
	var product models.Product

	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &product,
			tx.Rebind("SELECT "+productColumns+" FROM products WHERE code = ?"+s.forUpdate()), code)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("code %q: %w", code, models.ErrNotFound)
		}
		if err != nil {
			return persistErr("load product", err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM products WHERE id = ?"), product.ID); err != nil {
			return persistErr("delete product", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &product, nil
}

// LockProducts takes row locks on the given products for the rest of tx.
// Ids are locked in ascending order so concurrent commits cannot deadlock.
// SQLite serializes writers on its own, so this is a no-op there.
func (s *Store) LockProducts(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	if s.driver != DriverPostgres || len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("SELECT id FROM products WHERE id IN (?) ORDER BY id FOR UPDATE", ids)
	if err != nil {
		return persistErr("build lock query", err)
	}

	var locked []int64
	if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
		return persistErr("lock products", err)
	}
	return nil
}

// DecrementStock subtracts qty from the product's stock. It does not check
// sufficiency; the stock >= 0 constraint fails the transaction instead.
func (s *Store) DecrementStock(ctx context.Context, tx *sqlx.Tx, productID int64, qty int) error {
	_, err := tx.ExecContext(ctx,
		tx.Rebind("UPDATE products SET stock = stock - ?, updated_at = ? WHERE id = ?"),
		qty, now(), productID)
	if err != nil {
		return persistErr(fmt.Sprintf("decrement stock for product %d", productID), err)
	}
	return nil
}

func validateProduct(p *models.Product) error {
	switch {
	case p.Code == "":
		return fmt.Errorf("code is required: %w", models.ErrInvalidProduct)
	case p.UnitPrice.IsNegative():
		return fmt.Errorf("unit price %s is negative: %w", p.UnitPrice, models.ErrInvalidProduct)
	case p.Stock < 0:
		return fmt.Errorf("stock %d is negative: %w", p.Stock, models.ErrInvalidProduct)
	}
	return nil
}
