package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

const productColumns = `id, name, description, category, subcategory, brand, sku, barcode,
	cost_price, selling_price, wholesale_price, currency, tax_rate,
	current_stock, minimum_stock, maximum_stock, reorder_point, location,
	suppliers, status, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	var barcode sql.NullString
	var suppliers []byte
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.Subcategory, &p.Brand, &p.SKU, &barcode,
		&p.Pricing.CostPrice, &p.Pricing.SellingPrice, &p.Pricing.WholesalePrice, &p.Pricing.Currency, &p.Pricing.TaxRate,
		&p.Inventory.CurrentStock, &p.Inventory.MinimumStock, &p.Inventory.MaximumStock, &p.Inventory.ReorderPoint,
		&p.Inventory.Location, &suppliers, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Barcode = barcode.String
	if err := fromJSON(suppliers, &p.Suppliers); err != nil {
		return nil, fmt.Errorf("decode product suppliers: %w", err)
	}
	if p.Suppliers == nil {
		p.Suppliers = []domain.ProductSupplier{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initialStock int, actor string) (*domain.Product, error) {
	if initialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", store.ErrInvalidInput)
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	suppliers, err := toJSON(nonNil(product.Suppliers))
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,0,$14,$15,$16,$17,$18,$19,$20,$21)
	`, product.ID, product.Name, product.Description, product.Category, product.Subcategory, product.Brand,
		product.SKU, nullIfEmpty(product.Barcode),
		product.Pricing.CostPrice, product.Pricing.SellingPrice, product.Pricing.WholesalePrice,
		product.Pricing.Currency, product.Pricing.TaxRate,
		product.Inventory.MinimumStock, product.Inventory.MaximumStock, product.Inventory.ReorderPoint,
		product.Inventory.Location, suppliers, product.Status, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	if initialStock > 0 {
		if _, _, err := applyMovementTx(ctx, tx, domain.StockChange{
			ProductID: product.ID,
			Type:      domain.MovementInitial,
			Operation: domain.StockSet,
			Quantity:  initialStock,
			Reason:    "initial stock",
			Actor:     actor,
		}, product.CreatedAt); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = *p
	}
	return result, rows.Err()
}

var productSortColumns = map[string]string{
	"name":      "name",
	"sku":       "sku",
	"category":  "category",
	"stock":     "current_stock",
	"price":     "selling_price",
	"createdAt": "created_at",
}

func (s *Store) ListProducts(ctx context.Context, filter store.ListFilter) (store.Page[domain.Product], error) {
	filter = filter.Normalize()
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = " + where.arg(filter.Status))
	}
	if filter.Category != "" {
		where.add("lower(category) = lower(" + where.arg(filter.Category) + ")")
	}
	if filter.LowStock {
		where.add("current_stock <= minimum_stock")
	}
	where.search(filter.Search, "name", "description", "category", "sku", "brand")

	total, err := s.count(ctx, "products", where)
	if err != nil {
		return store.Page[domain.Product]{}, err
	}

	query := `SELECT ` + productColumns + ` FROM products ` + where.String() + " " +
		orderBy(filter.Sort, "name", productSortColumns) + " " + pageClause(where, filter)
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return store.Page[domain.Product]{}, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, filter.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return store.Page[domain.Product]{}, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return store.Page[domain.Product]{}, err
	}
	return store.Page[domain.Product]{Items: products, Total: total}, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	suppliers, err := toJSON(nonNil(product.Suppliers))
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, category = $4, subcategory = $5, brand = $6, sku = $7, barcode = $8,
			cost_price = $9, selling_price = $10, wholesale_price = $11, currency = $12, tax_rate = $13,
			minimum_stock = $14, maximum_stock = $15, reorder_point = $16, location = $17,
			suppliers = $18, status = $19, updated_at = $20
		WHERE id = $1
	`, product.ID, product.Name, product.Description, product.Category, product.Subcategory, product.Brand,
		product.SKU, nullIfEmpty(product.Barcode),
		product.Pricing.CostPrice, product.Pricing.SellingPrice, product.Pricing.WholesalePrice,
		product.Pricing.Currency, product.Pricing.TaxRate,
		product.Inventory.MinimumStock, product.Inventory.MaximumStock, product.Inventory.ReorderPoint,
		product.Inventory.Location, suppliers, product.Status, product.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) NextSKUSequence(ctx context.Context, prefix string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sku_sequences (prefix, last_value) VALUES ($1, 1)
		ON CONFLICT (prefix) DO UPDATE SET last_value = sku_sequences.last_value + 1
		RETURNING last_value
	`, prefix).Scan(&next)
	return next, err
}

func (s *Store) AdjustStock(ctx context.Context, change domain.StockChange) (*domain.Product, *domain.StockMovement, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, movement, err := applyMovementTx(ctx, tx, change, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return product, movement, nil
}

func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	if limit < 1 {
		return []domain.StockMovement{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, product_id, type, operation, quantity, previous_stock, new_stock, reason, actor, reference, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.Seq, &m.ProductID, &m.Type, &m.Operation, &m.Quantity, &m.PreviousStock,
			&m.NewStock, &m.Reason, &m.Actor, &m.Reference, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// applyMovementTx locks the product row, runs the change through
// domain.ApplyStockOperation and writes the new stock plus its movement.
// The UPDATE only matches if stock still equals the value read under lock.
func applyMovementTx(ctx context.Context, tx *sql.Tx, change domain.StockChange, at time.Time) (*domain.Product, *domain.StockMovement, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, change.ProductID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: product %s", store.ErrNotFound, change.ProductID)
		}
		return nil, nil, err
	}
	previous := product.Inventory.CurrentStock
	next, err := domain.ApplyStockOperation(previous, change.Operation, change.Quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("product %s: %w", product.Name, err)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products SET current_stock = $2, updated_at = $3 WHERE id = $1 AND current_stock = $4
	`, product.ID, next, at, previous)
	if err != nil {
		return nil, nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, nil, fmt.Errorf("%w: stock of %s changed concurrently", store.ErrInsufficientStock, product.Name)
	}

	movement := domain.StockMovement{
		ProductID:     product.ID,
		Type:          change.Type,
		Operation:     change.Operation,
		Quantity:      change.Quantity,
		PreviousStock: previous,
		NewStock:      next,
		Reason:        change.Reason,
		Actor:         change.Actor,
		Reference:     change.Reference,
		CreatedAt:     at,
	}
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO stock_movements (product_id, type, operation, quantity, previous_stock, new_stock, reason, actor, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING seq
	`, movement.ProductID, movement.Type, movement.Operation, movement.Quantity, movement.PreviousStock,
		movement.NewStock, movement.Reason, movement.Actor, movement.Reference, movement.CreatedAt).Scan(&movement.Seq); err != nil {
		return nil, nil, err
	}

	product.Inventory.CurrentStock = next
	product.UpdatedAt = at
	return product, &movement, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
