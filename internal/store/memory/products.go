package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initialStock int, actor string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if initialStock < 0 {
		return nil, fmt.Errorf("%w: initial stock must not be negative", store.ErrInvalidInput)
	}
	if err := s.checkProductUnique(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	product.Inventory.CurrentStock = 0
	s.products[product.ID] = cloneProduct(product)

	if initialStock > 0 {
		if _, _, err := s.applyMovementLocked(domain.StockChange{
			ProductID: product.ID,
			Type:      domain.MovementInitial,
			Operation: domain.StockSet,
			Quantity:  initialStock,
			Reason:    "initial stock",
			Actor:     actor,
		}, product.CreatedAt); err != nil {
			delete(s.products, product.ID)
			return nil, err
		}
	}

	out := cloneProduct(s.products[product.ID])
	return &out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result[id] = cloneProduct(product)
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, filter store.ListFilter) (store.Page[domain.Product], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	items := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		if filter.Status != "" && product.Status != filter.Status {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(product.Category, filter.Category) {
			continue
		}
		if filter.LowStock && !product.IsLowStock() {
			continue
		}
		if !matches(filter.Search, product.Name, product.Description, product.Category, product.SKU, product.Brand) {
			continue
		}
		items = append(items, cloneProduct(product))
	}
	sortItems(items, filter.Sort, "name", map[string]func(a, b domain.Product) int{
		"name":      func(a, b domain.Product) int { return cmp.Compare(a.Name, b.Name) },
		"sku":       func(a, b domain.Product) int { return cmp.Compare(a.SKU, b.SKU) },
		"category":  func(a, b domain.Product) int { return cmp.Compare(a.Category, b.Category) },
		"stock":     func(a, b domain.Product) int { return cmp.Compare(a.Inventory.CurrentStock, b.Inventory.CurrentStock) },
		"price":     func(a, b domain.Product) int { return a.Pricing.SellingPrice.Cmp(b.Pricing.SellingPrice) },
		"createdAt": func(a, b domain.Product) int { return a.CreatedAt.Compare(b.CreatedAt) },
	})
	return paginate(items, filter), nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkProductUnique(product); err != nil {
		return nil, err
	}
	product.Inventory.CurrentStock = existing.Inventory.CurrentStock
	s.products[product.ID] = cloneProduct(product)
	out := cloneProduct(product)
	return &out, nil
}

func (s *Store) NextSKUSequence(_ context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.skuSeq[prefix]++
	return s.skuSeq[prefix], nil
}

func (s *Store) AdjustStock(_ context.Context, change domain.StockChange) (*domain.Product, *domain.StockMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, movement, err := s.applyMovementLocked(change, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	return &product, &movement, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	history := s.movements[productID]
	result := make([]domain.StockMovement, 0, min(len(history), max(limit, 0)))
	for i := len(history) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, history[i])
	}
	return result, nil
}

// applyMovementLocked runs one change through domain.ApplyStockOperation and
// appends the resulting movement. Callers hold s.mu for writing.
func (s *Store) applyMovementLocked(change domain.StockChange, at time.Time) (domain.Product, domain.StockMovement, error) {
	product, ok := s.products[change.ProductID]
	if !ok {
		return domain.Product{}, domain.StockMovement{}, fmt.Errorf("%w: product %s", store.ErrNotFound, change.ProductID)
	}
	previous := product.Inventory.CurrentStock
	next, err := domain.ApplyStockOperation(previous, change.Operation, change.Quantity)
	if err != nil {
		return domain.Product{}, domain.StockMovement{}, fmt.Errorf("product %s: %w", product.Name, err)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.movementSeq++
	movement := domain.StockMovement{
		Seq:           s.movementSeq,
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
	product.Inventory.CurrentStock = next
	product.UpdatedAt = at
	s.products[product.ID] = product
	s.movements[product.ID] = append(s.movements[product.ID], movement)
	return cloneProduct(product), movement, nil
}

func (s *Store) checkProductUnique(product domain.Product) error {
	for id, existing := range s.products {
		if id == product.ID {
			continue
		}
		if strings.EqualFold(existing.SKU, product.SKU) {
			return fmt.Errorf("%w: sku already exists", store.ErrDuplicate)
		}
		if product.Barcode != "" && existing.Barcode == product.Barcode {
			return fmt.Errorf("%w: barcode already exists", store.ErrDuplicate)
		}
	}
	return nil
}

func cloneProduct(src domain.Product) domain.Product {
	out := src
	out.Suppliers = slices.Clone(src.Suppliers)
	if out.Suppliers == nil {
		out.Suppliers = []domain.ProductSupplier{}
	}
	return out
}
