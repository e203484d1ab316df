package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

const (
	defaultMinimumStock = 10
	defaultMaximumStock = 1000
	defaultReorderPoint = 20
	defaultLocation     = "Bodega Principal"
	defaultLeadTimeDays = 7
	movementPageSize    = 50
)

func (s *Service) ListProducts(ctx context.Context, filter store.ListFilter) (store.Page[domain.Product], error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) LowStockProducts(ctx context.Context, filter store.ListFilter) (store.Page[domain.Product], error) {
	filter.LowStock = true
	if filter.Status == "" {
		filter.Status = domain.StatusActive
	}
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit <= 0 || limit > store.MaxPageSize {
		limit = movementPageSize
	}
	return s.repo.ListMovements(ctx, productID, limit)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Product{}, err
	}
	pricing, err := s.buildPricing(req.Pricing)
	if err != nil {
		return domain.Product{}, err
	}
	suppliers, err := s.resolveSuppliers(ctx, req.Suppliers)
	if err != nil {
		return domain.Product{}, err
	}

	sku := strings.ToUpper(trimmed(req.SKU))
	if sku == "" {
		sku, err = s.generateSKU(ctx, req.Category)
		if err != nil {
			return domain.Product{}, err
		}
	}

	now := s.now()
	product := domain.Product{
		Name:        trimmed(req.Name),
		Description: trimmed(req.Description),
		Category:    trimmed(req.Category),
		Subcategory: trimmed(req.Subcategory),
		Brand:       trimmed(req.Brand),
		SKU:         sku,
		Barcode:     trimmed(req.Barcode),
		Pricing:     pricing,
		Inventory: applyInventorySettings(domain.Inventory{
			MinimumStock: defaultMinimumStock,
			MaximumStock: defaultMaximumStock,
			ReorderPoint: defaultReorderPoint,
			Location:     defaultLocation,
		}, req.Inventory.InventorySettings),
		Suppliers: suppliers,
		Status:    defaultString(req.Status, domain.StatusActive),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := checkInventoryBounds(product.Inventory); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product, req.Inventory.CurrentStock, actorName(ctx))
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_create", "product", created.ID)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = trimmed(*req.Name)
	}
	if req.Description != nil {
		updated.Description = trimmed(*req.Description)
	}
	if req.Category != nil {
		updated.Category = trimmed(*req.Category)
	}
	if req.Subcategory != nil {
		updated.Subcategory = trimmed(*req.Subcategory)
	}
	if req.Brand != nil {
		updated.Brand = trimmed(*req.Brand)
	}
	if req.SKU != nil {
		updated.SKU = strings.ToUpper(trimmed(*req.SKU))
	}
	if req.Barcode != nil {
		updated.Barcode = trimmed(*req.Barcode)
	}
	if req.Pricing != nil {
		input := *req.Pricing
		if input.TaxRate == nil {
			rate := existing.Pricing.TaxRate
			input.TaxRate = &rate
		}
		if input.Currency == "" {
			input.Currency = existing.Pricing.Currency
		}
		pricing, err := s.buildPricing(input)
		if err != nil {
			return domain.Product{}, err
		}
		updated.Pricing = pricing
	}
	if req.Inventory != nil {
		updated.Inventory = applyInventorySettings(updated.Inventory, *req.Inventory)
		if err := checkInventoryBounds(updated.Inventory); err != nil {
			return domain.Product{}, err
		}
	}
	if req.Suppliers != nil {
		suppliers, err := s.resolveSuppliers(ctx, *req.Suppliers)
		if err != nil {
			return domain.Product{}, err
		}
		updated.Suppliers = suppliers
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, "product_update", "product", saved.ID)
	s.invalidateDashboard(ctx)
	return *saved, nil
}

// DeleteProduct discontinues the product; its movements and invoice lines stay.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	existing.Status = domain.StatusDiscontinued
	existing.UpdatedAt = s.now()
	if _, err := s.repo.UpdateProduct(ctx, *existing); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id)
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) AdjustInventory(ctx context.Context, productID string, req domain.InventoryAdjustRequest) (domain.InventoryAdjustResponse, error) {
	if err := domain.Validate(req); err != nil {
		return domain.InventoryAdjustResponse{}, err
	}
	reason := trimmed(req.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	product, movement, err := s.repo.AdjustStock(ctx, domain.StockChange{
		ProductID: productID,
		Type:      domain.MovementAdjustment,
		Operation: req.Operation,
		Quantity:  *req.Quantity,
		Reason:    reason,
		Actor:     actorName(ctx),
	})
	if err != nil {
		return domain.InventoryAdjustResponse{}, err
	}

	if product.NeedsReorder() {
		s.log.Warn().
			Str("product_id", product.ID).
			Str("sku", product.SKU).
			Int("current_stock", product.Inventory.CurrentStock).
			Int("reorder_point", product.Inventory.ReorderPoint).
			Msg("product needs reorder")
	}
	s.logAudit(ctx, "inventory_adjust", "product", product.ID)
	s.invalidateDashboard(ctx)
	return domain.InventoryAdjustResponse{
		Product:      *product,
		Movement:     *movement,
		NeedsReorder: product.NeedsReorder(),
	}, nil
}

func (s *Service) buildPricing(input domain.PricingInput) (domain.Pricing, error) {
	fields := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"pricing.costPrice", input.CostPrice},
		{"pricing.sellingPrice", input.SellingPrice},
		{"pricing.wholesalePrice", input.WholesalePrice},
	}
	var problems []string
	for _, f := range fields {
		if f.amount.IsNegative() {
			problems = append(problems, f.name+" must not be negative")
		}
	}
	rate := s.taxRate
	if input.TaxRate != nil {
		rate = *input.TaxRate
	}
	if err := domain.ValidateRate("pricing.taxRate", rate); err != nil {
		problems = append(problems, "pricing.taxRate must be between 0 and 100")
	}
	if len(problems) > 0 {
		return domain.Pricing{}, &domain.ValidationError{Fields: problems}
	}

	return domain.Pricing{
		CostPrice:      input.CostPrice.Round(2),
		SellingPrice:   input.SellingPrice.Round(2),
		WholesalePrice: input.WholesalePrice.Round(2),
		Currency:       defaultString(input.Currency, domain.CurrencyCOP),
		TaxRate:        rate,
	}, nil
}

// resolveSuppliers checks each referenced supplier and snapshots its company
// name onto the product.
func (s *Service) resolveSuppliers(ctx context.Context, inputs []domain.ProductSupplierInput) ([]domain.ProductSupplier, error) {
	out := make([]domain.ProductSupplier, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		id := trimmed(input.SupplierID)
		if seen[id] {
			return nil, &domain.ValidationError{Fields: []string{"suppliers contains " + id + " more than once"}}
		}
		seen[id] = true
		if input.SupplierPrice.IsNegative() {
			return nil, &domain.ValidationError{Fields: []string{"suppliers.supplierPrice must not be negative"}}
		}
		supplier, err := s.repo.GetSupplier(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: supplier %s does not exist", store.ErrInvalidInput, id)
			}
			return nil, err
		}
		leadTime := defaultLeadTimeDays
		if input.LeadTimeDays != nil {
			leadTime = *input.LeadTimeDays
		}
		out = append(out, domain.ProductSupplier{
			SupplierID:    supplier.ID,
			SupplierName:  supplier.Company,
			SupplierPrice: input.SupplierPrice.Round(2),
			LeadTimeDays:  leadTime,
			IsPreferred:   input.IsPreferred,
		})
	}
	return out, nil
}

// generateSKU builds CAT-NNNN from the first three letters of the category.
func (s *Service) generateSKU(ctx context.Context, category string) (string, error) {
	prefix := skuPrefix(category)
	seq, err := s.repo.NextSKUSequence(ctx, prefix)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d", prefix, seq), nil
}

func skuPrefix(category string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(category) {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			continue
		}
		b.WriteRune(r)
		if b.Len() == 3 {
			break
		}
	}
	if b.Len() == 0 {
		return "PRD"
	}
	return b.String()
}

func applyInventorySettings(inv domain.Inventory, settings domain.InventorySettings) domain.Inventory {
	if settings.MinimumStock != nil {
		inv.MinimumStock = *settings.MinimumStock
	}
	if settings.MaximumStock != nil {
		inv.MaximumStock = *settings.MaximumStock
	}
	if settings.ReorderPoint != nil {
		inv.ReorderPoint = *settings.ReorderPoint
	}
	if settings.Location != nil {
		inv.Location = defaultString(trimmed(*settings.Location), defaultLocation)
	}
	return inv
}

func checkInventoryBounds(inv domain.Inventory) error {
	if inv.MaximumStock < inv.MinimumStock {
		return &domain.ValidationError{Fields: []string{"inventory.maximumStock must not be below inventory.minimumStock"}}
	}
	return nil
}
