package service

import (
	"context"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

const defaultCountry = "Colombia"

func (s *Service) ListSuppliers(ctx context.Context, filter store.ListFilter) (store.Page[domain.Supplier], error) {
	return s.repo.ListSuppliers(ctx, filter)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Supplier{}, err
	}
	if err := domain.Validate(req.Address); err != nil {
		return domain.Supplier{}, err
	}

	now := s.now()
	supplier := domain.Supplier{
		IdentificationNumber: trimmed(req.IdentificationNumber),
		Company:              trimmed(req.Company),
		ContactName:          trimmed(req.ContactName),
		Phone:                trimmed(req.Phone),
		Email:                trimmed(req.Email),
		BankAccount:          trimmed(req.BankAccount),
		BankName:             trimmed(req.BankName),
		Address:              req.Address,
		Catalog:              []domain.CatalogItem{},
		Status:               defaultString(req.Status, domain.StatusActive),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	supplier.Address.Country = defaultString(supplier.Address.Country, defaultCountry)

	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_create", "supplier", created.ID)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Supplier{}, err
	}
	existing, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}

	updated := *existing
	if req.IdentificationNumber != nil {
		updated.IdentificationNumber = trimmed(*req.IdentificationNumber)
	}
	if req.Company != nil {
		updated.Company = trimmed(*req.Company)
	}
	if req.ContactName != nil {
		updated.ContactName = trimmed(*req.ContactName)
	}
	if req.Phone != nil {
		updated.Phone = trimmed(*req.Phone)
	}
	if req.Email != nil {
		updated.Email = trimmed(*req.Email)
	}
	if req.BankAccount != nil {
		updated.BankAccount = trimmed(*req.BankAccount)
	}
	if req.BankName != nil {
		updated.BankName = trimmed(*req.BankName)
	}
	if req.Address != nil {
		if err := domain.Validate(*req.Address); err != nil {
			return domain.Supplier{}, err
		}
		updated.Address = *req.Address
		updated.Address.Country = defaultString(updated.Address.Country, defaultCountry)
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}
	updated.UpdatedAt = s.now()

	saved, err := s.repo.UpdateSupplier(ctx, updated)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_update", "supplier", saved.ID)
	s.invalidateDashboard(ctx)
	return *saved, nil
}

// DeleteSupplier is a soft delete: the supplier is kept as inactive.
func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	existing, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return err
	}
	existing.Status = domain.StatusInactive
	existing.UpdatedAt = s.now()
	if _, err := s.repo.UpdateSupplier(ctx, *existing); err != nil {
		return err
	}
	s.logAudit(ctx, "supplier_delete", "supplier", id)
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) UpsertCatalogItem(ctx context.Context, supplierID string, req domain.CatalogItemRequest) (domain.Supplier, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Supplier{}, err
	}
	if err := domain.ValidateAmount("unitPrice", req.UnitPrice); err != nil {
		return domain.Supplier{}, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	item := domain.CatalogItem{
		ProductID:         trimmed(req.ProductID),
		ProductName:       trimmed(req.ProductName),
		Description:       trimmed(req.Description),
		Category:          trimmed(req.Category),
		UnitPrice:         req.UnitPrice.Round(2),
		Currency:          defaultString(req.Currency, domain.CurrencyCOP),
		AvailableQuantity: req.AvailableQuantity,
		MinimumOrder:      req.MinimumOrder,
		IsActive:          active,
	}

	saved, err := s.repo.UpsertCatalogItem(ctx, supplierID, item)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_catalog_upsert", "supplier", supplierID)
	return *saved, nil
}

func (s *Service) RemoveCatalogItem(ctx context.Context, supplierID string, productID string) (domain.Supplier, error) {
	saved, err := s.repo.RemoveCatalogItem(ctx, supplierID, productID)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.logAudit(ctx, "supplier_catalog_remove", "supplier", supplierID)
	return *saved, nil
}
