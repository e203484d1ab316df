package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSupplierUnique(supplier); err != nil {
		return nil, err
	}
	if supplier.ID == "" {
		supplier.ID = xid.New()
	}
	supplier = cloneSupplier(supplier)
	s.suppliers[supplier.ID] = supplier
	out := cloneSupplier(supplier)
	return &out, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSupplier(supplier)
	return &out, nil
}

func (s *Store) ListSuppliers(_ context.Context, filter store.ListFilter) (store.Page[domain.Supplier], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	items := make([]domain.Supplier, 0, len(s.suppliers))
	for _, supplier := range s.suppliers {
		if filter.Status != "" && supplier.Status != filter.Status {
			continue
		}
		if !matches(filter.Search, supplier.Company, supplier.ContactName, supplier.IdentificationNumber, supplier.Email) {
			continue
		}
		items = append(items, cloneSupplier(supplier))
	}
	sortItems(items, filter.Sort, "company", map[string]func(a, b domain.Supplier) int{
		"company":   func(a, b domain.Supplier) int { return cmp.Compare(a.Company, b.Company) },
		"createdAt": func(a, b domain.Supplier) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"status":    func(a, b domain.Supplier) int { return cmp.Compare(a.Status, b.Status) },
	})
	return paginate(items, filter), nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.suppliers[supplier.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkSupplierUnique(supplier); err != nil {
		return nil, err
	}
	supplier = cloneSupplier(supplier)
	s.suppliers[supplier.ID] = supplier
	out := cloneSupplier(supplier)
	return &out, nil
}

func (s *Store) UpsertCatalogItem(_ context.Context, supplierID string, item domain.CatalogItem) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.suppliers[supplierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier = cloneSupplier(supplier)
	idx := slices.IndexFunc(supplier.Catalog, func(c domain.CatalogItem) bool { return c.ProductID == item.ProductID })
	if idx >= 0 {
		supplier.Catalog[idx] = item
	} else {
		supplier.Catalog = append(supplier.Catalog, item)
	}
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliers[supplierID] = supplier
	out := cloneSupplier(supplier)
	return &out, nil
}

func (s *Store) RemoveCatalogItem(_ context.Context, supplierID string, productID string) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier, ok := s.suppliers[supplierID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier = cloneSupplier(supplier)
	idx := slices.IndexFunc(supplier.Catalog, func(c domain.CatalogItem) bool { return c.ProductID == productID })
	if idx < 0 {
		return nil, fmt.Errorf("%w: catalog item %s", store.ErrNotFound, productID)
	}
	supplier.Catalog = slices.Delete(supplier.Catalog, idx, idx+1)
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliers[supplierID] = supplier
	out := cloneSupplier(supplier)
	return &out, nil
}

func (s *Store) checkSupplierUnique(supplier domain.Supplier) error {
	for id, existing := range s.suppliers {
		if id != supplier.ID && existing.IdentificationNumber == supplier.IdentificationNumber {
			return fmt.Errorf("%w: identificationNumber already exists", store.ErrDuplicate)
		}
	}
	return nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkClientUnique(client); err != nil {
		return nil, err
	}
	if client.ID == "" {
		client.ID = xid.New()
	}
	s.clients[client.ID] = client
	out := client
	return &out, nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) ListClients(_ context.Context, filter store.ListFilter) (store.Page[domain.Client], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	items := make([]domain.Client, 0, len(s.clients))
	for _, client := range s.clients {
		if filter.Status != "" && client.Status != filter.Status {
			continue
		}
		if !matches(filter.Search, client.PersonalInfo.FullName, client.BusinessInfo.CompanyName, client.TaxID, client.PersonalInfo.Email) {
			continue
		}
		items = append(items, client)
	}
	sortItems(items, filter.Sort, "fullName", map[string]func(a, b domain.Client) int{
		"fullName":  func(a, b domain.Client) int { return cmp.Compare(a.PersonalInfo.FullName, b.PersonalInfo.FullName) },
		"taxId":     func(a, b domain.Client) int { return cmp.Compare(a.TaxID, b.TaxID) },
		"createdAt": func(a, b domain.Client) int { return a.CreatedAt.Compare(b.CreatedAt) },
	})
	return paginate(items, filter), nil
}

func (s *Store) UpdateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkClientUnique(client); err != nil {
		return nil, err
	}
	s.clients[client.ID] = client
	out := client
	return &out, nil
}

func (s *Store) checkClientUnique(client domain.Client) error {
	for id, existing := range s.clients {
		if id != client.ID && existing.TaxID == client.TaxID {
			return fmt.Errorf("%w: taxId already exists", store.ErrDuplicate)
		}
	}
	return nil
}

func cloneSupplier(src domain.Supplier) domain.Supplier {
	out := src
	out.Catalog = slices.Clone(src.Catalog)
	if out.Catalog == nil {
		out.Catalog = []domain.CatalogItem{}
	}
	return out
}
