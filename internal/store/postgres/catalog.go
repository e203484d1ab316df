package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

const supplierColumns = `id, identification_number, company, contact_name, phone, email,
	bank_account, bank_name, street, city, state, country, zip_code, status, created_at, updated_at`

func scanSupplier(row rowScanner) (*domain.Supplier, error) {
	var sup domain.Supplier
	if err := row.Scan(
		&sup.ID, &sup.IdentificationNumber, &sup.Company, &sup.ContactName, &sup.Phone, &sup.Email,
		&sup.BankAccount, &sup.BankName, &sup.Address.Street, &sup.Address.City, &sup.Address.State,
		&sup.Address.Country, &sup.Address.ZipCode, &sup.Status, &sup.CreatedAt, &sup.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sup.CreatedAt = sup.CreatedAt.UTC()
	sup.UpdatedAt = sup.UpdatedAt.UTC()
	sup.Catalog = []domain.CatalogItem{}
	return &sup, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO suppliers (`+supplierColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, supplier.ID, supplier.IdentificationNumber, supplier.Company, supplier.ContactName, supplier.Phone,
		supplier.Email, supplier.BankAccount, supplier.BankName, supplier.Address.Street, supplier.Address.City,
		supplier.Address.State, supplier.Address.Country, supplier.Address.ZipCode, supplier.Status,
		supplier.CreatedAt, supplier.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	for _, item := range supplier.Catalog {
		if err := upsertCatalogItem(ctx, tx, supplier.ID, item); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSupplier(ctx, supplier.ID)
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.db.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	catalogs, err := s.loadCatalogs(ctx, []string{sup.ID})
	if err != nil {
		return nil, err
	}
	if items, ok := catalogs[sup.ID]; ok {
		sup.Catalog = items
	}
	return sup, nil
}

var supplierSortColumns = map[string]string{
	"company":   "company",
	"createdAt": "created_at",
	"status":    "status",
}

func (s *Store) ListSuppliers(ctx context.Context, filter store.ListFilter) (store.Page[domain.Supplier], error) {
	filter = filter.Normalize()
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = " + where.arg(filter.Status))
	}
	where.search(filter.Search, "company", "contact_name", "identification_number", "email")

	total, err := s.count(ctx, "suppliers", where)
	if err != nil {
		return store.Page[domain.Supplier]{}, err
	}

	query := `SELECT ` + supplierColumns + ` FROM suppliers ` + where.String() + " " +
		orderBy(filter.Sort, "company", supplierSortColumns) + " " + pageClause(where, filter)
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return store.Page[domain.Supplier]{}, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, filter.Limit)
	ids := make([]string, 0, filter.Limit)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return store.Page[domain.Supplier]{}, err
		}
		suppliers = append(suppliers, *sup)
		ids = append(ids, sup.ID)
	}
	if err := rows.Err(); err != nil {
		return store.Page[domain.Supplier]{}, err
	}

	catalogs, err := s.loadCatalogs(ctx, ids)
	if err != nil {
		return store.Page[domain.Supplier]{}, err
	}
	for i := range suppliers {
		if items, ok := catalogs[suppliers[i].ID]; ok {
			suppliers[i].Catalog = items
		}
	}
	return store.Page[domain.Supplier]{Items: suppliers, Total: total}, nil
}

// UpdateSupplier rewrites the supplier row; catalog items are managed separately.
func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers
		SET identification_number = $2, company = $3, contact_name = $4, phone = $5, email = $6,
			bank_account = $7, bank_name = $8, street = $9, city = $10, state = $11, country = $12,
			zip_code = $13, status = $14, updated_at = $15
		WHERE id = $1
	`, supplier.ID, supplier.IdentificationNumber, supplier.Company, supplier.ContactName, supplier.Phone,
		supplier.Email, supplier.BankAccount, supplier.BankName, supplier.Address.Street, supplier.Address.City,
		supplier.Address.State, supplier.Address.Country, supplier.Address.ZipCode, supplier.Status, supplier.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetSupplier(ctx, supplier.ID)
}

func (s *Store) UpsertCatalogItem(ctx context.Context, supplierID string, item domain.CatalogItem) (*domain.Supplier, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := touchSupplier(ctx, tx, supplierID); err != nil {
		return nil, err
	}
	if err := upsertCatalogItem(ctx, tx, supplierID, item); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSupplier(ctx, supplierID)
}

func (s *Store) RemoveCatalogItem(ctx context.Context, supplierID string, productID string) (*domain.Supplier, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := touchSupplier(ctx, tx, supplierID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM supplier_catalog_items WHERE supplier_id = $1 AND product_id = $2
	`, supplierID, productID)
	if err != nil {
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("%w: catalog item %s", store.ErrNotFound, productID)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSupplier(ctx, supplierID)
}

func touchSupplier(ctx context.Context, tx *sql.Tx, supplierID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE suppliers SET updated_at = $2 WHERE id = $1`, supplierID, time.Now().UTC())
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func upsertCatalogItem(ctx context.Context, tx *sql.Tx, supplierID string, item domain.CatalogItem) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO supplier_catalog_items (
			supplier_id, product_id, product_name, description, category, unit_price,
			currency, available_quantity, minimum_order, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (supplier_id, product_id) DO UPDATE SET
			product_name = EXCLUDED.product_name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			unit_price = EXCLUDED.unit_price,
			currency = EXCLUDED.currency,
			available_quantity = EXCLUDED.available_quantity,
			minimum_order = EXCLUDED.minimum_order,
			is_active = EXCLUDED.is_active
	`, supplierID, item.ProductID, item.ProductName, item.Description, item.Category, item.UnitPrice,
		item.Currency, item.AvailableQuantity, item.MinimumOrder, item.IsActive)
	return err
}

func (s *Store) loadCatalogs(ctx context.Context, supplierIDs []string) (map[string][]domain.CatalogItem, error) {
	result := make(map[string][]domain.CatalogItem, len(supplierIDs))
	if len(supplierIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT supplier_id, product_id, product_name, description, category, unit_price,
			currency, available_quantity, minimum_order, is_active
		FROM supplier_catalog_items
		WHERE supplier_id = ANY($1)
		ORDER BY added_at ASC, product_id ASC
	`, supplierIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var supplierID string
		var item domain.CatalogItem
		if err := rows.Scan(&supplierID, &item.ProductID, &item.ProductName, &item.Description, &item.Category,
			&item.UnitPrice, &item.Currency, &item.AvailableQuantity, &item.MinimumOrder, &item.IsActive); err != nil {
			return nil, err
		}
		result[supplierID] = append(result[supplierID], item)
	}
	return result, rows.Err()
}

const clientColumns = `id, tax_id, client_type, first_name, last_name, full_name, email, phone,
	company_name, business_type, registration_number, street, city, state, country, zip_code,
	preferred_payment_method, discount_level, notes, status, created_at, updated_at`

func scanClient(row rowScanner) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(
		&c.ID, &c.TaxID, &c.ClientType, &c.PersonalInfo.FirstName, &c.PersonalInfo.LastName,
		&c.PersonalInfo.FullName, &c.PersonalInfo.Email, &c.PersonalInfo.Phone,
		&c.BusinessInfo.CompanyName, &c.BusinessInfo.BusinessType, &c.BusinessInfo.RegistrationNumber,
		&c.Address.Street, &c.Address.City, &c.Address.State, &c.Address.Country, &c.Address.ZipCode,
		&c.Preferences.PreferredPaymentMethod, &c.Preferences.DiscountLevel, &c.Preferences.Notes,
		&c.Status, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func clientArgs(c domain.Client) []any {
	return []any{
		c.ID, c.TaxID, c.ClientType, c.PersonalInfo.FirstName, c.PersonalInfo.LastName,
		c.PersonalInfo.FullName, c.PersonalInfo.Email, c.PersonalInfo.Phone,
		c.BusinessInfo.CompanyName, c.BusinessInfo.BusinessType, c.BusinessInfo.RegistrationNumber,
		c.Address.Street, c.Address.City, c.Address.State, c.Address.Country, c.Address.ZipCode,
		c.Preferences.PreferredPaymentMethod, c.Preferences.DiscountLevel, c.Preferences.Notes,
		c.Status, c.CreatedAt, c.UpdatedAt,
	}
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.ID == "" {
		client.ID = xid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	`, clientArgs(client)...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &client, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	c, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

var clientSortColumns = map[string]string{
	"fullName":  "full_name",
	"taxId":     "tax_id",
	"createdAt": "created_at",
}

func (s *Store) ListClients(ctx context.Context, filter store.ListFilter) (store.Page[domain.Client], error) {
	filter = filter.Normalize()
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = " + where.arg(filter.Status))
	}
	where.search(filter.Search, "full_name", "company_name", "tax_id", "email")

	total, err := s.count(ctx, "clients", where)
	if err != nil {
		return store.Page[domain.Client]{}, err
	}

	query := `SELECT ` + clientColumns + ` FROM clients ` + where.String() + " " +
		orderBy(filter.Sort, "fullName", clientSortColumns) + " " + pageClause(where, filter)
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return store.Page[domain.Client]{}, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, filter.Limit)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return store.Page[domain.Client]{}, err
		}
		clients = append(clients, *c)
	}
	if err := rows.Err(); err != nil {
		return store.Page[domain.Client]{}, err
	}
	return store.Page[domain.Client]{Items: clients, Total: total}, nil
}

func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET tax_id = $2, client_type = $3, first_name = $4, last_name = $5, full_name = $6,
			email = $7, phone = $8, company_name = $9, business_type = $10, registration_number = $11,
			street = $12, city = $13, state = $14, country = $15, zip_code = $16,
			preferred_payment_method = $17, discount_level = $18, notes = $19, status = $20,
			created_at = $21, updated_at = $22
		WHERE id = $1
	`, clientArgs(client)...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, store.ErrNotFound
	}
	return &client, nil
}
