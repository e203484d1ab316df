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

const invoiceColumns = `id, invoice_number, client_id, client_info, taxes,
	subtotal, discount, discount_percentage, tax_amount, final_amount, currency,
	payment_status, payment_method, paid_amount, payment_date, transaction_id, payment_history,
	issue_date, due_date, paid_date, notes, status, status_history, created_by, created_at, updated_at`

const overdueCondition = `status NOT IN ('paid', 'cancelled') AND payment_status <> 'paid' AND due_date < `

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var clientInfo, taxes, paymentHistory, statusHistory []byte
	var paymentDate, paidDate sql.NullTime
	if err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &clientInfo, &taxes,
		&inv.Totals.Subtotal, &inv.Totals.Discount, &inv.Totals.DiscountPercentage, &inv.Totals.TaxAmount,
		&inv.Totals.FinalAmount, &inv.Totals.Currency,
		&inv.Payment.Status, &inv.Payment.Method, &inv.Payment.PaidAmount, &paymentDate,
		&inv.Payment.TransactionID, &paymentHistory,
		&inv.Dates.IssueDate, &inv.Dates.DueDate, &paidDate, &inv.Notes, &inv.Status, &statusHistory,
		&inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, decode := range []struct {
		raw  []byte
		dest any
	}{
		{clientInfo, &inv.ClientInfo},
		{taxes, &inv.Taxes},
		{paymentHistory, &inv.Payment.History},
		{statusHistory, &inv.StatusHistory},
	} {
		if err := fromJSON(decode.raw, decode.dest); err != nil {
			return nil, fmt.Errorf("decode invoice %s: %w", inv.ID, err)
		}
	}
	inv.Taxes = nonNil(inv.Taxes)
	inv.Payment.History = nonNil(inv.Payment.History)
	inv.StatusHistory = nonNil(inv.StatusHistory)
	inv.Payment.PaymentDate = timePtr(paymentDate)
	inv.Dates.PaidDate = timePtr(paidDate)
	inv.Dates.IssueDate = inv.Dates.IssueDate.UTC()
	inv.Dates.DueDate = inv.Dates.DueDate.UTC()
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.UpdatedAt = inv.UpdatedAt.UTC()
	return &inv, nil
}

// invoiceArgs lists the column values in invoiceColumns order.
func invoiceArgs(inv domain.Invoice) ([]any, error) {
	encoded := make([]string, 0, 4)
	for _, v := range []any{inv.ClientInfo, nonNil(inv.Taxes), nonNil(inv.Payment.History), nonNil(inv.StatusHistory)} {
		raw, err := toJSON(v)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, raw)
	}
	return []any{
		inv.ID, inv.InvoiceNumber, inv.ClientID, encoded[0], encoded[1],
		inv.Totals.Subtotal, inv.Totals.Discount, inv.Totals.DiscountPercentage, inv.Totals.TaxAmount,
		inv.Totals.FinalAmount, inv.Totals.Currency,
		inv.Payment.Status, inv.Payment.Method, inv.Payment.PaidAmount, nullTime(inv.Payment.PaymentDate),
		inv.Payment.TransactionID, encoded[2],
		inv.Dates.IssueDate, inv.Dates.DueDate, nullTime(inv.Dates.PaidDate), inv.Notes, inv.Status, encoded[3],
		inv.CreatedBy, inv.CreatedAt, inv.UpdatedAt,
	}, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if len(invoice.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	}
	if invoice.ID == "" {
		invoice.ID = xid.New()
	}
	err := s.inSerializable(ctx, func(tx *sql.Tx) error {
		return createInvoiceTx(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, invoice.ID)
}

func createInvoiceTx(ctx context.Context, tx *sql.Tx, invoice domain.Invoice) error {
	var clientExists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, invoice.ClientID).Scan(&clientExists); err != nil {
		return err
	}
	if !clientExists {
		return fmt.Errorf("%w: client %s", store.ErrNotFound, invoice.ClientID)
	}

	locked, err := lockProducts(ctx, tx, invoiceProductIDs(invoice))
	if err != nil {
		return err
	}
	// Dry run every decrement first so a failure leaves stock untouched.
	planned := make(map[string]int, len(locked))
	for _, item := range invoice.Items {
		product, ok := locked[item.ProductID]
		if !ok || product.Status != domain.StatusActive {
			return fmt.Errorf("%w: product %s is not available", store.ErrInvalidInput, item.ProductID)
		}
		current, seen := planned[item.ProductID]
		if !seen {
			current = product.Inventory.CurrentStock
		}
		next, err := domain.ApplyStockOperation(current, domain.StockSubtract, item.Quantity)
		if err != nil {
			return fmt.Errorf("product %s: %w", product.Name, err)
		}
		planned[item.ProductID] = next
	}

	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt
	if invoice.Dates.IssueDate.IsZero() {
		invoice.Dates.IssueDate = invoice.CreatedAt
	}
	if invoice.InvoiceNumber == "" {
		year := invoice.Dates.IssueDate.Year()
		var seq int
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO invoice_sequences (year, last_value) VALUES ($1, 1)
			ON CONFLICT (year) DO UPDATE SET last_value = invoice_sequences.last_value + 1
			RETURNING last_value
		`, year).Scan(&seq); err != nil {
			return err
		}
		invoice.InvoiceNumber = domain.FormatInvoiceNumber(year, seq)
	}

	args, err := invoiceArgs(invoice)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
	`, args...); err != nil {
		return mapWriteError(err)
	}
	if err := insertInvoiceItems(ctx, tx, invoice); err != nil {
		return err
	}

	for _, item := range invoice.Items {
		if _, _, err := applyMovementTx(ctx, tx, domain.StockChange{
			ProductID: item.ProductID,
			Type:      domain.MovementSale,
			Operation: domain.StockSubtract,
			Quantity:  item.Quantity,
			Reason:    "invoice " + invoice.InvoiceNumber,
			Actor:     invoice.CreatedBy,
			Reference: invoice.ID,
		}, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := loadInvoiceItems(ctx, s.db, []string{inv.ID})
	if err != nil {
		return nil, err
	}
	inv.Items = nonNil(items[inv.ID])
	return inv, nil
}

var invoiceSortColumns = map[string]string{
	"createdAt":     "created_at",
	"invoiceNumber": "invoice_number",
	"dueDate":       "due_date",
	"total":         "final_amount",
}

func (s *Store) ListInvoices(ctx context.Context, filter store.ListFilter) (store.Page[domain.Invoice], error) {
	filter = filter.Normalize()
	where := &whereClause{}
	if filter.Status != "" {
		where.add("status = " + where.arg(filter.Status))
	}
	if filter.ClientID != "" {
		where.add("client_id = " + where.arg(filter.ClientID))
	}
	if filter.PaymentStatus != "" {
		where.add("payment_status = " + where.arg(filter.PaymentStatus))
	}
	if filter.Overdue {
		where.add(overdueCondition + where.arg(filter.Now))
	}
	where.search(filter.Search, "invoice_number", "client_info->>'name'", "client_info->>'taxId'")

	total, err := s.count(ctx, "invoices", where)
	if err != nil {
		return store.Page[domain.Invoice]{}, err
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices ` + where.String() + " " +
		orderBy(filter.Sort, "-createdAt", invoiceSortColumns) + " " + pageClause(where, filter)
	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return store.Page[domain.Invoice]{}, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, filter.Limit)
	ids := make([]string, 0, filter.Limit)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return store.Page[domain.Invoice]{}, err
		}
		invoices = append(invoices, *inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return store.Page[domain.Invoice]{}, err
	}

	items, err := loadInvoiceItems(ctx, s.db, ids)
	if err != nil {
		return store.Page[domain.Invoice]{}, err
	}
	for i := range invoices {
		invoices[i].Items = nonNil(items[invoices[i].ID])
	}
	return store.Page[domain.Invoice]{Items: invoices, Total: total}, nil
}

func (s *Store) UpdateDraftInvoice(ctx context.Context, id string, apply func(*domain.Invoice) error) (*domain.Invoice, error) {
	return s.mutateInvoice(ctx, id, func(tx *sql.Tx, inv *domain.Invoice) (bool, error) {
		if inv.Status != domain.InvoiceDraft {
			return false, fmt.Errorf("%w: only draft invoices can be edited", store.ErrInvalidTransition)
		}
		if err := apply(inv); err != nil {
			return false, err
		}
		inv.UpdatedAt = time.Now().UTC()
		return true, nil
	})
}

func (s *Store) TransitionInvoice(ctx context.Context, id string, change domain.StatusChange) (*domain.Invoice, error) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	return s.mutateInvoice(ctx, id, func(tx *sql.Tx, inv *domain.Invoice) (bool, error) {
		original := *inv
		if err := inv.ApplyTransition(change); err != nil {
			return false, err
		}
		if change.Status == domain.InvoiceCancelled {
			if err := restoreStockTx(ctx, tx, original, "invoice cancelled", change.Actor, change.Timestamp); err != nil {
				return false, err
			}
		}
		return false, nil
	})
}

func (s *Store) ApplyPayment(ctx context.Context, id string, change domain.PaymentChange) (*domain.Invoice, error) {
	return s.mutateInvoice(ctx, id, func(_ *sql.Tx, inv *domain.Invoice) (bool, error) {
		return false, inv.ApplyPayment(change, time.Now().UTC())
	})
}

func (s *Store) DeleteInvoice(ctx context.Context, id string, actor string) error {
	return s.inSerializable(ctx, func(tx *sql.Tx) error {
		inv, err := loadInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if inv.Status != domain.InvoiceDraft {
			return fmt.Errorf("%w: only draft invoices can be deleted", store.ErrInvalidTransition)
		}
		if err := restoreStockTx(ctx, tx, *inv, "invoice deleted", actor, time.Now().UTC()); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
		return err
	})
}

func (s *Store) InvoiceStats(ctx context.Context, now time.Time) (domain.InvoiceStats, error) {
	var stats domain.InvoiceStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE `+overdueCondition+`$1),
			COALESCE(sum(final_amount) FILTER (WHERE status = 'paid'), 0),
			COALESCE(sum(GREATEST(final_amount - paid_amount, 0)) FILTER (WHERE status NOT IN ('paid', 'cancelled')), 0)
		FROM invoices
	`, now).Scan(&stats.Count, &stats.Overdue, &stats.TotalSales, &stats.Outstanding)
	return stats, err
}

// mutateInvoice loads the invoice under lock, lets fn change it and writes
// every mutable column back. fn reports whether line items changed too.
func (s *Store) mutateInvoice(ctx context.Context, id string, fn func(tx *sql.Tx, inv *domain.Invoice) (bool, error)) (*domain.Invoice, error) {
	err := s.inSerializable(ctx, func(tx *sql.Tx) error {
		inv, err := loadInvoiceForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		current := inv.Status
		itemsChanged, err := fn(tx, inv)
		if err != nil {
			return err
		}
		if err := saveInvoiceTx(ctx, tx, *inv, current); err != nil {
			return err
		}
		if !itemsChanged {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, inv.ID); err != nil {
			return err
		}
		return insertInvoiceItems(ctx, tx, *inv)
	})
	if err != nil {
		return nil, err
	}
	return s.GetInvoice(ctx, id)
}

// saveInvoiceTx writes the mutable columns, guarded on the status the
// caller loaded.
func saveInvoiceTx(ctx context.Context, tx *sql.Tx, inv domain.Invoice, fromStatus string) error {
	taxes, err := toJSON(nonNil(inv.Taxes))
	if err != nil {
		return err
	}
	paymentHistory, err := toJSON(nonNil(inv.Payment.History))
	if err != nil {
		return err
	}
	statusHistory, err := toJSON(nonNil(inv.StatusHistory))
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE invoices
		SET taxes = $2, subtotal = $3, discount = $4, discount_percentage = $5, tax_amount = $6,
			final_amount = $7, payment_status = $8, payment_method = $9, paid_amount = $10,
			payment_date = $11, transaction_id = $12, payment_history = $13, due_date = $14,
			paid_date = $15, notes = $16, status = $17, status_history = $18, updated_at = $19
		WHERE id = $1 AND status = $20
	`, inv.ID, taxes, inv.Totals.Subtotal, inv.Totals.Discount, inv.Totals.DiscountPercentage,
		inv.Totals.TaxAmount, inv.Totals.FinalAmount, inv.Payment.Status, inv.Payment.Method,
		inv.Payment.PaidAmount, nullTime(inv.Payment.PaymentDate), inv.Payment.TransactionID, paymentHistory,
		inv.Dates.DueDate, nullTime(inv.Dates.PaidDate), inv.Notes, inv.Status, statusHistory, inv.UpdatedAt, fromStatus)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: invoice %s changed concurrently", store.ErrInvalidTransition, inv.ID)
	}
	return nil
}

func loadInvoiceForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Invoice, error) {
	inv, err := scanInvoice(tx.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	items, err := loadInvoiceItems(ctx, tx, []string{inv.ID})
	if err != nil {
		return nil, err
	}
	inv.Items = nonNil(items[inv.ID])
	return inv, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadInvoiceItems(ctx context.Context, q querier, invoiceIDs []string) (map[string][]domain.InvoiceItem, error) {
	result := make(map[string][]domain.InvoiceItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT invoice_id, product_id, product_name, quantity, unit_price, tax_rate, subtotal, discount, tax_amount, total
		FROM invoice_items
		WHERE invoice_id = ANY($1)
		ORDER BY invoice_id, line_no
	`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var invoiceID string
		var item domain.InvoiceItem
		if err := rows.Scan(&invoiceID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice,
			&item.TaxRate, &item.Subtotal, &item.Discount, &item.TaxAmount, &item.Total); err != nil {
			return nil, err
		}
		result[invoiceID] = append(result[invoiceID], item)
	}
	return result, rows.Err()
}

func insertInvoiceItems(ctx context.Context, tx *sql.Tx, inv domain.Invoice) error {
	for i, item := range inv.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (
				invoice_id, line_no, product_id, product_name, quantity, unit_price,
				tax_rate, subtotal, discount, tax_amount, total
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, inv.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
			item.TaxRate, item.Subtotal, item.Discount, item.TaxAmount, item.Total); err != nil {
			return err
		}
	}
	return nil
}

// lockProducts takes row locks in id order so concurrent invoices touching
// the same products cannot deadlock.
func lockProducts(ctx context.Context, tx *sql.Tx, ids []string) (map[string]domain.Product, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locked := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		locked[p.ID] = *p
	}
	return locked, rows.Err()
}

func restoreStockTx(ctx context.Context, tx *sql.Tx, inv domain.Invoice, reason string, actor string, at time.Time) error {
	ids := invoiceProductIDs(inv)
	locked, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := locked[id]; !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, id)
		}
	}
	for _, item := range inv.Items {
		if _, _, err := applyMovementTx(ctx, tx, domain.StockChange{
			ProductID: item.ProductID,
			Type:      domain.MovementReturn,
			Operation: domain.StockAdd,
			Quantity:  item.Quantity,
			Reason:    reason + " " + inv.InvoiceNumber,
			Actor:     actor,
			Reference: inv.ID,
		}, at); err != nil {
			return err
		}
	}
	return nil
}

func invoiceProductIDs(inv domain.Invoice) []string {
	seen := make(map[string]struct{}, len(inv.Items))
	ids := make([]string, 0, len(inv.Items))
	for _, item := range inv.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}
