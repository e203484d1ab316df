package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(invoice.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	}
	if _, ok := s.clients[invoice.ClientID]; !ok {
		return nil, fmt.Errorf("%w: client %s", store.ErrNotFound, invoice.ClientID)
	}

	// Dry run every decrement first so a failure leaves stock untouched.
	planned := make(map[string]int, len(invoice.Items))
	for _, item := range invoice.Items {
		product, ok := s.products[item.ProductID]
		if !ok || product.Status != domain.StatusActive {
			return nil, fmt.Errorf("%w: product %s is not available", store.ErrInvalidInput, item.ProductID)
		}
		current, seen := planned[item.ProductID]
		if !seen {
			current = product.Inventory.CurrentStock
		}
		next, err := domain.ApplyStockOperation(current, domain.StockSubtract, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", product.Name, err)
		}
		planned[item.ProductID] = next
	}

	now := time.Now().UTC()
	if invoice.ID == "" {
		invoice.ID = xid.New()
	}
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = invoice.CreatedAt
	if invoice.Dates.IssueDate.IsZero() {
		invoice.Dates.IssueDate = invoice.CreatedAt
	}
	if invoice.InvoiceNumber == "" {
		year := invoice.Dates.IssueDate.Year()
		s.invoiceSeq[year]++
		invoice.InvoiceNumber = domain.FormatInvoiceNumber(year, s.invoiceSeq[year])
	}
	for _, existing := range s.invoices {
		if existing.InvoiceNumber == invoice.InvoiceNumber {
			return nil, fmt.Errorf("%w: invoiceNumber already exists", store.ErrDuplicate)
		}
	}

	for _, item := range invoice.Items {
		if _, _, err := s.applyMovementLocked(domain.StockChange{
			ProductID: item.ProductID,
			Type:      domain.MovementSale,
			Operation: domain.StockSubtract,
			Quantity:  item.Quantity,
			Reason:    "invoice " + invoice.InvoiceNumber,
			Actor:     invoice.CreatedBy,
			Reference: invoice.ID,
		}, now); err != nil {
			return nil, err
		}
	}

	invoice = cloneInvoice(invoice)
	s.invoices[invoice.ID] = invoice
	out := cloneInvoice(invoice)
	return &out, nil
}

func (s *Store) GetInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneInvoice(invoice)
	return &out, nil
}

func (s *Store) ListInvoices(_ context.Context, filter store.ListFilter) (store.Page[domain.Invoice], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	items := make([]domain.Invoice, 0, len(s.invoices))
	for _, invoice := range s.invoices {
		if filter.Status != "" && invoice.Status != filter.Status {
			continue
		}
		if filter.ClientID != "" && invoice.ClientID != filter.ClientID {
			continue
		}
		if filter.PaymentStatus != "" && invoice.Payment.Status != filter.PaymentStatus {
			continue
		}
		if filter.Overdue && !invoice.IsOverdue(filter.Now) {
			continue
		}
		if !matches(filter.Search, invoice.InvoiceNumber, invoice.ClientInfo.Name, invoice.ClientInfo.TaxID) {
			continue
		}
		items = append(items, cloneInvoice(invoice))
	}
	sortItems(items, filter.Sort, "-createdAt", map[string]func(a, b domain.Invoice) int{
		"createdAt":     func(a, b domain.Invoice) int { return a.CreatedAt.Compare(b.CreatedAt) },
		"invoiceNumber": func(a, b domain.Invoice) int { return cmp.Compare(a.InvoiceNumber, b.InvoiceNumber) },
		"dueDate":       func(a, b domain.Invoice) int { return a.Dates.DueDate.Compare(b.Dates.DueDate) },
		"total":         func(a, b domain.Invoice) int { return a.Totals.FinalAmount.Cmp(b.Totals.FinalAmount) },
	})
	return paginate(items, filter), nil
}

func (s *Store) UpdateDraftInvoice(_ context.Context, id string, apply func(*domain.Invoice) error) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if invoice.Status != domain.InvoiceDraft {
		return nil, fmt.Errorf("%w: only draft invoices can be edited", store.ErrInvalidTransition)
	}
	draft := cloneInvoice(invoice)
	if err := apply(&draft); err != nil {
		return nil, err
	}
	draft.UpdatedAt = time.Now().UTC()
	s.invoices[id] = cloneInvoice(draft)
	return &draft, nil
}

func (s *Store) TransitionInvoice(_ context.Context, id string, change domain.StatusChange) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	updated := cloneInvoice(invoice)
	if err := updated.ApplyTransition(change); err != nil {
		return nil, err
	}
	if change.Status == domain.InvoiceCancelled {
		if err := s.restoreStockLocked(invoice, "invoice cancelled", change.Actor, change.Timestamp); err != nil {
			return nil, err
		}
	}
	s.invoices[id] = updated
	out := cloneInvoice(updated)
	return &out, nil
}

func (s *Store) ApplyPayment(_ context.Context, id string, change domain.PaymentChange) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	updated := cloneInvoice(invoice)
	if err := updated.ApplyPayment(change, time.Now().UTC()); err != nil {
		return nil, err
	}
	s.invoices[id] = updated
	out := cloneInvoice(updated)
	return &out, nil
}

func (s *Store) DeleteInvoice(_ context.Context, id string, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, ok := s.invoices[id]
	if !ok {
		return store.ErrNotFound
	}
	if invoice.Status != domain.InvoiceDraft {
		return fmt.Errorf("%w: only draft invoices can be deleted", store.ErrInvalidTransition)
	}
	if err := s.restoreStockLocked(invoice, "invoice deleted", actor, time.Now().UTC()); err != nil {
		return err
	}
	delete(s.invoices, id)
	return nil
}

func (s *Store) InvoiceStats(_ context.Context, now time.Time) (domain.InvoiceStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.InvoiceStats{TotalSales: decimal.Zero, Outstanding: decimal.Zero}
	for _, invoice := range s.invoices {
		stats.Count++
		if invoice.IsOverdue(now) {
			stats.Overdue++
		}
		switch invoice.Status {
		case domain.InvoicePaid:
			stats.TotalSales = stats.TotalSales.Add(invoice.Totals.FinalAmount)
		case domain.InvoiceCancelled:
		default:
			stats.Outstanding = stats.Outstanding.Add(invoice.Outstanding())
		}
	}
	return stats, nil
}

func (s *Store) restoreStockLocked(invoice domain.Invoice, reason string, actor string, at time.Time) error {
	for _, item := range invoice.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			return fmt.Errorf("%w: product %s", store.ErrNotFound, item.ProductID)
		}
	}
	for _, item := range invoice.Items {
		if _, _, err := s.applyMovementLocked(domain.StockChange{
			ProductID: item.ProductID,
			Type:      domain.MovementReturn,
			Operation: domain.StockAdd,
			Quantity:  item.Quantity,
			Reason:    reason + " " + invoice.InvoiceNumber,
			Actor:     actor,
			Reference: invoice.ID,
		}, at); err != nil {
			return err
		}
	}
	return nil
}

func cloneInvoice(src domain.Invoice) domain.Invoice {
	out := src
	out.Items = slices.Clone(src.Items)
	out.Taxes = slices.Clone(src.Taxes)
	out.StatusHistory = slices.Clone(src.StatusHistory)
	out.Payment.History = slices.Clone(src.Payment.History)
	if out.Taxes == nil {
		out.Taxes = []domain.InvoiceTax{}
	}
	if out.Payment.History == nil {
		out.Payment.History = []domain.PaymentRecord{}
	}
	if src.Payment.PaymentDate != nil {
		t := *src.Payment.PaymentDate
		out.Payment.PaymentDate = &t
	}
	if src.Dates.PaidDate != nil {
		t := *src.Dates.PaidDate
		out.Dates.PaidDate = &t
	}
	return out
}
