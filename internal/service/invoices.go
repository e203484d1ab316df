package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

const sweepPageSize = store.MaxPageSize

func (s *Service) ListInvoices(ctx context.Context, filter store.ListFilter) (store.Page[domain.Invoice], error) {
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}
	return s.repo.ListInvoices(ctx, filter)
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Invoice{}, err
	}
	var problems []string
	for i, item := range req.Items {
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			problems = append(problems, fmt.Sprintf("items[%d].unitPrice must not be negative", i))
		}
	}
	if req.DiscountAmount != nil && req.DiscountAmount.IsNegative() {
		problems = append(problems, "discountAmount must not be negative")
	}
	if req.DiscountPercentage != nil {
		if err := domain.ValidateRate("discountPercentage", *req.DiscountPercentage); err != nil {
			problems = append(problems, "discountPercentage must be between 0 and 100")
		}
	}
	if len(problems) > 0 {
		return domain.Invoice{}, &domain.ValidationError{Fields: problems}
	}

	client, err := s.repo.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invoice{}, fmt.Errorf("%w: client %s", store.ErrNotFound, req.ClientID)
		}
		return domain.Invoice{}, err
	}

	merged := mergeInvoiceItems(req.Items)
	ids := make([]string, 0, len(merged))
	for _, item := range merged {
		ids = append(ids, item.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Invoice{}, err
	}

	lines := make([]domain.PricedLine, 0, len(merged))
	for _, item := range merged {
		product, ok := products[item.ProductID]
		if !ok || product.Status != domain.StatusActive {
			return domain.Invoice{}, fmt.Errorf("%w: product %s is not available", store.ErrInvalidInput, item.ProductID)
		}
		if product.Inventory.CurrentStock < item.Quantity {
			return domain.Invoice{}, fmt.Errorf("%w: product %s: available %d, requested %d",
				store.ErrInsufficientStock, product.Name, product.Inventory.CurrentStock, item.Quantity)
		}
		price := product.Pricing.SellingPrice
		if item.UnitPrice != nil {
			price = *item.UnitPrice
		}
		lines = append(lines, domain.PricedLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    item.Quantity,
			UnitPrice:   price.Round(2),
			TaxRate:     product.Pricing.TaxRate,
		})
	}

	computed, err := domain.ComputeTotals(lines, domain.DiscountSpec{
		Amount:     req.DiscountAmount,
		Percentage: req.DiscountPercentage,
	}, req.Taxes, req.Currency)
	if err != nil {
		return domain.Invoice{}, err
	}

	now := s.now()
	issue := now
	if req.IssueDate != nil {
		issue = req.IssueDate.UTC()
	}
	due := issue.AddDate(0, 0, s.dueDays)
	if req.DueDate != nil {
		due = req.DueDate.UTC()
	}
	if due.Before(issue) {
		return domain.Invoice{}, &domain.ValidationError{Fields: []string{"dueDate must not be before issueDate"}}
	}

	actor := actorName(ctx)
	invoice := domain.Invoice{
		ClientID: client.ID,
		ClientInfo: domain.ClientSnapshot{
			Name:    client.DisplayName(),
			TaxID:   client.TaxID,
			Address: client.Address,
			Phone:   client.PersonalInfo.Phone,
			Email:   client.PersonalInfo.Email,
		},
		Items:  computed.Items,
		Taxes:  computed.Taxes,
		Totals: computed.Totals,
		Payment: domain.PaymentInfo{
			Status:     domain.PaymentPending,
			Method:     defaultString(req.PaymentMethod, client.Preferences.PreferredPaymentMethod),
			PaidAmount: decimal.Zero,
			History:    []domain.PaymentRecord{},
		},
		Dates: domain.InvoiceDates{
			IssueDate: issue,
			DueDate:   due,
		},
		Notes:  trimmed(req.Notes),
		Status: domain.InvoiceDraft,
		StatusHistory: []domain.StatusChange{{
			Status:    domain.InvoiceDraft,
			Timestamp: now,
			Reason:    "invoice created",
			Actor:     actor,
		}},
		CreatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_create", "invoice", created.ID)
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateInvoice(ctx context.Context, id string, req domain.InvoiceUpdateRequest) (domain.Invoice, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Invoice{}, err
	}
	change := domain.InvoiceDraftChange{Notes: req.Notes, DueDate: req.DueDate}
	if req.Notes != nil {
		notes := trimmed(*req.Notes)
		change.Notes = &notes
	}
	if req.DiscountAmount != nil || req.DiscountPercentage != nil {
		change.Discount = &domain.DiscountSpec{
			Amount:     req.DiscountAmount,
			Percentage: req.DiscountPercentage,
		}
	}

	updated, err := s.repo.UpdateDraftInvoice(ctx, id, func(inv *domain.Invoice) error {
		return inv.ApplyDraftChange(change)
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_update", "invoice", updated.ID)
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) ChangeInvoiceStatus(ctx context.Context, id string, req domain.InvoiceStatusRequest) (domain.Invoice, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Invoice{}, err
	}
	reason := trimmed(req.Reason)
	if reason == "" {
		reason = "status changed to " + req.Status
	}
	updated, err := s.repo.TransitionInvoice(ctx, id, domain.StatusChange{
		Status:    req.Status,
		Timestamp: s.now(),
		Reason:    reason,
		Actor:     actorName(ctx),
	})
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_status_"+updated.Status, "invoice", updated.ID)
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) UpdatePayment(ctx context.Context, id string, req domain.PaymentUpdateRequest) (domain.Invoice, error) {
	if err := domain.Validate(req); err != nil {
		return domain.Invoice{}, err
	}
	change := domain.PaymentChange{
		Status:        req.PaymentStatus,
		Method:        req.Method,
		TransactionID: trimmed(req.TransactionID),
		Amount:        decimal.Zero,
		Actor:         actorName(ctx),
	}
	if req.PaymentDate != nil {
		change.PaymentDate = req.PaymentDate.UTC()
	}
	if req.Amount != nil {
		if req.Amount.IsNegative() {
			return domain.Invoice{}, &domain.ValidationError{Fields: []string{"amount must not be negative"}}
		}
		change.Amount = req.Amount.Round(2)
	}

	updated, err := s.repo.ApplyPayment(ctx, id, change)
	if err != nil {
		return domain.Invoice{}, err
	}
	s.logAudit(ctx, "invoice_payment", "invoice", updated.ID)
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) DeleteInvoice(ctx context.Context, id string) error {
	if err := s.repo.DeleteInvoice(ctx, id, actorName(ctx)); err != nil {
		return err
	}
	s.logAudit(ctx, "invoice_delete", "invoice", id)
	s.invalidateDashboard(ctx)
	return nil
}

// SweepOverdue moves sent invoices whose due date has passed to overdue and
// returns how many were moved. Invoices changed by someone else in between
// are skipped.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	now := s.now()
	var due []string
	for page := 1; ; page++ {
		result, err := s.repo.ListInvoices(ctx, store.ListFilter{
			Page:    page,
			Limit:   sweepPageSize,
			Status:  domain.InvoiceSent,
			Overdue: true,
			Sort:    "dueDate",
			Now:     now,
		})
		if err != nil {
			return 0, err
		}
		for _, invoice := range result.Items {
			due = append(due, invoice.ID)
		}
		if page*sweepPageSize >= result.Total || len(result.Items) == 0 {
			break
		}
	}

	moved := 0
	for _, id := range due {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		_, err := s.repo.TransitionInvoice(ctx, id, domain.StatusChange{
			Status:    domain.InvoiceOverdue,
			Timestamp: now,
			Reason:    "payment overdue",
			Actor:     "system",
		})
		if err != nil {
			if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
				s.log.Warn().Err(err).Str("invoice_id", id).Msg("overdue sweep skipped invoice")
				continue
			}
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		s.log.Info().Int("count", moved).Msg("invoices marked overdue")
		s.invalidateDashboard(ctx)
	}
	return moved, nil
}

// mergeInvoiceItems sums quantities of repeated products, keeping the first
// position and the first explicit unit price.
func mergeInvoiceItems(items []domain.InvoiceItemRequest) []domain.InvoiceItemRequest {
	merged := make([]domain.InvoiceItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		item.ProductID = trimmed(item.ProductID)
		if pos, ok := index[item.ProductID]; ok {
			merged[pos].Quantity += item.Quantity
			if merged[pos].UnitPrice == nil {
				merged[pos].UnitPrice = item.UnitPrice
			}
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
