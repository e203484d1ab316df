package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// MaxStock matches the INT columns that hold stock in postgres.
const MaxStock = math.MaxInt32

const (
	StockAdd      = "add"
	StockSubtract = "subtract"
	StockSet      = "set"
)

// ApplyStockOperation is the only place stock arithmetic happens. Every
// writer (manual adjustment, product creation, invoice create/cancel/delete)
// goes through it so the non-negative invariant has a single guard.
func ApplyStockOperation(current int, operation string, quantity int) (int, error) {
	if quantity < 0 {
		return current, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if quantity > MaxStock {
		return current, fmt.Errorf("%w: quantity must not exceed %d", ErrInvalidInput, MaxStock)
	}
	switch operation {
	case StockAdd:
		if quantity > MaxStock-current {
			return current, fmt.Errorf("%w: stock would exceed %d", ErrInvalidInput, MaxStock)
		}
		return current + quantity, nil
	case StockSubtract:
		if quantity > current {
			return current, fmt.Errorf("%w: available %d, requested %d", ErrInsufficientStock, current, quantity)
		}
		return current - quantity, nil
	case StockSet:
		return quantity, nil
	default:
		return current, fmt.Errorf("%w: unknown stock operation %q", ErrInvalidInput, operation)
	}
}

func IsValidInvoiceStatus(status string) bool {
	switch status {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceCancelled, InvoiceOverdue:
		return true
	}
	return false
}

var invoiceTransitions = map[string][]string{
	InvoiceDraft:   {InvoiceSent, InvoicePaid, InvoiceCancelled},
	InvoiceSent:    {InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceOverdue: {InvoicePaid, InvoiceSent, InvoiceCancelled},
	InvoicePaid:    {InvoicePaid},
}

// CheckTransition validates an invoice status change.
func CheckTransition(from, to string) error {
	if !IsValidInvoiceStatus(to) {
		return fmt.Errorf("%w: unknown invoice status %q", ErrInvalidInput, to)
	}
	switch {
	case from == InvoiceCancelled:
		return fmt.Errorf("%w: invoice is cancelled", ErrInvalidTransition)
	case from == InvoicePaid && to == InvoiceCancelled:
		return fmt.Errorf("%w: a paid invoice cannot be cancelled", ErrInvalidTransition)
	}
	for _, allowed := range invoiceTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func IsValidPaymentUpdateStatus(status string) bool {
	switch status {
	case PaymentPending, PaymentPartial, PaymentPaid, PaymentOverdue:
		return true
	}
	return false
}

func FormatInvoiceNumber(year int, seq int) string {
	return fmt.Sprintf("FAC-%d-%04d", year, seq)
}

// ApplyTransition moves the invoice to change.Status and records it in the
// status history. Stock restoration on cancel is the caller's job.
func (inv *Invoice) ApplyTransition(change StatusChange) error {
	if err := CheckTransition(inv.Status, change.Status); err != nil {
		return err
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}
	switch change.Status {
	case InvoiceCancelled:
		inv.Payment.Status = PaymentCancelled
	case InvoicePaid:
		if inv.Dates.PaidDate == nil {
			paid := change.Timestamp
			inv.Dates.PaidDate = &paid
		}
		if inv.Payment.PaymentDate == nil {
			paid := change.Timestamp
			inv.Payment.PaymentDate = &paid
		}
		inv.Payment.Status = PaymentPaid
	case InvoiceOverdue:
		if inv.Payment.Status == PaymentPending {
			inv.Payment.Status = PaymentOverdue
		}
	}
	inv.Status = change.Status
	inv.StatusHistory = append(inv.StatusHistory, change)
	inv.UpdatedAt = change.Timestamp
	return nil
}

// ApplyPayment records a payment update. A positive amount is appended to the
// payment history; a paid status also settles the invoice.
func (inv *Invoice) ApplyPayment(change PaymentChange, now time.Time) error {
	if inv.Status == InvoiceCancelled {
		return fmt.Errorf("%w: invoice is cancelled", ErrInvalidTransition)
	}
	if !IsValidPaymentUpdateStatus(change.Status) {
		return fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, change.Status)
	}
	if change.Amount.IsNegative() {
		return fmt.Errorf("%w: payment amount must not be negative", ErrInvalidInput)
	}
	if inv.Status == InvoicePaid && change.Status != PaymentPaid {
		return fmt.Errorf("%w: invoice is paid, payment status cannot become %s", ErrInvalidTransition, change.Status)
	}
	at := change.PaymentDate
	if at.IsZero() {
		at = now
	}
	if change.Amount.IsPositive() {
		inv.Payment.History = append(inv.Payment.History, PaymentRecord{
			Amount:        change.Amount,
			Method:        change.Method,
			PaymentDate:   at,
			TransactionID: change.TransactionID,
			RecordedBy:    change.Actor,
			RecordedAt:    now,
		})
		inv.Payment.PaidAmount = inv.Payment.PaidAmount.Add(change.Amount)
		paidAt := at
		inv.Payment.PaymentDate = &paidAt
	}
	inv.Payment.Status = change.Status
	if change.Method != "" {
		inv.Payment.Method = change.Method
	}
	if change.TransactionID != "" {
		inv.Payment.TransactionID = change.TransactionID
	}
	if change.Status == PaymentPaid {
		if inv.Payment.PaymentDate == nil {
			paidAt := at
			inv.Payment.PaymentDate = &paidAt
		}
		if inv.Status != InvoicePaid {
			paid := at
			inv.Dates.PaidDate = &paid
			inv.Status = InvoicePaid
			inv.StatusHistory = append(inv.StatusHistory, StatusChange{
				Status:    InvoicePaid,
				Timestamp: at,
				Reason:    "payment completed",
				Actor:     change.Actor,
			})
		}
	}
	inv.UpdatedAt = now
	return nil
}

// ApplyDraftChange edits a draft invoice. A discount change reprices the
// stored lines; items themselves never change after creation.
func (inv *Invoice) ApplyDraftChange(change InvoiceDraftChange) error {
	if inv.Status != InvoiceDraft {
		return fmt.Errorf("%w: only draft invoices can be edited", ErrInvalidTransition)
	}
	if change.Notes != nil {
		inv.Notes = *change.Notes
	}
	if change.DueDate != nil {
		due := change.DueDate.UTC()
		if due.Before(inv.Dates.IssueDate) {
			return &ValidationError{Fields: []string{"dueDate must not be before issueDate"}}
		}
		inv.Dates.DueDate = due
	}
	if change.Discount == nil {
		return nil
	}

	computed, err := ComputeTotals(inv.pricedLines(), *change.Discount, inv.taxSpecs(), inv.Totals.Currency)
	if err != nil {
		return err
	}
	inv.Items = computed.Items
	inv.Taxes = computed.Taxes
	inv.Totals = computed.Totals
	return nil
}

func (inv Invoice) pricedLines() []PricedLine {
	lines := make([]PricedLine, 0, len(inv.Items))
	for _, item := range inv.Items {
		lines = append(lines, PricedLine{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TaxRate:     item.TaxRate,
		})
	}
	return lines
}

// taxSpecs recovers explicit taxes. Explicit taxes leave every line carrying
// their combined rate; per-rate taxes are rebuilt from the lines instead.
func (inv Invoice) taxSpecs() []TaxSpec {
	if len(inv.Taxes) == 0 || len(inv.Items) == 0 {
		return nil
	}
	combined := decimal.Zero
	specs := make([]TaxSpec, 0, len(inv.Taxes))
	for _, tax := range inv.Taxes {
		combined = combined.Add(tax.Rate)
		specs = append(specs, TaxSpec{Name: tax.Name, Rate: tax.Rate})
	}
	for _, item := range inv.Items {
		if !item.TaxRate.Equal(combined) {
			return nil
		}
	}
	return specs
}
