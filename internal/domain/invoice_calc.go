package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PricedLine is an invoice line with its price and tax rate resolved.
type PricedLine struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
}

type TaxSpec struct {
	Name string          `json:"name" validate:"required,max=60"`
	Rate decimal.Decimal `json:"rate"`
}

type DiscountSpec struct {
	Amount     *decimal.Decimal
	Percentage *decimal.Decimal
}

type ComputedInvoice struct {
	Items  []InvoiceItem
	Taxes  []InvoiceTax
	Totals InvoiceTotals
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func validRate(rate decimal.Decimal) bool {
	return !rate.IsNegative() && rate.LessThanOrEqual(hundred)
}

// ComputeTotals prices the lines and derives discount, taxes and final amount.
// finalAmount always equals subtotal - discount + sum(taxes.amount) on the
// rounded components.
func ComputeTotals(lines []PricedLine, discount DiscountSpec, taxes []TaxSpec, currency string) (ComputedInvoice, error) {
	if len(lines) == 0 {
		return ComputedInvoice{}, fmt.Errorf("%w: at least one item is required", ErrInvalidInput)
	}

	items := make([]InvoiceItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return ComputedInvoice{}, fmt.Errorf("%w: quantity for %s must be at least 1", ErrInvalidInput, line.ProductID)
		}
		if line.UnitPrice.IsNegative() {
			return ComputedInvoice{}, fmt.Errorf("%w: unit price for %s must not be negative", ErrInvalidInput, line.ProductID)
		}
		if !validRate(line.TaxRate) {
			return ComputedInvoice{}, fmt.Errorf("%w: tax rate for %s must be between 0 and 100", ErrInvalidInput, line.ProductID)
		}
		lineTotal := money(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, InvoiceItem{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
			Subtotal:    lineTotal,
		})
	}

	discountAmount := decimal.Zero
	discountPct := decimal.Zero
	switch {
	case discount.Amount != nil:
		if discount.Amount.IsNegative() {
			return ComputedInvoice{}, fmt.Errorf("%w: discount must not be negative", ErrInvalidInput)
		}
		discountAmount = money(*discount.Amount)
		if subtotal.IsPositive() {
			discountPct = money(discountAmount.Div(subtotal).Mul(hundred))
		}
	case discount.Percentage != nil:
		if !validRate(*discount.Percentage) {
			return ComputedInvoice{}, fmt.Errorf("%w: discount percentage must be between 0 and 100", ErrInvalidInput)
		}
		discountPct = *discount.Percentage
		discountAmount = money(subtotal.Mul(discountPct).Div(hundred))
	}
	if discountAmount.GreaterThan(subtotal) {
		return ComputedInvoice{}, fmt.Errorf("%w: discount exceeds subtotal", ErrInvalidInput)
	}

	allocateDiscount(items, subtotal, discountAmount)
	base := subtotal.Sub(discountAmount)

	var invoiceTaxes []InvoiceTax
	if len(taxes) > 0 {
		combined := decimal.Zero
		invoiceTaxes = make([]InvoiceTax, 0, len(taxes))
		for _, spec := range taxes {
			if !validRate(spec.Rate) {
				return ComputedInvoice{}, fmt.Errorf("%w: tax %q rate must be between 0 and 100", ErrInvalidInput, spec.Name)
			}
			combined = combined.Add(spec.Rate)
			invoiceTaxes = append(invoiceTaxes, InvoiceTax{
				Name:   spec.Name,
				Rate:   spec.Rate,
				Amount: money(base.Mul(spec.Rate).Div(hundred)),
			})
		}
		for i := range items {
			items[i].TaxRate = combined
		}
	} else {
		invoiceTaxes = taxesByRate(items)
	}

	taxTotal := decimal.Zero
	for _, tax := range invoiceTaxes {
		taxTotal = taxTotal.Add(tax.Amount)
	}
	for i := range items {
		taxable := items[i].Subtotal.Sub(items[i].Discount)
		items[i].TaxAmount = money(taxable.Mul(items[i].TaxRate).Div(hundred))
		items[i].Total = taxable.Add(items[i].TaxAmount)
	}

	if currency == "" {
		currency = CurrencyCOP
	}
	return ComputedInvoice{
		Items: items,
		Taxes: invoiceTaxes,
		Totals: InvoiceTotals{
			Subtotal:           subtotal,
			Discount:           discountAmount,
			DiscountPercentage: discountPct,
			TaxAmount:          taxTotal,
			FinalAmount:        base.Add(taxTotal),
			Currency:           currency,
		},
	}, nil
}

// allocateDiscount spreads the invoice discount over lines proportionally to
// their subtotal; the last line absorbs rounding so the shares sum exactly.
func allocateDiscount(items []InvoiceItem, subtotal, discount decimal.Decimal) {
	if discount.IsZero() || !subtotal.IsPositive() {
		for i := range items {
			items[i].Discount = decimal.Zero
		}
		return
	}
	remaining := discount
	for i := range items {
		if i == len(items)-1 {
			items[i].Discount = remaining
			break
		}
		share := money(discount.Mul(items[i].Subtotal).Div(subtotal))
		items[i].Discount = share
		remaining = remaining.Sub(share)
	}
}

func taxesByRate(items []InvoiceItem) []InvoiceTax {
	order := make([]string, 0, 2)
	groups := make(map[string]*InvoiceTax)
	bases := make(map[string]decimal.Decimal)
	for _, item := range items {
		if item.TaxRate.IsZero() {
			continue
		}
		key := item.TaxRate.String()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			groups[key] = &InvoiceTax{Name: fmt.Sprintf("IVA %s%%", key), Rate: item.TaxRate}
		}
		bases[key] = bases[key].Add(item.Subtotal.Sub(item.Discount))
	}
	out := make([]InvoiceTax, 0, len(order))
	for _, key := range order {
		tax := groups[key]
		tax.Amount = money(bases[key].Mul(tax.Rate).Div(hundred))
		out = append(out, *tax)
	}
	return out
}
