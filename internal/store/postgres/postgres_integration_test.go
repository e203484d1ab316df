package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("BAZAR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BAZAR_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedFixtures(t *testing.T, s *Store, stock int) (domain.Client, domain.Product) {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	now := time.Now().UTC()

	client, err := s.CreateClient(ctx, domain.Client{
		TaxID:        fmt.Sprintf("IT-%d", stamp),
		ClientType:   domain.ClientTypeRegistered,
		PersonalInfo: domain.PersonalInfo{FirstName: "Prueba", LastName: "Integracion", FullName: "Prueba Integracion"},
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	product, err := s.CreateProduct(ctx, domain.Product{
		Name:      fmt.Sprintf("Arroz IT %d", stamp),
		Category:  "Granos",
		SKU:       fmt.Sprintf("IT-%d", stamp),
		Pricing:   domain.Pricing{SellingPrice: decimal.NewFromInt(2500), Currency: domain.CurrencyCOP, TaxRate: decimal.NewFromInt(19)},
		Inventory: domain.Inventory{MinimumStock: 2, MaximumStock: 100, ReorderPoint: 3},
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, stock, "integration")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE client_id = $1`, client.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, product.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, client.ID)
	})
	return *client, *product
}

func testInvoice(clientID string, productID string, qty int) domain.Invoice {
	price := decimal.NewFromInt(2500)
	total := price.Mul(decimal.NewFromInt(int64(qty)))
	now := time.Now().UTC()
	return domain.Invoice{
		ClientID: clientID,
		Items: []domain.InvoiceItem{{
			ProductID: productID, ProductName: "Arroz", Quantity: qty, UnitPrice: price,
			Subtotal: total, Discount: decimal.Zero, TaxAmount: decimal.Zero, Total: total,
		}},
		Totals:  domain.InvoiceTotals{Subtotal: total, FinalAmount: total, Currency: domain.CurrencyCOP},
		Payment: domain.PaymentInfo{Status: domain.PaymentPending},
		Dates:   domain.InvoiceDates{IssueDate: now, DueDate: now.AddDate(0, 0, 30)},
		Status:  domain.InvoiceDraft,
	}
}

func TestCreateInvoiceDecrementsStockAndCancelRestoresIt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	client, product := seedFixtures(t, s, 10)

	inv, err := s.CreateInvoice(ctx, testInvoice(client.ID, product.ID, 4))
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if len(inv.Items) != 1 || inv.InvoiceNumber == "" {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	got, err := s.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Inventory.CurrentStock != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", got.Inventory.CurrentStock)
	}

	if _, err := s.TransitionInvoice(ctx, inv.ID, domain.StatusChange{Status: domain.InvoiceCancelled, Reason: "integration"}); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}
	got, _ = s.GetProduct(ctx, product.ID)
	if got.Inventory.CurrentStock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got.Inventory.CurrentStock)
	}

	moves, err := s.ListMovements(ctx, product.ID, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(moves) != 3 || moves[0].Type != domain.MovementReturn {
		t.Fatalf("unexpected movement history: %+v", moves)
	}

	if _, err := s.TransitionInvoice(ctx, inv.ID, domain.StatusChange{Status: domain.InvoiceSent}); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition from cancelled, got %v", err)
	}
}

func TestCreateInvoiceRejectsOverdraw(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	client, product := seedFixtures(t, s, 2)

	_, err := s.CreateInvoice(ctx, testInvoice(client.ID, product.ID, 3))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	got, _ := s.GetProduct(ctx, product.ID)
	if got.Inventory.CurrentStock != 2 {
		t.Fatalf("stock changed on failed invoice: %d", got.Inventory.CurrentStock)
	}
}

func TestConcurrentInvoicesKeepStockNonNegative(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	client, product := seedFixtures(t, s, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CreateInvoice(ctx, testInvoice(client.ID, product.ID, 1)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetProduct(ctx, product.ID)
	if got.Inventory.CurrentStock < 0 {
		t.Fatalf("stock went negative: %d", got.Inventory.CurrentStock)
	}
	if got.Inventory.CurrentStock != 5-succeeded {
		t.Fatalf("stock %d does not match %d successful invoices", got.Inventory.CurrentStock, succeeded)
	}
}

func TestApplyPaymentSettlesInvoice(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	client, product := seedFixtures(t, s, 5)

	inv, err := s.CreateInvoice(ctx, testInvoice(client.ID, product.ID, 2))
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	paid, err := s.ApplyPayment(ctx, inv.ID, domain.PaymentChange{
		Status: domain.PaymentPaid,
		Method: "cash",
		Amount: inv.Totals.FinalAmount,
		Actor:  "integration",
	})
	if err != nil {
		t.Fatalf("apply payment: %v", err)
	}
	if paid.Status != domain.InvoicePaid || paid.Dates.PaidDate == nil {
		t.Fatalf("invoice not settled: %+v", paid)
	}
	if !paid.Payment.PaidAmount.Equal(inv.Totals.FinalAmount) || len(paid.Payment.History) != 1 {
		t.Fatalf("payment not recorded: %+v", paid.Payment)
	}
}
