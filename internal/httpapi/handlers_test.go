package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/service"
	"bazar/backend/internal/store/memory"
)

const testSecret = "test-secret-key-with-enough-length"

type testEnv struct {
	api     *API
	auth    *AuthManager
	repo    *memory.Store
	handler http.Handler
}

type testEnvelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     []string        `json:"errors"`
	Pagination *pagination     `json:"pagination"`
}

// newTestAPI builds the full router over an in-memory store, a real
// AuthManager and a real Service so tests exercise the complete request path.
func newTestAPI(t *testing.T, opts Options) *testEnv {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, service.Options{})
	auth := NewAuthManager(repo, AuthOptions{Secret: testSecret, TokenTTL: time.Hour})
	api := New(svc, auth, opts)

	return &testEnv{api: api, auth: auth, repo: repo, handler: api.Handler()}
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// addUser writes a user straight into the store, skipping registration.
func (e *testEnv) addUser(t *testing.T, username string, password string, role string) domain.User {
	t.Helper()
	now := time.Now().UTC()
	user, err := e.repo.CreateUser(context.Background(), domain.User{
		Username:     username,
		Email:        username + "@bazar.test",
		PasswordHash: mustHashPassword(t, password),
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return *user
}

func (e *testEnv) do(t *testing.T, method string, path string, token string, payload any) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var body *bytes.Reader
	switch p := payload.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(p))
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var env testEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func (e *testEnv) login(t *testing.T, username string, password string) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeData(t, env, &resp)
	if resp.Token == "" {
		t.Fatalf("expected token in login response")
	}
	return resp.Token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	e.addUser(t, "admin", "admin123", domain.RoleAdmin)
	return e.login(t, "admin", "admin123")
}

func decodeData(t *testing.T, env testEnvelope, dest any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dest); err != nil {
		t.Fatalf("decode data %s: %v", string(env.Data), err)
	}
}

func TestHandleHealth(t *testing.T) {
	env := newTestAPI(t, Options{})
	rec, body := env.do(t, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var data map[string]any
	decodeData(t, body, &data)
	if data["ok"] != true {
		t.Fatalf("expected ok:true, got %v", data["ok"])
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	env := newTestAPI(t, Options{})
	rec, body := env.do(t, http.MethodGet, "/api/nope", "", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body.Success || body.Message != "route not found" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	env := newTestAPI(t, Options{})
	rec, body := env.do(t, http.MethodGet, "/api/products", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body.Message != ErrUnauthorized.Error() {
		t.Fatalf("expected %q, got %q", ErrUnauthorized.Error(), body.Message)
	}
}

func TestViewerCannotWrite(t *testing.T) {
	env := newTestAPI(t, Options{})
	env.addUser(t, "viewer", "viewer123", domain.RoleViewer)
	token := env.login(t, "viewer", "viewer123")

	rec, _ := env.do(t, http.MethodGet, "/api/suppliers", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer list: expected 200, got %d", rec.Code)
	}

	rec, body := env.do(t, http.MethodPost, "/api/suppliers", token, domain.SupplierCreateRequest{
		IdentificationNumber: "900100200",
		Company:              "Distribuidora Andina",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer create: expected 403, got %d", rec.Code)
	}
	if len(body.Errors) != 1 || !strings.Contains(body.Errors[0], domain.PermSuppliersWrite) {
		t.Fatalf("expected missing permission in errors, got %v", body.Errors)
	}
}

func TestValidationErrorsAreListed(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, body := env.do(t, http.MethodPost, "/api/suppliers", token, domain.SupplierCreateRequest{
		IdentificationNumber: "abc",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body.Message != "validation failed" || len(body.Errors) < 2 {
		t.Fatalf("expected field errors, got %+v", body)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, body := env.do(t, http.MethodPost, "/api/clients", token, `{"taxId":"123","bogus":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(body.Message, "malformed JSON") {
		t.Fatalf("expected malformed JSON message, got %q", body.Message)
	}
}

func TestListSuppliersPagination(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	for i, company := range []string{"Alfa", "Beta", "Gamma"} {
		rec, _ := env.do(t, http.MethodPost, "/api/suppliers", token, domain.SupplierCreateRequest{
			IdentificationNumber: "90010020" + string(rune('0'+i)),
			Company:              company,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create supplier %s: expected 201, got %d (body: %s)", company, rec.Code, rec.Body.String())
		}
	}

	rec, body := env.do(t, http.MethodGet, "/api/suppliers?limit=2&sort=company", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var suppliers []domain.Supplier
	decodeData(t, body, &suppliers)
	if len(suppliers) != 2 {
		t.Fatalf("expected 2 suppliers on page 1, got %d", len(suppliers))
	}
	p := body.Pagination
	if p == nil || p.TotalDocs != 3 || p.TotalPages != 2 || !p.HasNextPage || p.HasPrevPage || p.CurrentPage != 1 {
		t.Fatalf("unexpected pagination: %+v", p)
	}

	_, body = env.do(t, http.MethodGet, "/api/suppliers?limit=2&page=2", token, nil)
	decodeData(t, body, &suppliers)
	if len(suppliers) != 1 || body.Pagination.HasNextPage || !body.Pagination.HasPrevPage {
		t.Fatalf("unexpected page 2: %d items, %+v", len(suppliers), body.Pagination)
	}
}

func TestEmptyListReturnsArray(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	_, body := env.do(t, http.MethodGet, "/api/invoices", token, nil)
	if string(body.Data) != "[]" {
		t.Fatalf("expected empty array, got %s", string(body.Data))
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, body := env.do(t, http.MethodPost, "/api/products", token, domain.ProductCreateRequest{
		Name:      "Arroz Diana 500g",
		Category:  "Granos",
		Pricing:   domain.PricingInput{CostPrice: decimal.NewFromInt(700), SellingPrice: decimal.NewFromInt(1000)},
		Inventory: domain.InitialInventory{CurrentStock: 10},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var product domain.Product
	decodeData(t, body, &product)
	if product.SKU != "GRA-0001" {
		t.Fatalf("expected generated SKU GRA-0001, got %q", product.SKU)
	}

	rec, body = env.do(t, http.MethodPost, "/api/clients", token, domain.ClientCreateRequest{
		TaxID:        "1020304050",
		PersonalInfo: domain.PersonalInfo{FirstName: "Ana", LastName: "Restrepo", Phone: "3001234567"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var client domain.Client
	decodeData(t, body, &client)

	rec, body = env.do(t, http.MethodPost, "/api/invoices", token, domain.InvoiceCreateRequest{
		ClientID: client.ID,
		Items:    []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 12}},
	})
	if rec.Code != http.StatusBadRequest || !strings.Contains(body.Message, "available 10, requested 12") {
		t.Fatalf("expected insufficient stock, got %d %q", rec.Code, body.Message)
	}

	rec, body = env.do(t, http.MethodPost, "/api/invoices", token, domain.InvoiceCreateRequest{
		ClientID: client.ID,
		Items:    []domain.InvoiceItemRequest{{ProductID: product.ID, Quantity: 4}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create invoice: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var invoice domain.Invoice
	decodeData(t, body, &invoice)
	if !strings.HasPrefix(invoice.InvoiceNumber, "FAC-") {
		t.Fatalf("unexpected invoice number %q", invoice.InvoiceNumber)
	}
	if !invoice.Totals.FinalAmount.Equal(decimal.NewFromInt(4760)) {
		t.Fatalf("expected final amount 4760, got %s", invoice.Totals.FinalAmount)
	}
	if invoice.CreatedBy != "admin" {
		t.Fatalf("expected createdBy admin, got %q", invoice.CreatedBy)
	}

	_, body = env.do(t, http.MethodGet, "/api/products/"+product.ID, token, nil)
	decodeData(t, body, &product)
	if product.Inventory.CurrentStock != 6 {
		t.Fatalf("expected stock 6 after invoice, got %d", product.Inventory.CurrentStock)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/invoices/"+invoice.ID+"/status", token, domain.InvoiceStatusRequest{Status: domain.InvoiceSent})
	if rec.Code != http.StatusOK {
		t.Fatalf("send invoice: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/invoices/"+invoice.ID, token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("delete sent invoice: expected 400, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/invoices/"+invoice.ID+"/status", token, domain.InvoiceStatusRequest{Status: domain.InvoiceCancelled, Reason: "client returned goods"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel invoice: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	_, body = env.do(t, http.MethodGet, "/api/products/"+product.ID, token, nil)
	decodeData(t, body, &product)
	if product.Inventory.CurrentStock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", product.Inventory.CurrentStock)
	}

	_, body = env.do(t, http.MethodGet, "/api/products/"+product.ID+"/movements", token, nil)
	var movements []domain.StockMovement
	decodeData(t, body, &movements)
	if len(movements) != 3 {
		t.Fatalf("expected 3 stock movements, got %d", len(movements))
	}

	rec, body = env.do(t, http.MethodGet, "/api/clients/"+client.ID+"/invoices", token, nil)
	if rec.Code != http.StatusOK || body.Pagination == nil || body.Pagination.TotalDocs != 1 {
		t.Fatalf("expected one client invoice, got %d %+v", rec.Code, body.Pagination)
	}
}

func TestAdjustInventoryOverHTTP(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	_, body := env.do(t, http.MethodPost, "/api/products", token, domain.ProductCreateRequest{
		Name:      "Leche entera",
		Category:  "Lacteos",
		Pricing:   domain.PricingInput{CostPrice: decimal.NewFromInt(2500), SellingPrice: decimal.NewFromInt(3200)},
		Inventory: domain.InitialInventory{CurrentStock: 50},
	})
	var product domain.Product
	decodeData(t, body, &product)

	qty := 45
	rec, body := env.do(t, http.MethodPut, "/api/products/"+product.ID+"/inventory", token, domain.InventoryAdjustRequest{
		Operation: "subtract",
		Quantity:  &qty,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.InventoryAdjustResponse
	decodeData(t, body, &resp)
	if resp.Product.Inventory.CurrentStock != 5 || !resp.NeedsReorder {
		t.Fatalf("expected stock 5 needing reorder, got %d %v", resp.Product.Inventory.CurrentStock, resp.NeedsReorder)
	}

	_, body = env.do(t, http.MethodGet, "/api/products/low-stock", token, nil)
	if body.Pagination == nil || body.Pagination.TotalDocs != 1 {
		t.Fatalf("expected one low stock product, got %+v", body.Pagination)
	}

	rec, _ = env.do(t, http.MethodPut, "/api/products/"+product.ID+"/inventory", token, domain.InventoryAdjustRequest{
		Operation: "subtract",
		Quantity:  &qty,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for overdraw, got %d", rec.Code)
	}
}

func TestAdjustInventoryRejectsOverflowingQuantity(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	_, body := env.do(t, http.MethodPost, "/api/products", token, domain.ProductCreateRequest{
		Name:      "Azucar",
		Category:  "Granos",
		Pricing:   domain.PricingInput{CostPrice: decimal.NewFromInt(900), SellingPrice: decimal.NewFromInt(1200)},
		Inventory: domain.InitialInventory{CurrentStock: 10},
	})
	var product domain.Product
	decodeData(t, body, &product)

	for _, quantity := range []string{"9223372036854775807", "2147483647"} {
		rec, _ := env.do(t, http.MethodPut, "/api/products/"+product.ID+"/inventory", token,
			`{"operation":"add","quantity":`+quantity+`}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("add %s: expected 400, got %d (body: %s)", quantity, rec.Code, rec.Body.String())
		}
	}

	_, body = env.do(t, http.MethodGet, "/api/products/"+product.ID, token, nil)
	decodeData(t, body, &product)
	if product.Inventory.CurrentStock != 10 {
		t.Fatalf("expected stock to stay 10, got %d", product.Inventory.CurrentStock)
	}
}

func TestHugePageReturnsEmptyArray(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, _ := env.do(t, http.MethodPost, "/api/suppliers", token, domain.SupplierCreateRequest{
		IdentificationNumber: "900555111",
		Company:              "Lacteos del Valle",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create supplier: expected 201, got %d", rec.Code)
	}

	rec, body := env.do(t, http.MethodGet, "/api/suppliers?page=9223372036854775807&limit=10", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if string(body.Data) != "[]" {
		t.Fatalf("expected empty array, got %s", string(body.Data))
	}
	if body.Pagination == nil || body.Pagination.TotalDocs != 1 || body.Pagination.HasNextPage {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}
}

func TestDashboardReportsActiveCounts(t *testing.T) {
	env := newTestAPI(t, Options{})
	token := env.adminToken(t)

	rec, _ := env.do(t, http.MethodPost, "/api/clients", token, domain.ClientCreateRequest{
		TaxID:        "80012345",
		PersonalInfo: domain.PersonalInfo{FirstName: "Luis", LastName: "Gomez", Phone: "3109876543"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create client: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec, body := env.do(t, http.MethodGet, "/api/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var summary domain.DashboardSummary
	decodeData(t, body, &summary)
	if summary.Clients != 1 || summary.Products != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
