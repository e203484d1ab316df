package store

import (
	"context"
	"math"
	"time"

	"bazar/backend/internal/domain"
)

var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrDuplicate         = domain.ErrDuplicate
	ErrInsufficientStock = domain.ErrInsufficientStock
	ErrInvalidTransition = domain.ErrInvalidTransition
)

type ValidationError = domain.ValidationError

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage keeps Offset well inside int range.
	MaxPage = math.MaxInt32
)

// ListFilter is shared by every paginated collection. Entity specific
// fields are ignored by collections that do not know them.
type ListFilter struct {
	Page   int
	Limit  int
	Search string
	Status string
	Sort   string

	Category string
	LowStock bool

	ClientID      string
	PaymentStatus string
	Overdue       bool
	Now           time.Time
}

func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Now.IsZero() {
		f.Now = time.Now().UTC()
	}
	return f
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type Page[T any] struct {
	Items []T
	Total int
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (*domain.User, error)
	ListUsers(ctx context.Context, filter ListFilter) (Page[domain.User], error)
	CountUsers(ctx context.Context) (int, error)
	UpdateUser(ctx context.Context, user domain.User) (*domain.User, error)
	// RecordLoginFailure increments the attempt counter and locks the account
	// once maxAttempts is reached. An expired lock restarts the count.
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*domain.User, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
}

type SupplierStore interface {
	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context, filter ListFilter) (Page[domain.Supplier], error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	UpsertCatalogItem(ctx context.Context, supplierID string, item domain.CatalogItem) (*domain.Supplier, error)
	RemoveCatalogItem(ctx context.Context, supplierID string, productID string) (*domain.Supplier, error)
}

type ClientStore interface {
	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id string) (*domain.Client, error)
	ListClients(ctx context.Context, filter ListFilter) (Page[domain.Client], error)
	UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
}

type ProductStore interface {
	// CreateProduct stores the product with zero stock and, when initialStock
	// is positive, records it through the stock primitive as an initial movement.
	CreateProduct(ctx context.Context, product domain.Product, initialStock int, actor string) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, filter ListFilter) (Page[domain.Product], error)
	// UpdateProduct never touches current stock.
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	NextSKUSequence(ctx context.Context, prefix string) (int, error)
	AdjustStock(ctx context.Context, change domain.StockChange) (*domain.Product, *domain.StockMovement, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)
}

type InvoiceStore interface {
	// CreateInvoice decrements stock for every item and inserts the invoice
	// atomically; on any failure no stock changes.
	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) (Page[domain.Invoice], error)
	UpdateDraftInvoice(ctx context.Context, id string, apply func(*domain.Invoice) error) (*domain.Invoice, error)
	// TransitionInvoice applies a status change guarded by CheckTransition and
	// restores stock when the target is cancelled.
	TransitionInvoice(ctx context.Context, id string, change domain.StatusChange) (*domain.Invoice, error)
	ApplyPayment(ctx context.Context, id string, change domain.PaymentChange) (*domain.Invoice, error)
	// DeleteInvoice removes a draft invoice and restores its stock.
	DeleteInvoice(ctx context.Context, id string, actor string) error
	InvoiceStats(ctx context.Context, now time.Time) (domain.InvoiceStats, error)
}

type Repository interface {
	UserStore
	SupplierStore
	ClientStore
	ProductStore
	InvoiceStore
}
