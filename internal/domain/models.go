package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive       = "active"
	StatusInactive     = "inactive"
	StatusSuspended    = "suspended"
	StatusDiscontinued = "discontinued"
)

const (
	CurrencyCOP = "COP"
	CurrencyUSD = "USD"
	CurrencyEUR = "EUR"
)

type Address struct {
	Street  string `json:"street,omitempty" validate:"max=200"`
	City    string `json:"city,omitempty" validate:"max=100"`
	State   string `json:"state,omitempty" validate:"max=100"`
	Country string `json:"country,omitempty" validate:"max=100"`
	ZipCode string `json:"zipCode,omitempty" validate:"max=20"`
}

type CatalogItem struct {
	ProductID         string          `json:"productId"`
	ProductName       string          `json:"productName"`
	Description       string          `json:"description,omitempty"`
	Category          string          `json:"category,omitempty"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	Currency          string          `json:"currency"`
	AvailableQuantity int             `json:"availableQuantity"`
	MinimumOrder      int             `json:"minimumOrder"`
	IsActive          bool            `json:"isActive"`
}

type Supplier struct {
	ID                   string        `json:"id"`
	IdentificationNumber string        `json:"identificationNumber"`
	Company              string        `json:"company"`
	ContactName          string        `json:"contactName,omitempty"`
	Phone                string        `json:"phone,omitempty"`
	Email                string        `json:"email,omitempty"`
	BankAccount          string        `json:"bankAccount,omitempty"`
	BankName             string        `json:"bankName,omitempty"`
	Address              Address       `json:"address"`
	Catalog              []CatalogItem `json:"catalog"`
	Status               string        `json:"status"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

const (
	ClientTypeRegistered    = "registered"
	ClientTypeFinalConsumer = "final_consumer"
)

type PersonalInfo struct {
	FirstName string `json:"firstName" validate:"required,max=60"`
	LastName  string `json:"lastName" validate:"required,max=60"`
	FullName  string `json:"fullName"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"max=20"`
}

type BusinessInfo struct {
	CompanyName        string `json:"companyName,omitempty" validate:"max=120"`
	BusinessType       string `json:"businessType,omitempty" validate:"omitempty,oneof=retail wholesale service manufacturing other"`
	RegistrationNumber string `json:"registrationNumber,omitempty" validate:"max=40"`
}

type ClientPreferences struct {
	PreferredPaymentMethod string          `json:"preferredPaymentMethod,omitempty" validate:"omitempty,oneof=cash card transfer credit check"`
	DiscountLevel          decimal.Decimal `json:"discountLevel"`
	Notes                  string          `json:"notes,omitempty" validate:"max=500"`
}

type Client struct {
	ID           string            `json:"id"`
	TaxID        string            `json:"taxId"`
	ClientType   string            `json:"clientType"`
	PersonalInfo PersonalInfo      `json:"personalInfo"`
	BusinessInfo BusinessInfo      `json:"businessInfo"`
	Address      Address           `json:"address"`
	Preferences  ClientPreferences `json:"preferences"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// DisplayName is what invoices snapshot as the client name.
func (c Client) DisplayName() string {
	if c.BusinessInfo.CompanyName != "" {
		return c.BusinessInfo.CompanyName
	}
	return c.PersonalInfo.FullName
}

type Pricing struct {
	CostPrice      decimal.Decimal `json:"costPrice"`
	SellingPrice   decimal.Decimal `json:"sellingPrice"`
	WholesalePrice decimal.Decimal `json:"wholesalePrice"`
	Currency       string          `json:"currency"`
	TaxRate        decimal.Decimal `json:"taxRate"`
}

type Inventory struct {
	CurrentStock int    `json:"currentStock"`
	MinimumStock int    `json:"minimumStock"`
	MaximumStock int    `json:"maximumStock"`
	ReorderPoint int    `json:"reorderPoint"`
	Location     string `json:"location"`
}

type ProductSupplier struct {
	SupplierID    string          `json:"supplierId"`
	SupplierName  string          `json:"supplierName,omitempty"`
	SupplierPrice decimal.Decimal `json:"supplierPrice"`
	LeadTimeDays  int             `json:"leadTimeDays"`
	IsPreferred   bool            `json:"isPreferred"`
}

type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category"`
	Subcategory string            `json:"subcategory,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	SKU         string            `json:"sku"`
	Barcode     string            `json:"barcode,omitempty"`
	Pricing     Pricing           `json:"pricing"`
	Inventory   Inventory         `json:"inventory"`
	Suppliers   []ProductSupplier `json:"suppliers"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (p Product) NeedsReorder() bool {
	return p.Inventory.CurrentStock <= p.Inventory.ReorderPoint
}

func (p Product) IsLowStock() bool {
	return p.Inventory.CurrentStock <= p.Inventory.MinimumStock
}

const (
	MovementInitial    = "initial"
	MovementAdjustment = "adjustment"
	MovementSale       = "sale"
	MovementReturn     = "return"
)

type StockMovement struct {
	Seq           int64     `json:"seq"`
	ProductID     string    `json:"productId"`
	Type          string    `json:"type"`
	Operation     string    `json:"operation"`
	Quantity      int       `json:"quantity"`
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
	Reason        string    `json:"reason,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StockChange is one request against the stock primitive. Stores turn it
// into a StockMovement once the arithmetic succeeds.
type StockChange struct {
	ProductID string
	Type      string
	Operation string
	Quantity  int
	Reason    string
	Actor     string
	Reference string
}

const (
	InvoiceDraft     = "draft"
	InvoiceSent      = "sent"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"
	InvoiceOverdue   = "overdue"
)

const (
	PaymentPending   = "pending"
	PaymentPartial   = "partial"
	PaymentPaid      = "paid"
	PaymentOverdue   = "overdue"
	PaymentCancelled = "cancelled"
)

type ClientSnapshot struct {
	Name    string  `json:"name"`
	TaxID   string  `json:"taxId"`
	Address Address `json:"address"`
	Phone   string  `json:"phone,omitempty"`
	Email   string  `json:"email,omitempty"`
}

type InvoiceItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	TaxAmount   decimal.Decimal `json:"taxAmount"`
	Total       decimal.Decimal `json:"total"`
}

type InvoiceTax struct {
	Name   string          `json:"name"`
	Rate   decimal.Decimal `json:"rate"`
	Amount decimal.Decimal `json:"amount"`
}

type InvoiceTotals struct {
	Subtotal           decimal.Decimal `json:"subtotal"`
	Discount           decimal.Decimal `json:"discount"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	FinalAmount        decimal.Decimal `json:"finalAmount"`
	Currency           string          `json:"currency"`
}

type PaymentRecord struct {
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"method,omitempty"`
	PaymentDate   time.Time       `json:"paymentDate"`
	TransactionID string          `json:"transactionId,omitempty"`
	RecordedBy    string          `json:"recordedBy,omitempty"`
	RecordedAt    time.Time       `json:"recordedAt"`
}

type PaymentInfo struct {
	Status        string          `json:"status"`
	Method        string          `json:"method,omitempty"`
	PaidAmount    decimal.Decimal `json:"paidAmount"`
	PaymentDate   *time.Time      `json:"paymentDate,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	History       []PaymentRecord `json:"history"`
}

type InvoiceDates struct {
	IssueDate time.Time  `json:"issueDate"`
	DueDate   time.Time  `json:"dueDate"`
	PaidDate  *time.Time `json:"paidDate,omitempty"`
}

type StatusChange struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor,omitempty"`
}

type Invoice struct {
	ID            string         `json:"id"`
	InvoiceNumber string         `json:"invoiceNumber"`
	ClientID      string         `json:"clientId"`
	ClientInfo    ClientSnapshot `json:"clientInfo"`
	Items         []InvoiceItem  `json:"items"`
	Taxes         []InvoiceTax   `json:"taxes"`
	Totals        InvoiceTotals  `json:"totals"`
	Payment       PaymentInfo    `json:"payment"`
	Dates         InvoiceDates   `json:"dates"`
	Notes         string         `json:"notes,omitempty"`
	Status        string         `json:"status"`
	StatusHistory []StatusChange `json:"statusHistory"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// IsOverdue reports whether the invoice is past due and still owes money.
func (inv Invoice) IsOverdue(now time.Time) bool {
	if inv.Status == InvoicePaid || inv.Status == InvoiceCancelled {
		return false
	}
	if inv.Payment.Status == PaymentPaid {
		return false
	}
	return inv.Dates.DueDate.Before(now)
}

func (inv Invoice) Outstanding() decimal.Decimal {
	rest := inv.Totals.FinalAmount.Sub(inv.Payment.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

type UserProfile struct {
	FirstName string `json:"firstName,omitempty" validate:"max=60"`
	LastName  string `json:"lastName,omitempty" validate:"max=60"`
	Phone     string `json:"phone,omitempty" validate:"max=20"`
}

type User struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Email         string      `json:"email"`
	PasswordHash  string      `json:"-"`
	Profile       UserProfile `json:"profile"`
	Role          string      `json:"role"`
	Status        string      `json:"status"`
	LoginAttempts int         `json:"-"`
	LockUntil     *time.Time  `json:"-"`
	LastLogin     *time.Time  `json:"lastLogin,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

func (u User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// UserView is the outward shape of a user, with permissions derived from role.
type UserView struct {
	User
	Permissions []string `json:"permissions"`
}

func ViewOf(u User) UserView {
	return UserView{User: u, Permissions: PermissionsForRole(u.Role)}
}

// Actor is the authenticated principal attached to a request context.
type Actor struct {
	UserID      string
	Username    string
	Role        string
	Permissions []string
}

func (a Actor) Can(permission string) bool {
	return HasPermission(a.Permissions, permission)
}

type DashboardSummary struct {
	Suppliers         int             `json:"suppliers"`
	Clients           int             `json:"clients"`
	Products          int             `json:"products"`
	Invoices          int             `json:"invoices"`
	LowStockProducts  int             `json:"lowStockProducts"`
	OverdueInvoices   int             `json:"overdueInvoices"`
	TotalSales        decimal.Decimal `json:"totalSales"`
	OutstandingAmount decimal.Decimal `json:"outstandingAmount"`
	GeneratedAt       time.Time       `json:"generatedAt"`
}

// InvoiceStats is the aggregate the dashboard reads from the invoice store.
type InvoiceStats struct {
	Count       int
	Overdue     int
	TotalSales  decimal.Decimal
	Outstanding decimal.Decimal
}

// RegisterFailedLogin counts a bad password; reaching maxAttempts locks the
// account for lockFor. An expired lock restarts the count.
func (u *User) RegisterFailedLogin(maxAttempts int, lockFor time.Duration, now time.Time) {
	if u.LockUntil != nil && !u.LockUntil.After(now) {
		u.LoginAttempts = 0
		u.LockUntil = nil
	}
	u.LoginAttempts++
	if maxAttempts > 0 && u.LoginAttempts >= maxAttempts && u.LockUntil == nil {
		until := now.Add(lockFor)
		u.LockUntil = &until
	}
	u.UpdatedAt = now
}

func (u *User) RegisterSuccessfulLogin(now time.Time) {
	u.LoginAttempts = 0
	u.LockUntil = nil
	u.LastLogin = &now
}
