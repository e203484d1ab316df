package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expiresAt"`
	User      UserView `json:"user"`
}

type RegisterRequest struct {
	Username string      `json:"username" validate:"required,min=3,max=30,username"`
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
	Profile  UserProfile `json:"profile"`
	Role     string      `json:"role" validate:"omitempty,oneof=admin manager employee viewer"`
}

type ProfileUpdateRequest struct {
	Email   *string      `json:"email,omitempty" validate:"omitempty,email"`
	Profile *UserProfile `json:"profile,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

type RoleUpdateRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager employee viewer"`
}

type UserStatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended"`
}

type SupplierCreateRequest struct {
	IdentificationNumber string  `json:"identificationNumber" validate:"required,numeric,max=20"`
	Company              string  `json:"company" validate:"required,max=120"`
	ContactName          string  `json:"contactName" validate:"max=120"`
	Phone                string  `json:"phone" validate:"max=20"`
	Email                string  `json:"email" validate:"omitempty,email"`
	BankAccount          string  `json:"bankAccount" validate:"max=40"`
	BankName             string  `json:"bankName" validate:"max=80"`
	Address              Address `json:"address"`
	Status               string  `json:"status" validate:"omitempty,oneof=active inactive"`
}

type SupplierUpdateRequest struct {
	IdentificationNumber *string  `json:"identificationNumber,omitempty" validate:"omitempty,numeric,max=20"`
	Company              *string  `json:"company,omitempty" validate:"omitempty,min=1,max=120"`
	ContactName          *string  `json:"contactName,omitempty" validate:"omitempty,max=120"`
	Phone                *string  `json:"phone,omitempty" validate:"omitempty,max=20"`
	Email                *string  `json:"email,omitempty" validate:"omitempty,email"`
	BankAccount          *string  `json:"bankAccount,omitempty" validate:"omitempty,max=40"`
	BankName             *string  `json:"bankName,omitempty" validate:"omitempty,max=80"`
	Address              *Address `json:"address,omitempty"`
	Status               *string  `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

type CatalogItemRequest struct {
	ProductID         string          `json:"productId" validate:"required,max=64"`
	ProductName       string          `json:"productName" validate:"required,max=120"`
	Description       string          `json:"description" validate:"max=500"`
	Category          string          `json:"category" validate:"max=60"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	Currency          string          `json:"currency" validate:"omitempty,oneof=COP USD EUR"`
	AvailableQuantity int             `json:"availableQuantity" validate:"min=0"`
	MinimumOrder      int             `json:"minimumOrder" validate:"min=0"`
	IsActive          *bool           `json:"isActive,omitempty"`
}

type ClientCreateRequest struct {
	TaxID        string            `json:"taxId" validate:"required,numeric,max=20"`
	ClientType   string            `json:"clientType" validate:"omitempty,oneof=registered final_consumer"`
	PersonalInfo PersonalInfo      `json:"personalInfo"`
	BusinessInfo BusinessInfo      `json:"businessInfo"`
	Address      Address           `json:"address"`
	Preferences  ClientPreferences `json:"preferences"`
	Status       string            `json:"status" validate:"omitempty,oneof=active inactive"`
}

type ClientUpdateRequest struct {
	TaxID        *string            `json:"taxId,omitempty" validate:"omitempty,numeric,max=20"`
	ClientType   *string            `json:"clientType,omitempty" validate:"omitempty,oneof=registered final_consumer"`
	PersonalInfo *PersonalInfo      `json:"personalInfo,omitempty"`
	BusinessInfo *BusinessInfo      `json:"businessInfo,omitempty"`
	Address      *Address           `json:"address,omitempty"`
	Preferences  *ClientPreferences `json:"preferences,omitempty"`
	Status       *string            `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

type PricingInput struct {
	CostPrice      decimal.Decimal  `json:"costPrice"`
	SellingPrice   decimal.Decimal  `json:"sellingPrice"`
	WholesalePrice decimal.Decimal  `json:"wholesalePrice"`
	Currency       string           `json:"currency" validate:"omitempty,oneof=COP USD EUR"`
	TaxRate        *decimal.Decimal `json:"taxRate,omitempty"`
}

type InventorySettings struct {
	MinimumStock *int    `json:"minimumStock,omitempty" validate:"omitempty,min=0"`
	MaximumStock *int    `json:"maximumStock,omitempty" validate:"omitempty,min=0"`
	ReorderPoint *int    `json:"reorderPoint,omitempty" validate:"omitempty,min=0"`
	Location     *string `json:"location,omitempty" validate:"omitempty,max=120"`
}

type InitialInventory struct {
	CurrentStock int `json:"currentStock" validate:"min=0,max=2147483647"`
	InventorySettings
}

type ProductSupplierInput struct {
	SupplierID    string          `json:"supplierId" validate:"required,max=64"`
	SupplierPrice decimal.Decimal `json:"supplierPrice"`
	LeadTimeDays  *int            `json:"leadTimeDays,omitempty" validate:"omitempty,min=0,max=365"`
	IsPreferred   bool            `json:"isPreferred"`
}

type ProductCreateRequest struct {
	Name        string                 `json:"name" validate:"required,max=120"`
	Description string                 `json:"description" validate:"max=1000"`
	Category    string                 `json:"category" validate:"required,max=60"`
	Subcategory string                 `json:"subcategory" validate:"max=60"`
	Brand       string                 `json:"brand" validate:"max=60"`
	SKU         string                 `json:"sku" validate:"omitempty,max=40"`
	Barcode     string                 `json:"barcode" validate:"omitempty,max=40"`
	Pricing     PricingInput           `json:"pricing"`
	Inventory   InitialInventory       `json:"inventory"`
	Suppliers   []ProductSupplierInput `json:"suppliers" validate:"omitempty,dive"`
	Status      string                 `json:"status" validate:"omitempty,oneof=active inactive discontinued"`
}

// ProductUpdateRequest deliberately has no stock field: stock only moves
// through inventory adjustments and invoices.
type ProductUpdateRequest struct {
	Name        *string                 `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Description *string                 `json:"description,omitempty" validate:"omitempty,max=1000"`
	Category    *string                 `json:"category,omitempty" validate:"omitempty,min=1,max=60"`
	Subcategory *string                 `json:"subcategory,omitempty" validate:"omitempty,max=60"`
	Brand       *string                 `json:"brand,omitempty" validate:"omitempty,max=60"`
	SKU         *string                 `json:"sku,omitempty" validate:"omitempty,min=1,max=40"`
	Barcode     *string                 `json:"barcode,omitempty" validate:"omitempty,max=40"`
	Pricing     *PricingInput           `json:"pricing,omitempty"`
	Inventory   *InventorySettings      `json:"inventory,omitempty"`
	Suppliers   *[]ProductSupplierInput `json:"suppliers,omitempty" validate:"omitempty,dive"`
	Status      *string                 `json:"status,omitempty" validate:"omitempty,oneof=active inactive discontinued"`
}

type InventoryAdjustRequest struct {
	Operation string `json:"operation" validate:"required,oneof=add subtract set"`
	Quantity  *int   `json:"quantity" validate:"required,min=0,max=2147483647"`
	Reason    string `json:"reason" validate:"max=200"`
}

type InventoryAdjustResponse struct {
	Product      Product       `json:"product"`
	Movement     StockMovement `json:"movement"`
	NeedsReorder bool          `json:"needsReorder"`
}

type InvoiceItemRequest struct {
	ProductID string           `json:"productId" validate:"required"`
	Quantity  int              `json:"quantity" validate:"min=1,max=2147483647"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type InvoiceCreateRequest struct {
	ClientID           string               `json:"clientId" validate:"required"`
	Items              []InvoiceItemRequest `json:"items" validate:"required,min=1,dive"`
	DiscountAmount     *decimal.Decimal     `json:"discountAmount,omitempty"`
	DiscountPercentage *decimal.Decimal     `json:"discountPercentage,omitempty"`
	Taxes              []TaxSpec            `json:"taxes,omitempty" validate:"omitempty,dive"`
	Currency           string               `json:"currency" validate:"omitempty,oneof=COP USD EUR"`
	PaymentMethod      string               `json:"paymentMethod" validate:"omitempty,oneof=cash card transfer credit check"`
	IssueDate          *time.Time           `json:"issueDate,omitempty"`
	DueDate            *time.Time           `json:"dueDate,omitempty"`
	Notes              string               `json:"notes" validate:"max=1000"`
}

type InvoiceUpdateRequest struct {
	Notes              *string          `json:"notes,omitempty" validate:"omitempty,max=1000"`
	DueDate            *time.Time       `json:"dueDate,omitempty"`
	DiscountAmount     *decimal.Decimal `json:"discountAmount,omitempty"`
	DiscountPercentage *decimal.Decimal `json:"discountPercentage,omitempty"`
}

type InvoiceStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=200"`
}

type PaymentUpdateRequest struct {
	PaymentStatus string           `json:"paymentStatus" validate:"required,oneof=pending partial paid overdue"`
	Method        string           `json:"method" validate:"omitempty,oneof=cash card transfer credit check"`
	PaymentDate   *time.Time       `json:"paymentDate,omitempty"`
	TransactionID string           `json:"transactionId" validate:"max=100"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

// PaymentChange is the store-level form of a payment update.
type PaymentChange struct {
	Status        string
	Method        string
	PaymentDate   time.Time
	TransactionID string
	Amount        decimal.Decimal
	Actor         string
}

// InvoiceDraftChange is applied to a draft invoice after totals are recomputed.
type InvoiceDraftChange struct {
	Notes    *string
	DueDate  *time.Time
	Discount *DiscountSpec
}
