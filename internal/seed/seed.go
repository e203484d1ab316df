// Package seed loads an administrator and a small demo catalogue into an
// empty repository.
package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/service"
	"bazar/backend/internal/store"
)

const AdminUsername = "admin"

var ErrMissingAdminPassword = errors.New("seed admin password is required")

type Result struct {
	AdminCreated bool
	Suppliers    int
	Clients      int
	Products     int
}

// Run is safe to repeat: the admin is only created while no user exists and
// demo data only while the product list is empty.
func Run(ctx context.Context, repo store.Repository, svc *service.Service, adminPassword string) (Result, error) {
	var result Result
	ctx = service.WithActor(ctx, domain.Actor{Username: "seed", Role: domain.RoleAdmin})

	users, err := repo.CountUsers(ctx)
	if err != nil {
		return result, err
	}
	if users == 0 {
		if err := createAdmin(ctx, repo, adminPassword); err != nil {
			return result, err
		}
		result.AdminCreated = true
	}

	products, err := repo.ListProducts(ctx, store.ListFilter{Limit: 1})
	if err != nil {
		return result, err
	}
	if products.Total > 0 {
		log.Info().Msg("seed: catalogue already present, skipping demo data")
		return result, nil
	}

	supplierIDs := make([]string, 0, len(demoSuppliers))
	for _, req := range demoSuppliers {
		supplier, err := svc.CreateSupplier(ctx, req)
		if err != nil {
			return result, fmt.Errorf("seed supplier %s: %w", req.Company, err)
		}
		supplierIDs = append(supplierIDs, supplier.ID)
		result.Suppliers++
	}

	for _, req := range demoClients {
		if _, err := svc.CreateClient(ctx, req); err != nil {
			return result, fmt.Errorf("seed client %s: %w", req.TaxID, err)
		}
		result.Clients++
	}

	for i, item := range demoProducts {
		req := domain.ProductCreateRequest{
			Name:     item.name,
			Category: item.category,
			Brand:    item.brand,
			Pricing: domain.PricingInput{
				CostPrice:      decimal.NewFromInt(item.cost),
				SellingPrice:   decimal.NewFromInt(item.price),
				WholesalePrice: decimal.NewFromInt(item.cost + (item.price-item.cost)/2),
			},
			Inventory: domain.InitialInventory{CurrentStock: item.stock},
			Suppliers: []domain.ProductSupplierInput{{
				SupplierID:    supplierIDs[i%len(supplierIDs)],
				SupplierPrice: decimal.NewFromInt(item.cost),
				IsPreferred:   true,
			}},
		}
		if _, err := svc.CreateProduct(ctx, req); err != nil {
			return result, fmt.Errorf("seed product %s: %w", item.name, err)
		}
		result.Products++
	}

	log.Info().
		Int("suppliers", result.Suppliers).
		Int("clients", result.Clients).
		Int("products", result.Products).
		Msg("seed: demo data loaded")
	return result, nil
}

func createAdmin(ctx context.Context, repo store.UserStore, password string) error {
	password = strings.TrimSpace(password)
	if password == "" {
		return ErrMissingAdminPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = repo.CreateUser(ctx, domain.User{
		Username:     AdminUsername,
		Email:        "admin@bazar.local",
		PasswordHash: string(hash),
		Profile:      domain.UserProfile{FirstName: "Administrador"},
		Role:         domain.RoleAdmin,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info().Str("username", AdminUsername).Msg("seed: admin user created")
	return nil
}

var demoSuppliers = []domain.SupplierCreateRequest{
	{
		IdentificationNumber: "900100200",
		Company:              "Distribuidora La Cosecha",
		ContactName:          "Marta Gómez",
		Phone:                "6014445566",
		Email:                "ventas@lacosecha.co",
		Address:              domain.Address{City: "Bogotá", State: "Cundinamarca"},
	},
	{
		IdentificationNumber: "900300400",
		Company:              "Lácteos del Valle",
		ContactName:          "Jorge Ruiz",
		Phone:                "6023337788",
		Email:                "pedidos@lacteosvalle.co",
		Address:              domain.Address{City: "Cali", State: "Valle del Cauca"},
	},
}

var demoClients = []domain.ClientCreateRequest{
	{
		TaxID:        "1020304050",
		PersonalInfo: domain.PersonalInfo{FirstName: "Laura", LastName: "Martínez", Email: "laura@example.com", Phone: "3001112233"},
		Address:      domain.Address{City: "Medellín", State: "Antioquia"},
		Preferences:  domain.ClientPreferences{PreferredPaymentMethod: "cash"},
	},
	{
		TaxID:        "222222222222",
		ClientType:   domain.ClientTypeFinalConsumer,
		PersonalInfo: domain.PersonalInfo{FirstName: "Consumidor", LastName: "Final"},
	},
}

var demoProducts = []struct {
	name     string
	category string
	brand    string
	cost     int64
	price    int64
	stock    int
}{
	{"Arroz blanco 1kg", "Granos", "Diana", 3200, 4200, 120},
	{"Leche entera 1L", "Lácteos", "Colanta", 2900, 3800, 80},
	{"Frijol rojo 500g", "Granos", "La Cosecha", 4100, 5600, 60},
	{"Queso campesino 500g", "Lácteos", "Alpina", 9800, 13500, 25},
}
