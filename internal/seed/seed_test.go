package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/service"
	"bazar/backend/internal/store"
	"bazar/backend/internal/store/memory"
)

func TestRunSeedsOnceAndIsRepeatable(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	svc := service.New(repo, service.Options{})

	result, err := Run(ctx, repo, svc, "s3cret-admin")
	require.NoError(t, err)
	assert.True(t, result.AdminCreated)
	assert.Equal(t, len(demoSuppliers), result.Suppliers)
	assert.Equal(t, len(demoClients), result.Clients)
	assert.Equal(t, len(demoProducts), result.Products)

	admin, err := repo.GetUserByLogin(ctx, AdminUsername)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("s3cret-admin")))

	products, err := repo.ListProducts(ctx, store.ListFilter{Category: "Lácteos"})
	require.NoError(t, err)
	require.Equal(t, 2, products.Total)
	for _, product := range products.Items {
		assert.NotEmpty(t, product.SKU)
		assert.Positive(t, product.Inventory.CurrentStock)
		require.Len(t, product.Suppliers, 1)
		assert.NotEmpty(t, product.Suppliers[0].SupplierName)
	}

	again, err := Run(ctx, repo, svc, "")
	require.NoError(t, err)
	assert.False(t, again.AdminCreated)
	assert.Zero(t, again.Products)

	users, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, users)
}

func TestRunRequiresAdminPasswordOnEmptyStore(t *testing.T) {
	repo := memory.New()
	_, err := Run(context.Background(), repo, service.New(repo, service.Options{}), "  ")
	require.ErrorIs(t, err, ErrMissingAdminPassword)
}
