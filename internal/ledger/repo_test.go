package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	movements := `
CREATE TABLE inventory_movements (
  id TEXT PRIMARY KEY,
  variant_id TEXT NOT NULL,
  type TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  sale_id TEXT,
  supplier_id TEXT,
  reference TEXT,
  note TEXT,
  created_by TEXT,
  created_at DATETIME
);`
	uniqueSale := `
CREATE UNIQUE INDEX uq_inventory_movements_sale
  ON inventory_movements (variant_id, sale_id)
  WHERE sale_id IS NOT NULL;`
	variants := `
CREATE TABLE product_variants (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  sku TEXT NOT NULL,
  size TEXT NOT NULL,
  color TEXT,
  price NUMERIC,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	for _, stmt := range []string{movements, uniqueSale, variants} {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func insertMovement(t *testing.T, repo Repository, variantID uuid.UUID, qty int, createdAt time.Time) {
	t.Helper()
	movementType := enums.MovementTypePurchaseIn
	if qty < 0 {
		movementType = enums.MovementTypeSaleOut
	}
	movement := &models.InventoryMovement{
		ID:        uuid.New(),
		VariantID: variantID,
		Type:      movementType,
		Quantity:  qty,
		CreatedAt: createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), movement))
}

func TestRepositorySumByVariant(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	variantID := uuid.New()
	now := time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

	insertMovement(t, repo, variantID, 50, now.Add(-48*time.Hour))
	insertMovement(t, repo, variantID, -8, now.Add(-24*time.Hour))
	insertMovement(t, repo, variantID, -2, now.Add(-time.Hour))
	insertMovement(t, repo, uuid.New(), 99, now)

	total, err := repo.SumByVariant(context.Background(), variantID)
	require.NoError(t, err)
	assert.Equal(t, 40, total)
}

func TestRepositorySumByVariantsZeroFills(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	stocked := uuid.New()
	empty := uuid.New()
	now := time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

	insertMovement(t, repo, stocked, 12, now)

	totals, err := repo.SumByVariants(context.Background(), []uuid.UUID{stocked, empty})
	require.NoError(t, err)
	assert.Equal(t, 12, totals[stocked])
	assert.Equal(t, 0, totals[empty])
}

func TestRepositoryInOutBetween(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	variantID := uuid.New()
	from := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	insertMovement(t, repo, variantID, 30, from.Add(-time.Hour)) // before window
	insertMovement(t, repo, variantID, 20, from.Add(24*time.Hour))
	insertMovement(t, repo, variantID, -5, from.Add(48*time.Hour))
	insertMovement(t, repo, variantID, -1, to) // at boundary, excluded

	in, out, err := repo.InOutBetween(context.Background(), variantID, from, to)
	require.NoError(t, err)
	assert.Equal(t, 20, in)
	assert.Equal(t, 5, out)
}

func TestRepositorySaleUniquenessIsEnforced(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	variantID := uuid.New()
	saleID := uuid.New()

	first := &models.InventoryMovement{ID: uuid.New(), VariantID: variantID, Type: enums.MovementTypeSaleOut, Quantity: -2, SaleID: &saleID}
	require.NoError(t, repo.Create(context.Background(), first))

	exists, err := repo.ExistsForSale(context.Background(), saleID)
	require.NoError(t, err)
	assert.True(t, exists)

	dup := &models.InventoryMovement{ID: uuid.New(), VariantID: variantID, Type: enums.MovementTypeSaleOut, Quantity: -2, SaleID: &saleID}
	err = repo.Create(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryListByVariantPagesNewestFirst(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)
	variantID := uuid.New()
	base := time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC)

	insertMovement(t, repo, variantID, 10, base.Add(-3*time.Hour))
	insertMovement(t, repo, variantID, 20, base.Add(-2*time.Hour))
	insertMovement(t, repo, variantID, -5, base.Add(-time.Hour))

	page, err := repo.ListByVariant(context.Background(), variantID, nil, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, -5, page[0].Quantity)
	assert.Equal(t, 20, page[1].Quantity)
}

func TestRepositoryActiveVariantIDs(t *testing.T) {
	conn := setupLedgerTestDB(t)
	repo := NewRepository(conn)

	active := models.ProductVariant{ID: uuid.New(), ProductID: uuid.New(), SKU: "bm-38", Size: "38", IsActive: true}
	retired := models.ProductVariant{ID: uuid.New(), ProductID: uuid.New(), SKU: "bm-45", Size: "45", IsActive: false}
	require.NoError(t, conn.Create(&active).Error)
	require.NoError(t, conn.Create(&retired).Error)

	ids, err := repo.ActiveVariantIDs(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, active.ID, ids[0])
}
