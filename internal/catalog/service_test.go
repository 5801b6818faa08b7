package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/pkg/db/models"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/pagination"
)

type fakeCatalogRepo struct {
	products []models.Product
}

func (f *fakeCatalogRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeCatalogRepo) CreateProduct(ctx context.Context, product *models.Product) error {
	f.products = append(f.products, *product)
	return nil
}

func (f *fakeCatalogRepo) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	for i := range f.products {
		if f.products[i].Slug == slug {
			return &f.products[i], nil
		}
	}
	return nil, nil
}

func (f *fakeCatalogRepo) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	var active []models.Product
	for _, p := range f.products {
		if p.IsActive {
			active = append(active, p)
		}
	}
	return active, nil
}

func (f *fakeCatalogRepo) GetVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error) {
	var variants []models.ProductVariant
	for _, p := range f.products {
		for _, v := range p.Variants {
			for _, id := range ids {
				if v.ID == id {
					variants = append(variants, v)
				}
			}
		}
	}
	return variants, nil
}

func (f *fakeCatalogRepo) ResolvePrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	return nil, nil
}

type fakeLedgerService struct {
	stock map[uuid.UUID]int
}

func (f *fakeLedgerService) RecordMovement(ctx context.Context, input ledger.RecordMovementInput) (*models.InventoryMovement, error) {
	return nil, nil
}

func (f *fakeLedgerService) CurrentStock(ctx context.Context, variantID uuid.UUID) (int, error) {
	return f.stock[variantID], nil
}

func (f *fakeLedgerService) StockMap(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int, len(variantIDs))
	for _, id := range variantIDs {
		out[id] = f.stock[id]
	}
	return out, nil
}

func (f *fakeLedgerService) ListMovements(ctx context.Context, variantID uuid.UUID, params pagination.Params) ([]models.InventoryMovement, string, error) {
	return nil, "", nil
}

func newTestProduct(slug string, active bool) (models.Product, uuid.UUID, uuid.UUID) {
	v38 := uuid.New()
	v40 := uuid.New()
	overridePrice := decimal.NewFromInt(219000)
	return models.Product{
		ID:        uuid.New(),
		Name:      "Botín Monserrate",
		Slug:      slug,
		Category:  "botas",
		BasePrice: decimal.NewFromInt(189000),
		IsActive:  active,
		Variants: []models.ProductVariant{
			{ID: v38, SKU: slug + "-38", Size: "38"},
			{ID: v40, SKU: slug + "-40", Size: "40", Price: &overridePrice},
		},
	}, v38, v40
}

func TestGetProductResolvesStockAndPrices(t *testing.T) {
	product, v38, v40 := newTestProduct("botin-monserrate", true)
	repo := &fakeCatalogRepo{products: []models.Product{product}}
	ledgerSvc := &fakeLedgerService{stock: map[uuid.UUID]int{v38: 7, v40: 0}}

	svc, err := NewService(repo, ledgerSvc)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	view, err := svc.GetProduct(context.Background(), "botin-monserrate")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}

	if got := view.Stock["botin-monserrate-38"]; got != 7 {
		t.Fatalf("expected stock 7 for size 38 got %d", got)
	}
	if got := view.Stock["botin-monserrate-40"]; got != 0 {
		t.Fatalf("expected stock 0 for size 40 got %d", got)
	}

	base := view.Prices["botin-monserrate-38"]
	if !base.Amount.Equal(decimal.NewFromInt(189000)) {
		t.Fatalf("expected base price got %s", base.Amount)
	}
	override := view.Prices["botin-monserrate-40"]
	if !override.Amount.Equal(decimal.NewFromInt(219000)) {
		t.Fatalf("expected variant price override got %s", override.Amount)
	}
	if base.Currency != "COP" {
		t.Fatalf("expected COP got %s", base.Currency)
	}
}

func TestGetProductUnknownSlug(t *testing.T) {
	svc, err := NewService(&fakeCatalogRepo{}, &fakeLedgerService{})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	_, err = svc.GetProduct(context.Background(), "no-existe")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestListProductsSkipsInactive(t *testing.T) {
	active, v38, _ := newTestProduct("botin-monserrate", true)
	retired, _, _ := newTestProduct("tenis-chapinero", false)
	repo := &fakeCatalogRepo{products: []models.Product{active, retired}}
	ledgerSvc := &fakeLedgerService{stock: map[uuid.UUID]int{v38: 3}}

	svc, err := NewService(repo, ledgerSvc)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	views, err := svc.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected one active product got %d", len(views))
	}
	if views[0].Product.Slug != "botin-monserrate" {
		t.Fatalf("unexpected product %s", views[0].Product.Slug)
	}
}
