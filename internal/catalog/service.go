package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/pkg/db/models"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
)

// Service exposes the storefront catalog with derived stock per variant.
type Service interface {
	ListProducts(ctx context.Context) ([]ProductView, error)
	GetProduct(ctx context.Context, slug string) (*ProductView, error)
}

// ProductView is a product with stock resolved from the movement ledger.
type ProductView struct {
	Product models.Product   `json:"product"`
	Stock   map[string]int   `json:"stock"`
	Prices  map[string]money `json:"prices"`
}

type money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type service struct {
	repo      Repository
	ledgerSvc ledger.Service
}

// NewService wires the catalog service.
func NewService(repo Repository, ledgerSvc ledger.Service) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{repo: repo, ledgerSvc: ledgerSvc}, nil
}

func (s *service) ListProducts(ctx context.Context) ([]ProductView, error) {
	products, err := s.repo.ListActiveProducts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing products")
	}

	views := make([]ProductView, 0, len(products))
	for _, product := range products {
		view, err := s.buildView(ctx, product)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *service) GetProduct(ctx context.Context, slug string) (*ProductView, error) {
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "slug is required")
	}
	product, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return s.buildView(ctx, *product)
}

func (s *service) buildView(ctx context.Context, product models.Product) (*ProductView, error) {
	ids := make([]uuid.UUID, 0, len(product.Variants))
	for _, variant := range product.Variants {
		ids = append(ids, variant.ID)
	}

	stocks, err := s.ledgerSvc.StockMap(ctx, ids)
	if err != nil {
		return nil, err
	}

	view := &ProductView{
		Product: product,
		Stock:   make(map[string]int, len(ids)),
		Prices:  make(map[string]money, len(ids)),
	}
	for _, variant := range product.Variants {
		view.Stock[variant.SKU] = stocks[variant.ID]
		price := product.BasePrice
		if variant.Price != nil {
			price = *variant.Price
		}
		view.Prices[variant.SKU] = money{Amount: price, Currency: "COP"}
	}
	return view, nil
}
