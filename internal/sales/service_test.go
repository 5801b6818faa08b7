package sales

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/catalog"
	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/internal/shipping"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/pagination"
	"github.com/golosretail/golos-backend/pkg/types"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeSaleRepo struct {
	sales   map[uuid.UUID]*models.Sale
	updates []map[string]any
}

func newFakeSaleRepo(sales ...*models.Sale) *fakeSaleRepo {
	repo := &fakeSaleRepo{sales: map[uuid.UUID]*models.Sale{}}
	for _, sale := range sales {
		repo.sales[sale.ID] = sale
	}
	return repo
}

func (f *fakeSaleRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeSaleRepo) Create(ctx context.Context, sale *models.Sale) (*models.Sale, error) {
	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	f.sales[sale.ID] = sale
	return sale, nil
}

func (f *fakeSaleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	sale, ok := f.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sale, nil
}

func (f *fakeSaleRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeSaleRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	f.updates = append(f.updates, updates)
	return nil
}

type fakeLedgerRepo struct {
	stocks   map[uuid.UUID]int
	variants map[uuid.UUID]models.ProductVariant
	saleSets map[uuid.UUID]bool
	created  []models.InventoryMovement
	batchErr error
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{
		stocks:   map[uuid.UUID]int{},
		variants: map[uuid.UUID]models.ProductVariant{},
		saleSets: map[uuid.UUID]bool{},
	}
}

func (f *fakeLedgerRepo) WithTx(tx *gorm.DB) ledger.Repository { return f }

func (f *fakeLedgerRepo) Create(ctx context.Context, movement *models.InventoryMovement) error {
	f.created = append(f.created, *movement)
	return nil
}

func (f *fakeLedgerRepo) CreateBatch(ctx context.Context, movements []models.InventoryMovement) error {
	if f.batchErr != nil {
		return f.batchErr
	}
	for _, m := range movements {
		f.created = append(f.created, m)
		if m.SaleID != nil {
			f.saleSets[*m.SaleID] = true
		}
		f.stocks[m.VariantID] += m.Quantity
	}
	return nil
}

func (f *fakeLedgerRepo) SumByVariant(ctx context.Context, variantID uuid.UUID) (int, error) {
	return f.stocks[variantID], nil
}

func (f *fakeLedgerRepo) SumByVariants(ctx context.Context, variantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := map[uuid.UUID]int{}
	for _, id := range variantIDs {
		out[id] = f.stocks[id]
	}
	return out, nil
}

func (f *fakeLedgerRepo) SumByVariantBefore(ctx context.Context, variantID uuid.UUID, before time.Time) (int, error) {
	return f.stocks[variantID], nil
}

func (f *fakeLedgerRepo) InOutBetween(ctx context.Context, variantID uuid.UUID, from, to time.Time) (int, int, error) {
	return 0, 0, nil
}

func (f *fakeLedgerRepo) ExistsForSale(ctx context.Context, saleID uuid.UUID) (bool, error) {
	return f.saleSets[saleID], nil
}

func (f *fakeLedgerRepo) ListByVariant(ctx context.Context, variantID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.InventoryMovement, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) ActiveVariantIDs(ctx context.Context) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) LockVariants(ctx context.Context, variantIDs []uuid.UUID) ([]models.ProductVariant, error) {
	var out []models.ProductVariant
	for _, id := range variantIDs {
		if v, ok := f.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type catalogRepoFake struct {
	variants map[uuid.UUID]models.ProductVariant
	prices   map[uuid.UUID]decimal.Decimal
}

func newCatalogRepoFake() *catalogRepoFake {
	return &catalogRepoFake{
		variants: map[uuid.UUID]models.ProductVariant{},
		prices:   map[uuid.UUID]decimal.Decimal{},
	}
}

func (f *catalogRepoFake) WithTx(tx *gorm.DB) catalog.Repository { return f }

func (f *catalogRepoFake) CreateProduct(ctx context.Context, product *models.Product) error {
	return nil
}

func (f *catalogRepoFake) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return nil, nil
}

func (f *catalogRepoFake) ListActiveProducts(ctx context.Context) ([]models.Product, error) {
	return nil, nil
}

func (f *catalogRepoFake) GetVariantsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariant, error) {
	var out []models.ProductVariant
	for _, id := range ids {
		if v, ok := f.variants[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *catalogRepoFake) ResolvePrices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := map[uuid.UUID]decimal.Decimal{}
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeClosedPeriods struct {
	end *time.Time
}

func (f *fakeClosedPeriods) LatestClosedPeriodEnd(ctx context.Context) (*time.Time, error) {
	return f.end, nil
}

type fakeQuoter struct {
	option shipping.ServiceOption
}

func (f *fakeQuoter) Quote(serviceName string) (shipping.ServiceOption, error) {
	return f.option, nil
}

type fakeAudit struct {
	records []audit.RecordInput
}

func (f *fakeAudit) WithTx(tx *gorm.DB) audit.Service { return f }

func (f *fakeAudit) Record(ctx context.Context, input audit.RecordInput) (*models.AuditLog, error) {
	f.records = append(f.records, input)
	return &models.AuditLog{}, nil
}

func (f *fakeAudit) ListBySaleID(ctx context.Context, saleID uuid.UUID) ([]models.AuditLog, error) {
	return nil, nil
}

type fixture struct {
	svc     *service
	repo    *fakeSaleRepo
	ledger  *fakeLedgerRepo
	catalog *catalogRepoFake
	closed  *fakeClosedPeriods
	audit   *fakeAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeSaleRepo()
	ledgerRepo := newFakeLedgerRepo()
	catalogRepo := newCatalogRepoFake()
	closed := &fakeClosedPeriods{}
	auditSvc := &fakeAudit{}
	quoter := &fakeQuoter{option: shipping.ServiceOption{
		Name:     "standard",
		Cost:     decimal.NewFromInt(18000),
		ETAHours: 48,
	}}
	svc, err := NewService(fakeTxRunner{}, repo, ledgerRepo, catalogRepo, closed, quoter, auditSvc, "COP")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	impl := svc.(*service)
	impl.now = func() time.Time { return time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC) }
	return &fixture{svc: impl, repo: repo, ledger: ledgerRepo, catalog: catalogRepo, closed: closed, audit: auditSvc}
}

// addVariant seeds a sellable variant with price and stock across the fakes.
func (fx *fixture) addVariant(t *testing.T, price int64, stock int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	variant := models.ProductVariant{ID: id, SKU: "SKU-" + id.String()[:8], IsActive: true}
	fx.catalog.variants[id] = variant
	fx.catalog.prices[id] = decimal.NewFromInt(price)
	fx.ledger.variants[id] = variant
	fx.ledger.stocks[id] = stock
	return id
}

func validAddress() types.Address {
	return types.Address{
		Line1:      "Calle 10 # 5-51",
		City:       "Bogotá",
		Department: "Cundinamarca",
		Country:    "CO",
		Phone:      "+573001112233",
	}
}

func TestCheckoutCreatesPendingSale(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 250000, 10)

	sale, err := fx.svc.Checkout(context.Background(), CheckoutInput{
		Items:           []CheckoutItem{{VariantID: variantID, Quantity: 2}},
		ShippingAddress: validAddress(),
		ShippingService: "standard",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if sale.Status != enums.OrderStatusPending || sale.PaymentStatus != enums.PaymentStatusUnpaid {
		t.Fatalf("expected pending/unpaid, got %s/%s", sale.Status, sale.PaymentStatus)
	}
	if !strings.HasPrefix(sale.PaymentRef, "ORD-") {
		t.Fatalf("unexpected payment ref %q", sale.PaymentRef)
	}
	if !sale.Subtotal.Equal(decimal.NewFromInt(500000)) {
		t.Fatalf("unexpected subtotal %s", sale.Subtotal)
	}
	if !sale.Total.Equal(decimal.NewFromInt(518000)) {
		t.Fatalf("unexpected total %s", sale.Total)
	}
	if len(fx.ledger.created) != 0 {
		t.Fatal("checkout must not touch the ledger")
	}
}

func TestCheckoutValidation(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 100000, 5)

	retired := uuid.New()
	fx.catalog.variants[retired] = models.ProductVariant{ID: retired, SKU: "RET-1", IsActive: false}
	fx.catalog.prices[retired] = decimal.NewFromInt(100000)

	cases := []struct {
		name  string
		input CheckoutInput
		code  pkgerrors.Code
	}{
		{
			name:  "no items",
			input: CheckoutInput{ShippingAddress: validAddress()},
			code:  pkgerrors.CodeValidation,
		},
		{
			name: "zero quantity",
			input: CheckoutInput{
				Items:           []CheckoutItem{{VariantID: variantID, Quantity: 0}},
				ShippingAddress: validAddress(),
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "duplicate variant",
			input: CheckoutInput{
				Items: []CheckoutItem{
					{VariantID: variantID, Quantity: 1},
					{VariantID: variantID, Quantity: 2},
				},
				ShippingAddress: validAddress(),
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "missing address",
			input: CheckoutInput{
				Items: []CheckoutItem{{VariantID: variantID, Quantity: 1}},
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "unknown variant",
			input: CheckoutInput{
				Items:           []CheckoutItem{{VariantID: uuid.New(), Quantity: 1}},
				ShippingAddress: validAddress(),
			},
			code: pkgerrors.CodeNotFound,
		},
		{
			name: "retired variant",
			input: CheckoutInput{
				Items:           []CheckoutItem{{VariantID: retired, Quantity: 1}},
				ShippingAddress: validAddress(),
			},
			code: pkgerrors.CodeConflict,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.Checkout(context.Background(), tc.input)
			if !pkgerrors.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestConfirmDiscountsStockAndCompletes(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 250000, 10)

	sale := &models.Sale{
		ID:         uuid.New(),
		Status:     enums.OrderStatusPending,
		PaymentRef: "ORD-TEST1",
		CreatedAt:  time.Date(2025, 9, 5, 8, 0, 0, 0, time.UTC),
		Items: []models.SaleItem{
			{VariantID: variantID, Quantity: 3, UnitPrice: decimal.NewFromInt(250000)},
		},
	}
	fx.repo.sales[sale.ID] = sale

	confirmed, err := fx.svc.Confirm(context.Background(), sale.ID, "staff")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != enums.OrderStatusCompleted || confirmed.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected completed/paid, got %s/%s", confirmed.Status, confirmed.PaymentStatus)
	}
	if confirmed.ConfirmedAt == nil {
		t.Fatal("confirmed_at not stamped")
	}
	if len(fx.ledger.created) != 1 {
		t.Fatalf("expected one movement, got %d", len(fx.ledger.created))
	}
	movement := fx.ledger.created[0]
	if movement.Type != enums.MovementTypeSaleOut || movement.Quantity != -3 {
		t.Fatalf("unexpected movement %+v", movement)
	}
	if movement.SaleID == nil || *movement.SaleID != sale.ID {
		t.Fatal("movement not tagged with sale id")
	}
	if fx.ledger.stocks[variantID] != 7 {
		t.Fatalf("expected stock 7 after discount, got %d", fx.ledger.stocks[variantID])
	}
}

func TestConfirmRejectsNonPendingSale(t *testing.T) {
	fx := newFixture(t)
	sale := &models.Sale{ID: uuid.New(), Status: enums.OrderStatusCompleted}
	fx.repo.sales[sale.ID] = sale

	_, err := fx.svc.Confirm(context.Background(), sale.ID, "staff")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConfirmInsufficientStock(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 250000, 2)

	sale := &models.Sale{
		ID:         uuid.New(),
		Status:     enums.OrderStatusPending,
		PaymentRef: "ORD-TEST2",
		Items: []models.SaleItem{
			{VariantID: variantID, Quantity: 3, UnitPrice: decimal.NewFromInt(250000)},
		},
	}
	fx.repo.sales[sale.ID] = sale

	_, err := fx.svc.Confirm(context.Background(), sale.ID, "staff")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(fx.ledger.created) != 0 {
		t.Fatal("no movements may be written on failure")
	}
	if fx.repo.sales[sale.ID].Status != enums.OrderStatusPending {
		t.Fatal("sale status must stay pending")
	}
}

func TestEnsureStockDiscountIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 250000, 10)

	sale := &models.Sale{
		ID:         uuid.New(),
		Status:     enums.OrderStatusPaid,
		PaymentRef: "ORD-TEST3",
		Items: []models.SaleItem{
			{VariantID: variantID, Quantity: 2, UnitPrice: decimal.NewFromInt(250000)},
		},
	}

	if err := fx.svc.EnsureStockDiscount(context.Background(), nil, sale, "system"); err != nil {
		t.Fatalf("first discount: %v", err)
	}
	if err := fx.svc.EnsureStockDiscount(context.Background(), nil, sale, "system"); err != nil {
		t.Fatalf("second discount: %v", err)
	}
	if len(fx.ledger.created) != 1 {
		t.Fatalf("expected exactly one movement set, got %d movements", len(fx.ledger.created))
	}
	if fx.ledger.stocks[variantID] != 8 {
		t.Fatalf("stock discounted twice: %d", fx.ledger.stocks[variantID])
	}
}

func TestEnsureStockDiscountSwallowsRacingDuplicate(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 250000, 10)

	// A concurrent discount won the insert between the exists check and the
	// batch write: the unique (variant_id, sale_id) index fires.
	fx.ledger.batchErr = errors.New(`ERROR: duplicate key value violates unique constraint "uq_inventory_movements_sale" (SQLSTATE 23505)`)

	sale := &models.Sale{
		ID:         uuid.New(),
		Status:     enums.OrderStatusPaid,
		PaymentRef: "ORD-TEST5",
		Items: []models.SaleItem{
			{VariantID: variantID, Quantity: 2, UnitPrice: decimal.NewFromInt(250000)},
		},
	}

	if err := fx.svc.EnsureStockDiscount(context.Background(), nil, sale, "wompi"); err != nil {
		t.Fatalf("losing a discount race must be a no-op, got %v", err)
	}
	if len(fx.ledger.created) != 0 {
		t.Fatalf("loser must not write a second movement set, got %d movements", len(fx.ledger.created))
	}
	if len(fx.repo.updates) != 0 {
		t.Fatal("loser must not stamp the sale")
	}
	if len(fx.audit.records) != 0 {
		t.Fatal("the winning call owns the audit record")
	}

	// Any other insert failure still surfaces.
	fx.ledger.batchErr = errors.New("connection reset by peer")
	if err := fx.svc.EnsureStockDiscount(context.Background(), nil, sale, "wompi"); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestEnsureStockDiscountClosedPeriodBarrier(t *testing.T) {
	fx := newFixture(t)
	variantID := fx.addVariant(t, 250000, 10)
	barrier := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	fx.closed.end = &barrier

	sale := &models.Sale{
		ID:         uuid.New(),
		Status:     enums.OrderStatusPending,
		PaymentRef: "ORD-TEST4",
		CreatedAt:  time.Date(2025, 8, 20, 0, 0, 0, 0, time.UTC),
		Items: []models.SaleItem{
			{VariantID: variantID, Quantity: 1, UnitPrice: decimal.NewFromInt(250000)},
		},
	}

	err := fx.svc.EnsureStockDiscount(context.Background(), nil, sale, "system")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for closed period, got %v", err)
	}
	if len(fx.ledger.created) != 0 {
		t.Fatal("no movements may be written into a closed period")
	}

	// A sale created after the barrier goes through.
	sale.CreatedAt = time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC)
	if err := fx.svc.EnsureStockDiscount(context.Background(), nil, sale, "system"); err != nil {
		t.Fatalf("discount after barrier: %v", err)
	}
}
