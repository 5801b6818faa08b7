package shipping

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/internal/audit"
	"github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/pkg/config"
	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/types"
)

const testWebhookSecret = "carrier-secret"

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeShippingRepo struct {
	shipments map[uuid.UUID]*models.Shipment
	events    map[string]bool
	createErr error
	// missOnce makes the next GetBySaleID miss, simulating a concurrent
	// insert landing between the existence check and our create.
	missOnce bool
}

func newFakeShippingRepo() *fakeShippingRepo {
	return &fakeShippingRepo{
		shipments: map[uuid.UUID]*models.Shipment{},
		events:    map[string]bool{},
	}
}

func (f *fakeShippingRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeShippingRepo) Create(ctx context.Context, shipment *models.Shipment) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.shipments {
		if existing.SaleID == shipment.SaleID {
			return fmt.Errorf("duplicate key value violates unique constraint \"idx_shipments_sale\"")
		}
	}
	if shipment.ID == uuid.Nil {
		shipment.ID = uuid.New()
	}
	f.shipments[shipment.ID] = shipment
	return nil
}

func (f *fakeShippingRepo) GetBySaleID(ctx context.Context, saleID uuid.UUID) (*models.Shipment, error) {
	if f.missOnce {
		f.missOnce = false
		return nil, nil
	}
	for _, shipment := range f.shipments {
		if shipment.SaleID == saleID {
			return shipment, nil
		}
	}
	return nil, nil
}

func (f *fakeShippingRepo) GetByTracking(ctx context.Context, trackingNumber string) (*models.Shipment, error) {
	for _, shipment := range f.shipments {
		if shipment.TrackingNumber == trackingNumber {
			return shipment, nil
		}
	}
	return nil, nil
}

func (f *fakeShippingRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	shipment, ok := f.shipments[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		switch column {
		case "status":
			shipment.Status = value.(enums.ShipmentStatus)
		case "in_transit_at":
			at := value.(time.Time)
			shipment.InTransitAt = &at
		case "delivered_at":
			at := value.(time.Time)
			shipment.DeliveredAt = &at
		case "failed_at":
			at := value.(time.Time)
			shipment.FailedAt = &at
		case "canceled_at":
			at := value.(time.Time)
			shipment.CanceledAt = &at
		}
	}
	return nil
}

func (f *fakeShippingRepo) CreateEvent(ctx context.Context, event *models.ShipmentEvent) (bool, error) {
	if f.events[event.ProviderEventID] {
		return false, nil
	}
	f.events[event.ProviderEventID] = true
	return true, nil
}

type fakeSaleReader struct {
	sales map[uuid.UUID]*models.Sale
}

func (f *fakeSaleReader) GetByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	sale, ok := f.sales[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sale, nil
}

type fakeOrderUpdater struct {
	inputs []orders.UpdateStatusInput
	err    error
}

func (f *fakeOrderUpdater) UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Sale, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Sale{ID: input.SaleID, Status: input.Target}, nil
}

type fakeProvider struct {
	calls  int
	err    error
	result CreateResult
}

func (f *fakeProvider) Name() string { return "mock" }

func (f *fakeProvider) CreateShipment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	result := f.result
	if result.TrackingNumber == "" {
		result.TrackingNumber = "MOCK-TRACK01"
	}
	return &result, nil
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
	svc      *service
	repo     *fakeShippingRepo
	sales    *fakeSaleReader
	orders   *fakeOrderUpdater
	provider *fakeProvider
	audit    *fakeAudit
	now      time.Time
}

func testShippingConfig() config.ShippingConfig {
	return config.ShippingConfig{
		Provider:         "mock",
		Services:         "eco:12000:96,standard:18000:48,express:25000:24",
		MaxDeliveryHours: 72,
		WebhookSecret:    testWebhookSecret,
		CarrierName:      "LocalCarrier",
		Currency:         "COP",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newFakeShippingRepo(),
		sales:    &fakeSaleReader{sales: map[uuid.UUID]*models.Sale{}},
		orders:   &fakeOrderUpdater{},
		provider: &fakeProvider{},
		audit:    &fakeAudit{},
		now:      time.Date(2025, 9, 10, 12, 0, 0, 0, time.UTC),
	}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
	svc, err := NewService(logg, fakeTxRunner{}, f.repo, f.sales, f.orders, f.provider, f.audit, testShippingConfig())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	f.svc = svc.(*service)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addSale(status enums.OrderStatus) *models.Sale {
	sale := &models.Sale{
		ID:              uuid.New(),
		Status:          status,
		PaymentStatus:   enums.PaymentStatusPaid,
		PaymentRef:      "ORD-AB12CD34EF56",
		ShippingService: "standard",
		ShippingCost:    decimal.NewFromInt(18000),
		ShippingAddress: types.Address{
			Line1:      "Calle 10 # 5-51",
			City:       "Bogotá",
			Department: "Cundinamarca",
		},
	}
	f.sales.sales[sale.ID] = sale
	return sale
}

func (f *fixture) addShipment(sale *models.Sale, status enums.ShipmentStatus) *models.Shipment {
	shipment := &models.Shipment{
		ID:             uuid.New(),
		SaleID:         sale.ID,
		Provider:       "mock",
		CarrierName:    "LocalCarrier",
		TrackingNumber: "MOCK-TRACK01",
		ServiceName:    "standard",
		Cost:           sale.ShippingCost,
		Status:         status,
	}
	f.repo.shipments[shipment.ID] = shipment
	return shipment
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func carrierEvent(t *testing.T, eventID, eventType, tracking string, occurredAt time.Time) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id":        eventID,
		"event_type":      eventType,
		"tracking_number": tracking,
		"occurred_at":     occurredAt.Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestQuote(t *testing.T) {
	f := newFixture(t)

	opt, err := f.svc.Quote("EXPRESS")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if opt.Name != "express" {
		t.Fatalf("expected express, got %q", opt.Name)
	}

	// Empty name picks the cheapest service within the delivery window.
	opt, err = f.svc.Quote("")
	if err != nil {
		t.Fatalf("Quote default: %v", err)
	}
	if opt.Name != "standard" {
		t.Fatalf("expected standard default, got %q", opt.Name)
	}

	_, err = f.svc.Quote("overnight")
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnsureShipmentCreatesOnce(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusProcessing)

	shipment, err := f.svc.EnsureShipment(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("EnsureShipment: %v", err)
	}
	if shipment.TrackingNumber == "" {
		t.Fatal("expected a tracking number")
	}
	if shipment.Status != enums.ShipmentStatusCreated {
		t.Fatalf("expected created status, got %q", shipment.Status)
	}
	if shipment.ServiceName != "standard" {
		t.Fatalf("expected the sale's service, got %q", shipment.ServiceName)
	}
	if f.provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", f.provider.calls)
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Action != "shipment.created" {
		t.Fatalf("unexpected audit trail: %+v", f.audit.records)
	}

	again, err := f.svc.EnsureShipment(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("EnsureShipment again: %v", err)
	}
	if again.ID != shipment.ID {
		t.Fatal("expected the existing shipment back")
	}
	if f.provider.calls != 1 {
		t.Fatalf("expected no second provider call, got %d", f.provider.calls)
	}
}

func TestEnsureShipmentRejectsCanceledSale(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusCanceled)

	_, err := f.svc.EnsureShipment(context.Background(), sale.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if f.provider.calls != 0 {
		t.Fatal("provider should not be called for a canceled sale")
	}
}

func TestEnsureShipmentUnknownSale(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.EnsureShipment(context.Background(), uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEnsureShipmentProviderFailureIsAudited(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusProcessing)
	f.provider.err = pkgerrors.New(pkgerrors.CodeProvider, "carrier unavailable")

	_, err := f.svc.EnsureShipment(context.Background(), sale.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if len(f.repo.shipments) != 0 {
		t.Fatal("no shipment row should be written on provider failure")
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Action != "shipment.create_failed" {
		t.Fatalf("expected a create_failed audit record, got %+v", f.audit.records)
	}
}

func TestEnsureShipmentInsertRaceReturnsSurvivor(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusProcessing)
	survivor := f.addShipment(sale, enums.ShipmentStatusCreated)

	// The existence check misses, the insert then loses on the sale_id
	// unique index, and the surviving row is re-read and returned.
	f.repo.missOnce = true
	f.repo.createErr = fmt.Errorf("duplicate key value violates unique constraint \"idx_shipments_sale\"")

	shipment, err := f.svc.EnsureShipment(context.Background(), sale.ID)
	if err != nil {
		t.Fatalf("EnsureShipment: %v", err)
	}
	if shipment.ID != survivor.ID {
		t.Fatal("expected the surviving shipment")
	}
	if f.provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", f.provider.calls)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event_id":"evt-1"}`)

	if err := f.svc.VerifyWebhookSignature(body, signBody(body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	// Uppercase hex is accepted.
	if err := f.svc.VerifyWebhookSignature(body, strings.ToUpper(signBody(body))); err != nil {
		t.Fatalf("uppercase signature rejected: %v", err)
	}
	if err := f.svc.VerifyWebhookSignature(body, "deadbeef"); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.svc.VerifyWebhookSignature(body, ""); !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized for missing signature, got %v", err)
	}
}

func TestApplyWebhookInTransit(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusProcessing)
	shipment := f.addShipment(sale, enums.ShipmentStatusCreated)

	occurred := time.Date(2025, 9, 11, 8, 30, 0, 0, time.UTC)
	body := carrierEvent(t, "evt-1", "in_transit", shipment.TrackingNumber, occurred)

	result, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	if result.Duplicate || !result.StatusChanged {
		t.Fatalf("unexpected result: %+v", result)
	}
	if shipment.Status != enums.ShipmentStatusInTransit {
		t.Fatalf("expected in_transit, got %q", shipment.Status)
	}
	if shipment.InTransitAt == nil || !shipment.InTransitAt.Equal(occurred) {
		t.Fatalf("expected in_transit_at %v, got %v", occurred, shipment.InTransitAt)
	}
	if len(f.orders.inputs) != 1 {
		t.Fatalf("expected 1 order transition, got %d", len(f.orders.inputs))
	}
	input := f.orders.inputs[0]
	if input.SaleID != sale.ID || input.Target != enums.OrderStatusShipped || input.ActorRole != enums.ActorRoleSystem {
		t.Fatalf("unexpected transition input: %+v", input)
	}
	if !result.OrderAdvanced {
		t.Fatal("expected order to be advanced")
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Result != "applied" {
		t.Fatalf("unexpected audit trail: %+v", f.audit.records)
	}
}

func TestApplyWebhookDeliveredAdvancesOrder(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusShipped)
	shipment := f.addShipment(sale, enums.ShipmentStatusInTransit)

	body := carrierEvent(t, "evt-2", "delivered", shipment.TrackingNumber, f.now)
	result, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	if shipment.Status != enums.ShipmentStatusDelivered {
		t.Fatalf("expected delivered, got %q", shipment.Status)
	}
	if shipment.DeliveredAt == nil {
		t.Fatal("expected delivered_at to be stamped")
	}
	if len(f.orders.inputs) != 1 || f.orders.inputs[0].Target != enums.OrderStatusDelivered {
		t.Fatalf("unexpected order transitions: %+v", f.orders.inputs)
	}
	if !result.OrderAdvanced {
		t.Fatal("expected order to be advanced")
	}
}

func TestApplyWebhookDuplicateChangesNothing(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusProcessing)
	shipment := f.addShipment(sale, enums.ShipmentStatusCreated)

	body := carrierEvent(t, "evt-3", "in_transit", shipment.TrackingNumber, f.now)
	if _, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	firstStamp := *shipment.InTransitAt

	result, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate result")
	}
	if !shipment.InTransitAt.Equal(firstStamp) {
		t.Fatal("redelivery must not move timestamps")
	}
	if len(f.orders.inputs) != 1 {
		t.Fatalf("redelivery must not retrigger the order transition, got %d", len(f.orders.inputs))
	}
	if len(f.audit.records) != 2 || f.audit.records[1].Result != "duplicate" {
		t.Fatalf("expected a duplicate audit record, got %+v", f.audit.records)
	}
}

func TestApplyWebhookToleratesOrderStateConflict(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusDelivered)
	shipment := f.addShipment(sale, enums.ShipmentStatusCreated)
	f.orders.err = pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")

	body := carrierEvent(t, "evt-4", "in_transit", shipment.TrackingNumber, f.now)
	result, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	if result.OrderAdvanced {
		t.Fatal("order must not report advanced on a state conflict")
	}
	if shipment.Status != enums.ShipmentStatusInTransit {
		t.Fatalf("shipment state must still apply, got %q", shipment.Status)
	}
}

func TestApplyWebhookLateEventDoesNotRegress(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusDelivered)
	shipment := f.addShipment(sale, enums.ShipmentStatusDelivered)
	delivered := f.now.Add(-time.Hour)
	shipment.DeliveredAt = &delivered

	body := carrierEvent(t, "evt-5", "in_transit", shipment.TrackingNumber, f.now)
	result, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	if result.StatusChanged {
		t.Fatal("a late in_transit event must not regress a delivered shipment")
	}
	if shipment.Status != enums.ShipmentStatusDelivered {
		t.Fatalf("expected delivered, got %q", shipment.Status)
	}
	if shipment.InTransitAt == nil {
		t.Fatal("the in_transit_at stamp is still recorded")
	}
	if len(f.orders.inputs) != 0 {
		t.Fatal("no order transition without a status change")
	}
}

func TestApplyWebhookUnknownEventTypeIsIgnored(t *testing.T) {
	f := newFixture(t)
	sale := f.addSale(enums.OrderStatusProcessing)
	shipment := f.addShipment(sale, enums.ShipmentStatusCreated)

	body := carrierEvent(t, "evt-6", "label_printed", shipment.TrackingNumber, f.now)
	result, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if err != nil {
		t.Fatalf("ApplyWebhook: %v", err)
	}
	if result.StatusChanged {
		t.Fatal("unknown event types must not change state")
	}
	if shipment.Status != enums.ShipmentStatusCreated {
		t.Fatalf("expected created, got %q", shipment.Status)
	}
	if len(f.audit.records) != 1 || f.audit.records[0].Result != "ignored" {
		t.Fatalf("expected an ignored audit record, got %+v", f.audit.records)
	}
}

func TestApplyWebhookUnknownTracking(t *testing.T) {
	f := newFixture(t)

	body := carrierEvent(t, "evt-7", "in_transit", "NOPE-123", f.now)
	_, err := f.svc.ApplyWebhook(context.Background(), body, signBody(body))
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
