package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
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

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// stockDiscounter applies the one-time SALE_OUT movement set for a sale.
type stockDiscounter interface {
	EnsureStockDiscount(ctx context.Context, tx *gorm.DB, sale *models.Sale, actor string) error
}

// shipmentCreator creates the carrier shipment once an order is paid.
type shipmentCreator interface {
	EnsureShipment(ctx context.Context, saleID uuid.UUID) (*models.Shipment, error)
}

// CheckoutData is everything the storefront needs to open the gateway's
// hosted checkout for a pending sale.
type CheckoutData struct {
	PublicKey          string          `json:"public_key"`
	Reference          string          `json:"reference"`
	AmountInCents      int64           `json:"amount_in_cents"`
	Currency           string          `json:"currency"`
	IntegritySignature string          `json:"integrity_signature"`
	CheckoutURL        string          `json:"checkout_url"`
	RedirectURL        string          `json:"redirect_url,omitempty"`
}

// ApplyResult reports what one gateway event or verification did.
type ApplyResult struct {
	Sale          *models.Sale
	TransactionID string
	GatewayStatus string
	Changed       bool
	Discounted    bool
}

// Service integrates the Wompi payment gateway: checkout data for the
// storefront, explicit verification, and the push webhook.
type Service interface {
	CheckoutData(ctx context.Context, saleID uuid.UUID) (*CheckoutData, error)
	VerifyTransaction(ctx context.Context, saleID uuid.UUID, transactionID string) (*ApplyResult, error)
	ProcessWebhook(ctx context.Context, body []byte) (*ApplyResult, error)
}

type service struct {
	logg       *logger.Logger
	tx         txRunner
	repo       orders.Repository
	gateway    Gateway
	discounter stockDiscounter
	shipments  shipmentCreator
	audit      audit.Service
	cfg        config.WompiConfig
	now        func() time.Time
}

// NewService wires the payment service.
func NewService(logg *logger.Logger, tx txRunner, repo orders.Repository, gateway Gateway, discounter stockDiscounter, shipments shipmentCreator, auditSvc audit.Service, cfg config.WompiConfig) (Service, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("sale repository required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway required")
	}
	if discounter == nil {
		return nil, fmt.Errorf("stock discounter required")
	}
	if shipments == nil {
		return nil, fmt.Errorf("shipment creator required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
	}
	return &service{
		logg:       logg,
		tx:         tx,
		repo:       repo,
		gateway:    gateway,
		discounter: discounter,
		shipments:  shipments,
		audit:      auditSvc,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// statusEffect maps a gateway transaction status onto the order and payment
// statuses it implies.
func statusEffect(gatewayStatus string) (enums.OrderStatus, enums.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(gatewayStatus)) {
	case "APPROVED":
		return enums.OrderStatusPaid, enums.PaymentStatusPaid, true
	case "PENDING":
		return enums.OrderStatusPending, enums.PaymentStatusPending, true
	case "DECLINED":
		return enums.OrderStatusPending, enums.PaymentStatusFailed, true
	case "VOIDED":
		return enums.OrderStatusCanceled, enums.PaymentStatusRefunded, true
	case "ERROR":
		return enums.OrderStatusPending, enums.PaymentStatusFailed, true
	default:
		return "", "", false
	}
}

// CheckoutData builds the hosted-checkout parameters for a pending sale.
func (s *service) CheckoutData(ctx context.Context, saleID uuid.UUID) (*CheckoutData, error) {
	if !s.cfg.Configured() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway not configured")
	}
	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading sale")
	}
	if sale.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "sale is not pending")
	}

	// Opening the hosted checkout is the start of a payment attempt: the
	// sale leaves unpaid and waits on the gateway from here.
	if sale.PaymentStatus == enums.PaymentStatusUnpaid {
		updates := map[string]any{"payment_status": enums.PaymentStatusPending}
		if err := s.repo.Update(ctx, sale.ID, updates); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating payment status")
		}
		sale.PaymentStatus = enums.PaymentStatusPending
	}

	amountInCents := sale.Total.Mul(centsFactor).IntPart()
	signature := IntegritySignature(sale.PaymentRef, amountInCents, s.cfg.Currency, s.cfg.IntegritySecret)

	params := url.Values{}
	params.Set("public-key", s.cfg.PublicKey)
	params.Set("currency", s.cfg.Currency)
	params.Set("amount-in-cents", strconv.FormatInt(amountInCents, 10))
	params.Set("reference", sale.PaymentRef)
	params.Set("signature:integrity", signature)
	if s.cfg.RedirectURL != "" {
		params.Set("redirect-url", s.cfg.RedirectURL)
	}

	return &CheckoutData{
		PublicKey:          s.cfg.PublicKey,
		Reference:          sale.PaymentRef,
		AmountInCents:      amountInCents,
		Currency:           s.cfg.Currency,
		IntegritySignature: signature,
		CheckoutURL:        strings.TrimRight(s.cfg.CheckoutBaseURL, "?") + "?" + params.Encode(),
		RedirectURL:        s.cfg.RedirectURL,
	}, nil
}

// VerifyTransaction polls the gateway for a transaction and applies its
// status to the sale. The transaction must reference this sale.
func (s *service) VerifyTransaction(ctx context.Context, saleID uuid.UUID, transactionID string) (*ApplyResult, error) {
	sale, err := s.repo.GetByID(ctx, saleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading sale")
	}

	txn, err := s.gateway.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Reference != sale.PaymentRef {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction does not belong to this sale").
			WithDetails(map[string]any{
				"transaction_reference": txn.Reference,
				"sale_reference":        sale.PaymentRef,
			})
	}
	return s.applyTransaction(ctx, sale.ID, txn, "verify")
}

// applyTransaction maps a gateway transaction onto the sale under a row
// lock. Re-delivery of an already-applied state writes nothing but is still
// audited.
func (s *service) applyTransaction(ctx context.Context, saleID uuid.UUID, txn *Transaction, entry string) (*ApplyResult, error) {
	targetStatus, targetPayment, known := statusEffect(txn.Status)
	if !known {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "unknown gateway transaction status").
			WithDetails(map[string]any{"status": txn.Status})
	}

	result := &ApplyResult{TransactionID: txn.ID, GatewayStatus: txn.Status}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		sale, err := txRepo.GetByIDForUpdate(ctx, saleID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "locking sale")
		}
		if txn.AmountInCents > 0 {
			expected := sale.Total.Mul(centsFactor).IntPart()
			if txn.AmountInCents != expected {
				return pkgerrors.New(pkgerrors.CodeConflict, "transaction amount does not match sale total").
					WithDetails(map[string]any{
						"amount_in_cents":   txn.AmountInCents,
						"expected_in_cents": expected,
					})
			}
		}

		firstPaid := targetPayment == enums.PaymentStatusPaid && sale.PaymentStatus != enums.PaymentStatusPaid
		if firstPaid {
			if err := s.discounter.EnsureStockDiscount(ctx, tx, sale, "wompi"); err != nil {
				return err
			}
			result.Discounted = true
		}

		now := s.now().UTC()
		updates := map[string]any{}
		if sale.PaymentStatus != targetPayment {
			updates["payment_status"] = targetPayment
		}
		if sale.TransactionID == nil || *sale.TransactionID != txn.ID {
			updates["transaction_id"] = txn.ID
		}
		// The order status only moves forward. A late APPROVED redelivery
		// against an order that already advanced past paid changes nothing.
		if sale.Status != targetStatus && orders.CanTransition(sale.Status, targetStatus) {
			updates["status"] = targetStatus
			switch targetStatus {
			case enums.OrderStatusPaid:
				if sale.PaidAt == nil {
					updates["paid_at"] = now
				}
			case enums.OrderStatusCanceled:
				if sale.CanceledAt == nil {
					updates["canceled_at"] = now
				}
			}
		}
		if len(updates) > 0 {
			if err := txRepo.Update(ctx, sale.ID, updates); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating sale")
			}
			result.Changed = true
		}

		id := sale.ID
		outcome := "noop"
		if result.Changed {
			outcome = "applied"
		}
		_, err = s.audit.WithTx(tx).Record(ctx, audit.RecordInput{
			Source:    audit.SourceWompi,
			Action:    "payment." + entry,
			SaleID:    &id,
			Reference: txn.ID,
			Result:    outcome,
			Payload: types.JSONMap{
				"gateway_status": txn.Status,
				"payment_ref":    sale.PaymentRef,
				"from_status":    sale.Status.String(),
			},
		})
		if err != nil {
			return err
		}

		result.Sale = sale
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Shipment creation is best-effort: a carrier failure here must not fail
	// the payment transition, the cron retry picks it up later.
	if result.Discounted {
		if _, err := s.shipments.EnsureShipment(ctx, saleID); err != nil {
			s.logg.Error(ctx, "failed to create shipment for paid sale", err)
		}
	}

	// Re-read so the caller sees the applied state with items loaded.
	sale, err := s.repo.GetByID(ctx, saleID)
	if err == nil {
		result.Sale = sale
	}
	return result, nil
}

var centsFactor = decimal.NewFromInt(100)
