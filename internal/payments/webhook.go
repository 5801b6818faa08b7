package payments

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
)

// wompiEvent is the gateway's webhook envelope. The signature lists which
// payload properties the checksum was computed over, in order.
type wompiEvent struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
}

// ProcessWebhook verifies and applies one gateway event. The checksum is
// recomputed over the event's own property list, so a tampered payload or a
// stale secret fails closed.
func (s *service) ProcessWebhook(ctx context.Context, body []byte) (*ApplyResult, error) {
	if !s.cfg.WebhookConfigured() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "payment webhook secret not configured")
	}

	var event wompiEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing webhook payload")
	}
	if err := s.verifyChecksum(&event); err != nil {
		return nil, err
	}

	txn, err := transactionFromEvent(&event)
	if err != nil {
		return nil, err
	}

	sale, err := s.repo.GetByPaymentRef(ctx, txn.Reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no sale for payment reference").
				WithDetails(map[string]any{"reference": txn.Reference})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading sale")
	}
	return s.applyTransaction(ctx, sale.ID, txn, "webhook")
}

func (s *service) verifyChecksum(event *wompiEvent) error {
	if event.Signature.Checksum == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook checksum")
	}
	if len(event.Signature.Properties) == 0 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature properties")
	}

	var concat strings.Builder
	for _, property := range event.Signature.Properties {
		value, err := propertyValue(event.Data, property)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "resolving signature property")
		}
		concat.WriteString(value)
	}
	concat.WriteString(strconv.FormatInt(event.Timestamp, 10))
	concat.WriteString(s.cfg.EventsSecret)

	sum := sha256.Sum256([]byte(concat.String()))
	expected := hex.EncodeToString(sum[:])
	received := strings.ToLower(strings.TrimSpace(event.Signature.Checksum))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook checksum")
	}
	return nil
}

// propertyValue resolves a dotted path like "transaction.amount_in_cents"
// inside the event data and renders it the way the gateway signed it.
func propertyValue(data map[string]any, path string) (string, error) {
	var current any = data
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "signature property path not found").
				WithDetails(map[string]any{"property": path})
		}
		current, ok = node[key]
		if !ok {
			return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "signature property path not found").
				WithDetails(map[string]any{"property": path})
		}
	}
	switch v := current.(type) {
	case string:
		return v, nil
	case float64:
		// JSON numbers decode as float64; the gateway signs integers
		// (amount_in_cents) without a decimal point.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "unsupported signature property type").
			WithDetails(map[string]any{"property": path})
	}
}

func transactionFromEvent(event *wompiEvent) (*Transaction, error) {
	raw, ok := event.Data["transaction"].(map[string]any)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing transaction")
	}
	txn := &Transaction{}
	if id, ok := raw["id"].(string); ok {
		txn.ID = id
	}
	if status, ok := raw["status"].(string); ok {
		txn.Status = status
	}
	if reference, ok := raw["reference"].(string); ok {
		txn.Reference = reference
	}
	if amount, ok := raw["amount_in_cents"].(float64); ok {
		txn.AmountInCents = int64(amount)
	}
	if currency, ok := raw["currency"].(string); ok {
		txn.Currency = currency
	}
	if txn.ID == "" || txn.Status == "" || txn.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook transaction missing id, status or reference")
	}
	return txn, nil
}
