package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/golosretail/golos-backend/pkg/config"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/types"
)

const providerBodyReadLimit int64 = 2048

// CreateRequest is the shipment order handed to the carrier.
type CreateRequest struct {
	SaleID      uuid.UUID
	Reference   string
	ServiceName string
	Cost        decimal.Decimal
	Currency    string
	Address     types.Address
}

// CreateResult is what the carrier returned for a created shipment.
type CreateResult struct {
	TrackingNumber      string
	EstimatedDeliveryAt *time.Time
	Response            types.JSONMap
}

// Provider creates shipments with an external carrier.
type Provider interface {
	Name() string
	CreateShipment(ctx context.Context, req CreateRequest) (*CreateResult, error)
}

// NewProvider builds the provider selected by configuration.
func NewProvider(cfg config.ShippingConfig) (Provider, error) {
	switch cfg.ProviderMode() {
	case "mock":
		return &mockProvider{}, nil
	case "http":
		return newHTTPProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown shipping provider %q", cfg.Provider)
	}
}

// mockProvider fabricates tracking numbers locally. Used in development and
// as the default when no carrier is wired.
type mockProvider struct{}

func (p *mockProvider) Name() string { return "mock" }

func (p *mockProvider) CreateShipment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	tracking := "MOCK-" + strings.ToUpper(uuid.NewString()[:8])
	return &CreateResult{
		TrackingNumber: tracking,
		Response: types.JSONMap{
			"provider":        "mock",
			"tracking_number": tracking,
			"reference":       req.Reference,
		},
	}, nil
}

type httpProvider struct {
	httpClient *http.Client
	baseURL    string
	createPath string
	apiKey     string
	authHeader string
	authPrefix string
}

func newHTTPProvider(cfg config.ShippingConfig) (*httpProvider, error) {
	baseURL := strings.TrimSpace(cfg.APIBaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("shipping api base url required for http provider")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &httpProvider{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		createPath: cfg.CreatePath,
		apiKey:     cfg.APIKey,
		authHeader: cfg.AuthHeader,
		authPrefix: cfg.AuthPrefix,
	}, nil
}

func (p *httpProvider) Name() string { return "http" }

func (p *httpProvider) CreateShipment(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	payload, err := json.Marshal(map[string]any{
		"reference": req.Reference,
		"service":   req.ServiceName,
		"cost":      req.Cost.StringFixed(2),
		"currency":  req.Currency,
		"address": map[string]any{
			"line1":       req.Address.Line1,
			"line2":       req.Address.Line2,
			"city":        req.Address.City,
			"department":  req.Address.Department,
			"postal_code": req.Address.PostalCode,
			"country":     req.Address.Country,
			"phone":       req.Address.Phone,
		},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "marshal shipment request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.createPath, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "build shipment request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set(p.authHeader, p.authPrefix+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "execute shipment request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, providerBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"carrier rejected shipment")
	}

	var apiResp struct {
		TrackingNumber      string         `json:"tracking_number"`
		EstimatedDeliveryAt *time.Time     `json:"estimated_delivery_at"`
		Raw                 map[string]any `json:"-"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, providerBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "read carrier response")
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode carrier response")
	}
	if apiResp.TrackingNumber == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "carrier response missing tracking number")
	}

	raw := types.JSONMap{}
	_ = json.Unmarshal(body, (*map[string]any)(&raw))
	return &CreateResult{
		TrackingNumber:      apiResp.TrackingNumber,
		EstimatedDeliveryAt: apiResp.EstimatedDeliveryAt,
		Response:            raw,
	}, nil
}
