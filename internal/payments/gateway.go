package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golosretail/golos-backend/pkg/config"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
)

const gatewayBodyReadLimit int64 = 8192

// Transaction is the gateway's view of one payment attempt.
type Transaction struct {
	ID            string
	Status        string
	Reference     string
	AmountInCents int64
	Currency      string
}

// Gateway polls the payment provider for transaction state.
type Gateway interface {
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
}

type wompiGateway struct {
	httpClient *http.Client
	baseURL    string
	publicKey  string
}

// NewGateway builds the Wompi API client.
func NewGateway(cfg config.WompiConfig) (Gateway, error) {
	baseURL := strings.TrimSpace(cfg.APIBaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("wompi api base url required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &wompiGateway{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  cfg.PublicKey,
	}, nil
}

func (g *wompiGateway) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if strings.TrimSpace(transactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	endpoint := g.baseURL + "/transactions/" + url.PathEscape(transactionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "build transaction request")
	}
	if g.publicKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.publicKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "execute transaction request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, gatewayBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"gateway rejected transaction lookup")
	}

	var apiResp struct {
		Data struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			Reference     string `json:"reference"`
			AmountInCents int64  `json:"amount_in_cents"`
			Currency      string `json:"currency"`
		} `json:"data"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, gatewayBodyReadLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "read gateway response")
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "decode gateway response")
	}
	if apiResp.Data.ID == "" || apiResp.Data.Status == "" {
		return nil, pkgerrors.New(pkgerrors.CodeProvider, "gateway response missing transaction data")
	}
	return &Transaction{
		ID:            apiResp.Data.ID,
		Status:        apiResp.Data.Status,
		Reference:     apiResp.Data.Reference,
		AmountInCents: apiResp.Data.AmountInCents,
		Currency:      apiResp.Data.Currency,
	}, nil
}

// IntegritySignature builds the checkout integrity hash the gateway expects:
// sha256(reference + amountInCents + currency + secret) in hex.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	payload := reference + strconv.FormatInt(amountInCents, 10) + currency + secret
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
