package webhooks

import (
	"io"
	"net/http"
	"strings"

	"github.com/golosretail/golos-backend/api/responses"
	"github.com/golosretail/golos-backend/internal/shipping"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
)

// CarrierWebhook receives tracking events from the shipping carrier,
// authenticated by an HMAC signature over the raw body.
func CarrierWebhook(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get("X-Carrier-Signature"))
		result, err := svc.ApplyWebhook(ctx, body, signature)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"event_id":        result.EventID,
			"duplicate":       result.Duplicate,
			"shipment_status": result.ShipmentStatus,
			"order_advanced":  result.OrderAdvanced,
		})
	}
}
