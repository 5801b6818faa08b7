package webhooks

import (
	"io"
	"net/http"

	"github.com/golosretail/golos-backend/api/responses"
	"github.com/golosretail/golos-backend/internal/payments"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
)

const webhookBodyLimit = 1 << 20

// WompiWebhook receives transaction events from the payment gateway. The
// event checksum travels inside the body, so the raw bytes go straight to the
// service for verification.
func WompiWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.ProcessWebhook(ctx, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transaction_id": result.TransactionID,
			"gateway_status": result.GatewayStatus,
			"changed":        result.Changed,
		})
	}
}
