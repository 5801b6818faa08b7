package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/golosretail/golos-backend/api/responses"
	"github.com/golosretail/golos-backend/api/validators"
	"github.com/golosretail/golos-backend/internal/payments"
	"github.com/golosretail/golos-backend/internal/sales"
	"github.com/golosretail/golos-backend/internal/shipping"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/types"
)

type checkoutRequest struct {
	Items []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`

	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	ShippingService string        `json:"shipping_service,omitempty"`
}

type checkoutItemRequest struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// Checkout reserves nothing: it prices the requested lines against current
// stock and creates a pending sale plus the gateway checkout payload.
func Checkout(svc sales.Service, paymentsSvc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		customerID, err := authenticatedCustomerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := sales.CheckoutInput{
			CustomerID:      &customerID,
			ShippingAddress: payload.ShippingAddress,
			ShippingService: payload.ShippingService,
		}
		for _, item := range payload.Items {
			input.Items = append(input.Items, sales.CheckoutItem{
				VariantID: item.VariantID,
				Quantity:  item.Quantity,
			})
		}

		sale, err := svc.Checkout(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		body := map[string]any{"sale": sale}
		if paymentsSvc != nil {
			checkout, err := paymentsSvc.CheckoutData(r.Context(), sale.ID)
			if err != nil {
				// The sale exists either way; surface it without payment data.
				logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "checkout: payment data unavailable")
			} else {
				body["payment"] = checkout
			}
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, body)
	}
}

// ShippingOptions lists the configured carrier services.
func ShippingOptions(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"options": svc.Options()})
	}
}
