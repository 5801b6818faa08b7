package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/golosretail/golos-backend/api/middleware"
	"github.com/golosretail/golos-backend/api/responses"
	"github.com/golosretail/golos-backend/api/validators"
	"github.com/golosretail/golos-backend/internal/audit"
	internalorders "github.com/golosretail/golos-backend/internal/orders"
	"github.com/golosretail/golos-backend/internal/sales"
	"github.com/golosretail/golos-backend/internal/shipping"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
)

type updateOrderStatusRequest struct {
	Target string `json:"target" validate:"required"`
	Note   string `json:"note,omitempty"`
}

// OpsUpdateOrderStatus applies a manual fulfillment transition as the
// authenticated ops actor.
func OpsUpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		saleID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(payload.Target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		input := internalorders.UpdateStatusInput{
			SaleID: saleID,
			Target: target,
			Note:   payload.Note,
		}
		input.ActorRole, input.ActorID = opsActor(r)

		sale, err := svc.UpdateStatus(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

// OpsAdvanceOrders runs one auto-advance pass. With ?dry_run=true it only
// reports what would move.
func OpsAdvanceOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		dryRun := r.URL.Query().Get("dry_run") == "true"
		result, err := svc.AdvanceDueOrders(r.Context(), dryRun)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// OpsConfirmSale confirms a paid sale and discounts its stock.
func OpsConfirmSale(svc sales.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sales service unavailable"))
			return
		}

		saleID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.RoleFromContext(r.Context())
		if id := middleware.CustomerIDFromContext(r.Context()); id != "" {
			actor = actor + ":" + id
		}

		sale, err := svc.Confirm(r.Context(), saleID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sale)
	}
}

// OpsEnsureShipment creates the carrier shipment for a paid order, or returns
// the one that already exists.
func OpsEnsureShipment(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		saleID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipment, err := svc.EnsureShipment(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

// OpsAuditTrail lists every audited action recorded against an order.
func OpsAuditTrail(svc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit service unavailable"))
			return
		}

		saleID, err := validators.ParseUUIDParam(chi.URLParam(r, "orderId"), "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.ListBySaleID(r.Context(), saleID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"entries": entries})
	}
}

func opsActor(r *http.Request) (enums.ActorRole, *uuid.UUID) {
	role := enums.ActorRole(middleware.RoleFromContext(r.Context()))
	if !role.IsValid() {
		role = enums.ActorRoleStaff
	}
	var actorID *uuid.UUID
	if raw := middleware.CustomerIDFromContext(r.Context()); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actorID = &id
		}
	}
	return role, actorID
}
