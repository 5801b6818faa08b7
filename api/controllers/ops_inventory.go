package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/golosretail/golos-backend/api/middleware"
	"github.com/golosretail/golos-backend/api/responses"
	"github.com/golosretail/golos-backend/api/validators"
	"github.com/golosretail/golos-backend/internal/closing"
	"github.com/golosretail/golos-backend/internal/ledger"
	"github.com/golosretail/golos-backend/pkg/enums"
	pkgerrors "github.com/golosretail/golos-backend/pkg/errors"
	"github.com/golosretail/golos-backend/pkg/logger"
	"github.com/golosretail/golos-backend/pkg/pagination"
)

type recordMovementRequest struct {
	VariantID  uuid.UUID  `json:"variant_id" validate:"required"`
	Type       string     `json:"type" validate:"required"`
	Quantity   int        `json:"quantity" validate:"required"`
	Reference  string     `json:"reference,omitempty"`
	Note       string     `json:"note,omitempty"`
	SupplierID *uuid.UUID `json:"supplier_id,omitempty"`
}

// OpsRecordMovement appends a manual entry to the inventory ledger.
func OpsRecordMovement(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		var payload recordMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		movementType, err := enums.ParseMovementType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
			return
		}

		input := ledger.RecordMovementInput{
			VariantID:  payload.VariantID,
			Type:       movementType,
			Quantity:   payload.Quantity,
			Reference:  payload.Reference,
			Note:       payload.Note,
			SupplierID: payload.SupplierID,
		}
		if raw := middleware.CustomerIDFromContext(r.Context()); raw != "" {
			if actorID, parseErr := uuid.Parse(raw); parseErr == nil {
				input.CreatedBy = &actorID
			}
		}

		movement, err := svc.RecordMovement(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

// OpsListMovements pages through one variant's ledger history.
func OpsListMovements(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		variantID, err := validators.ParseUUIDParam(r.URL.Query().Get("variant_id"), "variant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		movements, nextCursor, err := svc.ListMovements(r.Context(), variantID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"movements":   movements,
			"next_cursor": nextCursor,
		})
	}
}

// OpsVariantStock resolves a variant's current stock from the ledger.
func OpsVariantStock(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		variantID, err := validators.ParseUUIDParam(r.URL.Query().Get("variant_id"), "variant id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stock, err := svc.CurrentStock(r.Context(), variantID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"variant_id": variantID,
			"stock":      stock,
		})
	}
}

type closeMonthRequest struct {
	Year  int `json:"year" validate:"required,min=2000,max=2100"`
	Month int `json:"month" validate:"required,min=1,max=12"`
}

// OpsCloseMonth snapshots per-variant stock for the given period and seals it.
func OpsCloseMonth(svc closing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "closing service unavailable"))
			return
		}

		var payload closeMonthRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CloseMonth(r.Context(), payload.Year, payload.Month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// OpsSnapshots returns the closing snapshots of a period.
func OpsSnapshots(svc closing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "closing service unavailable"))
			return
		}

		year, err := validators.ParseQueryInt(r, "year", time.Now().UTC().Year(), 2000, 2100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		month, err := validators.ParseQueryInt(r, "month", 0, 1, 12)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if month == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "month is required"))
			return
		}

		snapshots, err := svc.Snapshots(r.Context(), year, month)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"year":      year,
			"month":     month,
			"snapshots": snapshots,
		})
	}
}
