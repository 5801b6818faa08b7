package controllers

import (
	"net/http"

	"github.com/golosretail/golos-backend/api/middleware"
	"github.com/golosretail/golos-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if customer := middleware.CustomerIDFromContext(r.Context()); customer != "" {
			payload["customer_id"] = customer
		}
		responses.WriteSuccess(w, payload)
	}
}
