package controllers

import (
	"net/http"

	"github.com/medflowlabs/trialops-backend/api/middleware"
	"github.com/medflowlabs/trialops-backend/api/responses"
)

func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"scope": "public", "status": "ok"})
	}
}

func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"scope": "private", "status": "ok"}
		if site := middleware.SiteIDFromContext(r.Context()); site != "" {
			payload["site_id"] = site
		}
		responses.WriteSuccess(w, payload)
	}
}
