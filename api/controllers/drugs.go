package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/api/responses"
	"github.com/medflowlabs/trialops-backend/api/validators"
	"github.com/medflowlabs/trialops-backend/internal/inventory"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
)

type restockBody struct {
	Delta int `json:"delta" validate:"required,gt=0"`
}

// RestockDrug adds stock to both the total and remaining quantity.
func RestockDrug(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drugID, err := drugIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body restockBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		drug, err := svc.Restock(r.Context(), drugID, body.Delta)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, drug)
	}
}

type setQuantityBody struct {
	Total int `json:"total" validate:"gte=0"`
}

// SetDrugQuantity replaces the total while preserving consumed stock.
func SetDrugQuantity(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drugID, err := drugIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setQuantityBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		drug, err := svc.SetQuantity(r.Context(), drugID, body.Total)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, drug)
	}
}

// ListLowStockDrugs returns drugs at or below the requested threshold.
func ListLowStockDrugs(svc inventory.Service, logg *logger.Logger, defaultThreshold int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studyID, err := validators.ParseQueryUUID(r, "study_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		threshold, err := validators.ParseQueryInt(r, "threshold", defaultThreshold, 0, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		drugs, err := svc.LowStock(r.Context(), studyID, threshold)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, drugs)
	}
}

// ListOutOfStockDrugs returns drugs with nothing left to allocate.
func ListOutOfStockDrugs(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studyID, err := validators.ParseQueryUUID(r, "study_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		drugs, err := svc.OutOfStock(r.Context(), studyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, drugs)
	}
}

func drugIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "drugId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid drug id")
	}
	return id, nil
}
