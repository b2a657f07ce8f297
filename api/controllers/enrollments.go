package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/api/responses"
	"github.com/medflowlabs/trialops-backend/api/validators"
	"github.com/medflowlabs/trialops-backend/internal/enrollments"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
	"github.com/medflowlabs/trialops-backend/pkg/types"
)

type submitEnrollmentBody struct {
	Stage               string         `json:"stage" validate:"required"`
	StudyID             uuid.UUID      `json:"study_id" validate:"required"`
	ShipmentID          *uuid.UUID     `json:"shipment_id"`
	UnitID              *uuid.UUID     `json:"unit_id"`
	RequestedQty        *int           `json:"requested_qty"`
	FormFields          types.FieldBag `json:"form_fields"`
	WithScreeningNumber bool           `json:"with_screening_number"`
}

// SubmitEnrollment runs a screening or randomization submission through the
// allocation engine. Everything commits or nothing does.
func SubmitEnrollment(svc enrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteID, err := siteIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body submitEnrollmentBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stage, err := enums.ParseEnrollmentStage(body.Stage)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid enrollment stage"))
			return
		}

		record, err := svc.Submit(r.Context(), enrollments.SubmitInput{
			Stage:               stage,
			StudyID:             body.StudyID,
			SiteID:              siteID,
			ShipmentID:          body.ShipmentID,
			UnitID:              body.UnitID,
			RequestedQty:        body.RequestedQty,
			FormFields:          body.FormFields,
			SubmittedBy:         actorID(r),
			WithScreeningNumber: body.WithScreeningNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

// GetEnrollment returns a single enrollment record.
func GetEnrollment(svc enrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "enrollmentId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid enrollment id"))
			return
		}
		record, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// ListEnrollments returns the caller's site enrollment records.
func ListEnrollments(svc enrollments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		siteID, err := siteIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.ListForSite(r.Context(), siteID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}
