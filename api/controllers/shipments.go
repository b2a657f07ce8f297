package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/api/middleware"
	"github.com/medflowlabs/trialops-backend/api/responses"
	"github.com/medflowlabs/trialops-backend/api/validators"
	"github.com/medflowlabs/trialops-backend/internal/shipments"
	"github.com/medflowlabs/trialops-backend/pkg/enums"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
)

type createShipmentBody struct {
	StudyID   uuid.UUID                  `json:"study_id" validate:"required"`
	SiteID    uuid.UUID                  `json:"site_id" validate:"required"`
	ShipDate  *time.Time                 `json:"ship_date"`
	Mode      string                     `json:"mode" validate:"required"`
	Drugs     []shipments.DrugUnitInput  `json:"drugs"`
	Groups    []shipments.GroupUnitInput `json:"groups"`
	KitRowIDs []uuid.UUID                `json:"kit_row_ids"`
}

// CreateShipment registers a dispatch and returns the assigned shipment number.
func CreateShipment(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createShipmentBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		mode, err := enums.ParseShipmentMode(body.Mode)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment mode"))
			return
		}

		input := shipments.CreateShipmentInput{
			StudyID:   body.StudyID,
			SiteID:    body.SiteID,
			Mode:      mode,
			Drugs:     body.Drugs,
			Groups:    body.Groups,
			KitRowIDs: body.KitRowIDs,
			ActorID:   actorID(r),
		}
		if body.ShipDate != nil {
			input.ShipDate = *body.ShipDate
		}

		shipment, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, shipment)
	}
}

// MarkShipmentSent flips a pending shipment to sent.
func MarkShipmentSent(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := shipmentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipment, err := svc.MarkSent(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shipment)
	}
}

type acknowledgeBody struct {
	Reports []shipments.UnitReport `json:"reports" validate:"required,min=1,dive"`
}

// AcknowledgeShipment applies a site's reconciliation report.
func AcknowledgeShipment(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := shipmentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body acknowledgeBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Acknowledge(r.Context(), shipments.AcknowledgeInput{
			ShipmentID: shipmentID,
			Reports:    body.Reports,
			ActorID:    actorID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetShipment returns a shipment with its acknowledgment ledger.
func GetShipment(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := shipmentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		shipment, acks, err := svc.Get(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"shipment":        shipment,
			"acknowledgments": acks,
		})
	}
}

// ListShipments returns the caller's site shipments, newest first.
func ListShipments(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
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

// ListAvailableUnits returns acknowledged units with usable stock left.
func ListAvailableUnits(svc shipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shipmentID, err := shipmentIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		units, err := svc.AvailableUnits(r.Context(), shipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, units)
	}
}

func shipmentIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "shipmentId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment id")
	}
	return id, nil
}

func actorID(r *http.Request) uuid.UUID {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}
