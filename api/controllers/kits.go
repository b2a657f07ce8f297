package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medflowlabs/trialops-backend/api/responses"
	"github.com/medflowlabs/trialops-backend/api/validators"
	"github.com/medflowlabs/trialops-backend/internal/kits"
	pkgerrors "github.com/medflowlabs/trialops-backend/pkg/errors"
	"github.com/medflowlabs/trialops-backend/pkg/logger"
)

type importKitsBody struct {
	StudyID uuid.UUID       `json:"study_id" validate:"required"`
	Rows    []kits.RowInput `json:"rows" validate:"required,min=1,dive"`
}

// ImportKitRows loads a parsed kit sheet into the randomization pool.
func ImportKitRows(svc kits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body importKitsBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ImportRows(r.Context(), body.StudyID, body.Rows)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"imported": len(rows),
			"rows":     rows,
		})
	}
}

// ListAvailableKitRows returns unused rows for the requested studies in claim order.
func ListAvailableKitRows(svc kits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("study_ids"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "study_ids query parameter required"))
			return
		}
		var studyIDs []uuid.UUID
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid study id"))
				return
			}
			studyIDs = append(studyIDs, id)
		}

		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.AvailableRows(r.Context(), studyIDs, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
