package orgs

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/quizdeck/quizdeck/internal/audit"
	"github.com/quizdeck/quizdeck/internal/auth"
	"github.com/quizdeck/quizdeck/internal/validation"
	"github.com/rs/zerolog/log"
)

// CreateRequest represents the request to create an organization
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// UpdateRequest represents a partial organization update. Absent fields keep
// their prior values.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

// HandleCreate handles POST /api/v1/orgs
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		req.Title = validation.NormalizeTitle(req.Title)
		if err := validation.ValidateTitle(req.Title); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		if err := validation.ValidateDescription(req.Description); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}
		req.Color = validation.NormalizeColor(req.Color)
		if err := validation.ValidateColor(req.Color); err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		service := NewService(pool)
		org, err := service.Create(ctx, req.Title, req.Color, req.Description, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create organization")
			apperrors.WriteInternalError(w, r, "Failed to create organization")
			return
		}

		if err := auditor.LogOrgCreated(ctx, org.ID, userID, org.Title); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
			// Continue - don't fail the request
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"org": org,
		})
	}
}

// HandleList handles GET /api/v1/orgs
//
// Organizations are returned partitioned into admin, member and pending
// buckets from the caller's point of view.
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		buckets, err := service.ListForUser(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list organizations")
			apperrors.WriteInternalError(w, r, "Failed to list organizations")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"orgs": buckets,
		})
	}
}

// HandleGet handles GET /api/v1/orgs/{org_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		service := NewService(pool)
		if _, err := service.Authorize(ctx, orgID, userID, PermissionRead); err != nil {
			writeAuthorizeError(w, r, err)
			return
		}

		org, err := service.GetByID(ctx, orgID)
		if err != nil {
			if errors.Is(err, ErrOrgNotFound) {
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get organization")
			apperrors.WriteInternalError(w, r, "Failed to get organization")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"org": org,
		})
	}
}

// HandleUpdate handles PUT /api/v1/orgs/{org_id}
func HandleUpdate(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Title == nil && req.Description == nil && req.Color == nil {
			apperrors.WriteBadRequest(w, r, "No fields to update")
			return
		}

		if req.Title != nil {
			normalized := validation.NormalizeTitle(*req.Title)
			if err := validation.ValidateTitle(normalized); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			req.Title = &normalized
		}
		if req.Description != nil {
			if err := validation.ValidateDescription(*req.Description); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
		}
		if req.Color != nil {
			normalized := validation.NormalizeColor(*req.Color)
			if err := validation.ValidateColor(normalized); err != nil {
				apperrors.WriteBadRequest(w, r, err.Error())
				return
			}
			req.Color = &normalized
		}

		service := NewService(pool)
		org, err := service.Update(ctx, orgID, userID, UpdateFields{
			Title:       req.Title,
			Description: req.Description,
			Color:       req.Color,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAdmin):
				writeAuthorizeError(w, r, err)
			case errors.Is(err, ErrOrgNotFound):
				apperrors.WriteNotFound(w, r, "Organization not found")
			default:
				log.Error().Err(err).Msg("Failed to update organization")
				apperrors.WriteInternalError(w, r, "Failed to update organization")
			}
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"org": org,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		service := NewService(pool)

		// Load the title before the cascade wipes it, for the audit trail.
		org, err := service.GetByID(ctx, orgID)
		if err != nil {
			if errors.Is(err, ErrOrgNotFound) {
				apperrors.WriteNotFound(w, r, "Organization not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get organization")
			apperrors.WriteInternalError(w, r, "Failed to delete organization")
			return
		}

		if err := service.Delete(ctx, orgID, userID); err != nil {
			switch {
			case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAdmin):
				writeAuthorizeError(w, r, err)
				return
			case errors.Is(err, ErrOrgNotFound):
				apperrors.WriteNotFound(w, r, "Organization not found")
			default:
				log.Error().Err(err).Msg("Failed to delete organization")
				apperrors.WriteInternalError(w, r, "Failed to delete organization")
			}
			return
		}

		if err := auditor.LogOrgDeleted(ctx, orgID, userID, org.Title); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

// parseOrgID extracts and parses the org_id path parameter, writing a 400 on
// failure.
func parseOrgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid organization ID")
		return uuid.Nil, false
	}
	return orgID, true
}

// writeAuthorizeError maps Authorize failures onto the HTTP surface.
func writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotAMember):
		apperrors.WriteForbidden(w, r, "Not a member of this organization")
	case errors.Is(err, ErrNotAdmin):
		apperrors.WriteForbidden(w, r, "Insufficient permissions")
	default:
		log.Error().Err(err).Msg("Failed to check org permission")
		apperrors.WriteInternalError(w, r, "Failed to check permissions")
	}
}
