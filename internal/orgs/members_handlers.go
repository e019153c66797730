package orgs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/quizdeck/quizdeck/internal/audit"
	"github.com/quizdeck/quizdeck/internal/auth"
	"github.com/rs/zerolog/log"
)

type MemberAddRequest struct {
	UserID     uuid.UUID  `json:"user_id"`
	Permission Permission `json:"permission"`
}

type MemberApprovementRequest struct {
	Approvement Approvement `json:"approvement"`
}

// HandleListMembers handles GET /api/v1/orgs/{org_id}/members
func HandleListMembers(pool *pgxpool.Pool) http.HandlerFunc {
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

		members, err := service.ListMembers(ctx, orgID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list members")
			apperrors.WriteInternalError(w, r, "Failed to list members")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"members": members,
		})
	}
}

// HandleAddMember handles POST /api/v1/orgs/{org_id}/members
//
// The new membership starts PENDING; the invitee confirms it through the
// approvement endpoint.
func HandleAddMember(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		var req MemberAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.UserID == uuid.Nil {
			apperrors.WriteBadRequest(w, r, "User ID is required")
			return
		}
		if !req.Permission.IsValid() {
			apperrors.WriteBadRequest(w, r, "Invalid permission")
			return
		}

		service := NewService(pool)
		membership, err := service.AddMember(ctx, orgID, actorUserID, req.UserID, req.Permission)
		if err != nil {
			switch {
			case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAdmin):
				writeAuthorizeError(w, r, err)
			case errors.Is(err, ErrDuplicateMember):
				apperrors.WriteConflict(w, r, "User is already a member of this organization")
			case errors.Is(err, ErrUserNotFound):
				apperrors.WriteNotFound(w, r, "User not found")
			default:
				log.Error().Err(err).Msg("Failed to add member")
				apperrors.WriteInternalError(w, r, "Failed to add member")
			}
			return
		}

		if err := auditor.LogOrgMemberInvited(ctx, orgID, actorUserID, req.UserID, string(req.Permission)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"membership": membership,
		})
	}
}

// HandleSetApprovement handles PUT /api/v1/orgs/{org_id}/members/approvement
//
// The caller resolves their own pending invitation. Declining deletes the
// membership row entirely.
func HandleSetApprovement(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		var req MemberApprovementRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Approvement != ApprovementAccepted && req.Approvement != ApprovementDeclined {
			apperrors.WriteBadRequest(w, r, "Approvement must be ACCEPTED or DECLINED")
			return
		}

		service := NewService(pool)
		if err := service.SetApprovement(ctx, orgID, userID, req.Approvement); err != nil {
			switch {
			case errors.Is(err, ErrCannotRemoveCreator):
				apperrors.WriteForbidden(w, r, "Cannot remove the organization creator")
			case errors.Is(err, ErrMembershipNotFound):
				apperrors.WriteNotFound(w, r, "Membership not found")
			case errors.Is(err, ErrOrgNotFound):
				apperrors.WriteNotFound(w, r, "Organization not found")
			case errors.Is(err, ErrInvalidApprovement):
				apperrors.WriteBadRequest(w, r, "Invalid approvement")
			default:
				log.Error().Err(err).Msg("Failed to set approvement")
				apperrors.WriteInternalError(w, r, "Failed to set approvement")
			}
			return
		}

		if err := auditor.LogOrgMemberApprovement(ctx, orgID, userID, string(req.Approvement)); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"approvement": req.Approvement,
		})
	}
}

// HandleRemoveMember handles DELETE /api/v1/orgs/{org_id}/members/{user_id}
func HandleRemoveMember(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorUserID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		targetUserID, err := uuid.Parse(chi.URLParam(r, "user_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid user ID")
			return
		}

		service := NewService(pool)

		var removedPermission string
		if m, err := service.FindMembership(ctx, orgID, targetUserID); err == nil {
			removedPermission = string(m.Permission)
		}

		if err := service.RemoveMember(ctx, orgID, actorUserID, targetUserID); err != nil {
			switch {
			case errors.Is(err, ErrNotAMember), errors.Is(err, ErrNotAdmin):
				writeAuthorizeError(w, r, err)
			case errors.Is(err, ErrCannotRemoveCreator):
				apperrors.WriteForbidden(w, r, "Cannot remove the organization creator")
			case errors.Is(err, ErrMembershipNotFound):
				apperrors.WriteNotFound(w, r, "Membership not found")
			case errors.Is(err, ErrOrgNotFound):
				apperrors.WriteNotFound(w, r, "Organization not found")
			default:
				log.Error().Err(err).Msg("Failed to remove member")
				apperrors.WriteInternalError(w, r, "Failed to remove member")
			}
			return
		}

		if err := auditor.LogOrgMemberRemoved(ctx, orgID, actorUserID, targetUserID, removedPermission); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}

// HandleListAudit handles GET /api/v1/orgs/{org_id}/audit
func HandleListAudit(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseOrgID(w, r)
		if !ok {
			return
		}

		service := NewService(pool)
		if _, err := service.Authorize(ctx, orgID, userID, PermissionWrite); err != nil {
			writeAuthorizeError(w, r, err)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil {
				limit = v
			}
		}
		action := r.URL.Query().Get("action")

		reader := audit.NewReader(pool)
		events, err := reader.ListByOrg(ctx, orgID, action, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list audit log")
			apperrors.WriteInternalError(w, r, "Failed to list audit log")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"events": events,
		})
	}
}
