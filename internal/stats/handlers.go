package stats

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/quizdeck/quizdeck/internal/auth"
	"github.com/quizdeck/quizdeck/internal/orgs"
	"github.com/quizdeck/quizdeck/internal/quizzes"
	"github.com/rs/zerolog/log"
)

// HandleForTest handles GET /api/v1/stats/tests/{test_id}
//
// One point per user who completed the test. Visible to members of the
// test's organization.
func HandleForTest(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, err := uuid.Parse(chi.URLParam(r, "test_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid test ID")
			return
		}

		quizService := quizzes.NewService(pool)
		test, err := quizService.GetByID(ctx, testID)
		if err != nil {
			if errors.Is(err, quizzes.ErrTestNotFound) {
				apperrors.WriteNotFound(w, r, "Test not found")
				return
			}
			log.Error().Err(err).Msg("Failed to resolve test")
			apperrors.WriteInternalError(w, r, "Failed to resolve test")
			return
		}

		orgService := orgs.NewService(pool)
		if _, err := orgService.Authorize(ctx, test.OrgID, userID, orgs.PermissionRead); err != nil {
			writeOrgAuthError(w, r, err)
			return
		}

		service := NewService(pool)
		points, err := service.ForTestAcrossUsers(ctx, testID)
		if err != nil {
			writeStatsError(w, r, err, "Failed to compute test stats")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"points": points,
		})
	}
}

// HandleForMe handles GET /api/v1/stats/me
//
// One point per test the caller has completed.
func HandleForMe(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		points, err := service.ForUserAcrossCompletedTests(ctx, userID)
		if err != nil {
			writeStatsError(w, r, err, "Failed to compute user stats")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"points": points,
		})
	}
}

// HandleForOrg handles GET /api/v1/stats/orgs/{org_id}
//
// One point per test of the organization with at least one completion.
func HandleForOrg(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid organization ID")
			return
		}

		orgService := orgs.NewService(pool)
		if _, err := orgService.Authorize(ctx, orgID, userID, orgs.PermissionRead); err != nil {
			writeOrgAuthError(w, r, err)
			return
		}

		service := NewService(pool)
		points, err := service.PerOrganizationTest(ctx, orgID)
		if err != nil {
			writeStatsError(w, r, err, "Failed to compute organization stats")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"points": points,
		})
	}
}

// HandleForCreatedOrgs handles GET /api/v1/stats/created-orgs
//
// One point per organization the caller authored.
func HandleForCreatedOrgs(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		points, err := service.PerUserCreatedOrganization(ctx, userID)
		if err != nil {
			writeStatsError(w, r, err, "Failed to compute created-org stats")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"points": points,
		})
	}
}

// writeStatsError maps aggregation failures onto the HTTP surface. Empty
// aggregations get the no_data code so clients can render an empty state
// instead of an error banner.
func writeStatsError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	switch {
	case errors.Is(err, ErrNoCompletions):
		apperrors.WriteNoData(w, r, "No completions to aggregate")
	case errors.Is(err, ErrNoQuestions):
		apperrors.WriteNoData(w, r, "No questions to aggregate")
	default:
		log.Error().Err(err).Msg(internalMsg)
		apperrors.WriteInternalError(w, r, internalMsg)
	}
}

// writeOrgAuthError maps membership failures onto the HTTP surface
func writeOrgAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, orgs.ErrNotAMember):
		apperrors.WriteForbidden(w, r, "Not a member of this organization")
	case errors.Is(err, orgs.ErrNotAdmin):
		apperrors.WriteForbidden(w, r, "Insufficient permissions")
	default:
		log.Error().Err(err).Msg("Failed to check org permission")
		apperrors.WriteInternalError(w, r, "Failed to check permissions")
	}
}
