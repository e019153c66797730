package completions

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
	"github.com/quizdeck/quizdeck/internal/orgs"
	"github.com/quizdeck/quizdeck/internal/quizzes"
	"github.com/rs/zerolog/log"
)

// CompleteRequest carries the caller's selected answers
type CompleteRequest struct {
	Answers []SelectedAnswer `json:"answers"`
}

// HandleComplete handles POST /api/v1/tests/{test_id}/complete
func HandleComplete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, err := uuid.Parse(chi.URLParam(r, "test_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid test ID")
			return
		}

		var req CompleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
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
			switch {
			case errors.Is(err, orgs.ErrNotAMember):
				apperrors.WriteForbidden(w, r, "Not a member of this organization")
			default:
				log.Error().Err(err).Msg("Failed to check org permission")
				apperrors.WriteInternalError(w, r, "Failed to check permissions")
			}
			return
		}

		service := NewService(pool)
		result, err := service.Complete(ctx, userID, testID, req.Answers)
		if err != nil {
			switch {
			case errors.Is(err, ErrAlreadyCompleted):
				apperrors.WriteConflict(w, r, "Test already completed")
			case errors.Is(err, ErrInvalidSelection):
				apperrors.WriteBadRequest(w, r, "Selected answer does not belong to the question")
			case errors.Is(err, quizzes.ErrTestNotFound):
				apperrors.WriteNotFound(w, r, "Test not found")
			default:
				log.Error().Err(err).Msg("Failed to complete test")
				apperrors.WriteInternalError(w, r, "Failed to complete test")
			}
			return
		}

		if err := auditor.LogTestCompleted(ctx, test.OrgID, testID, userID, result.CorrectAnswers, result.TotalQuestions); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"result": result,
		})
	}
}

// HandleList handles GET /api/v1/completions
func HandleList(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		completions, err := service.ListForUser(ctx, userID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list completions")
			apperrors.WriteInternalError(w, r, "Failed to list completions")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"completions": completions,
		})
	}
}

// HandleGetForTest handles GET /api/v1/tests/{test_id}/completion
//
// Returns the caller's own completion of the test with its recorded answers.
func HandleGetForTest(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, err := uuid.Parse(chi.URLParam(r, "test_id"))
		if err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid test ID")
			return
		}

		service := NewService(pool)
		result, err := service.GetForUserAndTest(ctx, userID, testID)
		if err != nil {
			if errors.Is(err, ErrCompletionNotFound) {
				apperrors.WriteNotFound(w, r, "Completion not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get completion")
			apperrors.WriteInternalError(w, r, "Failed to get completion")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"result": result,
		})
	}
}
