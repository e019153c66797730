package quizzes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/apperrors"
	"github.com/quizdeck/quizdeck/internal/audit"
	"github.com/quizdeck/quizdeck/internal/auth"
	"github.com/quizdeck/quizdeck/internal/generator"
	"github.com/quizdeck/quizdeck/internal/orgs"
	"github.com/quizdeck/quizdeck/internal/validation"
	"github.com/rs/zerolog/log"
)

// GenerateParams asks the generation service to produce the question tree
// instead of the caller supplying one.
type GenerateParams struct {
	QuestionCount int    `json:"question_count"`
	Language      string `json:"language"`
}

// CreateRequest represents the request to create a test. Exactly one of
// Questions or Generate must be set.
type CreateRequest struct {
	Title       string          `json:"title"`
	Theme       string          `json:"theme"`
	Description string          `json:"description"`
	Questions   []QuestionInput `json:"questions"`
	Generate    *GenerateParams `json:"generate"`
}

// UpdateRequest represents a partial test update
type UpdateRequest struct {
	Title       *string `json:"title"`
	Theme       *string `json:"theme"`
	Description *string `json:"description"`
}

// HandleCreate handles POST /api/v1/orgs/{org_id}/tests
//
// With a questions array the tree is stored as given. With a generate block
// the question tree comes from the generation service; its failures surface
// as upstream_failure, its deadline expiry as timeout.
func HandleCreate(pool *pgxpool.Pool, auditor *audit.Writer, genClient *generator.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseID(w, r, "org_id", "Invalid organization ID")
		if !ok {
			return
		}

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
		if len(req.Questions) > 0 && req.Generate != nil {
			apperrors.WriteBadRequest(w, r, "Provide either questions or generate, not both")
			return
		}
		if len(req.Questions) == 0 && req.Generate == nil {
			apperrors.WriteBadRequest(w, r, "Provide questions or a generate block")
			return
		}

		orgService := orgs.NewService(pool)
		if _, err := orgService.Authorize(ctx, orgID, userID, orgs.PermissionRead); err != nil {
			writeOrgAuthError(w, r, err)
			return
		}

		questions := req.Questions
		generated := false
		if req.Generate != nil {
			if req.Generate.QuestionCount < 1 || req.Generate.QuestionCount > 50 {
				apperrors.WriteBadRequest(w, r, "question_count must be between 1 and 50")
				return
			}

			tree, err := genClient.Generate(ctx, generator.Request{
				Title:         req.Title,
				Theme:         req.Theme,
				Description:   req.Description,
				QuestionCount: req.Generate.QuestionCount,
				Language:      req.Generate.Language,
			})
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					apperrors.WriteTimeout(w, r, "Question generation timed out")
					return
				}
				if errors.Is(err, generator.ErrGenerationFailed) {
					apperrors.WriteUpstreamFailure(w, r, "Question generation failed")
					return
				}
				log.Error().Err(err).Msg("Failed to generate questions")
				apperrors.WriteInternalError(w, r, "Failed to generate questions")
				return
			}

			questions = fromGenerated(tree)
			generated = true
		}

		for _, q := range req.Questions {
			if q.Title == "" {
				apperrors.WriteBadRequest(w, r, "Question title is required")
				return
			}
			if len(q.Answers) == 0 {
				apperrors.WriteBadRequest(w, r, "Each question needs at least one answer")
				return
			}
		}

		service := NewService(pool)
		test, err := service.Create(ctx, orgID, userID, TestInput{
			Title:       req.Title,
			Theme:       req.Theme,
			Description: req.Description,
			Questions:   questions,
		})
		if err != nil {
			if errors.Is(err, ErrNoQuestions) {
				apperrors.WriteBadRequest(w, r, "Test must have at least one question")
				return
			}
			log.Error().Err(err).Msg("Failed to create test")
			apperrors.WriteInternalError(w, r, "Failed to create test")
			return
		}

		if generated {
			if err := auditor.LogTestGenerated(ctx, orgID, test.ID, userID, req.Theme, len(test.Questions)); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		} else {
			if err := auditor.LogTestCreated(ctx, orgID, test.ID, userID, test.Title); err != nil {
				log.Error().Err(err).Msg("Failed to log audit event")
			}
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"test": test,
		})
	}
}

// fromGenerated converts a generated tree into question inputs
func fromGenerated(tree *generator.GeneratedTest) []QuestionInput {
	questions := make([]QuestionInput, len(tree.Questions))
	for i, q := range tree.Questions {
		answers := make([]AnswerInput, len(q.Answers))
		for j, a := range q.Answers {
			answers[j] = AnswerInput{Title: a.Title, IsCorrect: a.IsCorrect}
		}
		questions[i] = QuestionInput{Title: q.Title, Answers: answers}
	}
	return questions
}

// HandleListForOrg handles GET /api/v1/orgs/{org_id}/tests
//
// ?completed=1 narrows the list to tests the caller has completed.
func HandleListForOrg(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseID(w, r, "org_id", "Invalid organization ID")
		if !ok {
			return
		}

		orgService := orgs.NewService(pool)
		if _, err := orgService.Authorize(ctx, orgID, userID, orgs.PermissionRead); err != nil {
			writeOrgAuthError(w, r, err)
			return
		}

		scope := ListScope{OrgID: &orgID}
		if r.URL.Query().Get("completed") == "1" {
			scope.CompletedBy = &userID
		}

		service := NewService(pool)
		tests, err := service.List(ctx, scope)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list tests")
			apperrors.WriteInternalError(w, r, "Failed to list tests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tests": tests,
		})
	}
}

// HandleListAuthored handles GET /api/v1/tests
//
// Lists tests authored by the caller across all organizations.
func HandleListAuthored(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		service := NewService(pool)
		tests, err := service.List(ctx, ListScope{AuthorID: &userID})
		if err != nil {
			log.Error().Err(err).Msg("Failed to list authored tests")
			apperrors.WriteInternalError(w, r, "Failed to list tests")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"tests": tests,
		})
	}
}

// HandleGet handles GET /api/v1/tests/{test_id}
func HandleGet(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, ok := parseID(w, r, "test_id", "Invalid test ID")
		if !ok {
			return
		}

		service := NewService(pool)
		test, err := service.GetWithQuestions(ctx, testID)
		if err != nil {
			if errors.Is(err, ErrTestNotFound) {
				apperrors.WriteNotFound(w, r, "Test not found")
				return
			}
			log.Error().Err(err).Msg("Failed to get test")
			apperrors.WriteInternalError(w, r, "Failed to get test")
			return
		}

		orgService := orgs.NewService(pool)
		if _, err := orgService.Authorize(ctx, test.OrgID, userID, orgs.PermissionRead); err != nil {
			writeOrgAuthError(w, r, err)
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"test": test,
		})
	}
}

// HandlePatch handles PATCH /api/v1/tests/{test_id}
func HandlePatch(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, ok := parseID(w, r, "test_id", "Invalid test ID")
		if !ok {
			return
		}

		var req UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Title == nil && req.Theme == nil && req.Description == nil {
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

		service := NewService(pool)
		if !requireTestAdmin(w, r, pool, service, testID, userID) {
			return
		}

		test, err := service.Update(ctx, testID, UpdateFields{
			Title:       req.Title,
			Theme:       req.Theme,
			Description: req.Description,
		})
		if err != nil {
			if errors.Is(err, ErrTestNotFound) {
				apperrors.WriteNotFound(w, r, "Test not found")
				return
			}
			log.Error().Err(err).Msg("Failed to update test")
			apperrors.WriteInternalError(w, r, "Failed to update test")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"test": test,
		})
	}
}

// HandleDelete handles DELETE /api/v1/orgs/{org_id}/tests/{test_id}
func HandleDelete(pool *pgxpool.Pool, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		orgID, ok := parseID(w, r, "org_id", "Invalid organization ID")
		if !ok {
			return
		}
		testID, ok := parseID(w, r, "test_id", "Invalid test ID")
		if !ok {
			return
		}

		orgService := orgs.NewService(pool)
		if _, err := orgService.Authorize(ctx, orgID, userID, orgs.PermissionWrite); err != nil {
			writeOrgAuthError(w, r, err)
			return
		}

		service := NewService(pool)

		var title string
		if test, err := service.GetByID(ctx, testID); err == nil {
			title = test.Title
		}

		if err := service.Delete(ctx, orgID, testID); err != nil {
			if errors.Is(err, ErrTestNotFound) {
				apperrors.WriteNotFound(w, r, "Test not found")
				return
			}
			log.Error().Err(err).Msg("Failed to delete test")
			apperrors.WriteInternalError(w, r, "Failed to delete test")
			return
		}

		if err := auditor.LogTestDeleted(ctx, orgID, testID, userID, title); err != nil {
			log.Error().Err(err).Msg("Failed to log audit event")
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"deleted": true,
		})
	}
}

// HandleAddQuestion handles POST /api/v1/tests/{test_id}/questions
func HandleAddQuestion(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, ok := parseID(w, r, "test_id", "Invalid test ID")
		if !ok {
			return
		}

		var req QuestionInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}
		if req.Title == "" {
			apperrors.WriteBadRequest(w, r, "Question title is required")
			return
		}
		if len(req.Answers) == 0 {
			apperrors.WriteBadRequest(w, r, "Question needs at least one answer")
			return
		}

		service := NewService(pool)
		if !requireTestAdmin(w, r, pool, service, testID, userID) {
			return
		}

		question, err := service.AddQuestion(ctx, testID, req)
		if err != nil {
			log.Error().Err(err).Msg("Failed to add question")
			apperrors.WriteInternalError(w, r, "Failed to add question")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"question": question,
		})
	}
}

// HandleRemoveQuestion handles DELETE /api/v1/tests/{test_id}/questions/{question_id}
func HandleRemoveQuestion(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		testID, ok := parseID(w, r, "test_id", "Invalid test ID")
		if !ok {
			return
		}
		questionID, ok := parseID(w, r, "question_id", "Invalid question ID")
		if !ok {
			return
		}

		service := NewService(pool)
		if !requireTestAdmin(w, r, pool, service, testID, userID) {
			return
		}

		if err := service.RemoveQuestion(ctx, testID, questionID); err != nil {
			if errors.Is(err, ErrQuestionNotFound) {
				apperrors.WriteNotFound(w, r, "Question not found")
				return
			}
			log.Error().Err(err).Msg("Failed to remove question")
			apperrors.WriteInternalError(w, r, "Failed to remove question")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"removed": true,
		})
	}
}

// requireTestAdmin resolves a test's organization and demands WRITE
// permission there. Writes the response on failure.
func requireTestAdmin(w http.ResponseWriter, r *http.Request, pool *pgxpool.Pool, service *Service, testID, userID uuid.UUID) bool {
	ctx := r.Context()

	test, err := service.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			apperrors.WriteNotFound(w, r, "Test not found")
			return false
		}
		log.Error().Err(err).Msg("Failed to resolve test")
		apperrors.WriteInternalError(w, r, "Failed to resolve test")
		return false
	}

	orgService := orgs.NewService(pool)
	if _, err := orgService.Authorize(ctx, test.OrgID, userID, orgs.PermissionWrite); err != nil {
		writeOrgAuthError(w, r, err)
		return false
	}

	return true
}

// parseID extracts and parses a UUID path parameter, writing a 400 on failure
func parseID(w http.ResponseWriter, r *http.Request, param, message string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		apperrors.WriteBadRequest(w, r, message)
		return uuid.Nil, false
	}
	return id, true
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
