package quizzes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrTestNotFound is returned when a test is not found in the given scope
	ErrTestNotFound = errors.New("test not found")

	// ErrQuestionNotFound is returned when a question is not found on the test
	ErrQuestionNotFound = errors.New("question not found")

	// ErrScopeRequired is returned when List is called without an org or author scope
	ErrScopeRequired = errors.New("list scope requires an organization or an author")

	// ErrNoQuestions is returned when a test is created or generated without questions
	ErrNoQuestions = errors.New("test must have at least one question")
)

// Service provides test-related operations
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new test service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Create inserts a test together with its full question/answer tree in one
// transaction. Question positions follow input order.
func (s *Service) Create(ctx context.Context, orgID, authorID uuid.UUID, input TestInput) (*TestWithQuestions, error) {
	if len(input.Questions) == 0 {
		return nil, ErrNoQuestions
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var test Test
	err = tx.QueryRow(ctx, `
		INSERT INTO tests (org_id, author_id, title, theme, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, org_id, author_id, title, theme, description, created_at, updated_at
	`, orgID, authorID, input.Title, input.Theme, input.Description).Scan(
		&test.ID,
		&test.OrgID,
		&test.AuthorID,
		&test.Title,
		&test.Theme,
		&test.Description,
		&test.CreatedAt,
		&test.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create test: %w", err)
	}

	questions := make([]Question, 0, len(input.Questions))
	for pos, q := range input.Questions {
		question, err := insertQuestion(ctx, tx, test.ID, q, pos)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *question)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &TestWithQuestions{Test: test, Questions: questions}, nil
}

// insertQuestion inserts one question and its answers inside the given transaction
func insertQuestion(ctx context.Context, tx pgx.Tx, testID uuid.UUID, input QuestionInput, position int) (*Question, error) {
	var question Question
	err := tx.QueryRow(ctx, `
		INSERT INTO questions (test_id, title, position)
		VALUES ($1, $2, $3)
		RETURNING id, test_id, title, position
	`, testID, input.Title, position).Scan(
		&question.ID,
		&question.TestID,
		&question.Title,
		&question.Position,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert question: %w", err)
	}

	question.Answers = make([]Answer, 0, len(input.Answers))
	for _, a := range input.Answers {
		var answer Answer
		err := tx.QueryRow(ctx, `
			INSERT INTO answers (question_id, title, is_correct)
			VALUES ($1, $2, $3)
			RETURNING id, question_id, title, is_correct
		`, question.ID, a.Title, a.IsCorrect).Scan(
			&answer.ID,
			&answer.QuestionID,
			&answer.Title,
			&answer.IsCorrect,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert answer: %w", err)
		}
		question.Answers = append(question.Answers, answer)
	}

	return &question, nil
}

// GetByID retrieves a bare test row by ID
func (s *Service) GetByID(ctx context.Context, testID uuid.UUID) (*Test, error) {
	var test Test

	err := s.pool.QueryRow(ctx, `
		SELECT id, org_id, author_id, title, theme, description, created_at, updated_at
		FROM tests
		WHERE id = $1
	`, testID).Scan(
		&test.ID,
		&test.OrgID,
		&test.AuthorID,
		&test.Title,
		&test.Theme,
		&test.Description,
		&test.CreatedAt,
		&test.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to get test: %w", err)
	}

	return &test, nil
}

// GetWithQuestions retrieves a test with its full question/answer tree,
// questions ordered by position.
func (s *Service) GetWithQuestions(ctx context.Context, testID uuid.UUID) (*TestWithQuestions, error) {
	test, err := s.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}

	questions, err := s.loadQuestionTree(ctx, testID)
	if err != nil {
		return nil, err
	}

	return &TestWithQuestions{Test: *test, Questions: questions}, nil
}

// loadQuestionTree loads all questions and answers of a test in two queries
func (s *Service) loadQuestionTree(ctx context.Context, testID uuid.UUID) ([]Question, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, test_id, title, position
		FROM questions
		WHERE test_id = $1
		ORDER BY position ASC, created_at ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	questions := []Question{}
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.Title, &q.Position); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Answers = []Answer{}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating question rows: %w", err)
	}

	answerRows, err := s.pool.Query(ctx, `
		SELECT a.id, a.question_id, a.title, a.is_correct
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE q.test_id = $1
		ORDER BY a.created_at ASC
	`, testID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var a Answer
		if err := answerRows.Scan(&a.ID, &a.QuestionID, &a.Title, &a.IsCorrect); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if i, ok := index[a.QuestionID]; ok {
			questions[i].Answers = append(questions[i].Answers, a)
		}
	}
	if err := answerRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer rows: %w", err)
	}

	return questions, nil
}

// List retrieves tests narrowed by scope. A scope without an org or author is
// rejected with ErrScopeRequired; unscoped listing would leak tests across
// tenants.
func (s *Service) List(ctx context.Context, scope ListScope) ([]Test, error) {
	var (
		query string
		args  []any
	)

	switch {
	case scope.OrgID != nil && scope.CompletedBy != nil:
		query = `
			SELECT t.id, t.org_id, t.author_id, t.title, t.theme, t.description, t.created_at, t.updated_at
			FROM tests t
			JOIN completed_tests ct ON ct.test_id = t.id
			WHERE t.org_id = $1 AND ct.user_id = $2
			ORDER BY ct.completed_at DESC
		`
		args = []any{*scope.OrgID, *scope.CompletedBy}
	case scope.OrgID != nil:
		query = `
			SELECT id, org_id, author_id, title, theme, description, created_at, updated_at
			FROM tests
			WHERE org_id = $1
			ORDER BY created_at DESC
		`
		args = []any{*scope.OrgID}
	case scope.AuthorID != nil:
		query = `
			SELECT id, org_id, author_id, title, theme, description, created_at, updated_at
			FROM tests
			WHERE author_id = $1
			ORDER BY created_at DESC
		`
		args = []any{*scope.AuthorID}
	default:
		return nil, ErrScopeRequired
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	tests := []Test{}
	for rows.Next() {
		var t Test
		err := rows.Scan(
			&t.ID,
			&t.OrgID,
			&t.AuthorID,
			&t.Title,
			&t.Theme,
			&t.Description,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating test rows: %w", err)
	}

	return tests, nil
}

// UpdateFields holds the optional fields of a test update. Nil pointers keep
// the prior value.
type UpdateFields struct {
	Title       *string
	Theme       *string
	Description *string
}

// Update applies a partial update to a test
func (s *Service) Update(ctx context.Context, testID uuid.UUID, fields UpdateFields) (*Test, error) {
	var test Test
	err := s.pool.QueryRow(ctx, `
		UPDATE tests
		SET title = COALESCE($2, title),
		    theme = COALESCE($3, theme),
		    description = COALESCE($4, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, org_id, author_id, title, theme, description, created_at, updated_at
	`, testID, fields.Title, fields.Theme, fields.Description).Scan(
		&test.ID,
		&test.OrgID,
		&test.AuthorID,
		&test.Title,
		&test.Theme,
		&test.Description,
		&test.CreatedAt,
		&test.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("failed to update test: %w", err)
	}

	return &test, nil
}

// Delete removes a test. The delete is scoped by org_id so a test ID from
// another organization cannot be removed through a forged org path.
func (s *Service) Delete(ctx context.Context, orgID, testID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM tests
		WHERE id = $1 AND org_id = $2
	`, testID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete test: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTestNotFound
	}

	return nil
}

// AddQuestion appends a question with its answers to a test. The new question
// takes the next free position.
func (s *Service) AddQuestion(ctx context.Context, testID uuid.UUID, input QuestionInput) (*Question, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var position int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0)
		FROM questions
		WHERE test_id = $1
	`, testID).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("failed to compute question position: %w", err)
	}

	question, err := insertQuestion(ctx, tx, testID, input, position)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // foreign_key_violation
			return nil, ErrTestNotFound
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return question, nil
}

// RemoveQuestion deletes a question and, via cascade, its answers. Historical
// user_answers rows keep their recorded correctness: they carry no FK to
// questions.
func (s *Service) RemoveQuestion(ctx context.Context, testID, questionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM questions
		WHERE id = $1 AND test_id = $2
	`, questionID, testID)
	if err != nil {
		return fmt.Errorf("failed to remove question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrQuestionNotFound
	}

	return nil
}
