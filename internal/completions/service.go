package completions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/quizzes"
)

var (
	// ErrAlreadyCompleted is returned when the user has already completed the test
	ErrAlreadyCompleted = errors.New("test already completed")

	// ErrCompletionNotFound is returned when no completion exists for the pair
	ErrCompletionNotFound = errors.New("completion not found")

	// ErrInvalidSelection is returned when a submitted answer does not belong
	// to its question
	ErrInvalidSelection = errors.New("selected answer does not belong to the question")
)

// Service records and reads test completions
type Service struct {
	pool    *pgxpool.Pool
	quizzes *quizzes.Service
}

// NewService creates a new completion service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, quizzes: quizzes.NewService(pool)}
}

// Complete records a user's single completion of a test.
//
// Every question of the test gets exactly one user_answers row. An unanswered
// question is recorded with a null answer id and is_correct=false, so the
// accuracy denominator always equals the question count at submission time.
// Correctness comes from the stored answers, never from the caller. The
// UNIQUE(user_id, test_id) constraint decides concurrent duplicate submissions.
func (s *Service) Complete(ctx context.Context, userID, testID uuid.UUID, selected []SelectedAnswer) (*Result, error) {
	test, err := s.quizzes.GetWithQuestions(ctx, testID)
	if err != nil {
		return nil, err
	}

	chosen := make(map[uuid.UUID]*uuid.UUID, len(selected))
	for _, sel := range selected {
		chosen[sel.QuestionID] = sel.AnswerID
	}

	answers := make([]UserAnswer, 0, len(test.Questions))
	correct := 0
	for _, q := range test.Questions {
		ua := UserAnswer{QuestionID: q.ID}

		if answerID, ok := chosen[q.ID]; ok && answerID != nil && *answerID != uuid.Nil {
			found := false
			for _, a := range q.Answers {
				if a.ID == *answerID {
					ua.AnswerID = answerID
					ua.IsCorrect = a.IsCorrect
					found = true
					break
				}
			}
			if !found {
				return nil, ErrInvalidSelection
			}
		}

		if ua.IsCorrect {
			correct++
		}
		answers = append(answers, ua)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var completion CompletedTest
	err = tx.QueryRow(ctx, `
		INSERT INTO completed_tests (user_id, test_id, org_id)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, test_id, org_id, completed_at
	`, userID, testID, test.OrgID).Scan(
		&completion.ID,
		&completion.UserID,
		&completion.TestID,
		&completion.OrgID,
		&completion.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("failed to record completion: %w", err)
	}

	for i := range answers {
		answers[i].CompletedTestID = completion.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO user_answers (completed_test_id, question_id, answer_id, is_correct)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, completion.ID, answers[i].QuestionID, answers[i].AnswerID, answers[i].IsCorrect).Scan(&answers[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to record answer: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &Result{
		Completion:     completion,
		CorrectAnswers: correct,
		TotalQuestions: len(test.Questions),
		Answers:        answers,
	}, nil
}

// ListForUser returns the user's completion history, newest first
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ct.id, ct.test_id, t.title, ct.org_id, ct.completed_at,
		       COUNT(ua.id) FILTER (WHERE ua.is_correct),
		       COUNT(ua.id)
		FROM completed_tests ct
		JOIN tests t ON t.id = ct.test_id
		LEFT JOIN user_answers ua ON ua.completed_test_id = ct.id
		WHERE ct.user_id = $1
		GROUP BY ct.id, ct.test_id, t.title, ct.org_id, ct.completed_at
		ORDER BY ct.completed_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		err := rows.Scan(
			&s.ID,
			&s.TestID,
			&s.TestTitle,
			&s.OrgID,
			&s.CompletedAt,
			&s.CorrectAnswers,
			&s.TotalQuestions,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion rows: %w", err)
	}

	return summaries, nil
}

// GetForUserAndTest returns the user's completion of a test with its recorded
// answers. Returns ErrCompletionNotFound when the user never completed the test.
func (s *Service) GetForUserAndTest(ctx context.Context, userID, testID uuid.UUID) (*Result, error) {
	var completion CompletedTest
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, test_id, org_id, completed_at
		FROM completed_tests
		WHERE user_id = $1 AND test_id = $2
	`, userID, testID).Scan(
		&completion.ID,
		&completion.UserID,
		&completion.TestID,
		&completion.OrgID,
		&completion.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompletionNotFound
		}
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, completed_test_id, question_id, answer_id, is_correct
		FROM user_answers
		WHERE completed_test_id = $1
	`, completion.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	answers := []UserAnswer{}
	correct := 0
	for rows.Next() {
		var ua UserAnswer
		if err := rows.Scan(&ua.ID, &ua.CompletedTestID, &ua.QuestionID, &ua.AnswerID, &ua.IsCorrect); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		if ua.IsCorrect {
			correct++
		}
		answers = append(answers, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating answer rows: %w", err)
	}

	return &Result{
		Completion:     completion,
		CorrectAnswers: correct,
		TotalQuestions: len(answers),
		Answers:        answers,
	}, nil
}
