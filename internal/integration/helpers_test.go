package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizdeck/quizdeck/internal/quizzes"
)

// createUser inserts a user row directly. Handler-level auth is covered by the
// e2e test; service tests only need the row to exist.
func createUser(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	email := fmt.Sprintf("%s-%s@example.com", name, randomHex(t, 4))
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, 'unused')
		RETURNING id
	`, name, email).Scan(&id)
	if err != nil {
		t.Fatalf("failed to create user %q: %v", name, err)
	}
	return id
}

// twoQuestionTest builds the canonical two-question geography input
func twoQuestionTest(title string) quizzes.TestInput {
	return quizzes.TestInput{
		Title: title,
		Theme: "geography",
		Questions: []quizzes.QuestionInput{
			{
				Title: "Capital of France?",
				Answers: []quizzes.AnswerInput{
					{Title: "Paris", IsCorrect: true},
					{Title: "Lyon", IsCorrect: false},
				},
			},
			{
				Title: "Capital of Spain?",
				Answers: []quizzes.AnswerInput{
					{Title: "Madrid", IsCorrect: true},
					{Title: "Barcelona", IsCorrect: false},
				},
			},
		},
	}
}

// pickAnswers maps each question to its correct (or incorrect) answer ID
func pickAnswers(t *testing.T, test *quizzes.TestWithQuestions, correct bool) map[uuid.UUID]uuid.UUID {
	t.Helper()

	selected := make(map[uuid.UUID]uuid.UUID, len(test.Questions))
	for _, q := range test.Questions {
		found := false
		for _, a := range q.Answers {
			if a.IsCorrect == correct {
				selected[q.ID] = a.ID
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("question %q has no answer with is_correct=%v", q.Title, correct)
		}
	}
	return selected
}

func countRows(t *testing.T, pool *pgxpool.Pool, query string, args ...any) int {
	t.Helper()

	var n int
	if err := pool.QueryRow(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	return n
}
