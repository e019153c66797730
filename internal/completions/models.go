package completions

import (
	"time"

	"github.com/google/uuid"
)

// SelectedAnswer is one answer choice submitted for a question. AnswerID nil
// means the question was left unanswered.
type SelectedAnswer struct {
	QuestionID uuid.UUID  `json:"question_id"`
	AnswerID   *uuid.UUID `json:"answer_id"`
}

// CompletedTest represents one user's single completion of a test
type CompletedTest struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	TestID      uuid.UUID `db:"test_id" json:"test_id"`
	OrgID       uuid.UUID `db:"org_id" json:"org_id"`
	CompletedAt time.Time `db:"completed_at" json:"completed_at"`
}

// UserAnswer is the recorded outcome for one question of a completion.
// Correctness is a snapshot taken at submission time; it survives later edits
// to the question.
type UserAnswer struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	CompletedTestID uuid.UUID  `db:"completed_test_id" json:"completed_test_id"`
	QuestionID      uuid.UUID  `db:"question_id" json:"question_id"`
	AnswerID        *uuid.UUID `db:"answer_id" json:"answer_id"`
	IsCorrect       bool       `db:"is_correct" json:"is_correct"`
}

// Result is the outcome of a completion
type Result struct {
	Completion     CompletedTest `json:"completion"`
	CorrectAnswers int           `json:"correct_answers"`
	TotalQuestions int           `json:"total_questions"`
	Answers        []UserAnswer  `json:"answers"`
}

// Summary is one row of a user's completion history
type Summary struct {
	ID             uuid.UUID `json:"id"`
	TestID         uuid.UUID `json:"test_id"`
	TestTitle      string    `json:"test_title"`
	OrgID          uuid.UUID `json:"org_id"`
	CompletedAt    time.Time `json:"completed_at"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
}
