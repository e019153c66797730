package quizzes

import (
	"time"

	"github.com/google/uuid"
)

// Test represents a quiz test that belongs to exactly one organization
type Test struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrgID       uuid.UUID `db:"org_id" json:"org_id"`
	AuthorID    uuid.UUID `db:"author_id" json:"author_id"`
	Title       string    `db:"title" json:"title"`
	Theme       string    `db:"theme" json:"theme"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Question represents a single question within a test
type Question struct {
	ID       uuid.UUID `db:"id" json:"id"`
	TestID   uuid.UUID `db:"test_id" json:"test_id"`
	Title    string    `db:"title" json:"title"`
	Position int       `db:"position" json:"position"`
	Answers  []Answer  `json:"answers"`
}

// Answer represents one answer option of a question
type Answer struct {
	ID         uuid.UUID `db:"id" json:"id"`
	QuestionID uuid.UUID `db:"question_id" json:"question_id"`
	Title      string    `db:"title" json:"title"`
	IsCorrect  bool      `db:"is_correct" json:"is_correct"`
}

// TestWithQuestions is a test with its full question/answer tree
type TestWithQuestions struct {
	Test
	Questions []Question `json:"questions"`
}

// QuestionInput describes a question to insert, with its answer options
type QuestionInput struct {
	Title   string        `json:"title"`
	Answers []AnswerInput `json:"answers"`
}

// AnswerInput describes an answer option to insert
type AnswerInput struct {
	Title     string `json:"title"`
	IsCorrect bool   `json:"is_correct"`
}

// TestInput describes a test to create, with its full tree
type TestInput struct {
	Title       string          `json:"title"`
	Theme       string          `json:"theme"`
	Description string          `json:"description"`
	Questions   []QuestionInput `json:"questions"`
}

// ListScope narrows List to one dimension. Exactly one of OrgID or AuthorID
// must be set; CompletedBy further narrows an org scope to tests the user has
// completed.
type ListScope struct {
	OrgID       *uuid.UUID
	AuthorID    *uuid.UUID
	CompletedBy *uuid.UUID
}
