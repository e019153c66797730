package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/quizdeck/quizdeck/internal/completions"
	"github.com/quizdeck/quizdeck/internal/orgs"
	"github.com/quizdeck/quizdeck/internal/quizzes"
	"github.com/quizdeck/quizdeck/internal/stats"
	"github.com/stretchr/testify/require"
)

func toSelected(chosen map[uuid.UUID]uuid.UUID) []completions.SelectedAnswer {
	out := make([]completions.SelectedAnswer, 0, len(chosen))
	for questionID, answerID := range chosen {
		id := answerID
		out = append(out, completions.SelectedAnswer{QuestionID: questionID, AnswerID: &id})
	}
	return out
}

func TestCompleteAndAggregate(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")
	bob := createUser(t, pool, "bob")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Geo Club", "#2244ff", "", alice)
	require.NoError(t, err)
	_, err = orgSvc.AddMember(ctx, org.ID, alice, bob, orgs.PermissionRead)
	require.NoError(t, err)
	require.NoError(t, orgSvc.SetApprovement(ctx, org.ID, bob, orgs.ApprovementAccepted))

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Capitals"))
	require.NoError(t, err)
	require.Len(t, test.Questions, 2)

	compSvc := completions.NewService(pool)

	// Alice answers both correctly, Bob both incorrectly.
	resultA, err := compSvc.Complete(ctx, alice, test.ID, toSelected(pickAnswers(t, test, true)))
	require.NoError(t, err)
	require.Equal(t, 2, resultA.CorrectAnswers)
	require.Equal(t, 2, resultA.TotalQuestions)

	resultB, err := compSvc.Complete(ctx, bob, test.ID, toSelected(pickAnswers(t, test, false)))
	require.NoError(t, err)
	require.Equal(t, 0, resultB.CorrectAnswers)

	statsSvc := stats.NewService(pool)

	// Per-user points for the test: 100 and 0.
	points, err := statsSvc.ForTestAcrossUsers(ctx, test.ID)
	require.NoError(t, err)
	require.Len(t, points, 2)
	values := map[string]float64{points[0].Label: points[0].Value, points[1].Label: points[1].Value}
	require.InDelta(t, 100, values["alice"], 1e-9)
	require.InDelta(t, 0, values["bob"], 1e-9)

	// Test-level accuracy within the org: 2 correct of 4 recorded answers.
	points, err = statsSvc.PerOrganizationTest(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "Capitals", points[0].Label)
	require.InDelta(t, 50, points[0].Value, 1e-9)

	// Alice's own history: one completed test at 100.
	points, err = statsSvc.ForUserAcrossCompletedTests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "Capitals", points[0].Label)
	require.InDelta(t, 100, points[0].Value, 1e-9)

	// Alice authored the org: average of member averages, (100+0)/2.
	points, err = statsSvc.PerUserCreatedOrganization(ctx, alice)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "Geo Club", points[0].Label)
	require.InDelta(t, 50, points[0].Value, 1e-9)
}

func TestComplete_TwiceConflicts(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Solo", "#333333", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Once Only"))
	require.NoError(t, err)

	compSvc := completions.NewService(pool)
	_, err = compSvc.Complete(ctx, alice, test.ID, toSelected(pickAnswers(t, test, true)))
	require.NoError(t, err)

	_, err = compSvc.Complete(ctx, alice, test.ID, toSelected(pickAnswers(t, test, true)))
	require.ErrorIs(t, err, completions.ErrAlreadyCompleted)

	// The losing submission leaves no partial rows behind.
	require.Equal(t, 1, countRows(t, pool, `SELECT COUNT(*) FROM completed_tests WHERE test_id = $1`, test.ID))
	require.Equal(t, 2, countRows(t, pool, `SELECT COUNT(*) FROM user_answers`))
}

func TestComplete_UnansweredCountsAgainstAccuracy(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Partial", "#444444", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Half Done"))
	require.NoError(t, err)

	// Answer only the first question, correctly.
	first := test.Questions[0]
	var correctID uuid.UUID
	for _, a := range first.Answers {
		if a.IsCorrect {
			correctID = a.ID
		}
	}

	compSvc := completions.NewService(pool)
	result, err := compSvc.Complete(ctx, alice, test.ID, []completions.SelectedAnswer{
		{QuestionID: first.ID, AnswerID: &correctID},
	})
	require.NoError(t, err)

	// Both questions recorded; the skipped one as incorrect with no answer.
	require.Equal(t, 2, result.TotalQuestions)
	require.Equal(t, 1, result.CorrectAnswers)
	require.Len(t, result.Answers, 2)

	unanswered := 0
	for _, ua := range result.Answers {
		if ua.AnswerID == nil {
			unanswered++
			require.False(t, ua.IsCorrect)
		}
	}
	require.Equal(t, 1, unanswered)

	statsSvc := stats.NewService(pool)
	points, err := statsSvc.ForTestAcrossUsers(ctx, test.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.InDelta(t, 50, points[0].Value, 1e-9)
}

func TestComplete_ForeignAnswerRejected(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Strict", "#555555", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Mismatch"))
	require.NoError(t, err)

	// Answer of question two submitted for question one.
	wrongAnswer := test.Questions[1].Answers[0].ID
	compSvc := completions.NewService(pool)
	_, err = compSvc.Complete(ctx, alice, test.ID, []completions.SelectedAnswer{
		{QuestionID: test.Questions[0].ID, AnswerID: &wrongAnswer},
	})
	require.ErrorIs(t, err, completions.ErrInvalidSelection)
}

func TestRemoveQuestion_PreservesCompletionHistory(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "History", "#666666", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Edited Later"))
	require.NoError(t, err)

	compSvc := completions.NewService(pool)
	_, err = compSvc.Complete(ctx, alice, test.ID, toSelected(pickAnswers(t, test, true)))
	require.NoError(t, err)

	require.NoError(t, quizSvc.RemoveQuestion(ctx, test.ID, test.Questions[0].ID))

	// The recorded answers survive the edit, keeping the denominator stable.
	result, err := compSvc.GetForUserAndTest(ctx, alice, test.ID)
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalQuestions)
	require.Equal(t, 2, result.CorrectAnswers)

	statsSvc := stats.NewService(pool)
	points, err := statsSvc.ForTestAcrossUsers(ctx, test.ID)
	require.NoError(t, err)
	require.InDelta(t, 100, points[0].Value, 1e-9)
}

func TestStats_NoCompletions(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Quiet", "#777777", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Untouched"))
	require.NoError(t, err)

	statsSvc := stats.NewService(pool)

	_, err = statsSvc.ForTestAcrossUsers(ctx, test.ID)
	require.ErrorIs(t, err, stats.ErrNoCompletions)

	// A zero-completion test is skipped, leaving the org aggregation empty.
	_, err = statsSvc.PerOrganizationTest(ctx, org.ID)
	require.ErrorIs(t, err, stats.ErrNoCompletions)

	_, err = statsSvc.ForUserAcrossCompletedTests(ctx, alice)
	require.ErrorIs(t, err, stats.ErrNoCompletions)

	_, err = statsSvc.PerUserCreatedOrganization(ctx, alice)
	require.ErrorIs(t, err, stats.ErrNoCompletions)
}

func TestQuizzes_ListScopes(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")
	bob := createUser(t, pool, "bob")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Scopes", "#888888", "", alice)
	require.NoError(t, err)
	_, err = orgSvc.AddMember(ctx, org.ID, alice, bob, orgs.PermissionWrite)
	require.NoError(t, err)
	require.NoError(t, orgSvc.SetApprovement(ctx, org.ID, bob, orgs.ApprovementAccepted))

	quizSvc := quizzes.NewService(pool)
	testA, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("By Alice"))
	require.NoError(t, err)
	_, err = quizSvc.Create(ctx, org.ID, bob, twoQuestionTest("By Bob"))
	require.NoError(t, err)

	_, err = quizSvc.List(ctx, quizzes.ListScope{})
	require.ErrorIs(t, err, quizzes.ErrScopeRequired)

	inOrg, err := quizSvc.List(ctx, quizzes.ListScope{OrgID: &org.ID})
	require.NoError(t, err)
	require.Len(t, inOrg, 2)

	byAlice, err := quizSvc.List(ctx, quizzes.ListScope{AuthorID: &alice})
	require.NoError(t, err)
	require.Len(t, byAlice, 1)
	require.Equal(t, "By Alice", byAlice[0].Title)

	compSvc := completions.NewService(pool)
	_, err = compSvc.Complete(ctx, bob, testA.ID, toSelected(pickAnswers(t, testA, true)))
	require.NoError(t, err)

	completedByBob, err := quizSvc.List(ctx, quizzes.ListScope{OrgID: &org.ID, CompletedBy: &bob})
	require.NoError(t, err)
	require.Len(t, completedByBob, 1)
	require.Equal(t, testA.ID, completedByBob[0].ID)
}

func TestAddQuestion_UnknownTest(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	quizSvc := quizzes.NewService(pool)
	_, err := quizSvc.AddQuestion(ctx, uuid.New(), quizzes.QuestionInput{
		Title:   "Orphan",
		Answers: []quizzes.AnswerInput{{Title: "a", IsCorrect: true}},
	})
	require.ErrorIs(t, err, quizzes.ErrTestNotFound)
}

func TestStats_ZeroQuestionCompletionSkipped(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Hollow", "#cccccc", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	full, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Kept"))
	require.NoError(t, err)

	hollow, err := quizSvc.Create(ctx, org.ID, alice, quizzes.TestInput{
		Title: "Emptied",
		Questions: []quizzes.QuestionInput{
			{
				Title:   "Soon gone",
				Answers: []quizzes.AnswerInput{{Title: "a", IsCorrect: true}},
			},
		},
	})
	require.NoError(t, err)

	// Every question is removed before anyone completes the test.
	require.NoError(t, quizSvc.RemoveQuestion(ctx, hollow.ID, hollow.Questions[0].ID))

	compSvc := completions.NewService(pool)
	empty, err := compSvc.Complete(ctx, alice, hollow.ID, nil)
	require.NoError(t, err)
	require.Zero(t, empty.TotalQuestions)

	_, err = compSvc.Complete(ctx, alice, full.ID, toSelected(pickAnswers(t, full, true)))
	require.NoError(t, err)

	statsSvc := stats.NewService(pool)

	// The zero-denominator completion carries no signal on its own.
	_, err = statsSvc.ForTestAcrossUsers(ctx, hollow.ID)
	require.ErrorIs(t, err, stats.ErrNoCompletions)

	// Elsewhere it is skipped instead of poisoning the aggregation.
	points, err := statsSvc.PerOrganizationTest(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "Kept", points[0].Label)

	points, err = statsSvc.ForUserAcrossCompletedTests(ctx, alice)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Equal(t, "Kept", points[0].Label)

	points, err = statsSvc.PerUserCreatedOrganization(ctx, alice)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.InDelta(t, 100, points[0].Value, 1e-9)
}

func TestQuizzes_DeleteScopedByOrg(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	orgA, err := orgSvc.Create(ctx, "Org A", "#999999", "", alice)
	require.NoError(t, err)
	orgB, err := orgSvc.Create(ctx, "Org B", "#aaaaaa", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, orgA.ID, alice, twoQuestionTest("Belongs to A"))
	require.NoError(t, err)

	// Deleting through the wrong org does nothing.
	require.ErrorIs(t, quizSvc.Delete(ctx, orgB.ID, test.ID), quizzes.ErrTestNotFound)
	require.NoError(t, quizSvc.Delete(ctx, orgA.ID, test.ID))
}

func TestOrgDelete_CascadesEverything(t *testing.T) {
	pool, cleanup := newTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	alice := createUser(t, pool, "alice")

	orgSvc := orgs.NewService(pool)
	org, err := orgSvc.Create(ctx, "Doomed", "#bbbbbb", "", alice)
	require.NoError(t, err)

	quizSvc := quizzes.NewService(pool)
	test, err := quizSvc.Create(ctx, org.ID, alice, twoQuestionTest("Doomed Test"))
	require.NoError(t, err)

	compSvc := completions.NewService(pool)
	_, err = compSvc.Complete(ctx, alice, test.ID, toSelected(pickAnswers(t, test, true)))
	require.NoError(t, err)

	require.NoError(t, orgSvc.Delete(ctx, org.ID, alice))

	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM org_memberships`))
	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM tests`))
	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM questions`))
	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM answers`))
	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM completed_tests`))
	require.Zero(t, countRows(t, pool, `SELECT COUNT(*) FROM user_answers`))
}
