package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service computes accuracy aggregations on demand. All reads, no stored
// state: the user_answers snapshot is the single source of truth.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates a new stats service
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// countedRow is one (label, correct, total) row from an aggregation query
type countedRow struct {
	label   string
	correct int
	total   int
}

func (s *Service) queryCounted(ctx context.Context, query string, args ...any) ([]countedRow, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregation: %w", err)
	}
	defer rows.Close()

	var out []countedRow
	for rows.Next() {
		var row countedRow
		if err := rows.Scan(&row.label, &row.correct, &row.total); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregation rows: %w", err)
	}

	return out, nil
}

// toPoints converts counted rows into percentage points. A row with a zero
// denominator (a completion recorded after every question was removed) is
// skipped rather than failing the aggregation; only an empty result is an
// error.
func toPoints(rows []countedRow) ([]Point, error) {
	points := make([]Point, 0, len(rows))
	for _, row := range rows {
		value, err := Accuracy(row.correct, row.total)
		if err != nil {
			if errors.Is(err, ErrNoQuestions) {
				continue
			}
			return nil, err
		}
		points = append(points, Point{Label: row.label, Value: value})
	}
	if len(points) == 0 {
		return nil, ErrNoCompletions
	}
	return points, nil
}

// ForTestAcrossUsers returns one point per user who completed the test,
// labeled with the user's name.
func (s *Service) ForTestAcrossUsers(ctx context.Context, testID uuid.UUID) ([]Point, error) {
	rows, err := s.queryCounted(ctx, `
		SELECT u.name,
		       COUNT(ua.id) FILTER (WHERE ua.is_correct)::int,
		       COUNT(ua.id)::int
		FROM completed_tests ct
		JOIN users u ON u.id = ct.user_id
		LEFT JOIN user_answers ua ON ua.completed_test_id = ct.id
		WHERE ct.test_id = $1
		GROUP BY u.id, u.name, ct.completed_at
		ORDER BY ct.completed_at ASC
	`, testID)
	if err != nil {
		return nil, err
	}
	return toPoints(rows)
}

// ForUserAcrossCompletedTests returns one point per test the user completed,
// labeled with the test title.
func (s *Service) ForUserAcrossCompletedTests(ctx context.Context, userID uuid.UUID) ([]Point, error) {
	rows, err := s.queryCounted(ctx, `
		SELECT t.title,
		       COUNT(ua.id) FILTER (WHERE ua.is_correct)::int,
		       COUNT(ua.id)::int
		FROM completed_tests ct
		JOIN tests t ON t.id = ct.test_id
		LEFT JOIN user_answers ua ON ua.completed_test_id = ct.id
		WHERE ct.user_id = $1
		GROUP BY t.id, t.title, ct.completed_at
		ORDER BY ct.completed_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	return toPoints(rows)
}

// PerOrganizationTest returns one point per test of the organization that has
// at least one completion, labeled with the test title. The value pools all
// completions of the test: correct answers over questions times completions.
// Tests without completions are skipped, not rendered as zero.
func (s *Service) PerOrganizationTest(ctx context.Context, orgID uuid.UUID) ([]Point, error) {
	rows, err := s.queryCounted(ctx, `
		SELECT t.title,
		       COUNT(ua.id) FILTER (WHERE ua.is_correct)::int,
		       COUNT(ua.id)::int
		FROM tests t
		JOIN completed_tests ct ON ct.test_id = t.id
		LEFT JOIN user_answers ua ON ua.completed_test_id = ct.id
		WHERE t.org_id = $1
		GROUP BY t.id, t.title
		ORDER BY t.created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	return toPoints(rows)
}

// PerUserCreatedOrganization returns one point per organization the user
// authored, labeled with the organization title. The value is the mean over
// members of each member's mean per-completion accuracy, so every member
// weighs the same regardless of how many tests they completed.
func (s *Service) PerUserCreatedOrganization(ctx context.Context, userID uuid.UUID) ([]Point, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.id, o.title, ct.user_id,
		       COUNT(ua.id) FILTER (WHERE ua.is_correct)::int,
		       COUNT(ua.id)::int
		FROM orgs o
		JOIN completed_tests ct ON ct.org_id = o.id
		LEFT JOIN user_answers ua ON ua.completed_test_id = ct.id
		WHERE o.author_id = $1
		GROUP BY o.id, o.title, ct.user_id, ct.id
		ORDER BY o.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregation: %w", err)
	}
	defer rows.Close()

	type completionRow struct {
		orgID   uuid.UUID
		title   string
		userID  uuid.UUID
		correct int
		total   int
	}

	var all []completionRow
	for rows.Next() {
		var row completionRow
		if err := rows.Scan(&row.orgID, &row.title, &row.userID, &row.correct, &row.total); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation row: %w", err)
		}
		all = append(all, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregation rows: %w", err)
	}

	if len(all) == 0 {
		return nil, ErrNoCompletions
	}

	// Two-level grouping preserving query order: org -> member -> accuracies.
	type memberSeries struct {
		userID uuid.UUID
		values []float64
	}
	type orgSeries struct {
		title   string
		members []memberSeries
	}

	var orgOrder []uuid.UUID
	orgIndex := map[uuid.UUID]*orgSeries{}
	for _, row := range all {
		value, err := Accuracy(row.correct, row.total)
		if err != nil {
			// Zero-denominator completions carry no signal; skip them.
			if errors.Is(err, ErrNoQuestions) {
				continue
			}
			return nil, err
		}

		series, ok := orgIndex[row.orgID]
		if !ok {
			series = &orgSeries{title: row.title}
			orgIndex[row.orgID] = series
			orgOrder = append(orgOrder, row.orgID)
		}

		found := false
		for i := range series.members {
			if series.members[i].userID == row.userID {
				series.members[i].values = append(series.members[i].values, value)
				found = true
				break
			}
		}
		if !found {
			series.members = append(series.members, memberSeries{
				userID: row.userID,
				values: []float64{value},
			})
		}
	}

	if len(orgOrder) == 0 {
		return nil, ErrNoCompletions
	}

	points := make([]Point, 0, len(orgOrder))
	for _, orgID := range orgOrder {
		series := orgIndex[orgID]

		memberMeans := make([]float64, 0, len(series.members))
		for _, member := range series.members {
			mean, err := Mean(member.values)
			if err != nil {
				return nil, err
			}
			memberMeans = append(memberMeans, mean)
		}

		orgMean, err := Mean(memberMeans)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{Label: series.title, Value: orgMean})
	}

	return points, nil
}
