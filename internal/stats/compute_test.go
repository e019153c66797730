package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		correct int
		total   int
		want    float64
		wantErr error
	}{
		{"all correct", 2, 2, 100, nil},
		{"none correct", 0, 2, 0, nil},
		{"half correct", 1, 2, 50, nil},
		{"one third", 1, 3, 100.0 / 3.0, nil},
		{"zero questions", 0, 0, 0, ErrNoQuestions},
		{"zero questions with correct", 1, 0, 0, ErrNoQuestions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Accuracy(tt.correct, tt.total)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMean(t *testing.T) {
	t.Run("empty series", func(t *testing.T) {
		_, err := Mean(nil)
		assert.ErrorIs(t, err, ErrNoCompletions)
	})

	t.Run("single value", func(t *testing.T) {
		got, err := Mean([]float64{42})
		require.NoError(t, err)
		assert.InDelta(t, 42, got, 1e-9)
	})

	t.Run("average", func(t *testing.T) {
		got, err := Mean([]float64{100, 0})
		require.NoError(t, err)
		assert.InDelta(t, 50, got, 1e-9)
	})
}

// Two users complete a two-question test: one answers both correctly, the
// other neither. Per-user accuracies are 100 and 0; the test-level figure is
// their mean, 50.
func TestAccuracyAggregationScenario(t *testing.T) {
	userA, err := Accuracy(2, 2)
	require.NoError(t, err)
	userB, err := Accuracy(0, 2)
	require.NoError(t, err)

	assert.InDelta(t, 100, userA, 1e-9)
	assert.InDelta(t, 0, userB, 1e-9)

	testLevel, err := Mean([]float64{userA, userB})
	require.NoError(t, err)
	assert.InDelta(t, 50, testLevel, 1e-9)

	// The pooled form correct/(questions*completions) agrees here.
	pooled, err := Accuracy(2, 4)
	require.NoError(t, err)
	assert.InDelta(t, testLevel, pooled, 1e-9)
}

// Average-of-averages weighs every member equally regardless of how many
// tests each completed. A pooled average would weigh the prolific member
// higher; the two disagree on purpose.
func TestAverageOfAveragesWeighsMembersEqually(t *testing.T) {
	// Member A: one completion at 100%. Member B: three completions at 0%.
	memberA, err := Mean([]float64{100})
	require.NoError(t, err)
	memberB, err := Mean([]float64{0, 0, 0})
	require.NoError(t, err)

	orgLevel, err := Mean([]float64{memberA, memberB})
	require.NoError(t, err)
	assert.InDelta(t, 50, orgLevel, 1e-9)

	pooled, err := Mean([]float64{100, 0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 25, pooled, 1e-9)
	assert.NotEqual(t, orgLevel, pooled)
}
