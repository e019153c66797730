package stats

import "errors"

var (
	// ErrNoCompletions is returned when an aggregation has no completions to
	// average over
	ErrNoCompletions = errors.New("no completions to aggregate")

	// ErrNoQuestions is returned when an accuracy denominator would be zero
	ErrNoQuestions = errors.New("no questions to aggregate")
)

// Point is one data point of an aggregation, in percent
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Accuracy converts a correct/total pair into a percentage. A zero total
// means the underlying test had no questions; that is reported, never divided.
func Accuracy(correct, total int) (float64, error) {
	if total == 0 {
		return 0, ErrNoQuestions
	}
	return float64(correct) / float64(total) * 100, nil
}

// Mean averages a non-empty series
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoCompletions
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}
