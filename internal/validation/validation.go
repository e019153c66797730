package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrTitleRequired is returned when a title is empty after trimming
	ErrTitleRequired = errors.New("title is required")

	// ErrTitleTooLong is returned when a title exceeds the maximum length
	ErrTitleTooLong = errors.New("title must be at most 128 characters")

	// ErrDescriptionTooLong is returned when a description exceeds the maximum length
	ErrDescriptionTooLong = errors.New("description must be at most 2000 characters")

	// ErrInvalidColor is returned when a color is not a hex triplet
	ErrInvalidColor = errors.New("color must be a hex value like #1a2b3c")

	// colorRegex validates #rgb and #rrggbb hex triplets
	colorRegex = regexp.MustCompile(`^#(?:[0-9a-f]{3}|[0-9a-f]{6})$`)
)

// ValidateTitle validates a user-supplied title for organizations and tests:
// - Must be non-empty after trimming whitespace
// - Must be at most 128 characters
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)

	if title == "" {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > 128 {
		return ErrTitleTooLong
	}

	return nil
}

// NormalizeTitle trims surrounding whitespace from a title
func NormalizeTitle(title string) string {
	return strings.TrimSpace(title)
}

// ValidateDescription validates an optional free-text description
func ValidateDescription(description string) error {
	if utf8.RuneCountInString(description) > 2000 {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateColor validates an organization accent color. Accepts #rgb and
// #rrggbb, case-insensitive.
func ValidateColor(color string) error {
	if !colorRegex.MatchString(strings.ToLower(color)) {
		return ErrInvalidColor
	}
	return nil
}

// NormalizeColor lowercases a hex color for storage
func NormalizeColor(color string) string {
	return strings.ToLower(strings.TrimSpace(color))
}
