// Package feedback turns analysis feedback into the lines shown to the user.
package feedback

import (
	"fmt"
	"strconv"

	"inkcheck/analysis"
)

// NoCorrections is the single line shown when the service found nothing to
// correct. Views render it with success styling.
const NoCorrections = "Great handwriting! No corrections needed."

// Render maps feedback entries to display lines, one per entry, in order.
// An empty slice yields []string{NoCorrections}.
func Render(items []analysis.FeedbackItem) []string {
	if len(items) == 0 {
		return []string{NoCorrections}
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, Line(item))
	}
	return lines
}

// Line renders a single entry
func Line(item analysis.FeedbackItem) string {
	switch item.Kind {
	case analysis.KindLetterCorrection:
		return fmt.Sprintf("Letter \"%s\" at position (%s, %s) should be \"%s\"",
			item.ReversedLetter, coord(item.X), coord(item.Y), item.CorrectedLetter)
	case analysis.KindMessage:
		return item.Message
	default:
		return fmt.Sprintf("Correction at position (%s, %s)", coord(item.X), coord(item.Y))
	}
}

// AllClear reports whether items is the no-corrections result. It looks at
// the entries, not the rendered text, so a message that reads like
// NoCorrections is still a correction.
func AllClear(items []analysis.FeedbackItem) bool {
	return len(items) == 0
}

// coord prints integers without a decimal point and fractions in their
// shortest form
func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
