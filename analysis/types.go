// Package analysis provides a client for the handwriting analysis service's
// /predict endpoint and the result types it returns.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FeedbackKind tags the shape of a feedback entry
type FeedbackKind int

const (
	// KindLetterCorrection is a reversed letter with its correction
	KindLetterCorrection FeedbackKind = iota
	// KindMessage is a free-text remark
	KindMessage
	// KindPosition marks a spot that needs attention
	KindPosition
)

func (k FeedbackKind) String() string {
	switch k {
	case KindLetterCorrection:
		return "letter_correction"
	case KindMessage:
		return "message"
	case KindPosition:
		return "position"
	default:
		return "unknown"
	}
}

// FeedbackItem is one entry of the service's feedback list. Which fields are
// meaningful depends on Kind.
type FeedbackItem struct {
	Kind FeedbackKind

	ReversedLetter  string
	CorrectedLetter string
	Message         string

	X float64
	Y float64
}

// LetterCorrection builds a KindLetterCorrection item
func LetterCorrection(reversed, corrected string, x, y float64) FeedbackItem {
	return FeedbackItem{Kind: KindLetterCorrection, ReversedLetter: reversed, CorrectedLetter: corrected, X: x, Y: y}
}

// Message builds a KindMessage item
func Message(text string) FeedbackItem {
	return FeedbackItem{Kind: KindMessage, Message: text}
}

// Position builds a KindPosition item
func Position(x, y float64) FeedbackItem {
	return FeedbackItem{Kind: KindPosition, X: x, Y: y}
}

// wireFeedback is the object form of a feedback entry on the wire
type wireFeedback struct {
	ReversedLetter  string   `json:"reversed_letter"`
	CorrectedLetter string   `json:"corrected_letter"`
	Message         string   `json:"message"`
	X               *float64 `json:"x"`
	Y               *float64 `json:"y"`
}

// UnmarshalJSON classifies an entry: a letter correction when both letters
// are present, else a message when the text is present, else a position.
// A bare JSON string is a message.
func (f *FeedbackItem) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*f = Message(text)
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("feedback entry must be an object or string, got %s", truncate(trimmed, 40))
	}

	var w wireFeedback
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return err
	}

	var x, y float64
	if w.X != nil {
		x = *w.X
	}
	if w.Y != nil {
		y = *w.Y
	}

	switch {
	case w.ReversedLetter != "" && w.CorrectedLetter != "":
		*f = LetterCorrection(w.ReversedLetter, w.CorrectedLetter, x, y)
	case w.Message != "":
		*f = Message(w.Message)
	default:
		*f = Position(x, y)
	}
	return nil
}

// Result is the outcome of one successful analysis
type Result struct {
	// AnnotatedImageBase64 is the image with corrections drawn on it, empty
	// when the service sent none
	AnnotatedImageBase64 string `json:"annotated_image,omitempty"`

	// Feedback is in display order
	Feedback []FeedbackItem `json:"feedback"`
}

// HasAnnotatedImage reports whether the service returned an annotated image
func (r *Result) HasAnnotatedImage() bool {
	return r != nil && r.AnnotatedImageBase64 != ""
}

// decodeResult parses a response body. Missing fields are empty, not errors.
func decodeResult(body []byte) (*Result, error) {
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, fmt.Errorf("response body is null")
	}

	var raw struct {
		AnnotatedImage *string         `json:"annotated_image"`
		Feedback       json.RawMessage `json:"feedback"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	result := &Result{Feedback: []FeedbackItem{}}
	if raw.AnnotatedImage != nil {
		result.AnnotatedImageBase64 = *raw.AnnotatedImage
	}

	if fb := bytes.TrimSpace(raw.Feedback); len(fb) > 0 && !bytes.Equal(fb, []byte("null")) {
		if fb[0] != '[' {
			return nil, fmt.Errorf("feedback must be an array, got %s", truncate(fb, 40))
		}
		if err := json.Unmarshal(fb, &result.Feedback); err != nil {
			return nil, fmt.Errorf("invalid feedback: %w", err)
		}
	}

	return result, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
