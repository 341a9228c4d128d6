// Package session is the headless controller behind both views. It owns the
// selected file, the analysis result, the error banner and narration, and
// moves between Idle, Previewing, Analyzing and Results.
package session

import (
	"errors"
	"time"

	"inkcheck/analysis"
	"inkcheck/feedback"
	"inkcheck/narration"
	"inkcheck/upload"
)

// State is the primary state of a session
type State int

const (
	// Idle holds no file
	Idle State = iota
	// Previewing holds a validated file awaiting analysis
	Previewing
	// Analyzing has a request in flight
	Analyzing
	// Results holds the analysis result
	Results
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Previewing:
		return "Previewing"
	case Analyzing:
		return "Analyzing"
	case Results:
		return "Results"
	default:
		return "Unknown"
	}
}

var (
	ErrNoFile               = errors.New("no file selected")
	ErrInFlight             = errors.New("analysis already in progress")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrNarrationUnavailable = errors.New("narration unavailable")
)

// BannerLifetime is how long an error banner stays up
const BannerLifetime = 5 * time.Second

const (
	MsgNoFile     = "Please select an image first"
	MsgReadFailed = "Could not read the selected file"
)

// Banner is a transient error message
type Banner struct {
	ID        uint64
	Message   string
	ExpiresAt time.Time
}

// Snapshot is a copy of everything a view draws
type Snapshot struct {
	State  State
	File   *upload.Candidate
	Result *analysis.Result
	// Lines are the rendered feedback, set in Results
	Lines  []string
	Banner *Banner
	// Seq is the sequence number of the latest request
	Seq uint64

	Narration  narration.State
	CanNarrate bool
}

// HasFeedback reports whether the result carries any feedback entries
func (s Snapshot) HasFeedback() bool {
	return s.Result != nil && !feedback.AllClear(s.Result.Feedback)
}

// Request is one submission handed out by Begin
type Request struct {
	Seq  uint64
	File upload.Candidate
}
