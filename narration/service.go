// Package narration reads rendered feedback aloud through a speech engine
// and tracks whether it is currently speaking.
package narration

import "errors"

// ErrUnavailable means no speech engine can be used
var ErrUnavailable = errors.New("speech synthesis unavailable")

// Params are the playback settings passed to the engine
type Params struct {
	// Rate is relative speed, 1.0 being the engine default
	Rate float64
	// Pitch is relative pitch, 1.0 being the engine default
	Pitch float64
	// Volume ranges 0.0 to 1.0
	Volume float64
}

// DefaultParams is slightly slower than normal speech
var DefaultParams = Params{Rate: 0.9, Pitch: 1.0, Volume: 1.0}

// Service is a speech engine. Start begins playback and returns once the
// request is accepted; onStart fires when audio actually starts and onEnd
// when it finishes on its own. After Cancel, onEnd must not be relied on.
type Service interface {
	Start(text string, params Params, onStart, onEnd func()) error
	Cancel()
}
