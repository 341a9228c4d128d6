package narration

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// State is the narration state
type State int

const (
	Idle State = iota
	Speaking
)

func (s State) String() string {
	if s == Speaking {
		return "speaking"
	}
	return "idle"
}

// Controller toggles narration of a list of lines. An utterance that has
// been requested but not yet acknowledged by the engine is pending; the
// state stays Idle until the engine reports that playback started.
type Controller struct {
	svc Service

	mu       sync.Mutex
	state    State
	pending  bool
	gen      uint64
	onChange func(State)
}

// NewController creates a controller over svc
func NewController(svc Service) *Controller {
	return &Controller{svc: svc}
}

// OnChange registers a callback for state changes driven by the engine
// (playback started or finished). It is called without locks held.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether an utterance is waiting for the engine to start
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Toggle starts reading lines when idle, or stops playback when speaking or
// pending. With no lines it does nothing.
func (c *Controller) Toggle(lines []string) error {
	c.mu.Lock()
	if c.state == Speaking || c.pending {
		c.mu.Unlock()
		c.Stop()
		return nil
	}
	if len(lines) == 0 {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.pending = true
	c.mu.Unlock()

	text := Utterance(lines)
	err := c.svc.Start(text, DefaultParams,
		func() { c.started(gen) },
		func() { c.ended(gen) },
	)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.pending = false
		}
		c.mu.Unlock()
		return fmt.Errorf("failed to start narration: %w", err)
	}

	log.Debug().Int("lines", len(lines)).Int("chars", len(text)).Msg("narration requested")
	return nil
}

// Stop cancels playback. The state is Idle when Stop returns and callbacks
// of the cancelled utterance are ignored.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != Speaking && !c.pending {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.state = Idle
	c.pending = false
	c.mu.Unlock()

	c.svc.Cancel()
	log.Debug().Msg("narration cancelled")
}

// Reset returns the controller to Idle, cancelling anything in progress
func (c *Controller) Reset() {
	c.Stop()
}

func (c *Controller) started(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.state = Speaking
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(Speaking)
	}
}

func (c *Controller) ended(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || (c.state != Speaking && !c.pending) {
		c.mu.Unlock()
		return
	}
	c.pending = false
	c.state = Idle
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(Idle)
	}
}

// Utterance joins lines into the text read aloud:
// "Analysis Results: 1. first. 2. second. "
func Utterance(lines []string) string {
	var b strings.Builder
	b.WriteString("Analysis Results: ")
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s. ", i+1, strings.TrimSpace(line))
	}
	return b.String()
}
