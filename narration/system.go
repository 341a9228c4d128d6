package narration

import (
	"fmt"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Engines are the speech commands probed by Detect, in order
var Engines = []string{"say", "espeak-ng", "espeak", "spd-say"}

const baseWordsPerMinute = 175

var lookPath = exec.LookPath

// System speaks through a local speech command. One utterance runs at a time.
type System struct {
	name string
	path string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// Detect finds a speech engine. preference is "auto" (or empty) to probe
// Engines, "off" to disable narration, or a command name or path.
func Detect(preference string) (*System, error) {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case "off", "none", "false":
		return nil, ErrUnavailable
	case "", "auto":
		for _, name := range Engines {
			if path, err := lookPath(name); err == nil {
				log.Debug().Str("engine", name).Str("path", path).Msg("speech engine found")
				return &System{name: name, path: path}, nil
			}
		}
		return nil, fmt.Errorf("%w: none of %s found in PATH", ErrUnavailable, strings.Join(Engines, ", "))
	}

	path, err := lookPath(preference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &System{name: filepath.Base(preference), path: path}, nil
}

// Name returns the engine command name
func (s *System) Name() string {
	return s.name
}

// Args builds the command line for text
func (s *System) Args(text string, p Params) []string {
	wpm := strconv.Itoa(int(math.Round(baseWordsPerMinute * p.Rate)))

	switch s.name {
	case "say":
		return []string{"-r", wpm, text}
	case "espeak", "espeak-ng":
		pitch := strconv.Itoa(clamp(int(math.Round(50*p.Pitch)), 0, 99))
		amp := strconv.Itoa(clamp(int(math.Round(100*p.Volume)), 0, 200))
		return []string{"-s", wpm, "-p", pitch, "-a", amp, text}
	case "spd-say":
		rate := strconv.Itoa(clamp(int(math.Round((p.Rate-1)*100)), -100, 100))
		pitch := strconv.Itoa(clamp(int(math.Round((p.Pitch-1)*100)), -100, 100))
		vol := strconv.Itoa(clamp(int(math.Round(p.Volume*200-100)), -100, 100))
		return []string{"-w", "-r", rate, "-p", pitch, "-i", vol, text}
	default:
		return []string{text}
	}
}

// Start launches the engine. onStart fires once the process is running and
// onEnd when it exits without having been cancelled.
func (s *System) Start(text string, p Params, onStart, onEnd func()) error {
	cmd := exec.Command(s.path, s.Args(text, p)...)

	s.mu.Lock()
	s.killLocked()
	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to run %s: %w", s.name, err)
	}
	s.cmd = cmd
	s.mu.Unlock()

	onStart()

	go func() {
		err := cmd.Wait()

		s.mu.Lock()
		current := s.cmd == cmd
		if current {
			s.cmd = nil
		}
		s.mu.Unlock()

		if !current {
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("engine", s.name).Msg("speech engine exited with error")
		}
		onEnd()
	}()
	return nil
}

// Cancel stops the running utterance, if any
func (s *System) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
}

func (s *System) killLocked() {
	if s.cmd == nil {
		return
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.cmd = nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
