package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"inkcheck/analysis"
	"inkcheck/feedback"
	"inkcheck/narration"
	"inkcheck/upload"

	"github.com/rs/zerolog/log"
)

// Submitter sends a candidate for analysis. *analysis.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, c upload.Candidate) (*analysis.Result, error)
}

// Narrator reads feedback aloud. *narration.Controller implements it.
type Narrator interface {
	Toggle(lines []string) error
	Stop()
	Reset()
	State() narration.State
	OnChange(fn func(narration.State))
}

// Option configures a Machine
type Option func(*Machine)

// WithReader sets the file reader used by SelectPath
func WithReader(r upload.Reader) Option {
	return func(m *Machine) {
		m.reader = r
	}
}

// WithNarrator enables narration
func WithNarrator(n Narrator) Option {
	return func(m *Machine) {
		m.narrator = n
	}
}

// WithNotify sets a callback run after every state change, including ones
// made by the request, banner timer and speech engine goroutines. It is
// called without locks held and must not block.
func WithNotify(fn func()) Option {
	return func(m *Machine) {
		m.notify = fn
	}
}

// WithClock overrides time.Now for banner expiry times
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// WithBannerLifetime overrides BannerLifetime
func WithBannerLifetime(d time.Duration) Option {
	return func(m *Machine) {
		m.bannerLifetime = d
	}
}

// Machine is the session controller. It is safe for concurrent use.
type Machine struct {
	validator *upload.Validator
	client    Submitter
	reader    upload.Reader
	narrator  Narrator

	notify         func()
	now            func() time.Time
	bannerLifetime time.Duration

	mu       sync.Mutex
	state    State
	file     *upload.Candidate
	result   *analysis.Result
	lines    []string
	seq      uint64
	bannerID uint64
	banner   *Banner
	timer    *time.Timer
}

// New creates a machine in Idle
func New(validator *upload.Validator, client Submitter, opts ...Option) *Machine {
	m := &Machine{
		validator:      validator,
		client:         client,
		reader:         upload.FileSystem{},
		now:            time.Now,
		bannerLifetime: BannerLifetime,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.validator == nil {
		m.validator = upload.NewValidator()
	}
	if m.narrator != nil {
		m.narrator.OnChange(func(narration.State) { m.emit() })
	}
	return m
}

// Validator returns the upload validator
func (m *Machine) Validator() *upload.Validator {
	return m.validator
}

// CanNarrate reports whether a speech engine is configured
func (m *Machine) CanNarrate() bool {
	return m.narrator != nil
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SelectFile validates c and, when accepted, holds it and moves to
// Previewing. A rejected file raises a banner and leaves the state and any
// held file unchanged.
func (m *Machine) SelectFile(c upload.Candidate) error {
	m.mu.Lock()
	if m.state != Idle && m.state != Previewing {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot select a file while %s", ErrInvalidTransition, state)
	}

	accepted, err := m.validator.Validate(c)
	if err != nil {
		var verr *upload.ValidationError
		msg := err.Error()
		if errors.As(err, &verr) {
			msg = verr.UserMessage()
		}
		m.raiseLocked(msg)
		m.mu.Unlock()
		log.Info().Str("file", c.Name).Str("type", c.Type).Int64("size", c.Size).Err(err).Msg("file rejected")
		m.emit()
		return err
	}

	m.file = &accepted
	m.state = Previewing
	m.clearBannerLocked()
	m.mu.Unlock()

	log.Info().Str("file", accepted.Name).Str("type", accepted.Type).Int64("size", accepted.Size).Msg("file selected")
	m.emit()
	return nil
}

// SelectPath stats path, validates its metadata, reads the bytes and then
// behaves as SelectFile.
func (m *Machine) SelectPath(ctx context.Context, path string) error {
	if s := m.State(); s != Idle && s != Previewing {
		return fmt.Errorf("%w: cannot select a file while %s", ErrInvalidTransition, s)
	}

	c, err := m.reader.Stat(path)
	if err != nil {
		m.raise(MsgReadFailed)
		log.Warn().Err(err).Str("path", path).Msg("stat failed")
		return err
	}
	if _, err := m.validator.Validate(c); err != nil {
		// SelectFile reports it
		return m.SelectFile(c)
	}

	data, err := m.reader.ReadAll(ctx, c)
	if err != nil {
		var verr *upload.ValidationError
		if errors.As(err, &verr) {
			m.raise(verr.UserMessage())
		} else {
			m.raise(MsgReadFailed)
		}
		log.Warn().Err(err).Str("path", path).Msg("read failed")
		return err
	}
	c.Data = data
	c.Size = int64(len(data))
	return m.SelectFile(c)
}

// Discard drops the held file and returns to Idle
func (m *Machine) Discard() error {
	m.mu.Lock()
	if m.state != Previewing {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	m.file = nil
	m.state = Idle
	m.clearBannerLocked()
	m.mu.Unlock()

	m.emit()
	return nil
}

// Begin moves Previewing to Analyzing and returns the request to send. The
// caller sends it and reports back through Finish.
func (m *Machine) Begin() (Request, error) {
	m.mu.Lock()
	switch m.state {
	case Idle:
		m.raiseLocked(MsgNoFile)
		m.mu.Unlock()
		m.emit()
		return Request{}, ErrNoFile
	case Analyzing:
		m.mu.Unlock()
		return Request{}, ErrInFlight
	case Results:
		m.mu.Unlock()
		return Request{}, ErrInvalidTransition
	}

	m.seq++
	req := Request{Seq: m.seq, File: *m.file}
	m.state = Analyzing
	m.clearBannerLocked()
	m.mu.Unlock()

	log.Info().Uint64("seq", req.Seq).Str("file", req.File.Name).Msg("analysis started")
	m.emit()
	return req, nil
}

// Send performs the request with the configured client
func (m *Machine) Send(ctx context.Context, req Request) (*analysis.Result, error) {
	return m.client.Submit(ctx, req.File)
}

// Finish applies the outcome of request seq. It returns false when the
// request is stale, i.e. the session was reset or moved on since Begin.
func (m *Machine) Finish(seq uint64, res *analysis.Result, err error) bool {
	if err == nil && res == nil {
		err = errors.New("empty analysis result")
	}

	m.mu.Lock()
	if seq != m.seq || m.state != Analyzing {
		current := m.seq
		m.mu.Unlock()
		log.Debug().Uint64("seq", seq).Uint64("current", current).Msg("dropping stale analysis outcome")
		return false
	}

	if err != nil {
		m.state = Previewing
		m.raiseLocked(analysis.UserMessage)
		m.mu.Unlock()

		ev := log.Error().Err(err).Uint64("seq", seq)
		var aerr *analysis.Error
		if errors.As(err, &aerr) {
			ev = ev.Str("kind", aerr.Kind.String())
			if aerr.StatusCode != 0 {
				ev = ev.Int("status", aerr.StatusCode)
			}
		}
		ev.Msg("analysis failed")
		m.emit()
		return true
	}

	m.result = res
	m.lines = feedback.Render(res.Feedback)
	m.state = Results
	m.clearBannerLocked()
	m.mu.Unlock()

	if m.narrator != nil {
		m.narrator.Reset()
	}
	log.Info().Uint64("seq", seq).Int("items", len(res.Feedback)).Bool("annotated", res.HasAnnotatedImage()).Msg("analysis finished")
	m.emit()
	return true
}

// Submission tracks a request started by Analyze
type Submission struct {
	Seq uint64

	done    chan struct{}
	applied bool
	err     error
}

// Done is closed once the outcome has been handled
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Applied reports whether the outcome changed the session. Valid after Done.
func (s *Submission) Applied() bool {
	<-s.done
	return s.applied
}

// Err returns the request error, if any. Valid after Done.
func (s *Submission) Err() error {
	<-s.done
	return s.err
}

// Analyze calls Begin and sends the request on a goroutine. The request is
// not aborted by Reset; its late outcome is dropped instead.
func (m *Machine) Analyze(ctx context.Context) (*Submission, error) {
	req, err := m.Begin()
	if err != nil {
		return nil, err
	}

	sub := &Submission{Seq: req.Seq, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		res, err := m.Send(ctx, req)
		sub.err = err
		sub.applied = m.Finish(req.Seq, res, err)
	}()
	return sub, nil
}

// Reset clears the file, result and banner, stops narration and returns to
// Idle from any state. An in-flight request becomes stale.
func (m *Machine) Reset() {
	m.mu.Lock()
	from := m.state
	m.seq++
	m.state = Idle
	m.file = nil
	m.result = nil
	m.lines = nil
	m.clearBannerLocked()
	m.mu.Unlock()

	if m.narrator != nil {
		m.narrator.Stop()
	}
	log.Info().Str("from", from.String()).Msg("session reset")
	m.emit()
}

// ToggleNarration starts or stops reading the feedback aloud. It does
// nothing when the result has no feedback entries.
func (m *Machine) ToggleNarration() error {
	m.mu.Lock()
	if m.state != Results {
		m.mu.Unlock()
		return ErrInvalidTransition
	}
	if m.narrator == nil {
		m.mu.Unlock()
		return ErrNarrationUnavailable
	}
	if len(m.result.Feedback) == 0 {
		m.mu.Unlock()
		return nil
	}
	lines := append([]string(nil), m.lines...)
	m.mu.Unlock()

	if err := m.narrator.Toggle(lines); err != nil {
		log.Warn().Err(err).Msg("narration failed")
		return err
	}
	m.emit()
	return nil
}

// Banner returns the current banner, or nil
func (m *Machine) Banner() *Banner {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.banner == nil {
		return nil
	}
	b := *m.banner
	return &b
}

// ExpireBanner clears the banner if it is still banner id
func (m *Machine) ExpireBanner(id uint64) bool {
	m.mu.Lock()
	if m.banner == nil || m.banner.ID != id {
		m.mu.Unlock()
		return false
	}
	m.clearBannerLocked()
	m.mu.Unlock()

	m.emit()
	return true
}

// Snapshot returns a copy of the session
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	s := Snapshot{
		State:      m.state,
		Seq:        m.seq,
		CanNarrate: m.narrator != nil,
	}
	if m.file != nil {
		f := *m.file
		s.File = &f
	}
	if m.result != nil {
		r := *m.result
		s.Result = &r
	}
	if m.lines != nil {
		s.Lines = append([]string(nil), m.lines...)
	}
	if m.banner != nil {
		b := *m.banner
		s.Banner = &b
	}
	m.mu.Unlock()

	if m.narrator != nil {
		s.Narration = m.narrator.State()
	}
	return s
}

func (m *Machine) raise(msg string) {
	m.mu.Lock()
	m.raiseLocked(msg)
	m.mu.Unlock()
	m.emit()
}

func (m *Machine) raiseLocked(msg string) {
	m.stopTimerLocked()
	m.bannerID++
	id := m.bannerID
	m.banner = &Banner{ID: id, Message: msg, ExpiresAt: m.now().Add(m.bannerLifetime)}
	m.timer = time.AfterFunc(m.bannerLifetime, func() { m.ExpireBanner(id) })
}

func (m *Machine) clearBannerLocked() {
	m.stopTimerLocked()
	m.banner = nil
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) emit() {
	if m.notify != nil {
		m.notify()
	}
}
