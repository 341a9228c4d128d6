package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inkcheck/analysis"
	"inkcheck/feedback"
	"inkcheck/narration"
	"inkcheck/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSubmitter struct {
	calls atomic.Int32
	fn    func(ctx context.Context, c upload.Candidate) (*analysis.Result, error)
}

func (s *stubSubmitter) Submit(ctx context.Context, c upload.Candidate) (*analysis.Result, error) {
	s.calls.Add(1)
	return s.fn(ctx, c)
}

func returning(res *analysis.Result, err error) *stubSubmitter {
	return &stubSubmitter{fn: func(context.Context, upload.Candidate) (*analysis.Result, error) {
		return res, err
	}}
}

// fakeSpeech records calls and lets the test fire engine callbacks
type fakeSpeech struct {
	mu       sync.Mutex
	starts   []string
	cancels  int
	onStart  func()
	onEnd    func()
	startErr error
}

func (f *fakeSpeech) Start(text string, _ narration.Params, onStart, onEnd func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, text)
	f.onStart, f.onEnd = onStart, onEnd
	return nil
}

func (f *fakeSpeech) Cancel() {
	f.mu.Lock()
	f.cancels++
	f.mu.Unlock()
}

func pngCandidate(size int) upload.Candidate {
	data := make([]byte, size)
	copy(data, "\x89PNG\r\n\x1a\n")
	return upload.Candidate{Name: "letters.png", Type: upload.TypePNG, Size: int64(size), Data: data}
}

func wait(t *testing.T, sub *Submission) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("submission did not finish")
	}
}

func TestSelectFile(t *testing.T) {
	m := New(upload.NewValidator(upload.TypePNG), returning(nil, nil))

	require.NoError(t, m.SelectFile(pngCandidate(1024)))
	s := m.Snapshot()
	assert.Equal(t, Previewing, s.State)
	require.NotNil(t, s.File)
	assert.Equal(t, "letters.png", s.File.Name)
	assert.Nil(t, s.Banner)
}

func TestSelectFileRejected(t *testing.T) {
	tests := []struct {
		name   string
		file   upload.Candidate
		reason upload.Reason
		banner string
	}{
		{"wrong type", upload.Candidate{Name: "a.gif", Type: "image/gif", Size: 10}, upload.InvalidType, "Please select a valid PNG image file"},
		{"too large", upload.Candidate{Name: "a.png", Type: upload.TypePNG, Size: upload.MaxSize + 1}, upload.TooLarge, "File size must be less than 10MB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(upload.NewValidator(upload.TypePNG), returning(nil, nil))

			err := m.SelectFile(tt.file)
			var verr *upload.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.reason, verr.Reason)

			s := m.Snapshot()
			assert.Equal(t, Idle, s.State)
			assert.Nil(t, s.File)
			require.NotNil(t, s.Banner)
			assert.Equal(t, tt.banner, s.Banner.Message)
		})
	}
}

func TestSelectFileRejectedKeepsPrevious(t *testing.T) {
	m := New(upload.NewValidator(upload.TypePNG), returning(nil, nil))
	require.NoError(t, m.SelectFile(pngCandidate(10)))

	err := m.SelectFile(upload.Candidate{Name: "b.bmp", Type: "image/bmp", Size: 10})
	require.Error(t, err)

	s := m.Snapshot()
	assert.Equal(t, Previewing, s.State)
	assert.Equal(t, "letters.png", s.File.Name)
	assert.NotNil(t, s.Banner)

	// a good selection clears the banner
	require.NoError(t, m.SelectFile(pngCandidate(20)))
	assert.Nil(t, m.Banner())
}

func TestDiscard(t *testing.T) {
	m := New(nil, returning(nil, nil))
	assert.ErrorIs(t, m.Discard(), ErrInvalidTransition)

	require.NoError(t, m.SelectFile(pngCandidate(10)))
	require.NoError(t, m.Discard())
	s := m.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.File)
}

func TestAnalyzeWithoutFile(t *testing.T) {
	sub := returning(nil, nil)
	m := New(nil, sub)

	_, err := m.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Equal(t, Idle, m.State())
	require.NotNil(t, m.Banner())
	assert.Equal(t, MsgNoFile, m.Banner().Message)
	assert.Zero(t, sub.calls.Load())
}

func TestAnalyzeInFlightIgnored(t *testing.T) {
	release := make(chan struct{})
	sub := &stubSubmitter{fn: func(context.Context, upload.Candidate) (*analysis.Result, error) {
		<-release
		return &analysis.Result{Feedback: []analysis.FeedbackItem{}}, nil
	}}
	m := New(nil, sub)
	require.NoError(t, m.SelectFile(pngCandidate(10)))

	first, err := m.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Analyzing, m.State())

	_, err = m.Analyze(context.Background())
	assert.ErrorIs(t, err, ErrInFlight)

	close(release)
	wait(t, first)
	assert.True(t, first.Applied())
	assert.Equal(t, Results, m.State())
	assert.Equal(t, int32(1), sub.calls.Load())
}

func TestEndToEndEmptyFeedback(t *testing.T) {
	const size = 2 * 1024 * 1024

	var received int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile(analysis.FileField)
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		received = len(data)
		io.WriteString(w, `{"feedback": []}`)
	}))
	defer ts.Close()

	client, err := analysis.NewClient(ts.URL)
	require.NoError(t, err)

	speech := &fakeSpeech{}
	m := New(upload.NewValidator(upload.TypePNG), client, WithNarrator(narration.NewController(speech)))

	require.NoError(t, m.SelectFile(pngCandidate(size)))
	assert.Equal(t, Previewing, m.State())

	sub, err := m.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Analyzing, m.State())
	wait(t, sub)
	require.NoError(t, sub.Err())

	s := m.Snapshot()
	assert.Equal(t, size, received)
	assert.Equal(t, Results, s.State)
	assert.Equal(t, []string{feedback.NoCorrections}, s.Lines)
	assert.False(t, s.HasFeedback())
	assert.Equal(t, narration.Idle, s.Narration)

	require.NoError(t, m.ToggleNarration())
	assert.Empty(t, speech.starts)
	assert.Equal(t, narration.Idle, m.Snapshot().Narration)
}

func TestEndToEndServerErrorThenRetry(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"feedback": [{"message": "Try slower strokes"}]}`)
	}))
	defer ts.Close()

	client, err := analysis.NewClient(ts.URL)
	require.NoError(t, err)
	m := New(nil, client)
	require.NoError(t, m.SelectFile(pngCandidate(100)))

	sub, err := m.Analyze(context.Background())
	require.NoError(t, err)
	wait(t, sub)

	var aerr *analysis.Error
	require.True(t, errors.As(sub.Err(), &aerr))
	assert.Equal(t, http.StatusInternalServerError, aerr.StatusCode)

	s := m.Snapshot()
	assert.Equal(t, Previewing, s.State)
	require.NotNil(t, s.File)
	assert.Equal(t, "letters.png", s.File.Name)
	require.NotNil(t, s.Banner)
	assert.Equal(t, analysis.UserMessage, s.Banner.Message)

	sub, err = m.Analyze(context.Background())
	require.NoError(t, err)
	wait(t, sub)

	s = m.Snapshot()
	assert.Equal(t, Results, s.State)
	assert.Equal(t, []string{"Try slower strokes"}, s.Lines)
	assert.Nil(t, s.Banner)
	assert.Equal(t, int32(2), calls.Load())
}

func TestResetDropsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	sub := &stubSubmitter{fn: func(context.Context, upload.Candidate) (*analysis.Result, error) {
		<-release
		return &analysis.Result{Feedback: []analysis.FeedbackItem{analysis.Message("late")}}, nil
	}}
	m := New(nil, sub)
	require.NoError(t, m.SelectFile(pngCandidate(10)))

	pending, err := m.Analyze(context.Background())
	require.NoError(t, err)
	m.Reset()
	assert.Equal(t, Idle, m.State())

	close(release)
	wait(t, pending)
	assert.False(t, pending.Applied())

	s := m.Snapshot()
	assert.Equal(t, Idle, s.State)
	assert.Nil(t, s.Result)
	assert.Nil(t, s.File)
}

func TestStaleFailureAfterNewRequest(t *testing.T) {
	m := New(nil, returning(nil, nil))
	require.NoError(t, m.SelectFile(pngCandidate(10)))

	old, err := m.Begin()
	require.NoError(t, err)
	m.Reset()

	require.NoError(t, m.SelectFile(pngCandidate(10)))
	current, err := m.Begin()
	require.NoError(t, err)
	assert.Greater(t, current.Seq, old.Seq)

	assert.False(t, m.Finish(old.Seq, nil, errors.New("timeout")))
	assert.Equal(t, Analyzing, m.State())
	assert.Nil(t, m.Banner())

	assert.True(t, m.Finish(current.Seq, &analysis.Result{}, nil))
	assert.Equal(t, Results, m.State())
}

func TestAnalyzeFromResultsRejected(t *testing.T) {
	m := New(nil, returning(&analysis.Result{}, nil))
	require.NoError(t, m.SelectFile(pngCandidate(10)))
	req, err := m.Begin()
	require.NoError(t, err)
	require.True(t, m.Finish(req.Seq, &analysis.Result{}, nil))

	_, err = m.Begin()
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, m.SelectFile(pngCandidate(10)), ErrInvalidTransition)
}

func TestNarrationLifecycle(t *testing.T) {
	speech := &fakeSpeech{}
	var notified atomic.Int32
	m := New(nil, returning(nil, nil),
		WithNarrator(narration.NewController(speech)),
		WithNotify(func() { notified.Add(1) }),
	)
	assert.ErrorIs(t, m.ToggleNarration(), ErrInvalidTransition)

	require.NoError(t, m.SelectFile(pngCandidate(10)))
	req, err := m.Begin()
	require.NoError(t, err)
	res := &analysis.Result{Feedback: []analysis.FeedbackItem{
		analysis.LetterCorrection("b", "d", 3, 7),
		analysis.Message("Try slower strokes"),
	}}
	require.True(t, m.Finish(req.Seq, res, nil))

	require.NoError(t, m.ToggleNarration())
	require.Len(t, speech.starts, 1)
	assert.Equal(t, `Analysis Results: 1. Letter "b" at position (3, 7) should be "d". 2. Try slower strokes. `, speech.starts[0])
	assert.Equal(t, narration.Idle, m.Snapshot().Narration, "speaking only after the engine starts")

	before := notified.Load()
	speech.onStart()
	assert.Equal(t, narration.Speaking, m.Snapshot().Narration)
	assert.Greater(t, notified.Load(), before)

	m.Reset()
	assert.Equal(t, 1, speech.cancels)
	assert.Equal(t, narration.Idle, m.Snapshot().Narration)

	// the cancelled utterance ending later changes nothing
	speech.onEnd()
	assert.Equal(t, narration.Idle, m.Snapshot().Narration)
	assert.Equal(t, Idle, m.State())
}

func TestNarrationUnavailable(t *testing.T) {
	m := New(nil, returning(nil, nil))
	assert.False(t, m.CanNarrate())

	require.NoError(t, m.SelectFile(pngCandidate(10)))
	req, _ := m.Begin()
	m.Finish(req.Seq, &analysis.Result{Feedback: []analysis.FeedbackItem{analysis.Message("x")}}, nil)

	assert.ErrorIs(t, m.ToggleNarration(), ErrNarrationUnavailable)
}

func TestBannerExpires(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := New(nil, returning(nil, nil), WithClock(func() time.Time { return now }), WithBannerLifetime(20*time.Millisecond))

	_, _ = m.Begin()
	b := m.Banner()
	require.NotNil(t, b)
	assert.Equal(t, now.Add(20*time.Millisecond), b.ExpiresAt)

	assert.Eventually(t, func() bool { return m.Banner() == nil }, 2*time.Second, 5*time.Millisecond)
}

func TestBannerSuperseded(t *testing.T) {
	m := New(nil, returning(nil, nil))

	_, _ = m.Begin()
	first := m.Banner()
	_, _ = m.Begin()
	second := m.Banner()
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)

	assert.False(t, m.ExpireBanner(first.ID))
	assert.NotNil(t, m.Banner())
	assert.True(t, m.ExpireBanner(second.ID))
	assert.Nil(t, m.Banner())
}

func TestDefaultBannerLifetime(t *testing.T) {
	now := time.Now()
	m := New(nil, returning(nil, nil), WithClock(func() time.Time { return now }))
	_, _ = m.Begin()
	assert.Equal(t, now.Add(5*time.Second), m.Banner().ExpiresAt)
	m.Reset()
	assert.Nil(t, m.Banner())
}

func TestSelectPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.png")
	data := []byte("\x89PNG\r\n\x1a\nbody")
	require.NoError(t, os.WriteFile(path, data, 0644))

	m := New(upload.NewValidator(upload.TypePNG), returning(nil, nil))
	require.NoError(t, m.SelectPath(context.Background(), path))

	s := m.Snapshot()
	assert.Equal(t, Previewing, s.State)
	assert.Equal(t, data, s.File.Data)
	assert.Equal(t, upload.TypePNG, s.File.Type)

	jpg := filepath.Join(dir, "sample.jpg")
	require.NoError(t, os.WriteFile(jpg, data, 0644))
	err := m.SelectPath(context.Background(), jpg)
	var verr *upload.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, upload.InvalidType, verr.Reason)
	assert.Equal(t, "sample.png", m.Snapshot().File.Name)

	err = m.SelectPath(context.Background(), filepath.Join(dir, "missing.png"))
	require.Error(t, err)
	assert.Equal(t, MsgReadFailed, m.Banner().Message)
}

// growingReader reports a small file on Stat that is too large once read
type growingReader struct{}

func (growingReader) Stat(path string) (upload.Candidate, error) {
	return upload.Candidate{Name: filepath.Base(path), Path: path, Type: upload.TypePNG, Size: 1024}, nil
}

func (growingReader) ReadAll(context.Context, upload.Candidate) ([]byte, error) {
	return nil, &upload.ValidationError{Reason: upload.TooLarge, Type: upload.TypePNG, Size: upload.MaxSize + 1}
}

func TestSelectPathFileGrewPastLimit(t *testing.T) {
	m := New(upload.NewValidator(upload.TypePNG), returning(nil, nil), WithReader(growingReader{}))

	err := m.SelectPath(context.Background(), "/photos/letters.png")
	var verr *upload.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, upload.TooLarge, verr.Reason)

	assert.Equal(t, Idle, m.State())
	require.NotNil(t, m.Banner())
	assert.Equal(t, "File size must be less than 10MB", m.Banner().Message)
}

func TestSelectFileOversizedDataUnderstatedSize(t *testing.T) {
	client := returning(&analysis.Result{}, nil)
	m := New(upload.NewValidator(upload.TypePNG), client)

	c := pngCandidate(int(upload.MaxSize) + 1)
	c.Size = 0
	err := m.SelectFile(c)

	var verr *upload.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, upload.TooLarge, verr.Reason)
	assert.Equal(t, Idle, m.State())

	_, err = m.Begin()
	assert.ErrorIs(t, err, ErrNoFile)
	assert.Zero(t, client.calls.Load())
}
