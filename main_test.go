package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkcheck/analysis"
	"inkcheck/config"
	"inkcheck/feedback"
	"inkcheck/session"
	"inkcheck/upload"
)

var samplePNG = []byte("\x89PNG\r\n\x1a\nsample")

func testConfig(url string) *config.Config {
	return &config.Config{
		ServiceURL:    url,
		Accept:        upload.ProfileTolerant,
		Narration:     "off",
		SaveAnnotated: true,
		UI:            config.UIForm,
	}
}

func writeSample(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, samplePNG, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIFlagsApply(t *testing.T) {
	cfg := testConfig(config.DefaultServiceURL)
	cfg.Narration = "auto"

	flags := cliFlags{tui: true, url: "http://127.0.0.1:9000", accept: "strict", noSpeech: true}
	if err := flags.apply(cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if cfg.UI != config.UITUI {
		t.Errorf("Expected UI tui, got %s", cfg.UI)
	}
	if cfg.ServiceURL != "http://127.0.0.1:9000" {
		t.Errorf("Expected URL override, got %s", cfg.ServiceURL)
	}
	if cfg.Accept != upload.ProfileStrict {
		t.Errorf("Expected strict profile, got %s", cfg.Accept)
	}
	if cfg.Narration != "off" {
		t.Errorf("Expected narration off, got %s", cfg.Narration)
	}
}

func TestCLIFlagsApplyInvalid(t *testing.T) {
	for _, flags := range []cliFlags{{url: "not a url"}, {accept: "gif"}} {
		if err := flags.apply(testConfig(config.DefaultServiceURL)); err == nil {
			t.Errorf("Expected error for %+v", flags)
		}
	}
}

func TestNewAppNarrationOff(t *testing.T) {
	a, err := newApp(testConfig(config.DefaultServiceURL), nil)
	if err != nil {
		t.Fatal(err)
	}
	if a.engine != "" || a.machine.CanNarrate() {
		t.Error("Expected narration to be disabled")
	}
	if a.machine.State() != session.Idle {
		t.Errorf("Expected Idle, got %v", a.machine.State())
	}
}

func TestRunFileSuccess(t *testing.T) {
	annotated := []byte("\x89PNG\r\n\x1a\nannotated")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != analysis.PredictPath {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile(analysis.FileField)
		if err != nil {
			t.Errorf("Missing file part: %v", err)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		if !bytes.Equal(body, samplePNG) || hdr.Filename != "letters.png" {
			t.Errorf("Unexpected upload %s (%d bytes)", hdr.Filename, len(body))
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"annotated_image":"`+base64.StdEncoding.EncodeToString(annotated)+`",`+
			`"feedback":[{"reversed_letter":"b","corrected_letter":"d","x":3,"y":7},{"message":"Try slower strokes"}]}`)
	}))
	defer ts.Close()

	a, err := newApp(testConfig(ts.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	path := writeSample(t, "letters.png")
	var out bytes.Buffer
	if code := runFile(context.Background(), a, path, &out); code != 0 {
		t.Fatalf("Expected exit 0, got %d: %s", code, out.String())
	}

	want := "1. Letter \"b\" at position (3, 7) should be \"d\"\n2. Try slower strokes\n"
	if !strings.HasPrefix(out.String(), want) {
		t.Errorf("Unexpected output:\n%s", out.String())
	}

	saved := filepath.Join(filepath.Dir(path), "letters.annotated.png")
	if !strings.Contains(out.String(), saved) {
		t.Errorf("Expected output to name %s", saved)
	}
	if data, err := os.ReadFile(saved); err != nil || !bytes.Equal(data, annotated) {
		t.Errorf("Annotated image not written correctly: %v", err)
	}
	if a.machine.State() != session.Idle {
		t.Error("Expected the session to be reset after the run")
	}
}

func TestRunFileNoCorrections(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"feedback":[]}`)
	}))
	defer ts.Close()

	a, err := newApp(testConfig(ts.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if code := runFile(context.Background(), a, writeSample(t, "clean.png"), &out); code != 0 {
		t.Fatalf("Expected exit 0, got %d", code)
	}
	if strings.TrimSpace(out.String()) != feedback.NoCorrections {
		t.Errorf("Expected only the no-corrections line, got %q", out.String())
	}
}

func TestRunFileServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a, err := newApp(testConfig(ts.URL), nil)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if code := runFile(context.Background(), a, writeSample(t, "letters.png"), &out); code != 1 {
		t.Errorf("Expected exit 1, got %d", code)
	}
	if !strings.Contains(out.String(), analysis.UserMessage) {
		t.Errorf("Expected %q in output, got %q", analysis.UserMessage, out.String())
	}
	if !strings.Contains(out.String(), "status 500") {
		t.Errorf("Expected the status code in output, got %q", out.String())
	}
}

func TestRunFileRejected(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Accept = upload.ProfileStrict
	a, err := newApp(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if code := runFile(context.Background(), a, writeSample(t, "letters.jpg"), &out); code != 2 {
		t.Errorf("Expected exit 2, got %d", code)
	}
	if !strings.Contains(out.String(), "Please select a valid PNG image file") {
		t.Errorf("Unexpected output %q", out.String())
	}
	if calls != 0 {
		t.Error("Expected no request for a rejected file")
	}
}

func TestRenderResults(t *testing.T) {
	clear := renderResults(session.Snapshot{
		Result: &analysis.Result{},
		Lines:  []string{feedback.NoCorrections},
	})
	if !strings.Contains(clear, "✅ "+feedback.NoCorrections) {
		t.Error("Expected the no-corrections line")
	}

	listed := renderResults(session.Snapshot{
		Result: &analysis.Result{Feedback: []analysis.FeedbackItem{analysis.Message("first"), analysis.Message("second")}},
		Lines:  []string{"first", "second"},
	})
	if !strings.Contains(listed, "1. first") || !strings.Contains(listed, "2. second") {
		t.Errorf("Expected numbered lines, got %q", listed)
	}
}

func TestRenderResultsMessageLikeSentinel(t *testing.T) {
	out := renderResults(session.Snapshot{
		Result: &analysis.Result{Feedback: []analysis.FeedbackItem{analysis.Message(feedback.NoCorrections)}},
		Lines:  []string{feedback.NoCorrections},
	})
	if !strings.Contains(out, "1. "+feedback.NoCorrections) {
		t.Errorf("Expected the message to be numbered as feedback, got %q", out)
	}
	if strings.Contains(out, "✅") {
		t.Error("Expected no success styling for a real feedback item")
	}
}

func TestJPEGNote(t *testing.T) {
	strict, _ := upload.NewProfileValidator(upload.ProfileStrict)
	tolerant, _ := upload.NewProfileValidator(upload.ProfileTolerant)

	if jpegNote(strict) != "" {
		t.Error("Expected no JPEG note for strict profile")
	}
	if jpegNote(tolerant) != " or JPEG" {
		t.Error("Expected JPEG note for tolerant profile")
	}
}
