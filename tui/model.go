package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"inkcheck/analysis"
	"inkcheck/narration"
	"inkcheck/session"
	"inkcheck/upload"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

// Bridge carries notifications from session and client goroutines into the
// Bubble Tea program. Pass Notify to session.WithNotify and Observe to
// analysis.WithObserver.
type Bridge struct {
	refresh   chan struct{}
	exchanges chan analysis.Exchange
}

// NewBridge creates a bridge
func NewBridge() *Bridge {
	return &Bridge{
		refresh:   make(chan struct{}, 1),
		exchanges: make(chan analysis.Exchange, 16),
	}
}

// Notify asks the program to redraw. It never blocks.
func (b *Bridge) Notify() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

// Observe forwards an HTTP exchange to the activity feed. It never blocks;
// exchanges are dropped when the feed falls behind.
func (b *Bridge) Observe(ex analysis.Exchange) {
	select {
	case b.exchanges <- ex:
	default:
	}
}

type refreshMsg struct{}

type exchangeMsg analysis.Exchange

// analysisDoneMsg is sent when a submission returns
type analysisDoneMsg struct {
	seq    uint64
	result *analysis.Result
	err    error
}

// fileLoadedMsg is sent when a picked file was stat'ed and read
type fileLoadedMsg struct {
	path string
	err  error
}

// narrationMsg reports the outcome of a narration toggle
type narrationMsg struct {
	err error
}

func waitForRefresh(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return refreshMsg{}
	}
}

func waitForExchange(ch chan analysis.Exchange) tea.Cmd {
	return func() tea.Msg {
		ex, ok := <-ch
		if !ok {
			return nil
		}
		return exchangeMsg(ex)
	}
}

// Options configure the model
type Options struct {
	// StartDir is where the file picker opens, the working directory if empty
	StartDir string

	// SaveAnnotated writes the annotated image beside the input on success
	SaveAnnotated bool

	// Endpoint is shown in the activity feed
	Endpoint string
}

// Model is the Bubble Tea model of a session
type Model struct {
	machine *session.Machine
	bridge  *Bridge
	opts    Options

	filepicker filepicker.Model
	spinner    spinner.Model
	feed       *ActivityFeed

	savedPath string

	width    int
	height   int
	quitting bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewModel creates a model over machine. bridge may be nil when nothing
// outside the program changes the machine.
func NewModel(machine *session.Machine, bridge *Bridge, opts Options) Model {
	if opts.StartDir == "" {
		opts.StartDir, _ = os.Getwd()
	}

	fp := filepicker.New()
	fp.CurrentDirectory = opts.StartDir
	fp.AllowedTypes = machine.Validator().Extensions()
	fp.ShowHidden = false
	fp.ShowPermissions = false
	fp.ShowSize = true
	fp.Height = 10

	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"~    ", "~~   ", "~~~  ", " ~~~ ", "  ~~~", "   ~~", "    ~"},
		FPS:    time.Second / 8,
	}
	s.Style = lipgloss.NewStyle().Foreground(ColorPrimary)

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		machine:    machine,
		bridge:     bridge,
		opts:       opts,
		filepicker: fp,
		spinner:    s,
		feed:       NewActivityFeed(68, 6),
		width:      80,
		height:     24,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Init starts the picker, spinner and bridge listeners
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.filepicker.Init()}
	if m.bridge != nil {
		cmds = append(cmds, waitForRefresh(m.bridge.refresh), waitForExchange(m.bridge.exchanges))
	}
	return tea.Batch(cmds...)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.feed.SetSize(max(m.width-12, 20), 6)
		m.filepicker.Height = max(m.height-22, 5)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			m.cancel()
			m.machine.Reset()
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case refreshMsg:
		if m.bridge != nil {
			return m, waitForRefresh(m.bridge.refresh)
		}
		return m, nil

	case exchangeMsg:
		m.feed.AddExchange(analysis.Exchange(msg))
		if m.bridge != nil {
			return m, waitForExchange(m.bridge.exchanges)
		}
		return m, nil

	case fileLoadedMsg:
		if msg.err != nil {
			m.feed.AddError("Rejected "+msg.path, msg.err)
			return m, nil
		}
		if s := m.machine.Snapshot(); s.File != nil {
			m.feed.AddStatus("Selected "+s.File.Name, upload.FormatSize(s.File.Size))
		}
		return m, nil

	case analysisDoneMsg:
		return m.finishAnalysis(msg)

	case narrationMsg:
		if msg.err != nil {
			m.feed.AddError("Narration failed", msg.err)
		}
		return m, nil
	}

	// Remaining messages belong to the picker (directory reads)
	var cmd tea.Cmd
	m.filepicker, cmd = m.filepicker.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state := m.machine.State()

	switch state {
	case session.Idle, session.Previewing:
		switch msg.String() {
		case "a":
			return m.startAnalysis()
		case "x":
			if state == session.Previewing {
				_ = m.machine.Discard()
				m.feed.AddStatus("Discarded file", "")
			}
			return m, nil
		}

		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		if ok, path := m.filepicker.DidSelectFile(msg); ok {
			return m, tea.Batch(cmd, m.selectPath(path))
		}
		if ok, path := m.filepicker.DidSelectDisabledFile(msg); ok {
			// the machine raises the type banner
			return m, tea.Batch(cmd, m.selectPath(path))
		}
		return m, cmd

	case session.Analyzing:
		switch msg.String() {
		case "esc", "n":
			m.machine.Reset()
			m.savedPath = ""
			m.feed.AddStatus("Started over", "pending response will be ignored")
		}
		return m, nil

	case session.Results:
		switch msg.String() {
		case "s":
			if !m.machine.CanNarrate() {
				return m, nil
			}
			machine := m.machine
			return m, func() tea.Msg {
				return narrationMsg{err: machine.ToggleNarration()}
			}
		case "w":
			return m.saveAnnotated()
		case "esc", "n":
			m.machine.Reset()
			m.savedPath = ""
			m.feed.AddStatus("Ready for a new image", "")
			return m, m.filepicker.Init()
		}
	}
	return m, nil
}

// selectPath reads the picked file off the update loop
func (m Model) selectPath(path string) tea.Cmd {
	machine := m.machine
	ctx := m.ctx
	return func() tea.Msg {
		return fileLoadedMsg{path: path, err: machine.SelectPath(ctx, path)}
	}
}

func (m Model) startAnalysis() (tea.Model, tea.Cmd) {
	req, err := m.machine.Begin()
	if err != nil {
		if !errors.Is(err, session.ErrNoFile) {
			log.Debug().Err(err).Msg("analyze ignored")
		}
		return m, nil
	}

	m.savedPath = ""
	m.feed.AddRequest(m.opts.Endpoint, req.File)

	machine := m.machine
	ctx := m.ctx
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		res, err := machine.Send(ctx, req)
		return analysisDoneMsg{seq: req.Seq, result: res, err: err}
	})
}

func (m Model) finishAnalysis(msg analysisDoneMsg) (tea.Model, tea.Cmd) {
	if !m.machine.Finish(msg.seq, msg.result, msg.err) {
		m.feed.AddStatus("Ignored a stale response", fmt.Sprintf("request #%d", msg.seq))
		return m, nil
	}
	if msg.err != nil {
		m.feed.AddError(analysis.UserMessage, msg.err)
		return m, nil
	}

	m.feed.Add(Entry{
		Type:   EntryComplete,
		Title:  "Analysis complete",
		Detail: fmt.Sprintf("%d feedback items", len(msg.result.Feedback)),
	})
	if m.opts.SaveAnnotated && msg.result.HasAnnotatedImage() {
		return m.saveAnnotated()
	}
	return m, nil
}

func (m Model) saveAnnotated() (tea.Model, tea.Cmd) {
	s := m.machine.Snapshot()
	if s.Result == nil || !s.Result.HasAnnotatedImage() || m.savedPath != "" {
		return m, nil
	}

	source := ""
	if s.File != nil {
		source = s.File.Path
		if source == "" {
			source = s.File.Name
		}
	}
	path, err := s.Result.SaveAnnotated(source)
	if err != nil {
		m.feed.AddError("Could not save annotated image", err)
		log.Warn().Err(err).Msg("save annotated image failed")
		return m, nil
	}
	m.savedPath = path
	m.feed.AddStatus("Saved annotated image", path)
	return m, nil
}

// View renders the model
func (m Model) View() string {
	if m.quitting {
		return MutedStyle.Render("Goodbye!\n")
	}

	s := m.machine.Snapshot()

	var b strings.Builder
	b.WriteString(Header() + "\n\n")
	b.WriteString(StateIndicator(s.State) + "\n")

	if s.Banner != nil {
		b.WriteString(BannerStyle.Render(s.Banner.Message) + "\n")
	}

	switch s.State {
	case session.Idle:
		b.WriteString(m.renderPicker("Select a handwriting image", nil))
	case session.Previewing:
		b.WriteString(m.renderPicker("Ready to analyze", s.File))
	case session.Analyzing:
		b.WriteString(m.renderAnalyzing(s))
	case session.Results:
		b.WriteString(m.renderResults(s))
	}

	b.WriteString("\n" + TitleStyle.Render("Activity") + "\n")
	b.WriteString(m.feed.View() + "\n")
	b.WriteString(m.renderHelp(s))
	return b.String()
}

func (m Model) renderPicker(title string, file *upload.Candidate) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(title) + "\n")
	if file != nil {
		b.WriteString(lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorSuccess).
			Padding(0, 2).
			Render(upload.Describe(*file)) + "\n")
		b.WriteString(MutedStyle.Render("Press a to analyze, or pick another file") + "\n\n")
	}
	b.WriteString(MutedStyle.Render("Accepted: "+strings.Join(m.machine.Validator().Extensions(), ", ")+", up to 10MB") + "\n")
	b.WriteString(m.filepicker.View())
	return FocusedBoxStyle.Render(b.String())
}

func (m Model) renderAnalyzing(s session.Snapshot) string {
	name := ""
	if s.File != nil {
		name = s.File.Name
	}
	content := m.spinner.View() + " " + BodyStyle.Render("Analyzing "+name+"...")
	return BoxStyle.Render(content)
}

func (m Model) renderResults(s session.Snapshot) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Analysis Results") + "\n")

	if !s.HasFeedback() {
		b.WriteString(SuccessStyle.Render(s.Lines[0]) + "\n")
	} else {
		for i, line := range s.Lines {
			b.WriteString(BodyStyle.Render(fmt.Sprintf("%d. %s", i+1, line)) + "\n")
		}
	}

	if s.Result != nil && s.Result.HasAnnotatedImage() {
		b.WriteString("\n")
		if m.savedPath != "" {
			b.WriteString(MutedStyle.Render("Annotated image: "+m.savedPath) + "\n")
		} else {
			b.WriteString(MutedStyle.Render("Annotated image available, press w to save") + "\n")
		}
	}

	if s.CanNarrate && s.HasFeedback() {
		b.WriteString("\n")
		if s.Narration == narration.Speaking {
			b.WriteString(BadgeStyle.Render("Speaking") + " " + MutedStyle.Render("press s to stop") + "\n")
		} else {
			b.WriteString(BadgeSuccessStyle.Render("Read aloud") + " " + MutedStyle.Render("press s") + "\n")
		}
	}

	return BoxStyle.Render(b.String())
}

func (m Model) renderHelp(s session.Snapshot) string {
	switch s.State {
	case session.Idle:
		return KeyHelp("j/k", "Navigate", "enter", "Open/Select", "a", "Analyze", "q", "Quit")
	case session.Previewing:
		return KeyHelp("a", "Analyze", "x", "Discard", "enter", "Pick another", "q", "Quit")
	case session.Analyzing:
		return KeyHelp("esc", "Start over", "q", "Quit")
	default:
		keys := []string{}
		if s.CanNarrate && s.HasFeedback() {
			keys = append(keys, "s", "Speak/Stop")
		}
		if s.Result != nil && s.Result.HasAnnotatedImage() && m.savedPath == "" {
			keys = append(keys, "w", "Save image")
		}
		keys = append(keys, "n", "New image", "q", "Quit")
		return KeyHelp(keys...)
	}
}

// IsQuitting reports whether the user quit
func (m Model) IsQuitting() bool { return m.quitting }

// Run runs the program until the user quits
func Run(machine *session.Machine, bridge *Bridge, opts Options) error {
	model := NewModel(machine, bridge, opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	_, err := p.Run()
	model.cancel()
	return err
}
