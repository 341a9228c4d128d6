package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"inkcheck/analysis"
	"inkcheck/config"
	"inkcheck/logging"
	"inkcheck/narration"
	"inkcheck/session"
	"inkcheck/tui"
	"inkcheck/upload"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"
)

// Build info - set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#60A5FA")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2).
			MarginTop(1).
			MarginBottom(1)

	inkLogo = `
    ╭─────────────────────────────────────╮
    │  ✎ inkcheck - Handwriting Feedback  │
    ╰─────────────────────────────────────╯`
)

// cliFlags are the command line overrides of the environment settings
type cliFlags struct {
	tui      bool
	file     string
	url      string
	accept   string
	noSpeech bool
}

func (f cliFlags) apply(cfg *config.Config) error {
	if f.url != "" {
		if err := cfg.SetServiceURL(f.url); err != nil {
			return err
		}
	}
	if f.accept != "" {
		if err := cfg.SetAccept(f.accept); err != nil {
			return err
		}
	}
	if f.noSpeech {
		cfg.Narration = "off"
	}
	if f.tui {
		cfg.UI = config.UITUI
	}
	return nil
}

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	shortVersionFlag := flag.Bool("v", false, "Print version information (short)")

	var flags cliFlags
	flag.BoolVar(&flags.tui, "tui", false, "Use the full-screen terminal UI")
	flag.StringVar(&flags.file, "file", "", "Analyze one image, print the feedback and exit")
	flag.StringVar(&flags.url, "url", "", "Analysis service base URL")
	flag.StringVar(&flags.accept, "accept", "", "Accepted images: strict (PNG) or tolerant (PNG, JPEG)")
	flag.BoolVar(&flags.noSpeech, "no-speech", false, "Do not offer narration")
	flag.Parse()

	if *versionFlag || *shortVersionFlag {
		fmt.Printf("inkcheck %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		fmt.Printf("  go:     %s\n", runtime.Version())
		fmt.Printf("  os/arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err == nil {
		err = flags.apply(cfg)
	}
	if err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		fmt.Println(infoStyle.Render(config.Help()))
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, infoStyle.Render("Warning: "+err.Error()+"; logging disabled"))
		closer, _ = logging.Setup("", cfg.LogLevel)
	}
	log.Info().Str("version", version).Str("service", cfg.ServiceURL).Str("accept", string(cfg.Accept)).Str("ui", string(cfg.UI)).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	code := run(ctx, cfg, flags.file)

	stop()
	closer.Close()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, file string) int {
	if file != "" {
		a, err := newApp(cfg, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: "+err.Error())
			return 1
		}
		return runFile(ctx, a, file, os.Stdout)
	}

	if cfg.UI == config.UITUI {
		bridge := tui.NewBridge()
		a, err := newApp(cfg, bridge)
		if err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			return 1
		}
		err = tui.Run(a.machine, bridge, tui.Options{
			SaveAnnotated: cfg.SaveAnnotated,
			Endpoint:      a.client.BaseURL() + analysis.PredictPath,
		})
		if err != nil {
			fmt.Println(errorStyle.Render("Error: " + err.Error()))
			return 1
		}
		return 0
	}

	a, err := newApp(cfg, nil)
	if err != nil {
		fmt.Println(errorStyle.Render("Error: " + err.Error()))
		return 1
	}

	fmt.Println(titleStyle.Render(inkLogo))
	fmt.Println(infoStyle.Render("Service: " + a.client.BaseURL()))
	if a.engine != "" {
		fmt.Println(infoStyle.Render("Narration: " + a.engine))
	}

	for {
		if !runFormWorkflow(ctx, a) {
			break
		}
	}

	fmt.Println(subtitleStyle.Render("\n✎ Keep practicing! Bye bye!"))
	return 0
}

// app is the wired session and its collaborators
type app struct {
	cfg     *config.Config
	client  *analysis.Client
	machine *session.Machine

	// engine is the speech command name, empty when narration is off
	engine string
}

// newApp builds the client, narration and session from cfg. bridge is set
// for the TUI so it sees async changes and HTTP exchanges.
func newApp(cfg *config.Config, bridge *tui.Bridge) (*app, error) {
	validator, err := upload.NewProfileValidator(cfg.Accept)
	if err != nil {
		return nil, err
	}

	clientOpts := []analysis.ClientOption{
		analysis.WithTimeout(cfg.Timeout),
		analysis.WithDebug(cfg.Debug),
		analysis.WithMinInterval(cfg.MinInterval),
	}
	var sessionOpts []session.Option
	if bridge != nil {
		clientOpts = append(clientOpts, analysis.WithObserver(bridge.Observe))
		sessionOpts = append(sessionOpts, session.WithNotify(bridge.Notify))
	}

	client, err := analysis.NewClient(cfg.ServiceURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, client: client}
	if speech, err := narration.Detect(cfg.Narration); err == nil {
		a.engine = speech.Name()
		sessionOpts = append(sessionOpts, session.WithNarrator(narration.NewController(speech)))
	} else {
		log.Info().Err(err).Msg("narration not offered")
	}

	a.machine = session.New(validator, client, sessionOpts...)
	return a, nil
}

// saveAnnotated writes the annotated image of the current result when
// enabled, returning the written path
func (a *app) saveAnnotated(w io.Writer) string {
	s := a.machine.Snapshot()
	if !a.cfg.SaveAnnotated || s.Result == nil || !s.Result.HasAnnotatedImage() || s.File == nil {
		return ""
	}

	source := s.File.Path
	if source == "" {
		source = s.File.Name
	}
	path, err := s.Result.SaveAnnotated(source)
	if err != nil {
		log.Warn().Err(err).Msg("save annotated image failed")
		fmt.Fprintln(w, "Could not save annotated image: "+err.Error())
		return ""
	}
	return path
}
