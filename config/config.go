// Package config reads inkcheck settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"inkcheck/upload"

	"github.com/joho/godotenv"
	"github.com/lithammer/dedent"
	"github.com/rs/zerolog"
)

const (
	AppName     = "inkcheck"
	EnvFileName = "config.env"

	DefaultServiceURL = "http://localhost:8000"

	// DefaultMinInterval spaces out submissions to the analysis service
	DefaultMinInterval = 500 * time.Millisecond
)

// Environment variables
const (
	EnvServiceURL    = "INKCHECK_SERVICE_URL"
	EnvAccept        = "INKCHECK_ACCEPT"
	EnvTimeout       = "INKCHECK_TIMEOUT"
	EnvMinInterval   = "INKCHECK_MIN_INTERVAL"
	EnvNarration     = "INKCHECK_NARRATION"
	EnvSaveAnnotated = "INKCHECK_SAVE_ANNOTATED"
	EnvUI            = "INKCHECK_UI"
	EnvLogFile       = "INKCHECK_LOG_FILE"
	EnvLogLevel      = "INKCHECK_LOG_LEVEL"
	EnvDebug         = "INKCHECK_DEBUG"
)

// UI selects the view binding
type UI string

const (
	UIForm UI = "form"
	UITUI  UI = "tui"
)

// Config holds resolved settings
type Config struct {
	ServiceURL    string
	Accept        upload.Profile
	Timeout       time.Duration
	MinInterval   time.Duration
	Narration     string
	SaveAnnotated bool
	UI            UI
	LogFile       string
	LogLevel      zerolog.Level
	Debug         bool
}

// LoadEnvFiles loads ./.env and then the config file in the user's config
// directory. Variables already set are not overridden, and missing files
// are ignored.
func LoadEnvFiles() {
	_ = godotenv.Load()
	if path := UserEnvFile(); path != "" {
		_ = godotenv.Load(path)
	}
}

// UserEnvFile returns the path of the per-user config file
func UserEnvFile() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, AppName, EnvFileName)
}

// Load loads the env files and reads the environment
func Load() (*Config, error) {
	LoadEnvFiles()
	return FromEnv()
}

// FromEnv reads settings from the environment only
func FromEnv() (*Config, error) {
	cfg := &Config{
		ServiceURL:    DefaultServiceURL,
		Accept:        upload.ProfileTolerant,
		MinInterval:   DefaultMinInterval,
		Narration:     "auto",
		SaveAnnotated: true,
		UI:            UIForm,
		LogFile:       DefaultLogFile(),
		LogLevel:      zerolog.InfoLevel,
	}

	if v := getenv(EnvServiceURL); v != "" {
		if err := checkURL(v); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvServiceURL, err)
		}
		cfg.ServiceURL = v
	}

	if v := getenv(EnvAccept); v != "" {
		p := upload.Profile(strings.ToLower(v))
		if _, err := p.Types(); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvAccept, err)
		}
		cfg.Accept = p
	}

	if v := getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q", EnvTimeout, v)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s: must not be negative", EnvTimeout)
		}
		cfg.Timeout = d
	}

	if v := getenv(EnvMinInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid duration %q", EnvMinInterval, v)
		}
		if d < 0 {
			return nil, fmt.Errorf("%s: must not be negative", EnvMinInterval)
		}
		cfg.MinInterval = d
	}

	if v := getenv(EnvNarration); v != "" {
		cfg.Narration = v
	}

	if v := getenv(EnvSaveAnnotated); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid boolean %q", EnvSaveAnnotated, v)
		}
		cfg.SaveAnnotated = b
	}

	if v := getenv(EnvUI); v != "" {
		switch UI(strings.ToLower(v)) {
		case UIForm:
			cfg.UI = UIForm
		case UITUI:
			cfg.UI = UITUI
		default:
			return nil, fmt.Errorf("%s: must be %q or %q, got %q", EnvUI, UIForm, UITUI, v)
		}
	}

	if v := getenv(EnvLogFile); v != "" {
		cfg.LogFile = v
	}

	if v := getenv(EnvLogLevel); v != "" {
		lvl, err := zerolog.ParseLevel(strings.ToLower(v))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}

	if v := getenv(EnvDebug); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			// any non-boolean value turns debugging on
			b = true
		}
		cfg.Debug = b
	}
	if cfg.Debug && cfg.LogLevel > zerolog.DebugLevel {
		cfg.LogLevel = zerolog.DebugLevel
	}

	return cfg, nil
}

// SetServiceURL validates and applies a URL given on the command line
func (c *Config) SetServiceURL(v string) error {
	if err := checkURL(v); err != nil {
		return fmt.Errorf("-url: %w", err)
	}
	c.ServiceURL = v
	return nil
}

// SetAccept validates and applies a profile given on the command line
func (c *Config) SetAccept(v string) error {
	p := upload.Profile(strings.ToLower(v))
	if _, err := p.Types(); err != nil {
		return fmt.Errorf("-accept: %w", err)
	}
	c.Accept = p
	return nil
}

// DefaultLogFile is $XDG_STATE_HOME/inkcheck/inkcheck.log, falling back to
// ~/.local/state and finally the working directory.
func DefaultLogFile() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".local", "state")
		}
	}
	if base == "" {
		return AppName + ".log"
	}
	return filepath.Join(base, AppName, AppName+".log")
}

// Help describes the settings for the startup error screen
func Help() string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(`
		inkcheck reads its settings from the environment, ./.env or %s:

		  %-24s analysis service base URL (default %s)
		  %-24s strict (PNG only) or tolerant (PNG, JPEG)
		  %-24s request timeout, e.g. 30s (default none)
		  %-24s minimum time between submissions (default %s, 0 disables)
		  %-24s auto, off, or a speech command such as espeak
		  %-24s write the annotated image beside the input
		  %-24s form or tui
		  %-24s log file path
		  %-24s debug, info, warn or error
	`)),
		UserEnvFile(),
		EnvServiceURL, DefaultServiceURL,
		EnvAccept,
		EnvTimeout,
		EnvMinInterval, DefaultMinInterval,
		EnvNarration,
		EnvSaveAnnotated,
		EnvUI,
		EnvLogFile,
		EnvLogLevel,
	)
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func checkURL(v string) error {
	u, err := url.Parse(v)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", v, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL %q: scheme must be http or https", v)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid URL %q: missing host", v)
	}
	return nil
}
