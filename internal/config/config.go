package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds the storefront client settings.
type Config struct {
	APIURL          string
	Tenant          string
	Customer        string
	LogDir          string
	RefreshInterval time.Duration
	Poll            Poll
}

// Poll tunes the image processing poller.
type Poll struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Timeout      time.Duration
}

const (
	defaultConfigPath      = "~/.config/kiosk/config.toml"
	defaultLogDir          = "~/.local/share/kiosk/logs"
	defaultAPIURL          = "127.0.0.1:8088"
	defaultTenant          = "demo"
	defaultCustomer        = "guest"
	defaultRefreshInterval = 30 * time.Second
)

// DefaultPoll mirrors the poller's built-in schedule.
var DefaultPoll = Poll{
	InitialDelay: time.Second,
	MaxDelay:     5 * time.Second,
	Multiplier:   1.5,
	Timeout:      2 * time.Minute,
}

// overrides are read from the environment after the file.
type overrides struct {
	APIURL   string `env:"KIOSK_API_URL"`
	Tenant   string `env:"KIOSK_TENANT"`
	Customer string `env:"KIOSK_CUSTOMER"`
	LogDir   string `env:"KIOSK_LOG_DIR"`
}

type rawConfig struct {
	APIURL          string  `toml:"api_url"`
	Tenant          string  `toml:"tenant"`
	Customer        string  `toml:"customer"`
	LogDir          string  `toml:"log_dir"`
	RefreshInterval string  `toml:"refresh_interval"`
	Poll            rawPoll `toml:"poll"`
}

type rawPoll struct {
	InitialDelay string  `toml:"initial_delay"`
	MaxDelay     string  `toml:"max_delay"`
	Multiplier   float64 `toml:"multiplier"`
	Timeout      string  `toml:"timeout"`
}

// Load reads the kiosk config, falling back to defaults when the file is
// missing, then applies KIOSK_* environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	var over overrides
	if err := parseEnv(&over); err != nil {
		return Config{}, err
	}

	cfg := Config{
		APIURL:   firstNonEmpty(over.APIURL, raw.APIURL, defaultAPIURL),
		Tenant:   firstNonEmpty(over.Tenant, raw.Tenant, defaultTenant),
		Customer: firstNonEmpty(over.Customer, raw.Customer, defaultCustomer),
		LogDir:   mustExpand(firstNonEmpty(over.LogDir, raw.LogDir, defaultLogDir)),
	}

	if cfg.RefreshInterval, err = parseDuration("refresh_interval", raw.RefreshInterval, defaultRefreshInterval); err != nil {
		return Config{}, err
	}
	if cfg.Poll, err = parsePoll(raw.Poll); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LogPath returns the client's log file.
func (c Config) LogPath() string {
	if strings.TrimSpace(c.LogDir) == "" {
		return mustExpand(defaultLogDir + "/kiosk.log")
	}
	return filepath.Join(c.LogDir, "kiosk.log")
}

func parsePoll(raw rawPoll) (Poll, error) {
	p := DefaultPoll
	var err error
	if p.InitialDelay, err = parseDuration("poll.initial_delay", raw.InitialDelay, DefaultPoll.InitialDelay); err != nil {
		return Poll{}, err
	}
	if p.MaxDelay, err = parseDuration("poll.max_delay", raw.MaxDelay, DefaultPoll.MaxDelay); err != nil {
		return Poll{}, err
	}
	if p.Timeout, err = parseDuration("poll.timeout", raw.Timeout, DefaultPoll.Timeout); err != nil {
		return Poll{}, err
	}
	if raw.Multiplier != 0 {
		if raw.Multiplier < 1 {
			return Poll{}, fmt.Errorf("poll.multiplier must be >= 1, got %v", raw.Multiplier)
		}
		p.Multiplier = raw.Multiplier
	}
	if p.MaxDelay < p.InitialDelay {
		return Poll{}, fmt.Errorf("poll.max_delay %s is shorter than poll.initial_delay %s", p.MaxDelay, p.InitialDelay)
	}
	return p, nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}

func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
