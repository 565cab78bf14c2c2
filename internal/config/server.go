package config

import (
	"fmt"
	"strings"
	"time"
)

// Server holds the development API settings. It is read from the
// environment only.
type Server struct {
	Addr            string        `env:"KIOSKD_ADDR"             envDefault:"127.0.0.1:8088"`
	DBPath          string        `env:"KIOSKD_DB"               envDefault:"~/.local/share/kiosk/kioskd.db"`
	ProcessingDelay time.Duration `env:"KIOSKD_PROCESSING_DELAY" envDefault:"6s"`
	Seed            bool          `env:"KIOSKD_SEED"             envDefault:"true"`
}

// LoadServer parses KIOSKD_* variables.
func LoadServer() (Server, error) {
	var cfg Server
	if err := parseEnv(&cfg); err != nil {
		return Server{}, err
	}
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return Server{}, fmt.Errorf("KIOSKD_ADDR is empty")
	}
	if cfg.ProcessingDelay < 0 {
		return Server{}, fmt.Errorf("KIOSKD_PROCESSING_DELAY must not be negative")
	}
	dbPath, err := expandPath(cfg.DBPath)
	if err != nil {
		return Server{}, fmt.Errorf("KIOSKD_DB: %w", err)
	}
	cfg.DBPath = dbPath
	return cfg, nil
}
