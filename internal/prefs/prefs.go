// Package prefs persists kiosk UI preferences in ~/.config/kiosk/prefs.toml.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Prefs holds user preferences for the storefront UI.
type Prefs struct {
	Theme string `toml:"theme"`
	View  string `toml:"view"`
}

const (
	defaultPrefsPath = "~/.config/kiosk/prefs.toml"
	defaultTheme     = "Nightfox"
	defaultView      = "products"
)

// Default returns the preferences used when nothing is stored.
func Default() Prefs {
	return Prefs{Theme: defaultTheme, View: defaultView}
}

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads preferences from path. Missing, unreadable or corrupt files
// yield defaults; the error is always nil so a bad file never blocks startup.
func Load(path string) (Prefs, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Default(), nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return Default(), nil
	}
	var p Prefs
	if err := toml.Unmarshal(data, &p); err != nil {
		return Default(), nil
	}
	return p.normalized(), nil
}

// Save writes preferences to path through a temp file and rename so a crash
// mid-write leaves the previous file intact.
func Save(path string, p Prefs) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve prefs path: %w", err)
	}
	data, err := toml.Marshal(p.normalized())
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.toml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

func (p Prefs) normalized() Prefs {
	p.Theme = strings.TrimSpace(p.Theme)
	if p.Theme == "" {
		p.Theme = defaultTheme
	}
	p.View = strings.ToLower(strings.TrimSpace(p.View))
	if p.View == "" {
		p.View = defaultView
	}
	return p
}

func resolvePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultPrefsPath
	}
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, rest)
	}
	return filepath.Abs(path)
}
