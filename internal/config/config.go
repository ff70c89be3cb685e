// Package config loads host-side session tunables for the Penumbra core.
//
// It is deliberately thin: the protocol engines never read it directly
// (see SPEC_FULL.md's AMBIENT STACK section) — it exists for the optional
// convenience constructors an external UI/CLI collaborator may use to build
// a Device without wiring every timeout by hand.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SessionConfig carries the knobs a caller may want to override without
// touching code: default timeouts, the built-in keyring's extra entries,
// and paths to vendor blobs the caller would otherwise pass explicitly.
type SessionConfig struct {
	ReadTimeout     time.Duration
	BootToTimeout   time.Duration
	DAPath          string
	PreloaderPath   string
	ExtraKeyringHex string // "n_hex:d_hex[,n_hex:d_hex...]"
}

var (
	sessionConfig *SessionConfig
	configLoaded  bool
)

const (
	defaultReadTimeout   = 5 * time.Second
	defaultBootToTimeout = 30 * time.Second
)

// Load reads `.env`-style overrides from the project root and the process
// environment, memoizing the result for the lifetime of the process.
func Load() (*SessionConfig, error) {
	if sessionConfig != nil && configLoaded {
		return sessionConfig, nil
	}

	cfg := &SessionConfig{
		ReadTimeout:   defaultReadTimeout,
		BootToTimeout: defaultBootToTimeout,
	}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")

	if data, err := os.ReadFile(envPath); err == nil {
		parseEnvFile(string(data), cfg)
	}

	if v := os.Getenv("PENUMBRA_READ_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.ReadTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("PENUMBRA_BOOT_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.BootToTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("PENUMBRA_DA_PATH"); v != "" {
		cfg.DAPath = v
	}
	if v := os.Getenv("PENUMBRA_PRELOADER_PATH"); v != "" {
		cfg.PreloaderPath = v
	}
	if v := os.Getenv("PENUMBRA_EXTRA_KEYS"); v != "" {
		cfg.ExtraKeyringHex = v
	}

	sessionConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *SessionConfig) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "PENUMBRA_READ_TIMEOUT_MS":
			if ms, err := strconv.Atoi(value); err == nil {
				cfg.ReadTimeout = time.Duration(ms) * time.Millisecond
			}
		case "PENUMBRA_BOOT_TIMEOUT_MS":
			if ms, err := strconv.Atoi(value); err == nil {
				cfg.BootToTimeout = time.Duration(ms) * time.Millisecond
			}
		case "PENUMBRA_DA_PATH":
			cfg.DAPath = value
		case "PENUMBRA_PRELOADER_PATH":
			cfg.PreloaderPath = value
		case "PENUMBRA_EXTRA_KEYS":
			cfg.ExtraKeyringHex = value
		}
	}
}

func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}
