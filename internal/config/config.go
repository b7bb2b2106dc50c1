// Package config loads SwiftLens configuration from a global file, a
// per-project override file, and environment variables, in that
// precedence order. Grounded on the teacher's config.Config /
// DefaultConfig / LoadConfig shape and paths.ProjectPaths, reworked for
// SwiftLens's own settings (§6, SPEC_FULL.md AMBIENT STACK).
package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds every tunable SwiftLens setting. Fields default via
// DefaultConfig, are overridden first by the global file, then the
// per-project file, then environment variables.
type Config struct {
	BatchWorkers   int    `json:"batch_workers"`
	LSPPath        string `json:"lsp_path"`
	TelemetryDB    string `json:"telemetry_db"`
	DashboardPort  int    `json:"dashboard_port"`
}

// DefaultConfig returns the baseline configuration before any file or
// environment override is applied.
func DefaultConfig() *Config {
	return &Config{
		BatchWorkers:  4,
		LSPPath:       "sourcekit-lsp",
		TelemetryDB:   defaultTelemetryDBPath(),
		DashboardPort: 0,
	}
}

func defaultTelemetryDBPath() string {
	dir, err := GlobalDir()
	if err != nil {
		return "swiftlens-telemetry.db"
	}
	return filepath.Join(dir, "telemetry.db")
}

// GlobalDir returns ~/.swiftlens.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".swiftlens"), nil
}

// GlobalConfigPath returns ~/.swiftlens/config.json.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LocalConfigPath returns <root>/.swiftlens/config.json for the given
// project root.
func LocalConfigPath(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("config: resolve project root: %w", err)
	}
	return filepath.Join(abs, ".swiftlens", "config.json"), nil
}

// Load builds the effective configuration for root: defaults, then the
// global file, then the local file, then environment variables, each
// layer overriding the last where it sets a non-zero value.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := GlobalConfigPath(); err == nil {
		if global, err := loadFile(globalPath); err == nil {
			merge(cfg, global)
		}
	}

	if root != "" {
		if localPath, err := LocalConfigPath(root); err == nil {
			if local, err := loadFile(localPath); err == nil {
				merge(cfg, local)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func merge(dst, src *Config) {
	if src.BatchWorkers > 0 {
		dst.BatchWorkers = src.BatchWorkers
	}
	if src.LSPPath != "" {
		dst.LSPPath = src.LSPPath
	}
	if src.TelemetryDB != "" {
		dst.TelemetryDB = src.TelemetryDB
	}
	if src.DashboardPort > 0 {
		dst.DashboardPort = src.DashboardPort
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SWIFTLENS_BATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchWorkers = n
		}
	}
	if v := os.Getenv("SWIFTLENS_LSP_PATH"); v != "" {
		cfg.LSPPath = v
	}
	if v := os.Getenv("SWIFTLENS_TELEMETRY_DB"); v != "" {
		cfg.TelemetryDB = v
	}
	if v := os.Getenv("SWIFTLENS_DASHBOARD_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DashboardPort = n
		}
	}
}

// Save writes cfg to <root>/.swiftlens/config.json, creating the
// directory if needed.
func Save(root string, cfg *Config) error {
	path, err := LocalConfigPath(root)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create project config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ProjectHash derives a stable directory-safe identifier for a project
// root, the same way the teacher's paths.generateProjectHash does, for
// callers that need a per-project scratch directory distinct from
// <root>/.swiftlens.
func ProjectHash(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(abs))
	return fmt.Sprintf("%x", sum)[:16], nil
}
