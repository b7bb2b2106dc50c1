package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BatchWorkers != 4 {
		t.Errorf("expected default BatchWorkers 4, got %d", cfg.BatchWorkers)
	}
	if cfg.LSPPath != "sourcekit-lsp" {
		t.Errorf("expected default LSPPath sourcekit-lsp, got %q", cfg.LSPPath)
	}
	if cfg.DashboardPort != 0 {
		t.Errorf("expected default DashboardPort 0, got %d", cfg.DashboardPort)
	}
}

func TestLoadMergesLocalOverGlobal(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	globalDir := filepath.Join(home, ".swiftlens")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}
	globalCfg := Config{BatchWorkers: 8, LSPPath: "/usr/bin/sourcekit-lsp"}
	writeJSON(t, filepath.Join(globalDir, "config.json"), globalCfg)

	root := t.TempDir()
	localDir := filepath.Join(root, ".swiftlens")
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		t.Fatal(err)
	}
	localCfg := Config{BatchWorkers: 2}
	writeJSON(t, filepath.Join(localDir, "config.json"), localCfg)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchWorkers != 2 {
		t.Fatalf("expected local override to win, got BatchWorkers=%d", cfg.BatchWorkers)
	}
	if cfg.LSPPath != "/usr/bin/sourcekit-lsp" {
		t.Fatalf("expected global value to carry through when local doesn't set it, got %q", cfg.LSPPath)
	}
}

func TestLoadAppliesEnvironmentOverridesLast(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	root := t.TempDir()

	t.Setenv("SWIFTLENS_BATCH_WORKERS", "16")
	t.Setenv("SWIFTLENS_LSP_PATH", "/opt/swift/sourcekit-lsp")
	t.Setenv("SWIFTLENS_TELEMETRY_DB", filepath.Join(root, "tel.db"))
	t.Setenv("SWIFTLENS_DASHBOARD_PORT", "9191")

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchWorkers != 16 {
		t.Fatalf("expected env override BatchWorkers=16, got %d", cfg.BatchWorkers)
	}
	if cfg.LSPPath != "/opt/swift/sourcekit-lsp" {
		t.Fatalf("expected env override LSPPath, got %q", cfg.LSPPath)
	}
	if cfg.DashboardPort != 9191 {
		t.Fatalf("expected env override DashboardPort=9191, got %d", cfg.DashboardPort)
	}
}

func TestSaveWritesLocalConfigFile(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.BatchWorkers = 12

	if err := Save(root, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := LocalConfigPath(root)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
	var got Config
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.BatchWorkers != 12 {
		t.Fatalf("expected saved BatchWorkers=12, got %d", got.BatchWorkers)
	}
}

func TestProjectHashIsStableForSamePath(t *testing.T) {
	root := t.TempDir()
	a, err := ProjectHash(root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := ProjectHash(root)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected stable hash for the same root, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected a 16-character hash, got %q", a)
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
