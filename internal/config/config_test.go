package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"planet/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PLANET_API_TOKEN", "secret")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantBase := filepath.Join(tempHome, ".local", "share", "planet")
	if cfg.Paths.BaseDir != wantBase {
		t.Fatalf("unexpected base dir: got %q want %q", cfg.Paths.BaseDir, wantBase)
	}
	if cfg.BinaryPath() != filepath.Join(wantBase, "ipfs") {
		t.Fatalf("unexpected binary path: %q", cfg.BinaryPath())
	}
	if cfg.RepoPath() != filepath.Join(wantBase, "repo") {
		t.Fatalf("unexpected repo path: %q", cfg.RepoPath())
	}
	if cfg.FeedsDir() != filepath.Join(wantBase, "planets") {
		t.Fatalf("unexpected feeds dir: %q", cfg.FeedsDir())
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected API token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.IPFS.APIPortMin != 5981 || cfg.IPFS.APIPortMax != 5991 {
		t.Fatalf("unexpected api port range: %d-%d", cfg.IPFS.APIPortMin, cfg.IPFS.APIPortMax)
	}
	if cfg.IPFS.GatewayPortMin != 18181 || cfg.IPFS.GatewayPortMax != 18191 {
		t.Fatalf("unexpected gateway port range: %d-%d", cfg.IPFS.GatewayPortMin, cfg.IPFS.GatewayPortMax)
	}
	if cfg.PublishTimeout() != 600*time.Second || cfg.PinTimeout() != 120*time.Second {
		t.Fatalf("unexpected timeouts: publish=%s pin=%s", cfg.PublishTimeout(), cfg.PinTimeout())
	}
	if cfg.Scheduler.PublishInterval != 600 || cfg.Scheduler.UpdateInterval != 300 {
		t.Fatalf("unexpected scheduler intervals: %+v", cfg.Scheduler)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths": map[string]any{
			"base_dir": "~/planet-data",
			"log_dir":  "~/planet-logs",
		},
		"ipfs": map[string]any{
			"api_port_min":  6000,
			"api_port_max":  6002,
			"swarm_port":    4101,
			"source_binary": "~/bin/ipfs",
		},
		"logging": map[string]any{
			"format":           "JSON",
			"component_levels": map[string]any{" Supervisor ": "DEBUG"},
		},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used: exists=%v resolved=%q", exists, resolved)
	}
	if cfg.Paths.BaseDir != filepath.Join(tempHome, "planet-data") {
		t.Fatalf("unexpected base dir: %q", cfg.Paths.BaseDir)
	}
	if cfg.IPFS.SourceBinary != filepath.Join(tempHome, "bin", "ipfs") {
		t.Fatalf("unexpected source binary: %q", cfg.IPFS.SourceBinary)
	}
	if cfg.IPFS.APIPortMin != 6000 || cfg.IPFS.APIPortMax != 6002 {
		t.Fatalf("unexpected api port range: %d-%d", cfg.IPFS.APIPortMin, cfg.IPFS.APIPortMax)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.ComponentLevels["supervisor"] != "debug" {
		t.Fatalf("expected normalized component level, got %v", cfg.Logging.ComponentLevels)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[ipfs]\napi_port = 5001\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateRejectsOverlappingRanges(t *testing.T) {
	cfg := config.Default()
	cfg.IPFS.GatewayPortMin = 5990
	cfg.IPFS.GatewayPortMax = 6000
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "overlap") {
		t.Fatalf("expected overlap error, got %v", err)
	}
}

func TestValidateRejectsSwarmInsideRange(t *testing.T) {
	cfg := config.Default()
	cfg.IPFS.SwarmPort = 5985
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected swarm port inside api range to be rejected")
	}
}

func TestValidateRejectsInvertedRange(t *testing.T) {
	cfg := config.Default()
	cfg.IPFS.APIPortMin = 5991
	cfg.IPFS.APIPortMax = 5981
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected inverted range to be rejected")
	}
}

func TestValidateRequiresPositiveTimeouts(t *testing.T) {
	cfg := config.Default()
	cfg.Timeouts.Gateway = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "timeouts.gateway") {
		t.Fatalf("expected timeouts.gateway error, got %v", err)
	}
}

func TestValidateRejectsUnknownComponentLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.ComponentLevels = map[string]string{"health": "verbose"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid component level to be rejected")
	}
}

func TestValidateRejectsUnknownFileLevel(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.FileLevel = "trace"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "logging.file_level") {
		t.Fatalf("expected logging.file_level error, got %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	defaults := config.Default()
	if cfg.IPFS.SwarmPort != defaults.IPFS.SwarmPort || cfg.Scheduler.StatusInterval != defaults.Scheduler.StatusInterval {
		t.Fatalf("sample config drifted from defaults: %+v", cfg)
	}
}

func TestEnsureDirectoriesCreatesLayout(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.BaseDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.BaseDir, cfg.Paths.LogDir, cfg.FeedsDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
