package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"planet/internal/config"
	"planet/internal/daemon"
	"planet/internal/feeds"
	"planet/internal/ipc"
	"planet/internal/logging"
	"planet/internal/testsupport"
)

type freePorts struct{}

func (freePorts) Available(context.Context, uint16) bool { return true }

type cliTestEnv struct {
	cfg        *config.Config
	store      *feeds.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
	logPath    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubIPFS())
	cfg.IPFS.AutoLaunch = false
	cfg.IPFS.APIPortMin, cfg.IPFS.APIPortMax = 46991, 46995
	cfg.IPFS.GatewayPortMin, cfg.IPFS.GatewayPortMax = 49191, 49195
	cfg.IPFS.SwarmPort = 44111
	cfg.Paths.APIBind = ""

	configPath := filepath.Join(homeDir, ".config", "planet", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logPath := filepath.Join(cfg.Paths.LogDir, "planet-test.log")
	if err := os.WriteFile(logPath, nil, 0o644); err != nil {
		t.Fatalf("create log file: %v", err)
	}

	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger, daemon.WithLogPath(logPath), daemon.WithProber(freePorts{}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
		logPath:    logPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
base_dir = %q
log_dir = %q
api_bind = %q

[ipfs]
source_binary = %q
api_port_min = %d
api_port_max = %d
gateway_port_min = %d
gateway_port_max = %d
swarm_port = %d
auto_launch = false
watch_repo_config = false
`,
		cfg.Paths.BaseDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.IPFS.SourceBinary,
		cfg.IPFS.APIPortMin, cfg.IPFS.APIPortMax,
		cfg.IPFS.GatewayPortMin, cfg.IPFS.GatewayPortMax,
		cfg.IPFS.SwarmPort,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
