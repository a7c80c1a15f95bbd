package ipfs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"planet/internal/ipfs"
	"planet/internal/services"
	"planet/internal/testsupport"
)

func newRunner(t *testing.T) *ipfs.Runner {
	t.Helper()
	dir := t.TempDir()
	binary := testsupport.WriteExecutable(t, filepath.Join(dir, "ipfs"), testsupport.StubIPFSScript)
	return ipfs.NewRunner(binary, filepath.Join(dir, "repo"))
}

func TestRunnerInitCreatesRepo(t *testing.T) {
	runner := newRunner(t)
	if err := runner.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(runner.RepoPath, "config")); err != nil {
		t.Fatalf("expected repo config: %v", err)
	}
	info, err := runner.ID(context.Background())
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	if info.ID != "12D3KooWStubPeer" {
		t.Fatalf("unexpected id %q", info.ID)
	}
}

func TestRunnerConfigCommands(t *testing.T) {
	runner := newRunner(t)
	ctx := context.Background()
	if err := runner.SetAPIPort(ctx, 5982); err != nil {
		t.Fatalf("SetAPIPort: %v", err)
	}
	if err := runner.SetSwarmPort(ctx, 4001); err != nil {
		t.Fatalf("SetSwarmPort: %v", err)
	}
	calls := testsupport.ReadCalls(t, runner.RepoPath)
	if len(calls) != 2 {
		t.Fatalf("unexpected calls %v", calls)
	}
	if calls[0] != "config Addresses.API /ip4/127.0.0.1/tcp/5982" {
		t.Fatalf("unexpected api call %q", calls[0])
	}
	if !strings.HasPrefix(calls[1], "config --json Addresses.Swarm [") {
		t.Fatalf("unexpected swarm call %q", calls[1])
	}
}

func TestRunnerAddDirectoryReturnsRootCID(t *testing.T) {
	runner := newRunner(t)
	cid, err := runner.AddDirectory(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("AddDirectory: %v", err)
	}
	if !strings.HasPrefix(cid, "bafy") {
		t.Fatalf("unexpected cid %q", cid)
	}
}

func TestRunnerFailureIncludesStderr(t *testing.T) {
	runner := newRunner(t)
	_, err := runner.Run(context.Background(), "fail")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestRunnerStartDaemonAndPIDFile(t *testing.T) {
	runner := newRunner(t)
	logPath := filepath.Join(t.TempDir(), "daemon.log")
	proc, err := runner.StartDaemon(logPath)
	if err != nil {
		t.Fatalf("StartDaemon: %v", err)
	}
	t.Cleanup(func() { _ = syscall.Kill(proc.PID, syscall.SIGKILL) })

	pidPath := filepath.Join(t.TempDir(), "ipfs.pid")
	if err := ipfs.WritePID(pidPath, proc.PID); err != nil {
		t.Fatalf("WritePID: %v", err)
	}
	if got := ipfs.ReadPID(pidPath); got != proc.PID {
		t.Fatalf("ReadPID = %d, want %d", got, proc.PID)
	}

	_ = syscall.Kill(proc.PID, syscall.SIGTERM)
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon process did not exit")
	}
}

func TestReadPIDMissingOrMalformed(t *testing.T) {
	dir := t.TempDir()
	if got := ipfs.ReadPID(filepath.Join(dir, "absent")); got != 0 {
		t.Fatalf("ReadPID(absent) = %d", got)
	}
	bad := filepath.Join(dir, "bad")
	if err := os.WriteFile(bad, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := ipfs.ReadPID(bad); got != 0 {
		t.Fatalf("ReadPID(bad) = %d", got)
	}
}
