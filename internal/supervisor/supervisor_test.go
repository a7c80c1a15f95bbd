package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"planet/internal/config"
	"planet/internal/events"
	"planet/internal/ipfs"
	"planet/internal/services"
	"planet/internal/testsupport"
)

// fakeControl answers readiness probes from a script; the last entry repeats.
type fakeControl struct {
	mu        sync.Mutex
	script    []bool
	probes    int
	peers     int
	addrs     ipfs.Addresses
	shutdowns int
}

func (f *fakeControl) WebUIReachable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.probes
	f.probes++
	if len(f.script) == 0 {
		return false
	}
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx]
}

func (f *fakeControl) SwarmPeerCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers, nil
}

func (f *fakeControl) ConfigAddresses(context.Context) (ipfs.Addresses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addrs, nil
}

func (f *fakeControl) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeControl) setScript(script ...bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = script
	f.probes = 0
}

func (f *fakeControl) shutdownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdowns
}

func newTestSupervisor(t *testing.T, control *fakeControl, opts ...testsupport.ConfigOption) (*Supervisor, *config.Config, *events.Bus) {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubIPFS()}, opts...)...)
	bus := events.NewBus()
	endpoints := ipfs.NewEndpoints("127.0.0.1", 5981, 18181)
	runner := ipfs.NewRunner(cfg.BinaryPath(), cfg.RepoPath())
	s := New(cfg, runner, control, endpoints, bus, nil)
	s.killGrace = 2 * time.Second
	t.Cleanup(func() {
		s.Close(context.Background())
		bus.Close()
	})
	return s, cfg, bus
}

func callsWithPrefix(t *testing.T, cfg *config.Config, prefix string) []string {
	t.Helper()
	var out []string
	for _, call := range testsupport.ReadCalls(t, cfg.RepoPath()) {
		if strings.HasPrefix(call, prefix) {
			out = append(out, call)
		}
	}
	return out
}

func TestEnsureReadyInstallsAndInitializes(t *testing.T) {
	s, cfg, _ := newTestSupervisor(t, &fakeControl{})

	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
	if _, err := os.Stat(cfg.BinaryPath()); err != nil {
		t.Fatalf("binary not installed: %v", err)
	}
	calls := testsupport.ReadCalls(t, cfg.RepoPath())
	if len(calls) != 3 {
		t.Fatalf("unexpected calls %v", calls)
	}
	if calls[0] != "init" || calls[1] != "id" {
		t.Fatalf("unexpected call order %v", calls)
	}
	if !strings.HasPrefix(calls[2], "config --json Addresses.Swarm") {
		t.Fatalf("expected swarm config, got %q", calls[2])
	}
}

func TestEnsureReadyExistingRepoOnlyProbes(t *testing.T) {
	s, cfg, _ := newTestSupervisor(t, &fakeControl{})
	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("first EnsureReady: %v", err)
	}
	before := len(testsupport.ReadCalls(t, cfg.RepoPath()))
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("second EnsureReady: %v", err)
	}
	calls := testsupport.ReadCalls(t, cfg.RepoPath())[before:]
	if len(calls) != 1 || calls[0] != "id" {
		t.Fatalf("expected a single id probe, got %v", calls)
	}
}

func TestEnsureReadyInstallFailureIsFatal(t *testing.T) {
	s, cfg, _ := newTestSupervisor(t, &fakeControl{})
	cfg.IPFS.SourceBinary = filepath.Join(t.TempDir(), "missing", "ipfs")

	err := s.EnsureReady(context.Background())
	if !errors.Is(err, services.ErrInstall) {
		t.Fatalf("expected install error, got %v", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	if err := s.Launch(context.Background()); !errors.Is(err, services.ErrInstall) {
		t.Fatalf("launch after failed install = %v", err)
	}
	if err := s.EnsureReady(context.Background()); !errors.Is(err, services.ErrInstall) {
		t.Fatalf("failed state should stick, got %v", err)
	}
}

func TestLaunchRetriesUntilOnline(t *testing.T) {
	control := &fakeControl{script: []bool{false, false, false, true}, peers: 3}
	s, cfg, bus := newTestSupervisor(t, control)
	online, cancel := bus.Subscribe(4, events.DaemonOnline)
	defer cancel()

	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if err := s.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if s.State() != StateOnline {
		t.Fatalf("expected online, got %s", s.State())
	}
	if s.PID() == 0 {
		t.Fatal("expected a daemon pid")
	}
	if got := ipfs.ReadPID(cfg.DaemonPIDPath()); got != s.PID() {
		t.Fatalf("pid file = %d, want %d", got, s.PID())
	}
	if starts := callsWithPrefix(t, cfg, "daemon"); len(starts) != 1 {
		t.Fatalf("expected one daemon start while the first is running, got %v", starts)
	}

	select {
	case ev := <-online:
		if ev.PeerCount != 3 {
			t.Fatalf("peer count = %d", ev.PeerCount)
		}
	case <-time.After(time.Second):
		t.Fatal("expected DaemonOnline event")
	}

	// A second launch against an online daemon does nothing.
	if err := s.Launch(ctx); err != nil {
		t.Fatalf("second Launch: %v", err)
	}
	select {
	case ev := <-online:
		t.Fatalf("unexpected second online event %+v", ev)
	default:
	}
}

func TestLaunchGivesUpAfterMaxAttempts(t *testing.T) {
	control := &fakeControl{script: []bool{false}}
	s, _, _ := newTestSupervisor(t, control)
	s.maxAttempts = 2
	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	err := s.Launch(ctx)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready after giving up, got %s", s.State())
	}
}

func TestLaunchBeforeReadyFails(t *testing.T) {
	s, _, _ := newTestSupervisor(t, &fakeControl{})
	if err := s.Launch(context.Background()); !errors.Is(err, services.ErrInit) {
		t.Fatalf("expected init error, got %v", err)
	}
}

func TestRelaunchIfNeededNoopWhenListenersMatch(t *testing.T) {
	control := &fakeControl{
		script: []bool{true},
		addrs: ipfs.Addresses{
			API:     []string{ipfs.LoopbackMultiaddr(5981)},
			Gateway: []string{ipfs.LoopbackMultiaddr(18181)},
		},
	}
	s, cfg, _ := newTestSupervisor(t, control)
	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if err := s.RelaunchIfNeeded(ctx); err != nil {
		t.Fatalf("RelaunchIfNeeded: %v", err)
	}
	if control.shutdownCount() != 0 {
		t.Fatalf("unexpected shutdown")
	}
	if starts := callsWithPrefix(t, cfg, "daemon"); len(starts) != 0 {
		t.Fatalf("unexpected daemon start %v", starts)
	}
	if s.State() != StateOnline {
		t.Fatalf("expected online, got %s", s.State())
	}
}

func TestApplyPortsWritesConfigAndRelaunches(t *testing.T) {
	control := &fakeControl{
		addrs: ipfs.Addresses{
			API:     []string{ipfs.LoopbackMultiaddr(5981)},
			Gateway: []string{ipfs.LoopbackMultiaddr(18181)},
		},
	}
	s, cfg, _ := newTestSupervisor(t, control)
	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	// online on old ports, then offline after shutdown, then up on the new ports
	control.setScript(true, false, true)

	if err := s.ApplyPorts(ctx, 5983, 18183); err != nil {
		t.Fatalf("ApplyPorts: %v", err)
	}
	writes := callsWithPrefix(t, cfg, "config Addresses.")
	want := []string{
		"config Addresses.API /ip4/127.0.0.1/tcp/5983",
		"config Addresses.Gateway /ip4/127.0.0.1/tcp/18183",
	}
	if len(writes) != len(want) || writes[0] != want[0] || writes[1] != want[1] {
		t.Fatalf("config writes = %v", writes)
	}
	if control.shutdownCount() != 1 {
		t.Fatalf("expected one shutdown, got %d", control.shutdownCount())
	}
	if s.endpoints.APIPort() != 5983 || s.endpoints.GatewayPort() != 18183 {
		t.Fatalf("endpoints not switched: %d/%d", s.endpoints.APIPort(), s.endpoints.GatewayPort())
	}
	if starts := callsWithPrefix(t, cfg, "daemon"); len(starts) != 1 {
		t.Fatalf("expected one daemon start, got %v", starts)
	}
	if s.State() != StateOnline {
		t.Fatalf("expected online, got %s", s.State())
	}
}

func TestShutdownTerminatesDaemon(t *testing.T) {
	control := &fakeControl{script: []bool{false, true}}
	s, cfg, _ := newTestSupervisor(t, control)
	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if err := s.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		t.Fatal("expected running process")
	}

	s.Shutdown(ctx, false)

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("daemon still running after shutdown")
	}
	if _, err := os.Stat(cfg.DaemonPIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
	if s.State() != StateReady {
		t.Fatalf("expected ready, got %s", s.State())
	}
}

func TestShutdownRequestWaitsForConfigQueue(t *testing.T) {
	control := &fakeControl{}
	s, _, _ := newTestSupervisor(t, control)
	ctx := context.Background()
	if err := s.configQueue.acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Shutdown(ctx, false)
	}()
	time.Sleep(50 * time.Millisecond)
	if got := control.shutdownCount(); got != 0 {
		t.Fatalf("shutdown sent while the config queue was held (%d)", got)
	}

	s.configQueue.release()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not finish after the queue was released")
	}
	if got := control.shutdownCount(); got != 1 {
		t.Fatalf("expected one shutdown request, got %d", got)
	}
}

func TestPreparedTracksRepoAndPorts(t *testing.T) {
	s, _, _ := newTestSupervisor(t, &fakeControl{})
	ctx := context.Background()
	s.StopNode(ctx)
	if s.Prepared() {
		t.Fatal("fresh supervisor must not be prepared")
	}
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if s.Prepared() {
		t.Fatal("ports not written yet")
	}
	if err := s.ApplyPorts(ctx, 5982, 18182); err != nil {
		t.Fatalf("ApplyPorts: %v", err)
	}
	if !s.Prepared() {
		t.Fatal("expected prepared after ports were written")
	}
	s.Close(ctx)
	if s.Prepared() {
		t.Fatal("Close must reset preparation")
	}
}

func TestStopNodeDisablesLaunch(t *testing.T) {
	s, _, _ := newTestSupervisor(t, &fakeControl{})
	ctx := context.Background()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	s.StopNode(ctx)
	if s.LaunchEnabled() {
		t.Fatal("expected launch disabled")
	}
	if err := s.Launch(ctx); !errors.Is(err, ErrLaunchDisabled) {
		t.Fatalf("expected ErrLaunchDisabled, got %v", err)
	}
}

func TestWatchRepoConfigAdoptsEditedPorts(t *testing.T) {
	s, cfg, _ := newTestSupervisor(t, &fakeControl{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	s.launchEnabled.Store(false)
	s.watchDebounce = 20 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- s.WatchRepoConfig(ctx) }()
	time.Sleep(50 * time.Millisecond)

	doc := `{"Addresses":{"API":"/ip4/127.0.0.1/tcp/5990","Gateway":"/ip4/127.0.0.1/tcp/18190"}}`
	if err := os.WriteFile(filepath.Join(cfg.RepoPath(), ipfs.RepoConfigFile), []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s.Config().APIPort == 5990 && s.endpoints.GatewayPort() == 18190 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if got := s.Config(); got.APIPort != 5990 || got.GatewayPort != 18190 {
		t.Fatalf("desired ports = %d/%d", got.APIPort, got.GatewayPort)
	}
	if s.endpoints.APIPort() != 5990 {
		t.Fatalf("endpoints not switched: %d", s.endpoints.APIPort())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("WatchRepoConfig: %v", err)
	}
}
