package health

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"planet/internal/events"
	"planet/internal/ipfs"
	"planet/internal/metrics"
	"planet/internal/services"
	"planet/internal/testsupport"
)

type fakeClient struct {
	mu        sync.Mutex
	online    bool
	idCalls   atomic.Int32
	repoCalls atomic.Int32
	repoPath  string
	repoDelay time.Duration
	peers     int
	bw        ipfs.BandwidthStats
}

func (f *fakeClient) setOnline(v bool) {
	f.mu.Lock()
	f.online = v
	f.mu.Unlock()
}

func (f *fakeClient) ID(context.Context) (ipfs.IDInfo, error) {
	f.idCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return ipfs.IDInfo{}, errors.New("connection refused")
	}
	return ipfs.IDInfo{ID: "12D3KooWStubPeer", AgentVersion: "kubo/0.29.0"}, nil
}

func (f *fakeClient) Version(context.Context) (ipfs.VersionInfo, error) {
	return ipfs.VersionInfo{Version: "0.29.0"}, nil
}

func (f *fakeClient) setPeers(n int) {
	f.mu.Lock()
	f.peers = n
	f.mu.Unlock()
}

func (f *fakeClient) SwarmPeerCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers, nil
}

func (f *fakeClient) RepoStat(context.Context) (ipfs.RepoStat, error) {
	f.repoCalls.Add(1)
	if f.repoDelay > 0 {
		time.Sleep(f.repoDelay)
	}
	return ipfs.RepoStat{RepoSize: 4096, NumObjects: 12, RepoPath: f.repoPath}, nil
}

func (f *fakeClient) Bandwidth(context.Context) (ipfs.BandwidthStats, error) {
	return f.bw, nil
}

func newTestPoller(t *testing.T, client *fakeClient) (*Poller, *events.Bus) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.RepoPath(), 0o755); err != nil {
		t.Fatalf("mkdir repo: %v", err)
	}
	if client.repoPath == "" {
		client.repoPath = cfg.RepoPath()
	}
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	p := New(cfg, client, ipfs.NewEndpoints("", 5981, 18181), bus, metrics.New(), nil)
	return p, bus
}

func TestPollOnceOnlineTransition(t *testing.T) {
	client := &fakeClient{online: true, peers: 7, bw: ipfs.BandwidthStats{RateIn: 10, RateOut: 20}}
	p, bus := newTestPoller(t, client)
	changes, cancel := bus.Subscribe(8, events.StatusChanged)
	defer cancel()

	status := p.PollOnce(context.Background())
	if !status.Online {
		t.Fatal("expected online")
	}
	if status.APIPort != 5981 || status.GatewayPort != 18181 {
		t.Fatalf("unexpected ports %d/%d", status.APIPort, status.GatewayPort)
	}
	if status.RepoSize == nil || *status.RepoSize != 4096 {
		t.Fatalf("unexpected repo size %v", status.RepoSize)
	}
	if len(status.Bandwidth) != 1 || status.Bandwidth[0].RateOut != 20 {
		t.Fatalf("unexpected bandwidth %+v", status.Bandwidth)
	}

	p.infoWG.Wait()
	snap := p.Snapshot()
	if snap.Server.Peers != 7 || snap.Server.IPFSVersion != "0.29.0" || snap.Server.PeerID != "12D3KooWStubPeer" {
		t.Fatalf("unexpected server info %+v", snap.Server)
	}

	select {
	case ev := <-changes:
		if ev.State != "online" {
			t.Fatalf("unexpected state %q", ev.State)
		}
	case <-time.After(time.Second):
		t.Fatal("expected status change event")
	}

	// A steady online poll does not refetch server info.
	before := client.idCalls.Load()
	p.PollOnce(context.Background())
	p.infoWG.Wait()
	if got := client.idCalls.Load() - before; got != 1 {
		t.Fatalf("expected only the probe id call, got %d", got)
	}
}

func TestPollOnceRefreshesPeersWhileOnline(t *testing.T) {
	client := &fakeClient{online: true, peers: 3}
	p, _ := newTestPoller(t, client)
	p.PollOnce(context.Background())
	p.infoWG.Wait()
	if got := p.Snapshot().Server.Peers; got != 3 {
		t.Fatalf("expected 3 peers after transition, got %d", got)
	}

	client.setPeers(11)
	status := p.PollOnce(context.Background())
	if status.Server.Peers != 11 {
		t.Fatalf("expected peer count to follow the node, got %d", status.Server.Peers)
	}
	if status.Server.PeerID != "12D3KooWStubPeer" {
		t.Fatalf("server info lost on peer refresh: %+v", status.Server)
	}
}

func TestPollOnceOfflineClearsPeers(t *testing.T) {
	client := &fakeClient{online: true, peers: 2}
	p, _ := newTestPoller(t, client)
	p.PollOnce(context.Background())
	p.infoWG.Wait()

	client.setOnline(false)
	status := p.PollOnce(context.Background())
	if status.Online || status.Server.Peers != 0 {
		t.Fatalf("unexpected offline status %+v", status)
	}
}

func TestRepoSizeRejectsForeignRepo(t *testing.T) {
	client := &fakeClient{online: true, repoPath: "/elsewhere/repo"}
	p, _ := newTestPoller(t, client)
	if _, err := p.RepoSize(context.Background()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRepoSizeMissingDirectory(t *testing.T) {
	client := &fakeClient{online: true}
	p, _ := newTestPoller(t, client)
	if err := os.RemoveAll(p.repoPath); err != nil {
		t.Fatalf("remove repo: %v", err)
	}
	if _, err := p.RepoSize(context.Background()); !errors.Is(err, services.ErrDirectoryMissing) {
		t.Fatalf("expected directory missing, got %v", err)
	}
	if client.repoCalls.Load() != 0 {
		t.Fatal("repo/stat should not be called without a repo")
	}
}

func TestRepoSizeSingleFlight(t *testing.T) {
	client := &fakeClient{online: true, repoDelay: 100 * time.Millisecond}
	p, _ := newTestPoller(t, client)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.RepoSize(context.Background()); err != nil {
				t.Errorf("RepoSize: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := client.repoCalls.Load(); got >= 5 {
		t.Fatalf("expected shared repo/stat calls, got %d", got)
	}
}

func TestRunRetriesQuicklyWhileOffline(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestPoller(t, client)
	p.interval = time.Hour
	p.retryDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for client.idCalls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if client.idCalls.Load() < 3 {
		t.Fatalf("expected retries while offline, got %d probes", client.idCalls.Load())
	}
}
