package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"planet/internal/config"
	"planet/internal/events"
	"planet/internal/feeds"
	"planet/internal/ipfs"
	"planet/internal/scheduler"
	"planet/internal/services"
	"planet/internal/supervisor"
	"planet/internal/testsupport"
)

type recorder struct {
	mu   sync.Mutex
	ids  []string
	reqs map[string]struct{}
}

func (r *recorder) record(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	if r.reqs == nil {
		r.reqs = map[string]struct{}{}
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		r.reqs[rid] = struct{}{}
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *recorder) correlationIDs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

type publisher struct{ recorder }

func (p *publisher) Publish(ctx context.Context, id string) error { return p.record(ctx, id) }

type updater struct{ recorder }

func (u *updater) Update(ctx context.Context, id string) error { return u.record(ctx, id) }

type readiness struct{ online atomic.Bool }

func (r *readiness) Online(context.Context) bool { return r.online.Load() }

type fixture struct {
	cfg       *config.Config
	store     *feeds.Store
	publisher *publisher
	updater   *updater
	bus       *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubIPFS())
	store := testsupport.MustOpenStore(t, cfg)
	layout := feeds.NewLayout(cfg.FeedsDir())
	testsupport.NewLocalFeed(t, store, layout, "one")
	testsupport.NewLocalFeed(t, store, layout, "two")
	testsupport.NewFollowedFeed(t, store, "remote", testsupport.Address("remote"))
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	return &fixture{cfg: cfg, store: store, publisher: &publisher{}, updater: &updater{}, bus: bus}
}

func (f *fixture) scheduler(ready scheduler.Readiness) *scheduler.Scheduler {
	return scheduler.New(f.cfg, f.store, f.publisher, f.updater, ready, f.bus, nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestPassesFanOutPerFeed(t *testing.T) {
	f := newFixture(t)
	ready := &readiness{}
	ready.online.Store(true)
	s := f.scheduler(ready)

	n, err := s.PublishAll(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("PublishAll = %d, %v", n, err)
	}
	n, err = s.UpdateAll(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("UpdateAll = %d, %v", n, err)
	}
	if f.publisher.count() != 2 || f.updater.count() != 1 {
		t.Fatalf("unexpected calls publish=%d update=%d", f.publisher.count(), f.updater.count())
	}
	if f.publisher.correlationIDs() != 1 {
		t.Fatalf("one pass should share one correlation id, got %d", f.publisher.correlationIDs())
	}
}

func TestPassSkippedWhileOffline(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(&readiness{})

	if _, err := s.PublishAll(context.Background()); !errors.Is(err, scheduler.ErrDaemonOffline) {
		t.Fatalf("expected offline error, got %v", err)
	}
	if f.publisher.count() != 0 {
		t.Fatal("no publish expected while offline")
	}
}

func TestOnlineTransitionRunsOnePass(t *testing.T) {
	f := newFixture(t)
	ready := &readiness{}
	ready.online.Store(true)
	s := f.scheduler(ready)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	// no peers: no pass
	f.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: 0})
	f.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: 2})
	waitFor(t, func() bool { return f.publisher.count() == 2 && f.updater.count() == 1 })

	// same transition again: ignored
	f.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: 2})
	time.Sleep(100 * time.Millisecond)
	if f.publisher.count() != 2 {
		t.Fatalf("duplicate pass for one transition: %d publishes", f.publisher.count())
	}

	// daemon went away and came back
	f.bus.Publish(events.Event{Type: events.DaemonStateChanged, State: "ready"})
	f.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: 1})
	waitFor(t, func() bool { return f.publisher.count() == 4 && f.updater.count() == 2 })
}

func TestStartTwiceFails(t *testing.T) {
	f := newFixture(t)
	s := f.scheduler(&readiness{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}

// scriptedControl reports the daemon offline for the first probes.
type scriptedControl struct {
	mu      sync.Mutex
	offline int
	probes  int
}

func (c *scriptedControl) WebUIReachable(context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes++
	return c.probes > c.offline
}

func (c *scriptedControl) SwarmPeerCount(context.Context) (int, error) { return 3, nil }

func (c *scriptedControl) ConfigAddresses(context.Context) (ipfs.Addresses, error) {
	return ipfs.Addresses{}, nil
}

func (c *scriptedControl) Shutdown(context.Context) error { return nil }

func TestLaunchScenarioRunsOnePass(t *testing.T) {
	f := newFixture(t)
	control := &scriptedControl{offline: 2}
	runner := ipfs.NewRunner(f.cfg.BinaryPath(), f.cfg.RepoPath())
	sup := supervisor.New(f.cfg, runner, control, ipfs.NewEndpoints("", 5981, 18181), f.bus, nil)
	t.Cleanup(func() { sup.Close(context.Background()) })

	s := f.scheduler(sup)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	ctx := context.Background()
	if err := sup.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if err := sup.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if sup.State() != supervisor.StateOnline {
		t.Fatalf("expected online, got %s", sup.State())
	}

	waitFor(t, func() bool { return f.publisher.count() == 2 && f.updater.count() == 1 })

	// A relaunch check against the same online daemon is not a new transition.
	if err := sup.Launch(ctx); err != nil {
		t.Fatalf("second Launch: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if f.publisher.count() != 2 || f.updater.count() != 1 {
		t.Fatalf("expected exactly one pass, got publish=%d update=%d", f.publisher.count(), f.updater.count())
	}
}

// gatedPublisher holds every publish until gate closes or ctx ends.
type gatedPublisher struct {
	gate    chan struct{}
	started atomic.Int32
}

func (p *gatedPublisher) Publish(ctx context.Context, _ string) error {
	p.started.Add(1)
	select {
	case <-p.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestOnlinePassDoesNotWaitForPublishes(t *testing.T) {
	f := newFixture(t)
	ready := &readiness{}
	ready.online.Store(true)
	slow := &gatedPublisher{gate: make(chan struct{})}
	s := scheduler.New(f.cfg, f.store, slow, f.updater, ready, f.bus, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	defer close(slow.gate)

	f.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: 3})
	waitFor(t, func() bool { return slow.started.Load() == 2 && f.updater.count() == 1 })

	// The event loop keeps draining while publishes are held.
	f.bus.Publish(events.Event{Type: events.DaemonStateChanged, State: "ready"})
	f.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: 3})
	waitFor(t, func() bool { return slow.started.Load() == 4 && f.updater.count() == 2 })
}
