// Package scheduler drives periodic publish and update passes.
//
// Publish and update run on independent tickers. Each pass checks that the
// daemon answers and then starts one goroutine per feed; admission per feed
// is left to the coordinators. When the daemon comes online with peers the
// scheduler runs one immediate pass for that transition.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"planet/internal/config"
	"planet/internal/events"
	"planet/internal/feeds"
	"planet/internal/logging"
	"planet/internal/services"
)

// Publisher publishes one local feed.
type Publisher interface {
	Publish(ctx context.Context, feedID string) error
}

// Updater refreshes one followed feed.
type Updater interface {
	Update(ctx context.Context, feedID string) error
}

// Readiness reports whether the daemon answers.
type Readiness interface {
	Online(ctx context.Context) bool
}

// FeedLister enumerates feeds by kind.
type FeedLister interface {
	ListFeeds(ctx context.Context, kind feeds.Kind) ([]*feeds.Feed, error)
}

// ErrDaemonOffline is returned by on-demand passes while the daemon is down.
var ErrDaemonOffline = errors.New("daemon offline")

// Scheduler owns the publish and update tickers.
type Scheduler struct {
	lister    FeedLister
	publisher Publisher
	updater   Updater
	readiness Readiness
	bus       *events.Bus
	logger    *slog.Logger

	publishInterval time.Duration
	updateInterval  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// armed is set while the daemon is not online; the first online event
	// with peers consumes it.
	armed bool
}

// New constructs a scheduler using the scheduler section of cfg.
func New(cfg *config.Config, lister FeedLister, publisher Publisher, updater Updater, readiness Readiness, bus *events.Bus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		lister:          lister,
		publisher:       publisher,
		updater:         updater,
		readiness:       readiness,
		bus:             bus,
		logger:          logging.NewComponentLogger(logger, "scheduler"),
		publishInterval: time.Duration(cfg.Scheduler.PublishInterval) * time.Second,
		updateInterval:  time.Duration(cfg.Scheduler.UpdateInterval) * time.Second,
		armed:           true,
	}
}

// Start launches the tickers and the online subscription.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	daemonEvents, unsubscribe := s.bus.Subscribe(16, events.DaemonOnline, events.DaemonStateChanged)
	s.wg.Add(3)
	s.mu.Unlock()

	go s.tick(runCtx, s.publishInterval, "publish", s.publishPass)
	go s.tick(runCtx, s.updateInterval, "update", s.updatePass)
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		s.watchDaemon(runCtx, daemonEvents)
	}()

	s.logger.Info("scheduler started",
		logging.Duration("publish_interval", s.publishInterval),
		logging.Duration("update_interval", s.updateInterval),
		logging.String(logging.FieldEventType, "scheduler_started"),
	)
	return nil
}

// Stop cancels the tickers and waits for running passes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context, interval time.Duration, name string, pass func(context.Context)) {
	defer s.wg.Done()
	if interval <= 0 {
		s.logger.Debug("ticker disabled", logging.String("pass", name))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(withCorrelation(ctx))
		}
	}
}

// watchDaemon never runs a pass inline so the subscription keeps draining
// while a slow publish is in flight.
func (s *Scheduler) watchDaemon(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if !s.consumeTransition(ev) {
				continue
			}
			passCtx := withCorrelation(ctx)
			logging.WithContext(passCtx, s.logger).Info("daemon online with peers; running immediate pass",
				logging.Int("peers", ev.PeerCount),
				logging.String(logging.FieldEventType, "scheduler_online_pass"),
			)
			s.wg.Add(2)
			go func() {
				defer s.wg.Done()
				s.publishPass(passCtx)
			}()
			go func() {
				defer s.wg.Done()
				s.updatePass(passCtx)
			}()
		}
	}
}

// consumeTransition reports whether ev should trigger the immediate pass.
func (s *Scheduler) consumeTransition(ev events.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case events.DaemonStateChanged:
		if ev.State != "online" {
			s.armed = true
		}
		return false
	case events.DaemonOnline:
		if !s.armed || ev.PeerCount <= 0 {
			return false
		}
		s.armed = false
		return true
	}
	return false
}

func (s *Scheduler) publishPass(ctx context.Context) {
	if _, err := s.PublishAll(ctx); err != nil && !errors.Is(err, ErrDaemonOffline) {
		s.logger.Debug("publish pass failed", logging.Error(err))
	}
}

func (s *Scheduler) updatePass(ctx context.Context) {
	if _, err := s.UpdateAll(ctx); err != nil && !errors.Is(err, ErrDaemonOffline) {
		s.logger.Debug("update pass failed", logging.Error(err))
	}
}

// PublishAll publishes every local feed concurrently and waits for them. It
// returns the number of feeds dispatched.
func (s *Scheduler) PublishAll(ctx context.Context) (int, error) {
	return s.fanOut(ctx, feeds.KindLocal, "publish", s.publisher.Publish)
}

// UpdateAll updates every followed feed concurrently and waits for them. It
// returns the number of feeds dispatched.
func (s *Scheduler) UpdateAll(ctx context.Context) (int, error) {
	return s.fanOut(ctx, feeds.KindFollowed, "update", s.updater.Update)
}

func (s *Scheduler) fanOut(ctx context.Context, kind feeds.Kind, name string, op func(context.Context, string) error) (int, error) {
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = withCorrelation(ctx)
	}
	logger := logging.WithContext(ctx, s.logger)
	if !s.readiness.Online(ctx) {
		logger.Debug("daemon offline; skipping pass", logging.String("pass", name))
		return 0, ErrDaemonOffline
	}
	list, err := s.lister.ListFeeds(ctx, kind)
	if err != nil {
		return 0, err
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, feed := range list {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := op(ctx, id); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(feed.ID)
	}
	wg.Wait()

	logger.Info("pass finished",
		logging.String("pass", name),
		logging.Int("feeds", len(list)),
		logging.Int("failed", failed),
		logging.String(logging.FieldEventType, "scheduler_pass"),
	)
	return len(list), nil
}

func withCorrelation(ctx context.Context) context.Context {
	return services.WithRequestID(ctx, xid.New().String())
}
