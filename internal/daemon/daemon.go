package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"planet/internal/api"
	"planet/internal/config"
	"planet/internal/events"
	"planet/internal/feeds"
	"planet/internal/follow"
	"planet/internal/health"
	"planet/internal/ipfs"
	"planet/internal/ledger"
	"planet/internal/logging"
	"planet/internal/metrics"
	"planet/internal/notifications"
	"planet/internal/ports"
	"planet/internal/preflight"
	"planet/internal/publish"
	"planet/internal/scheduler"
	"planet/internal/services"
	"planet/internal/supervisor"
)

const closeTimeout = 15 * time.Second

// Daemon owns every long-lived component and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *feeds.Store
	logPath string

	bus        *events.Bus
	metrics    *metrics.Metrics
	endpoints  *ipfs.Endpoints
	supervisor *supervisor.Supervisor
	negotiator *ports.Negotiator
	poller     *health.Poller
	ledger     *ledger.State
	feedSvc    *feeds.Service
	feedViews  *api.FeedService
	publisher  *publish.Coordinator
	follower   *follow.Coordinator
	scheduler  *scheduler.Scheduler
	notifier   notifications.Service
	apiServer  *apiServer

	lockPath string
	lock     *flock.Flock

	setupMu sync.Mutex

	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes daemon construction.
type Option func(*Daemon)

// WithLogPath records the per-run log file reported by LogPath.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// WithProber replaces the HTTP port prober used for negotiation.
func WithProber(prober ports.Prober) Option {
	return func(d *Daemon) { d.negotiator = d.newNegotiator(prober) }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *feeds.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and feed store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		bus:      events.NewBus(),
		ledger:   ledger.New(),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		notifier: notifications.NewService(cfg),
	}
	if cfg.Metrics.Enabled {
		d.metrics = metrics.New()
	}

	d.endpoints = ipfs.NewEndpoints("127.0.0.1", uint16(cfg.IPFS.APIPortMin), uint16(cfg.IPFS.GatewayPortMin))
	client := ipfs.NewClient(d.endpoints, nil, ipfs.Timeouts{
		Control: cfg.ControlTimeout(),
		Pin:     cfg.PinTimeout(),
		Publish: cfg.PublishTimeout(),
	})
	gateway := ipfs.NewGateway(d.endpoints, nil, cfg.GatewayTimeout())
	runner := ipfs.NewRunner(cfg.BinaryPath(), cfg.RepoPath())
	layout := feeds.NewLayout(cfg.FeedsDir())

	d.supervisor = supervisor.New(cfg, runner, client, d.endpoints, d.bus, logger)
	d.negotiator = d.newNegotiator(ports.NewHTTPProber(cfg.PortProbeTimeout()))
	d.poller = health.New(cfg, client, d.endpoints, d.bus, d.metrics, logger)
	d.feedSvc = feeds.NewService(store, layout, client, gateway, nil, logger)
	d.feedViews = api.NewFeedService(store, d.ledger)
	d.publisher = publish.New(store, layout, d.ledger, runner, client, d.bus, d.metrics, logger)
	d.follower = follow.New(store, layout, d.ledger, gateway, client, d.bus, d.metrics, logger, cfg.PinTimeout())
	d.scheduler = scheduler.New(cfg, store, d.publisher, d.follower, d.supervisor, d.bus, logger)

	for _, opt := range opts {
		opt(d)
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = srv
	return d, nil
}

func (d *Daemon) newNegotiator(prober ports.Prober) *ports.Negotiator {
	return ports.New(prober,
		ports.Range{Min: uint16(d.cfg.IPFS.APIPortMin), Max: uint16(d.cfg.IPFS.APIPortMax)},
		ports.Range{Min: uint16(d.cfg.IPFS.GatewayPortMin), Max: uint16(d.cfg.IPFS.GatewayPortMax)},
		uint16(d.cfg.IPFS.SwarmPort),
		d.logger,
	)
}

// ErrAlreadyRunning is returned by Start when background work is already up.
var ErrAlreadyRunning = errors.New("daemon already running")

// Start acquires the daemon lock, starts background services and brings the
// content daemon up. Bring-up runs in the background; Start returns once the
// services are accepting work.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return ErrAlreadyRunning
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another planet daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.scheduler.Start(d.ctx); err != nil {
		d.cancel()
		_ = d.lock.Unlock()
		d.ctx, d.cancel = nil, nil
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.apiServer.start(d.ctx); err != nil {
		d.scheduler.Stop()
		d.cancel()
		_ = d.lock.Unlock()
		d.ctx, d.cancel = nil, nil
		return err
	}

	d.goBackground(func(ctx context.Context) { notifications.Forward(ctx, d.bus, d.notifier, d.logger) })
	d.goBackground(d.poller.Run)
	if d.cfg.IPFS.WatchRepoConfig {
		d.goBackground(func(ctx context.Context) {
			if err := d.supervisor.WatchRepoConfig(ctx); err != nil {
				logging.WarnWithContext(d.logger, "repo config watcher unavailable", "repo_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check inotify limits"),
					logging.String(logging.FieldImpact, "manual edits to the daemon config are not picked up"),
				)
			}
		})
	}
	d.goBackground(d.bringUp)

	d.running.Store(true)
	d.logger.Info("planet daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) goBackground(fn func(ctx context.Context)) {
	ctx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		fn(ctx)
	}()
}

// bringUp clears a stale daemon, prepares the repository, negotiates ports
// and launches the daemon on them when auto launch is enabled.
func (d *Daemon) bringUp(ctx context.Context) {
	d.supervisor.StopStale(ctx)
	d.setUp(ctx)
}

// setUp runs repository preparation and port negotiation unless an earlier
// run completed them. Applying the ports launches the daemon when launching
// is enabled. It reports whether setup ran.
func (d *Daemon) setUp(ctx context.Context) bool {
	d.setupMu.Lock()
	defer d.setupMu.Unlock()
	if d.supervisor.Prepared() {
		return false
	}
	if err := d.supervisor.EnsureReady(ctx); err != nil {
		return true
	}
	apiPort, gatewayPort, err := d.negotiator.Negotiate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		logging.ErrorWithContext(d.logger, "no daemon ports available", "port_negotiation_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "free a port in the configured ranges or widen them"),
			logging.String(logging.FieldImpact, "the daemon is not launched"),
		)
		d.bus.Publish(events.Event{Type: events.Error, Message: "port negotiation", Err: err})
		return true
	}
	if err := d.supervisor.ApplyPorts(ctx, apiPort, gatewayPort); err != nil && ctx.Err() == nil {
		logging.WarnWithContext(d.logger, "daemon launch incomplete", "daemon_launch_incomplete",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "run planet node start to retry"),
			logging.String(logging.FieldImpact, "publishing and following wait for the daemon"),
		)
	}
	return true
}

// Stop stops background processing, shuts the content daemon down and
// releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	d.wg.Wait()
	d.follower.Wait()
	d.apiServer.stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	d.supervisor.Close(closeCtx)
	cancel()

	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if the next start fails"),
			logging.String(logging.FieldImpact, "a later start may report another instance"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("planet daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.bus.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not run.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// NodeLogPath returns the file receiving the content daemon's output.
func (d *Daemon) NodeLogPath() string {
	return d.cfg.DaemonLogPath()
}

// Bus returns the daemon event bus.
func (d *Daemon) Bus() *events.Bus {
	return d.bus
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	desired := d.supervisor.Config()
	node := api.NodeStatus{
		State:         string(d.supervisor.State()),
		LaunchEnabled: d.supervisor.LaunchEnabled(),
		PID:           d.supervisor.PID(),
		APIPort:       d.endpoints.APIPort(),
		GatewayPort:   d.endpoints.GatewayPort(),
		SwarmPort:     desired.SwarmPort,
		Health:        api.FromHealth(d.poller.Snapshot()),
	}
	if err := d.supervisor.LastError(); err != nil {
		node.LastError = err.Error()
		node.ErrorKind = services.Kind(err)
	}

	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Node:         node,
		Publishing:   d.ledger.Active(ledger.Publishing),
		Updating:     d.ledger.Active(ledger.Updating),
	}
	if local, err := d.store.ListFeeds(ctx, feeds.KindLocal); err == nil {
		status.LocalFeeds = len(local)
	}
	if followed, err := d.store.ListFeeds(ctx, feeds.KindFollowed); err == nil {
		status.FollowedFeeds = len(followed)
	}
	for _, dep := range preflight.CheckSystemDeps(ctx, d.cfg) {
		status.Dependencies = append(status.Dependencies, api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Version:     dep.Version,
			Detail:      dep.Detail,
		})
	}
	return status
}

// Feeds returns the read-only feed views.
func (d *Daemon) Feeds() *api.FeedService {
	return d.feedViews
}

// CreateFeed creates a local feed with its publishing key.
func (d *Daemon) CreateFeed(ctx context.Context, name, about string) (*feeds.Feed, error) {
	return d.feedSvc.CreateFeed(ctx, name, about)
}

// DeleteFeed removes a local feed, or unfollows a followed one.
func (d *Daemon) DeleteFeed(ctx context.Context, id string) error {
	feed, err := d.store.GetFeed(ctx, id)
	if err != nil {
		return err
	}
	if feed == nil {
		return services.Wrap(services.ErrNotFound, "daemon", "delete feed", "feed "+id, nil)
	}
	if !feed.IsLocal() {
		return d.follower.Unfollow(ctx, id)
	}
	if err := d.feedSvc.DeleteFeed(ctx, id); err != nil {
		return err
	}
	d.ledger.Forget(id)
	return nil
}

// Follow starts following address.
func (d *Daemon) Follow(ctx context.Context, address string) (*feeds.Feed, error) {
	return d.follower.Follow(ctx, address)
}

// Unfollow stops following a feed.
func (d *Daemon) Unfollow(ctx context.Context, id string) error {
	return d.follower.Unfollow(ctx, id)
}

// Publish publishes one local feed now.
func (d *Daemon) Publish(ctx context.Context, id string) error {
	return d.publisher.Publish(ctx, id)
}

// Update refreshes one followed feed now.
func (d *Daemon) Update(ctx context.Context, id string) error {
	return d.follower.Update(ctx, id)
}

// PublishAll runs a publish pass and returns how many feeds it covered.
func (d *Daemon) PublishAll(ctx context.Context) (int, error) {
	return d.scheduler.PublishAll(ctx)
}

// UpdateAll runs an update pass and returns how many feeds it covered.
func (d *Daemon) UpdateAll(ctx context.Context) (int, error) {
	return d.scheduler.UpdateAll(ctx)
}

// AddArticle adds an article to a local feed.
func (d *Daemon) AddArticle(ctx context.Context, feedID, title, content string) (*feeds.Article, error) {
	return d.feedSvc.AddArticle(ctx, feedID, title, content)
}

// ArticleURL resolves where an article can be read. Followed stubs are
// fetched first so the stored copy is complete.
func (d *Daemon) ArticleURL(ctx context.Context, feedID, articleID string) (string, error) {
	feed, err := d.store.GetFeed(ctx, feedID)
	if err != nil {
		return "", err
	}
	if feed != nil && !feed.IsLocal() {
		if _, err := d.follower.FetchArticle(ctx, feedID, articleID); err != nil && feeds.IsNotFound(err) {
			return "", err
		}
	}
	return d.feedSvc.ArticleURL(ctx, feedID, articleID)
}

// NodeStart re-enables launching and starts the content daemon in the
// background. Repository setup and port negotiation that failed at startup
// are retried first. The launch is bound to the daemon's lifetime, not the
// caller's.
func (d *Daemon) NodeStart() error {
	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return errors.New("daemon not running")
	}
	launchCtx := d.ctx
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		d.supervisor.EnableLaunch()
		if d.setUp(launchCtx) {
			return
		}
		if err := d.supervisor.StartNode(launchCtx); err != nil && launchCtx.Err() == nil {
			logging.WarnWithContext(d.logger, "node start failed", "node_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldErrorHint, "check the daemon log at "+d.cfg.DaemonLogPath()),
				logging.String(logging.FieldImpact, "the content daemon stays offline"),
			)
		}
	}()
	return nil
}

// NodeStop disables launching and shuts the content daemon down.
func (d *Daemon) NodeStop(ctx context.Context) {
	d.supervisor.StopNode(ctx)
}

// Ports returns the ports the daemon is configured for and the ones clients
// currently use.
func (d *Daemon) Ports() (desired supervisor.DaemonConfig, apiPort, gatewayPort uint16) {
	return d.supervisor.Config(), d.endpoints.APIPort(), d.endpoints.GatewayPort()
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
