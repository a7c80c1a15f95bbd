// Package health polls the daemon control API and keeps the status snapshot
// shown by the CLI and the HTTP API.
package health

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"planet/internal/config"
	"planet/internal/events"
	"planet/internal/ipfs"
	"planet/internal/logging"
	"planet/internal/metrics"
	"planet/internal/services"
)

// Client is the subset of the control API the poller uses.
type Client interface {
	ID(ctx context.Context) (ipfs.IDInfo, error)
	Version(ctx context.Context) (ipfs.VersionInfo, error)
	SwarmPeerCount(ctx context.Context) (int, error)
	RepoStat(ctx context.Context) (ipfs.RepoStat, error)
	Bandwidth(ctx context.Context) (ipfs.BandwidthStats, error)
}

// ServerInfo describes the node behind the control API.
type ServerInfo struct {
	Hostname     string `json:"hostname"`
	PeerID       string `json:"peer_id"`
	AgentVersion string `json:"agent_version"`
	IPFSVersion  string `json:"ipfs_version"`
	Peers        int    `json:"peers"`
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Online      bool              `json:"online"`
	CheckedAt   time.Time         `json:"checked_at"`
	APIPort     uint16            `json:"api_port"`
	GatewayPort uint16            `json:"gateway_port"`
	Server      ServerInfo        `json:"server"`
	RepoSize    *int64            `json:"repo_size,omitempty"`
	RepoObjects int64             `json:"repo_objects,omitempty"`
	Bandwidth   []BandwidthSample `json:"bandwidth,omitempty"`
}

// Poller refreshes Status from the control API.
type Poller struct {
	client    Client
	endpoints *ipfs.Endpoints
	repoPath  string
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    *slog.Logger

	interval   time.Duration
	retryDelay time.Duration
	trackRepo  bool
	trackBW    bool
	now        func() time.Time

	mu     sync.Mutex
	status Status
	ring   *Ring

	repoGroup singleflight.Group
	infoWG    sync.WaitGroup
}

// New constructs a poller using the scheduler section of cfg.
func New(cfg *config.Config, client Client, endpoints *ipfs.Endpoints, bus *events.Bus, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		client:     client,
		endpoints:  endpoints,
		repoPath:   cfg.RepoPath(),
		bus:        bus,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "health"),
		interval:   time.Duration(cfg.Scheduler.StatusInterval) * time.Second,
		retryDelay: time.Duration(cfg.Scheduler.StatusRetryDelay) * time.Second,
		trackRepo:  cfg.Scheduler.TrackRepoSize,
		trackBW:    cfg.Scheduler.TrackBandwidth,
		now:        time.Now,
		ring:       NewRing(RingCapacity),
	}
}

// Snapshot returns the latest status.
func (p *Poller) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.status
	out.Bandwidth = p.ring.Samples()
	return out
}

// Run polls until ctx ends. An offline daemon is polled again after the retry
// delay instead of the full interval.
func (p *Poller) Run(ctx context.Context) {
	for {
		status := p.PollOnce(ctx)
		wait := p.interval
		if !status.Online {
			wait = p.retryDelay
		}
		if wait <= 0 {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// PollOnce probes the control API and refreshes the snapshot. On the
// transition to online the server info is fetched in the background; later
// online polls refresh the peer count.
func (p *Poller) PollOnce(ctx context.Context) Status {
	_, err := p.client.ID(ctx)
	online := err == nil

	p.mu.Lock()
	prev := p.status.Online
	p.status.Online = online
	p.status.CheckedAt = p.now()
	p.status.APIPort = p.endpoints.APIPort()
	p.status.GatewayPort = p.endpoints.GatewayPort()
	if !online {
		p.status.Server.Peers = 0
	}
	peers := p.status.Server.Peers
	p.mu.Unlock()

	p.metrics.StatusPoll(online, peers)

	if online != prev {
		state := "offline"
		if online {
			state = "online"
		}
		p.logger.Info("daemon status changed",
			logging.String("status", state),
			logging.String(logging.FieldEventType, "status_changed"),
		)
		p.bus.Publish(events.Event{Type: events.StatusChanged, State: state, PeerCount: peers})
		if online {
			p.infoWG.Add(1)
			go func() {
				defer p.infoWG.Done()
				p.refreshServerInfo(context.WithoutCancel(ctx))
			}()
		}
	}

	if online {
		if prev {
			p.refreshPeers(ctx)
		}
		if p.trackBW {
			p.refreshBandwidth(ctx)
		}
		if p.trackRepo {
			if _, err := p.RepoSize(ctx); err != nil {
				p.logger.Debug("repo size unavailable", logging.Error(err))
			}
		}
	}
	return p.Snapshot()
}

func (p *Poller) refreshPeers(ctx context.Context) {
	peers, err := p.client.SwarmPeerCount(ctx)
	if err != nil {
		p.logger.Debug("peer count unavailable", logging.Error(err))
		return
	}
	p.mu.Lock()
	if !p.status.Online {
		p.mu.Unlock()
		return
	}
	p.status.Server.Peers = peers
	p.mu.Unlock()
	p.metrics.StatusPoll(true, peers)
}

func (p *Poller) refreshServerInfo(ctx context.Context) {
	var info ServerInfo
	info.Hostname, _ = os.Hostname()
	if id, err := p.client.ID(ctx); err == nil {
		info.PeerID = id.ID
		info.AgentVersion = id.AgentVersion
	}
	if version, err := p.client.Version(ctx); err == nil {
		info.IPFSVersion = version.Version
	}
	if peers, err := p.client.SwarmPeerCount(ctx); err == nil {
		info.Peers = peers
	}

	p.mu.Lock()
	if !p.status.Online {
		p.mu.Unlock()
		return
	}
	p.status.Server = info
	p.mu.Unlock()

	p.metrics.StatusPoll(true, info.Peers)
	p.logger.Debug("server info refreshed",
		logging.String("peer_id", info.PeerID),
		logging.String("ipfs_version", info.IPFSVersion),
		logging.Int("peers", info.Peers),
	)
	p.bus.Publish(events.Event{Type: events.StatusChanged, State: "online", PeerCount: info.Peers})
}

func (p *Poller) refreshBandwidth(ctx context.Context) {
	stats, err := p.client.Bandwidth(ctx)
	if err != nil {
		p.logger.Debug("bandwidth unavailable", logging.Error(err))
		return
	}
	sample := BandwidthSample{
		Time:     p.now().Unix(),
		TotalIn:  stats.TotalIn,
		TotalOut: stats.TotalOut,
		RateIn:   stats.RateIn,
		RateOut:  stats.RateOut,
	}
	p.mu.Lock()
	p.ring.Add(sample)
	p.mu.Unlock()
	p.metrics.Bandwidth(stats.RateIn, stats.RateOut)
}

// RepoSize refreshes the repository size. Concurrent callers share one
// repo/stat call. The reported repository must be the configured one.
func (p *Poller) RepoSize(ctx context.Context) (int64, error) {
	v, err, _ := p.repoGroup.Do("repo", func() (any, error) {
		info, err := os.Stat(p.repoPath)
		if err != nil || !info.IsDir() {
			return int64(0), services.Wrap(services.ErrDirectoryMissing, "health", "repo stat", p.repoPath, err)
		}
		stat, err := p.client.RepoStat(ctx)
		if err != nil {
			return int64(0), err
		}
		if filepath.Clean(stat.RepoPath) != filepath.Clean(p.repoPath) {
			return int64(0), services.Wrap(services.ErrValidation, "health", "repo stat",
				"daemon reports repository "+stat.RepoPath, nil)
		}
		size := stat.RepoSize
		p.mu.Lock()
		p.status.RepoSize = &size
		p.status.RepoObjects = stat.NumObjects
		p.mu.Unlock()
		p.metrics.RepoSize(size)
		return size, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}
