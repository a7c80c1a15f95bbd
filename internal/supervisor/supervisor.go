package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"planet/internal/config"
	"planet/internal/events"
	"planet/internal/ipfs"
	"planet/internal/logging"
)

// Control is the subset of the daemon control API the supervisor needs.
type Control interface {
	WebUIReachable(ctx context.Context) bool
	SwarmPeerCount(ctx context.Context) (int, error)
	ConfigAddresses(ctx context.Context) (ipfs.Addresses, error)
	Shutdown(ctx context.Context) error
}

// Runner executes daemon CLI commands against the repository.
type Runner interface {
	Init(ctx context.Context) error
	ID(ctx context.Context) (ipfs.IDInfo, error)
	SetAPIPort(ctx context.Context, port uint16) error
	SetGatewayPort(ctx context.Context, port uint16) error
	SetSwarmPort(ctx context.Context, port uint16) error
	StartDaemon(logPath string) (*ipfs.Process, error)
}

// Supervisor drives the daemon through its lifecycle.
type Supervisor struct {
	cfg       *config.Config
	runner    Runner
	control   Control
	endpoints *ipfs.Endpoints
	bus       *events.Bus
	logger    *slog.Logger

	configQueue semaphore
	daemonQueue semaphore

	mu        sync.Mutex
	state     State
	desired   DaemonConfig
	proc      *ipfs.Process
	repoReady bool
	// portsWritten is set once negotiated listeners are in the repo config.
	portsWritten bool
	lastErr      error

	launchEnabled atomic.Bool
	launching     atomic.Bool
	relaunchMu    sync.Mutex

	recheckDelay   time.Duration
	relaunchGrace  time.Duration
	maxAttempts    int
	killGrace      time.Duration
	watchDebounce  time.Duration
	controlTimeout time.Duration
}

// New constructs a supervisor. endpoints is shared with the control client
// and is only changed by the supervisor when a daemon is launched on new
// ports.
func New(cfg *config.Config, runner Runner, control Control, endpoints *ipfs.Endpoints, bus *events.Bus, logger *slog.Logger) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		runner:      runner,
		control:     control,
		endpoints:   endpoints,
		bus:         bus,
		logger:      logging.NewComponentLogger(logger, "supervisor"),
		configQueue: newSemaphore(1),
		daemonQueue: newSemaphore(2),
		state:       StateUninitialized,
		desired: DaemonConfig{
			APIPort:     endpoints.APIPort(),
			GatewayPort: endpoints.GatewayPort(),
			SwarmPort:   uint16(cfg.IPFS.SwarmPort),
			RepoPath:    cfg.RepoPath(),
			BinaryPath:  cfg.BinaryPath(),
		},
		recheckDelay:   time.Duration(cfg.IPFS.LaunchRecheckDelay) * time.Second,
		relaunchGrace:  time.Duration(cfg.IPFS.RelaunchGrace) * time.Second,
		maxAttempts:    cfg.IPFS.LaunchMaxAttempts,
		killGrace:      5 * time.Second,
		watchDebounce:  500 * time.Millisecond,
		controlTimeout: cfg.ControlTimeout(),
	}
	s.launchEnabled.Store(cfg.IPFS.AutoLaunch)
	return s
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent readiness or launch failure.
func (s *Supervisor) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Config returns the daemon configuration the supervisor is driving toward.
func (s *Supervisor) Config() DaemonConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desired
}

// Prepared reports whether the repository is ready and negotiated ports have
// been written to it.
func (s *Supervisor) Prepared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repoReady && s.portsWritten
}

// EnableLaunch allows the supervisor to start the daemon again.
func (s *Supervisor) EnableLaunch() {
	s.launchEnabled.Store(true)
}

// LaunchEnabled reports whether the supervisor may start the daemon on its own.
func (s *Supervisor) LaunchEnabled() bool {
	return s.launchEnabled.Load()
}

// PID returns the pid of the daemon process started by this supervisor, or 0.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0
	}
	return s.proc.PID
}

// Online probes the daemon web UI.
func (s *Supervisor) Online(ctx context.Context) bool {
	return s.control.WebUIReachable(ctx)
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	s.logger.Debug("daemon state changed",
		logging.String("from", string(prev)),
		logging.String("to", string(next)),
	)
	s.bus.Publish(events.Event{Type: events.DaemonStateChanged, State: string(next)})
}

func (s *Supervisor) recordError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.bus.Publish(events.Event{Type: events.Error, Message: "daemon", Err: err})
	}
}

// settledState is the state after the daemon stops: ready when the
// repository is usable, uninitialized otherwise.
func (s *Supervisor) settledState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repoReady {
		return StateReady
	}
	return StateUninitialized
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
