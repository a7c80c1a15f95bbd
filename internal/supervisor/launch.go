package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"

	"planet/internal/events"
	"planet/internal/ipfs"
	"planet/internal/logging"
	"planet/internal/services"
)

// ErrLaunchDisabled is returned when a launch is requested while the node
// has been stopped by the operator.
var ErrLaunchDisabled = errors.New("daemon launch disabled")

// Launch starts the daemon unless it is already online. After each start it
// waits the recheck delay and probes again; a daemon that is still offline is
// retried until it comes up, the attempt limit is reached, or ctx ends.
// Concurrent calls while a launch loop is running return immediately.
func (s *Supervisor) Launch(ctx context.Context) error {
	if !s.launchEnabled.Load() {
		return ErrLaunchDisabled
	}
	switch s.State() {
	case StateFailed:
		return s.LastError()
	case StateUninitialized, StateInitializing:
		if !s.isRepoReady() {
			return services.Wrap(services.ErrInit, "supervisor", "launch", "repository not ready", nil)
		}
	}
	if s.control.WebUIReachable(ctx) {
		s.markOnline(ctx)
		return nil
	}
	if !s.launching.CompareAndSwap(false, true) {
		return nil
	}
	defer s.launching.Store(false)

	for attempt := 1; ; attempt++ {
		s.setState(StateLaunching)
		if err := s.startProcess(ctx); err != nil {
			s.recordError(err)
			logging.WarnWithContext(s.logger, "daemon start failed; terminating leftovers", "daemon_start_failed",
				logging.Error(err),
				logging.Int("attempt", attempt),
				logging.String(logging.FieldErrorHint, "see "+s.cfg.DaemonLogPath()),
				logging.String(logging.FieldImpact, "launch will be retried"),
			)
			s.Shutdown(ctx, true)
		}
		if err := sleepContext(ctx, s.recheckDelay); err != nil {
			s.setState(s.settledState())
			return err
		}
		if s.control.WebUIReachable(ctx) {
			s.markOnline(ctx)
			return nil
		}
		if s.maxAttempts > 0 && attempt >= s.maxAttempts {
			err := services.Wrap(services.ErrTimeout, "supervisor", "launch",
				fmt.Sprintf("daemon not online after %d attempts", attempt), nil)
			s.recordError(err)
			s.setState(s.settledState())
			return err
		}
		s.setState(StateRetrying)
		s.logger.Info("daemon not online yet; retrying",
			logging.Int("attempt", attempt),
			logging.String(logging.FieldEventType, "daemon_launch_retry"),
		)
	}
}

func (s *Supervisor) isRepoReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repoReady
}

// startProcess spawns the daemon unless a process started earlier is still
// running, in which case the next probe simply waits for it.
func (s *Supervisor) startProcess(ctx context.Context) error {
	s.mu.Lock()
	running := s.proc != nil && !processDone(s.proc)
	s.mu.Unlock()
	if running {
		return nil
	}
	if err := s.daemonQueue.acquire(ctx); err != nil {
		return err
	}
	defer s.daemonQueue.release()

	proc, err := s.runner.StartDaemon(s.cfg.DaemonLogPath())
	if err != nil {
		return err
	}
	if err := ipfs.WritePID(s.cfg.DaemonPIDPath(), proc.PID); err != nil {
		s.logger.Debug("pid file write failed", logging.Error(err))
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	s.logger.Info("daemon process started",
		logging.Int("pid", proc.PID),
		logging.Port("api_port", s.endpoints.APIPort()),
		logging.Port("gateway_port", s.endpoints.GatewayPort()),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	go s.monitor(proc)
	return nil
}

func processDone(p *ipfs.Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}

// monitor reports a daemon that exits while it is believed to be online.
func (s *Supervisor) monitor(proc *ipfs.Process) {
	<-proc.Done()
	s.mu.Lock()
	current := s.proc == proc
	if current {
		s.proc = nil
	}
	state := s.state
	s.mu.Unlock()
	if !current || state != StateOnline {
		return
	}
	logging.WarnWithContext(s.logger, "daemon exited unexpectedly", "daemon_exited",
		logging.Int("pid", proc.PID),
		logging.Error(proc.Err()),
		logging.String(logging.FieldErrorHint, "see "+s.cfg.DaemonLogPath()),
		logging.String(logging.FieldImpact, "publishing and following pause until the daemon is launched again"),
	)
	s.setState(s.settledState())
	s.bus.Publish(events.Event{Type: events.Error, Message: "daemon exited", Err: proc.Err()})
}

func (s *Supervisor) markOnline(ctx context.Context) {
	if s.State() == StateOnline {
		return
	}
	peers, err := s.control.SwarmPeerCount(ctx)
	if err != nil {
		peers = 0
	}
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.setState(StateOnline)
	s.logger.Info("daemon online",
		logging.Int("peers", peers),
		logging.Port("api_port", s.endpoints.APIPort()),
		logging.Port("gateway_port", s.endpoints.GatewayPort()),
		logging.String(logging.FieldEventType, "daemon_online"),
	)
	s.bus.Publish(events.Event{Type: events.DaemonOnline, PeerCount: peers})
}

// RelaunchIfNeeded restarts an online daemon whose configured listeners do
// not match the negotiated ports, and launches an offline one.
func (s *Supervisor) RelaunchIfNeeded(ctx context.Context) error {
	s.relaunchMu.Lock()
	defer s.relaunchMu.Unlock()

	desired := s.Config()
	if !s.control.WebUIReachable(ctx) {
		s.endpoints.Set(desired.APIPort, desired.GatewayPort)
		if !s.launchEnabled.Load() {
			return nil
		}
		return s.Launch(ctx)
	}

	if s.listenersMatch(ctx, desired) {
		s.markOnline(ctx)
		s.logger.Debug("daemon listeners match; no relaunch needed")
		return nil
	}

	s.logger.Info("daemon listeners changed; relaunching",
		logging.Port("api_port", desired.APIPort),
		logging.Port("gateway_port", desired.GatewayPort),
		logging.String(logging.FieldEventType, "daemon_relaunch"),
	)
	s.Shutdown(ctx, false)
	if err := sleepContext(ctx, s.relaunchGrace); err != nil {
		return err
	}
	s.endpoints.Set(desired.APIPort, desired.GatewayPort)
	if !s.launchEnabled.Load() {
		return nil
	}
	return s.Launch(ctx)
}

func (s *Supervisor) listenersMatch(ctx context.Context, desired DaemonConfig) bool {
	addrs, err := s.control.ConfigAddresses(ctx)
	if err != nil {
		return false
	}
	api, gateway, ok := addrs.Ports()
	return ok && api == desired.APIPort && gateway == desired.GatewayPort
}

// ApplyPorts writes the API and gateway listeners into the daemon config and
// then relaunches the daemon if its running listeners differ.
func (s *Supervisor) ApplyPorts(ctx context.Context, api, gateway uint16) error {
	if err := s.configQueue.acquire(ctx); err != nil {
		return err
	}
	err := s.writePorts(ctx, api, gateway)
	s.configQueue.release()
	if err != nil {
		s.recordError(err)
		return err
	}
	return s.RelaunchIfNeeded(ctx)
}

func (s *Supervisor) writePorts(ctx context.Context, api, gateway uint16) error {
	if err := s.runner.SetAPIPort(ctx, api); err != nil {
		return fmt.Errorf("write api port: %w", err)
	}
	if err := s.runner.SetGatewayPort(ctx, gateway); err != nil {
		return fmt.Errorf("write gateway port: %w", err)
	}
	s.mu.Lock()
	s.desired.APIPort = api
	s.desired.GatewayPort = gateway
	s.portsWritten = true
	s.mu.Unlock()
	s.logger.Info("daemon ports written",
		logging.Port("api_port", api),
		logging.Port("gateway_port", gateway),
		logging.String(logging.FieldEventType, "daemon_ports_written"),
	)
	return nil
}

// Shutdown asks the daemon to exit. It never fails: errors are logged at
// debug. With forceSkip the shutdown request is fired without waiting and
// the process is left to exit on its own; otherwise the call waits for the
// request and then terminates a process that outlives the relaunch grace.
func (s *Supervisor) Shutdown(ctx context.Context, forceSkip bool) {
	prev := s.State()
	s.setState(StateTerminating)

	if forceSkip {
		go func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.controlTimeout)
			defer cancel()
			s.requestShutdown(shutdownCtx)
		}()
		s.setState(s.settledAfter(prev))
		return
	}

	s.requestShutdown(ctx)
	if err := s.daemonQueue.acquire(ctx); err == nil {
		s.reap(ctx)
		s.daemonQueue.release()
	}
	s.setState(s.settledAfter(prev))
}

// requestShutdown sends the shutdown request on the config queue so it never
// interleaves with init or a port write.
func (s *Supervisor) requestShutdown(ctx context.Context) {
	if err := s.configQueue.acquire(ctx); err != nil {
		s.logger.Debug("shutdown request skipped", logging.Error(err))
		return
	}
	defer s.configQueue.release()
	if err := s.control.Shutdown(ctx); err != nil {
		s.logger.Debug("shutdown request failed", logging.Error(err))
	}
}

func (s *Supervisor) settledAfter(prev State) State {
	if prev == StateFailed {
		return StateFailed
	}
	return s.settledState()
}

// reap waits for the daemon process to exit and terminates it when it does
// not within the relaunch grace.
func (s *Supervisor) reap(ctx context.Context) {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()

	pidPath := s.cfg.DaemonPIDPath()
	if proc != nil {
		select {
		case <-proc.Done():
		case <-afterGrace(s.relaunchGrace):
			s.logger.Info("daemon still running after shutdown; terminating",
				logging.Int("pid", proc.PID),
				logging.String(logging.FieldEventType, "daemon_terminate"),
			)
			terminateProcess(ctx, proc.PID, s.killGrace)
		case <-ctx.Done():
			return
		}
		_ = os.Remove(pidPath)
		return
	}

	pid := ipfs.ReadPID(pidPath)
	if pid == 0 {
		return
	}
	if err := sleepContext(ctx, s.relaunchGrace); err != nil {
		return
	}
	if processAlive(ctx, pid) && processMatches(ctx, pid, s.cfg.BinaryPath()) {
		s.logger.Info("stale daemon still running; terminating",
			logging.Int("pid", pid),
			logging.String(logging.FieldEventType, "daemon_terminate"),
		)
		terminateProcess(ctx, pid, s.killGrace)
	}
	_ = os.Remove(pidPath)
}

// StopStale terminates a daemon left running by an earlier run, identified by
// the pid file, so port negotiation starts from a clean slate.
func (s *Supervisor) StopStale(ctx context.Context) {
	pid := ipfs.ReadPID(s.cfg.DaemonPIDPath())
	if pid == 0 || pid == s.PID() {
		return
	}
	if processAlive(ctx, pid) && processMatches(ctx, pid, s.cfg.BinaryPath()) {
		s.logger.Info("terminating daemon from previous run",
			logging.Int("pid", pid),
			logging.String(logging.FieldEventType, "daemon_stale_terminate"),
		)
		terminateProcess(ctx, pid, s.killGrace)
	}
	_ = os.Remove(s.cfg.DaemonPIDPath())
}

// StartNode re-enables launching and launches the daemon.
func (s *Supervisor) StartNode(ctx context.Context) error {
	s.EnableLaunch()
	return s.Launch(ctx)
}

// StopNode disables launching and shuts the daemon down.
func (s *Supervisor) StopNode(ctx context.Context) {
	s.launchEnabled.Store(false)
	s.Shutdown(ctx, false)
}

// Close shuts the daemon down for good and leaves the supervisor
// uninitialized.
func (s *Supervisor) Close(ctx context.Context) {
	s.launchEnabled.Store(false)
	s.Shutdown(ctx, false)
	s.mu.Lock()
	s.repoReady = false
	s.portsWritten = false
	s.mu.Unlock()
	if s.State() != StateFailed {
		s.setState(StateUninitialized)
	}
}
