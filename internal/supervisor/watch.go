package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"planet/internal/ipfs"
	"planet/internal/logging"
)

// WatchRepoConfig follows edits to the repository configuration until ctx
// ends. Listener ports written by someone else are adopted and applied with
// a supervised relaunch. Bursts of writes are coalesced by the debounce.
func (s *Supervisor) WatchRepoConfig(ctx context.Context) error {
	repo := s.cfg.RepoPath()
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create repo watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(repo); err != nil {
		return fmt.Errorf("watch repo %q: %w", repo, err)
	}
	target := filepath.Join(repo, ipfs.RepoConfigFile)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.watchDebounce)
			} else {
				timer.Reset(s.watchDebounce)
			}
			fire = timer.C
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Debug("repo watcher error", logging.Error(werr))
		case <-fire:
			fire = nil
			s.configChanged(ctx)
		}
	}
}

func (s *Supervisor) configChanged(ctx context.Context) {
	addrs, err := ipfs.ReadRepoAddresses(s.cfg.RepoPath())
	if err != nil {
		s.logger.Debug("repo config unreadable", logging.Error(err))
		return
	}
	api, gateway, ok := addrs.Ports()
	if !ok {
		return
	}
	desired := s.Config()
	if api == desired.APIPort && gateway == desired.GatewayPort {
		return
	}
	s.mu.Lock()
	s.desired.APIPort = api
	s.desired.GatewayPort = gateway
	s.mu.Unlock()
	s.logger.Info("repo config listeners edited; applying",
		logging.Port("api_port", api),
		logging.Port("gateway_port", gateway),
		logging.String(logging.FieldEventType, "daemon_config_changed"),
	)
	if err := s.RelaunchIfNeeded(ctx); err != nil {
		logging.WarnWithContext(s.logger, "relaunch after config edit failed", "daemon_relaunch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the daemon keeps its previous listeners"),
		)
	}
}
