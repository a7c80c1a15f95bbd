package supervisor

import (
	"context"
	"os/exec"
	"strings"

	"planet/internal/fileutil"
	"planet/internal/logging"
	"planet/internal/services"
)

// EnsureReady makes the installed binary and repository usable. An existing
// repository with enough entries is only probed with `id`; otherwise the
// binary is installed when missing and the repository is initialized.
// Install failures are fatal and leave the supervisor in StateFailed.
func (s *Supervisor) EnsureReady(ctx context.Context) error {
	if s.State() == StateFailed {
		return s.LastError()
	}
	if err := s.configQueue.acquire(ctx); err != nil {
		return err
	}
	defer s.configQueue.release()

	s.setState(StateInitializing)
	err := s.prepare(ctx)
	if err != nil {
		s.recordError(err)
		if services.IsFatal(err) {
			s.setState(StateFailed)
			logging.ErrorWithContext(s.logger, "daemon install failed", "daemon_install_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorKind, services.Kind(err)),
				logging.String(logging.FieldErrorHint, "set ipfs.source_binary to a readable daemon binary"),
				logging.String(logging.FieldImpact, "the daemon will not start until the binary is installed"),
			)
			return err
		}
		s.setState(StateUninitialized)
		logging.WarnWithContext(s.logger, "daemon repository not ready", "daemon_not_ready",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "inspect the repository at "+s.cfg.RepoPath()),
			logging.String(logging.FieldImpact, "publishing and following wait for the daemon"),
		)
		return err
	}

	s.mu.Lock()
	s.repoReady = true
	s.lastErr = nil
	s.mu.Unlock()
	s.setState(StateReady)
	s.logger.Info("daemon repository ready",
		logging.String("repo", s.cfg.RepoPath()),
		logging.String(logging.FieldEventType, "daemon_ready"),
	)
	return nil
}

func (s *Supervisor) prepare(ctx context.Context) error {
	binary := s.cfg.BinaryPath()
	repo := s.cfg.RepoPath()

	entries, err := fileutil.CountEntries(repo)
	if err != nil {
		return services.Wrap(services.ErrInit, "supervisor", "inspect repo", repo, err)
	}
	if fileutil.FileExists(binary) && entries >= s.cfg.IPFS.MinRepoEntries {
		if _, err := s.runner.ID(ctx); err != nil {
			return services.Wrap(services.ErrIdentityProbe, "supervisor", "id", "existing repository", err)
		}
		return nil
	}

	if !fileutil.FileExists(binary) {
		if err := s.install(binary); err != nil {
			return err
		}
	}
	if err := s.runner.Init(ctx); err != nil {
		return services.Wrap(services.ErrInit, "supervisor", "init", repo, err)
	}
	if _, err := s.runner.ID(ctx); err != nil {
		return services.Wrap(services.ErrIdentityProbe, "supervisor", "id", "new repository", err)
	}
	if swarm := s.Config().SwarmPort; swarm != 0 {
		if err := s.runner.SetSwarmPort(ctx, swarm); err != nil {
			return services.Wrap(services.ErrInit, "supervisor", "swarm port", "", err)
		}
	}
	return nil
}

// SourceBinary resolves the binary copied into the base directory.
func SourceBinary(configured string) (string, error) {
	source := strings.TrimSpace(configured)
	if source == "" {
		source = "ipfs"
	}
	if strings.ContainsRune(source, '/') {
		return source, nil
	}
	return exec.LookPath(source)
}

func (s *Supervisor) install(dst string) error {
	src, err := SourceBinary(s.cfg.IPFS.SourceBinary)
	if err != nil {
		return services.Wrap(services.ErrInstall, "supervisor", "install", "daemon binary not found", err)
	}
	if err := fileutil.InstallFile(src, dst, 0o755); err != nil {
		return services.Wrap(services.ErrInstall, "supervisor", "install", "copy "+src, err)
	}
	s.logger.Info("daemon binary installed",
		logging.String("source", src),
		logging.String("path", dst),
		logging.String(logging.FieldEventType, "daemon_installed"),
	)
	return nil
}
