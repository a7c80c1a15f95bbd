package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	BaseDir  string `toml:"base_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// IPFS contains configuration for the supervised content daemon.
type IPFS struct {
	// SourceBinary is copied into base_dir on first start. Empty resolves
	// "ipfs" through PATH.
	SourceBinary       string `toml:"source_binary"`
	APIPortMin         int    `toml:"api_port_min"`
	APIPortMax         int    `toml:"api_port_max"`
	GatewayPortMin     int    `toml:"gateway_port_min"`
	GatewayPortMax     int    `toml:"gateway_port_max"`
	SwarmPort          int    `toml:"swarm_port"`
	MinRepoEntries     int    `toml:"min_repo_entries"`
	LaunchRecheckDelay int    `toml:"launch_recheck_delay"`
	RelaunchGrace      int    `toml:"relaunch_grace"`
	LaunchMaxAttempts  int    `toml:"launch_max_attempts"`
	WatchRepoConfig    bool   `toml:"watch_repo_config"`
	AutoLaunch         bool   `toml:"auto_launch"`
}

// Timeouts contains per-call HTTP timeouts in seconds.
type Timeouts struct {
	Control   int `toml:"control"`
	PortProbe int `toml:"port_probe"`
	Pin       int `toml:"pin"`
	Publish   int `toml:"publish"`
	Gateway   int `toml:"gateway"`
}

// Scheduler contains the periodic publish, update, and status intervals in seconds.
type Scheduler struct {
	PublishInterval  int  `toml:"publish_interval"`
	UpdateInterval   int  `toml:"update_interval"`
	StatusInterval   int  `toml:"status_interval"`
	StatusRetryDelay int  `toml:"status_retry_delay"`
	TrackRepoSize    bool `toml:"track_repo_size"`
	TrackBandwidth   bool `toml:"track_bandwidth"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Publish        bool   `toml:"publish"`
	NewArticles    bool   `toml:"new_articles"`
	Errors         bool   `toml:"errors"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	FileLevel       string            `toml:"file_level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for planet.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories, API bind address
//   - IPFS: daemon binary, port ranges, launch behaviour
//   - Timeouts: control, probe, pin, publish, gateway calls
//   - Scheduler: publish/update/status cadence
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus endpoint toggle
//   - Logging: log format, level, retention, component overrides
type Config struct {
	Paths         Paths         `toml:"paths"`
	IPFS          IPFS          `toml:"ipfs"`
	Timeouts      Timeouts      `toml:"timeouts"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/planet/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strict.String())
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("planet.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.BaseDir, c.Paths.LogDir, c.FeedsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// BinaryPath returns the installed daemon executable.
func (c *Config) BinaryPath() string {
	return filepath.Join(c.Paths.BaseDir, "ipfs")
}

// RepoPath returns the daemon repository directory (IPFS_PATH).
func (c *Config) RepoPath() string {
	return filepath.Join(c.Paths.BaseDir, "repo")
}

// FeedsDir returns the directory holding one subdirectory per feed.
func (c *Config) FeedsDir() string {
	return filepath.Join(c.Paths.BaseDir, "planets")
}

// DatabasePath returns the metadata store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.BaseDir, "planet.db")
}

// DaemonPIDPath returns the pid file written for the supervised daemon process.
func (c *Config) DaemonPIDPath() string {
	return filepath.Join(c.Paths.BaseDir, "ipfs.pid")
}

// DaemonLogPath returns the file receiving the supervised daemon's output.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, "ipfs-daemon.log")
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "planet.sock")
}

// PIDPath returns the pid file written by the running planet daemon.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "planet.pid")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "planet.lock")
}

// ControlTimeout bounds control API calls.
func (c *Config) ControlTimeout() time.Duration { return seconds(c.Timeouts.Control) }

// PortProbeTimeout bounds a single port availability probe.
func (c *Config) PortProbeTimeout() time.Duration { return seconds(c.Timeouts.PortProbe) }

// PinTimeout bounds a fire-and-forget pin request.
func (c *Config) PinTimeout() time.Duration { return seconds(c.Timeouts.Pin) }

// PublishTimeout bounds a name publish request.
func (c *Config) PublishTimeout() time.Duration { return seconds(c.Timeouts.Publish) }

// GatewayTimeout bounds gateway reads.
func (c *Config) GatewayTimeout() time.Duration { return seconds(c.Timeouts.Gateway) }

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// Sample returns the annotated sample configuration.
func Sample() string { return sampleConfig }

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
