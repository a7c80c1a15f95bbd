package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeIPFS(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		c.Paths.BaseDir = defaultBaseDir
	}
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("PLANET_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeIPFS() error {
	c.IPFS.SourceBinary = strings.TrimSpace(c.IPFS.SourceBinary)
	if c.IPFS.SourceBinary == "" {
		if value, ok := os.LookupEnv("PLANET_IPFS_BINARY"); ok {
			c.IPFS.SourceBinary = strings.TrimSpace(value)
		}
	}
	if strings.ContainsRune(c.IPFS.SourceBinary, '/') || strings.HasPrefix(c.IPFS.SourceBinary, "~") {
		expanded, err := expandPath(c.IPFS.SourceBinary)
		if err != nil {
			return fmt.Errorf("ipfs.source_binary: %w", err)
		}
		c.IPFS.SourceBinary = expanded
	}
	if c.IPFS.MinRepoEntries <= 0 {
		c.IPFS.MinRepoEntries = defaultMinRepoEntries
	}
	if c.IPFS.LaunchMaxAttempts < 0 {
		c.IPFS.LaunchMaxAttempts = 0
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	c.Logging.FileLevel = strings.ToLower(strings.TrimSpace(c.Logging.FileLevel))

	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}

	if len(c.Logging.ComponentLevels) > 0 {
		normalized := make(map[string]string, len(c.Logging.ComponentLevels))
		for component, lvl := range c.Logging.ComponentLevels {
			name := strings.ToLower(strings.TrimSpace(component))
			value := strings.ToLower(strings.TrimSpace(lvl))
			if name == "" || value == "" {
				continue
			}
			normalized[name] = value
		}
		c.Logging.ComponentLevels = normalized
	}
}
