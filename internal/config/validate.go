package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePorts(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePorts() error {
	if err := validateRange("ipfs.api_port", c.IPFS.APIPortMin, c.IPFS.APIPortMax); err != nil {
		return err
	}
	if err := validateRange("ipfs.gateway_port", c.IPFS.GatewayPortMin, c.IPFS.GatewayPortMax); err != nil {
		return err
	}
	if c.IPFS.SwarmPort <= 0 || c.IPFS.SwarmPort > 65535 {
		return fmt.Errorf("ipfs.swarm_port must be between 1 and 65535, got %d", c.IPFS.SwarmPort)
	}
	if c.IPFS.APIPortMin <= c.IPFS.GatewayPortMax && c.IPFS.GatewayPortMin <= c.IPFS.APIPortMax {
		return errors.New("ipfs.api_port range must not overlap ipfs.gateway_port range")
	}
	if inRange(c.IPFS.SwarmPort, c.IPFS.APIPortMin, c.IPFS.APIPortMax) {
		return errors.New("ipfs.swarm_port must lie outside the api port range")
	}
	if inRange(c.IPFS.SwarmPort, c.IPFS.GatewayPortMin, c.IPFS.GatewayPortMax) {
		return errors.New("ipfs.swarm_port must lie outside the gateway port range")
	}
	return nil
}

func validateRange(name string, lo, hi int) error {
	if lo <= 0 || hi > 65535 {
		return fmt.Errorf("%s_min/%s_max must be between 1 and 65535", name, name)
	}
	if lo > hi {
		return fmt.Errorf("%s_min (%d) must not exceed %s_max (%d)", name, lo, name, hi)
	}
	return nil
}

func inRange(port, lo, hi int) bool {
	return port >= lo && port <= hi
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"timeouts.control":              c.Timeouts.Control,
		"timeouts.port_probe":           c.Timeouts.PortProbe,
		"timeouts.pin":                  c.Timeouts.Pin,
		"timeouts.publish":              c.Timeouts.Publish,
		"timeouts.gateway":              c.Timeouts.Gateway,
		"scheduler.publish_interval":    c.Scheduler.PublishInterval,
		"scheduler.update_interval":     c.Scheduler.UpdateInterval,
		"scheduler.status_interval":     c.Scheduler.StatusInterval,
		"scheduler.status_retry_delay":  c.Scheduler.StatusRetryDelay,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.IPFS.LaunchRecheckDelay < 0 {
		return errors.New("ipfs.launch_recheck_delay must not be negative")
	}
	if c.IPFS.RelaunchGrace < 0 {
		return errors.New("ipfs.relaunch_grace must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if err := validateLevel("logging.level", c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.FileLevel != "" {
		if err := validateLevel("logging.file_level", c.Logging.FileLevel); err != nil {
			return err
		}
	}
	for component, level := range c.Logging.ComponentLevels {
		if err := validateLevel("logging.component_levels."+component, level); err != nil {
			return err
		}
	}
	return nil
}

func validateLevel(key, level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("%s: unsupported value %q", key, level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
