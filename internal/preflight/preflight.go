package preflight

import (
	"context"

	"planet/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Base directory", cfg.Paths.BaseDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckPortRange("API ports", cfg.IPFS.APIPortMin, cfg.IPFS.APIPortMax),
		CheckPortRange("Gateway ports", cfg.IPFS.GatewayPortMin, cfg.IPFS.GatewayPortMax),
	}

	for _, dep := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: dep.Name, Passed: dep.Available, Detail: dep.Detail}
		if dep.Available {
			result.Detail = dep.Command
			if dep.Version != "" {
				result.Detail += " " + dep.Version
			}
		}
		results = append(results, result)
	}

	if cfg.Notifications.NtfyTopic != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}
