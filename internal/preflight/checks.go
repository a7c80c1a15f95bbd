package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"planet/internal/config"
	"planet/internal/deps"
	"planet/internal/supervisor"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPortRange reports how many candidate ports a range offers.
func CheckPortRange(name string, lo, hi int) Result {
	if lo <= 0 || hi > 65535 || lo > hi {
		return Result{Name: name, Detail: fmt.Sprintf("invalid range %d-%d", lo, hi)}
	}
	count := hi - lo + 1
	if count < 2 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d-%d (single port, no fallback)", lo, hi)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d-%d (%d candidates)", lo, hi, count)}
}

// CheckNtfy verifies the ntfy server behind topic answers HTTP.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topic))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "invalid topic url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/v1/health"}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health.String(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckSystemDeps evaluates the binaries the daemon needs. Both the daemon
// and the CLI status command use this list. An installed copy in base_dir
// satisfies the requirement even when the source binary is gone.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	command := cfg.BinaryPath()
	if _, err := os.Stat(command); err != nil {
		command = strings.TrimSpace(cfg.IPFS.SourceBinary)
		if resolved, err := supervisor.SourceBinary(command); err == nil {
			command = resolved
		} else if command == "" {
			command = "ipfs"
		}
	}
	return deps.Check(ctx, []deps.Requirement{
		{
			Name:        "IPFS",
			Command:     command,
			Description: "Required to run the content daemon",
			VersionArgs: []string{"version", "--number"},
		},
	})
}
