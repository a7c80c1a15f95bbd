package supervisor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// processAlive reports whether pid exists and is not a zombie.
func processAlive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !exists {
		return false
	}
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	statuses, err := proc.StatusWithContext(ctx)
	if err != nil {
		return true
	}
	for _, status := range statuses {
		if status == process.Zombie {
			return false
		}
	}
	return true
}

// processMatches reports whether pid runs the daemon binary, guarding against
// a recycled pid in a stale pid file.
func processMatches(ctx context.Context, pid int, binary string) bool {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	want := filepath.Base(binary)
	if name, err := proc.NameWithContext(ctx); err == nil && name == want {
		return true
	}
	if exe, err := proc.ExeWithContext(ctx); err == nil && filepath.Clean(exe) == filepath.Clean(binary) {
		return true
	}
	return false
}

// terminateProcess sends SIGTERM to pid and its children and escalates to
// SIGKILL when they outlive grace.
func terminateProcess(ctx context.Context, pid int, grace time.Duration) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return
	}
	children, _ := proc.ChildrenWithContext(ctx)
	_ = proc.TerminateWithContext(ctx)

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !processAlive(ctx, pid) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	_ = proc.KillWithContext(ctx)
	for _, child := range children {
		_ = child.KillWithContext(ctx)
	}
}

func afterGrace(d time.Duration) <-chan time.Time {
	if d <= 0 {
		d = 100 * time.Millisecond
	}
	return time.After(d)
}
