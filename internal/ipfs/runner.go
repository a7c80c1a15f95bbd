package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"planet/internal/services"
)

// Runner executes the installed daemon binary against a fixed repository.
type Runner struct {
	Binary   string
	RepoPath string
}

// NewRunner returns a runner for binary with IPFS_PATH set to repoPath.
func NewRunner(binary, repoPath string) *Runner {
	return &Runner{Binary: binary, RepoPath: repoPath}
}

func (r *Runner) command(ctx context.Context, args ...string) *exec.Cmd {
	var cmd *exec.Cmd
	if ctx == nil {
		cmd = exec.Command(r.Binary, args...)
	} else {
		cmd = exec.CommandContext(ctx, r.Binary, args...)
	}
	cmd.Env = append(os.Environ(), "IPFS_PATH="+r.RepoPath)
	return cmd
}

// Run executes the binary with args and returns trimmed stdout. Failures
// carry the combined stderr in the error message.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := r.command(ctx, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		op := "exec"
		if len(args) > 0 {
			op = args[0]
		}
		return "", services.Wrap(services.ErrExternalTool, "ipfs", op, detail, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Init creates the repository.
func (r *Runner) Init(ctx context.Context) error {
	if err := os.MkdirAll(r.RepoPath, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	_, err := r.Run(ctx, "init")
	return err
}

// ID prints the node identity; success proves the repository is usable.
func (r *Runner) ID(ctx context.Context) (IDInfo, error) {
	out, err := r.Run(ctx, "id")
	if err != nil {
		return IDInfo{}, err
	}
	var info IDInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return IDInfo{}, services.Wrap(services.ErrDecode, "ipfs", "id", "decode identity", err)
	}
	return info, nil
}

// SetAPIPort writes Addresses.API.
func (r *Runner) SetAPIPort(ctx context.Context, port uint16) error {
	_, err := r.Run(ctx, "config", "Addresses.API", LoopbackMultiaddr(port))
	return err
}

// SetGatewayPort writes Addresses.Gateway.
func (r *Runner) SetGatewayPort(ctx context.Context, port uint16) error {
	_, err := r.Run(ctx, "config", "Addresses.Gateway", LoopbackMultiaddr(port))
	return err
}

// SetSwarmPort writes Addresses.Swarm.
func (r *Runner) SetSwarmPort(ctx context.Context, port uint16) error {
	payload, err := json.Marshal(SwarmMultiaddrs(port))
	if err != nil {
		return err
	}
	_, err = r.Run(ctx, "config", "--json", "Addresses.Swarm", string(payload))
	return err
}

// AddDirectory adds dir recursively as CIDv1 and returns the root CID.
func (r *Runner) AddDirectory(ctx context.Context, dir string) (string, error) {
	out, err := r.Run(ctx, "add", "-r", "--cid-version=1", "--quieter", dir)
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Process is a started daemon process.
type Process struct {
	PID  int
	done chan struct{}
	err  error
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} { return p.done }

// Err returns the exit error after Done is closed.
func (p *Process) Err() error { return p.err }

// StartDaemon launches `daemon` in its own process group with output
// appended to logPath. The process is not bound to a context; stop it with
// the shutdown command or Signal.
func (r *Runner) StartDaemon(logPath string) (*Process, error) {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	cmd := r.command(nil, "daemon", "--migrate", "--enable-namesys-pubsub")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return nil, services.Wrap(services.ErrExternalTool, "ipfs", "daemon", "start process", err)
	}
	proc := &Process{PID: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		proc.err = cmd.Wait()
		_ = logFile.Close()
		close(proc.done)
	}()
	return proc, nil
}

// WritePID records pid at path.
func WritePID(path string, pid int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644)
}

// ReadPID returns the pid recorded at path, or 0 when absent or malformed.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
