package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"planet/internal/api"
	"planet/internal/config"
	"planet/internal/feeds"
	"planet/internal/ipc"
	"planet/internal/preflight"
	"planet/internal/supervisor"
)

// Severity grades a status line.
type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// StatusLine is one labelled row of the status report.
type StatusLine struct {
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// DependencySummary counts available and missing dependencies.
type DependencySummary struct {
	Total           int      `json:"total"`
	Available       int      `json:"available"`
	MissingRequired int      `json:"missingRequired"`
	MissingOptional int      `json:"missingOptional"`
	Severity        Severity `json:"severity"`
	Detail          string   `json:"detail"`
}

// Snapshot is the status report shown by the CLI, online or offline.
type Snapshot struct {
	Status            ipc.StatusResponse `json:"status"`
	SystemChecks      []StatusLine       `json:"systemChecks"`
	DependencySummary DependencySummary  `json:"dependencySummary"`
}

// BuildStatusSnapshot asks the daemon for its status. When nothing answers it
// reads feed counts from the database and checks dependencies locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &Snapshot{}
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		if resp, err := client.Status(); err == nil && resp != nil {
			snapshot.Status = *resp
		}
		_ = client.Close()
	}
	if snapshot.Status.PID == 0 {
		fillOffline(ctx, cfg, &snapshot.Status)
	}
	if len(snapshot.Status.Dependencies) == 0 {
		snapshot.Status.Dependencies = ResolveDependencies(ctx, cfg)
	}
	snapshot.SystemChecks = BuildSystemChecks(cfg, snapshot.Status)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Status.Dependencies)
	return snapshot, nil
}

func fillOffline(ctx context.Context, cfg *config.Config, status *ipc.StatusResponse) {
	status.DatabasePath = cfg.DatabasePath()
	status.LockFilePath = cfg.LockPath()
	status.Node.State = string(supervisor.StateUninitialized)

	store, err := feeds.Open(cfg)
	if err != nil {
		return
	}
	defer store.Close()
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if local, err := store.ListFeeds(queryCtx, feeds.KindLocal); err == nil {
		status.LocalFeeds = len(local)
	}
	if followed, err := store.ListFeeds(queryCtx, feeds.KindFollowed); err == nil {
		status.FollowedFeeds = len(followed)
	}
}

// ResolveDependencies checks dependencies from this process.
func ResolveDependencies(ctx context.Context, cfg *config.Config) []ipc.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := preflight.CheckSystemDeps(ctx, cfg)
	statuses := make([]ipc.DependencyStatus, len(checks))
	for i, check := range checks {
		statuses[i] = ipc.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Version:     check.Version,
			Detail:      check.Detail,
		}
	}
	return statuses
}

// BuildSystemChecks summarises daemon, node and configuration state.
func BuildSystemChecks(cfg *config.Config, status ipc.StatusResponse) []StatusLine {
	line := func(label string, sev Severity, detail string) StatusLine {
		return StatusLine{Label: label, Severity: sev, Detail: detail}
	}
	lines := []StatusLine{daemonLine(status), nodeLine(status.Node)}

	if cfg.IPFS.AutoLaunch {
		lines = append(lines, line("Auto Launch", SeverityOK, "Enabled"))
	} else {
		lines = append(lines, line("Auto Launch", SeverityInfo, "Disabled (use `planet node start`)"))
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, line("Notifications", SeverityOK, "Configured"))
	} else {
		lines = append(lines, line("Notifications", SeverityInfo, "Not configured"))
	}
	if bind := strings.TrimSpace(cfg.Paths.APIBind); bind != "" {
		lines = append(lines, line("HTTP API", SeverityOK, bind))
	} else {
		lines = append(lines, line("HTTP API", SeverityInfo, "Disabled"))
	}
	return lines
}

func daemonLine(status ipc.StatusResponse) StatusLine {
	switch {
	case status.Running:
		return StatusLine{Label: "Planet", Severity: SeverityOK, Detail: "Running"}
	case status.PID != 0:
		return StatusLine{Label: "Planet", Severity: SeverityWarn, Detail: "Stopped (run `planet start`)"}
	default:
		return StatusLine{Label: "Planet", Severity: SeverityWarn, Detail: "Not running (run `planet start`)"}
	}
}

func nodeLine(node api.NodeStatus) StatusLine {
	out := StatusLine{Label: "Node"}
	switch supervisor.State(node.State) {
	case supervisor.StateOnline:
		out.Severity = SeverityOK
		out.Detail = fmt.Sprintf("Online (api %d, gateway %d, %d peers)", node.APIPort, node.GatewayPort, node.Health.Peers)
	case supervisor.StateFailed:
		out.Severity = SeverityError
		out.Detail = "Failed"
		if node.LastError != "" {
			out.Detail += ": " + node.LastError
		}
	case supervisor.StateUninitialized, "":
		out.Severity = SeverityInfo
		out.Detail = "Not started"
	default:
		out.Severity = SeverityWarn
		out.Detail = strings.ToUpper(node.State[:1]) + node.State[1:]
		if !node.LaunchEnabled {
			out.Detail += " (launch disabled)"
		}
	}
	return out
}

// BuildDependencySummary grades dependency readiness: any missing required
// dependency is an error, missing optional ones a warning.
func BuildDependencySummary(deps []ipc.DependencyStatus) DependencySummary {
	if len(deps) == 0 {
		return DependencySummary{Severity: SeverityInfo, Detail: "No dependency checks configured"}
	}
	summary := DependencySummary{Total: len(deps), Severity: SeverityOK}
	for _, dep := range deps {
		switch {
		case dep.Available:
			summary.Available++
		case dep.Optional:
			summary.MissingOptional++
		default:
			summary.MissingRequired++
		}
	}
	switch {
	case summary.MissingRequired > 0:
		summary.Severity = SeverityError
	case summary.MissingOptional > 0:
		summary.Severity = SeverityWarn
	}
	summary.Detail = fmt.Sprintf("%d/%d available", summary.Available, summary.Total)
	if summary.Available < summary.Total {
		summary.Detail += fmt.Sprintf(" (missing: %d required, %d optional)", summary.MissingRequired, summary.MissingOptional)
	}
	return summary
}
