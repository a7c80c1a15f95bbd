package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"planet/internal/daemonctl"
	"planet/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func statusKindFromSeverity(severity daemonctl.Severity) statusKind {
	switch severity {
	case daemonctl.SeverityOK:
		return statusOK
	case daemonctl.SeverityWarn:
		return statusWarn
	case daemonctl.SeverityError:
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func dependencyLines(deps []ipc.DependencyStatus, summary daemonctl.DependencySummary, colorize bool) []string {
	lines := make([]string, 0, len(deps)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			switch {
			case dep.Command != "" && dep.Version != "":
				message = fmt.Sprintf("Ready (command: %s, version %s)", dep.Command, dep.Version)
			case dep.Command != "":
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn,
			fmt.Sprintf("%s (install kubo or set ipfs.source_binary)", strings.Join(missing, ", ")), colorize))
	}
	return lines
}

// nodeLines renders the node health section. Sizes and rates use SI units.
func nodeLines(status ipc.StatusResponse, colorize bool) []string {
	node := status.Node
	health := node.Health
	lines := make([]string, 0, 8)
	state := node.State
	if state == "" {
		state = "unknown"
	}
	lines = append(lines, renderStatusLine("State", nodeStateKind(state), state, colorize))
	if node.PID > 0 {
		lines = append(lines, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", node.PID), colorize))
	}
	lines = append(lines, renderStatusLine("Ports", statusInfo,
		fmt.Sprintf("api %d, gateway %d, swarm %d", node.APIPort, node.GatewayPort, node.SwarmPort), colorize))
	if health.PeerID != "" {
		lines = append(lines, renderStatusLine("Peer ID", statusInfo, health.PeerID, colorize))
	}
	if health.IPFSVersion != "" {
		lines = append(lines, renderStatusLine("Version", statusInfo, health.IPFSVersion, colorize))
	}
	if health.Online {
		lines = append(lines, renderStatusLine("Peers", statusOK, humanize.Comma(int64(health.Peers)), colorize))
	}
	if health.RepoSize != nil {
		detail := humanize.Bytes(uint64(*health.RepoSize))
		if health.RepoObjects > 0 {
			detail = fmt.Sprintf("%s (%s objects)", detail, humanize.Comma(health.RepoObjects))
		}
		lines = append(lines, renderStatusLine("Repo Size", statusInfo, detail, colorize))
	}
	if checked := parseAPITime(health.CheckedAt); !checked.IsZero() {
		lines = append(lines, renderStatusLine("Last Check", statusInfo, humanize.Time(checked), colorize))
	}
	if node.LastError != "" {
		lines = append(lines, renderStatusLine("Last Error", statusError, node.LastError, colorize))
	}
	return lines
}

func nodeStateKind(state string) statusKind {
	switch state {
	case "online":
		return statusOK
	case "failed":
		return statusError
	case "uninitialized", "unknown":
		return statusInfo
	default:
		return statusWarn
	}
}

func bandwidthRows(status ipc.StatusResponse) [][]string {
	samples := status.Node.Health.Bandwidth
	rows := make([][]string, 0, len(samples))
	for _, sample := range samples {
		rows = append(rows, []string{
			time.Unix(sample.Time, 0).Format("15:04:05"),
			formatRate(sample.RateIn),
			formatRate(sample.RateOut),
			humanize.Bytes(uint64(sample.TotalIn)),
			humanize.Bytes(uint64(sample.TotalOut)),
		})
	}
	return rows
}

func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

func parseAPITime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func relativeTime(value string) string {
	t := parseAPITime(value)
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
