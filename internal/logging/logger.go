package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"planet/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level string
	// FileLevel sets the minimum level for file destinations. Empty keeps
	// Level; terminal destinations (stdout, stderr) always use Level.
	FileLevel        string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
	// ComponentLevels maps component names to a minimum level that replaces
	// Level for loggers created through NewComponentLogger.
	ComponentLevels map[string]string
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	fileLevel := level
	if strings.TrimSpace(opts.FileLevel) != "" {
		fileLevel = parseLevel(opts.FileLevel)
	}
	overrides := parseComponentLevels(opts.ComponentLevels)

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	terminal, files, err := openWriters(
		defaultSlice(opts.OutputPaths, []string{"stdout"}),
		defaultSlice(opts.ErrorOutputPaths, []string{"stderr"}),
	)
	if err != nil {
		return nil, err
	}

	build := func(w io.Writer, lvl slog.Level) slog.Handler {
		if w == nil {
			return nil
		}
		return newSink(w, format, lvl, overrides, opts.Development)
	}
	// A terminal gets its own sink so console colors never reach log files.
	if fileLevel == level && !isTerminal(terminal) {
		return slog.New(build(joinWriters(terminal, files), level)), nil
	}
	return slog.New(newSinkHandler(build(terminal, level), build(files, fileLevel))), nil
}

// newSink builds one output handler. The inner handler runs at the most
// verbose level any component asks for; the component handler enforces the
// effective minimum per logger.
func newSink(w io.Writer, format string, level slog.Level, overrides map[string]slog.Level, development bool) slog.Handler {
	baseLevel := level
	for _, lvl := range overrides {
		if lvl < baseLevel {
			baseLevel = lvl
		}
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(baseLevel)
	addSource := development || level <= slog.LevelDebug

	var handler slog.Handler
	if format == "json" {
		handler = newJSONHandler(w, levelVar, addSource)
	} else {
		handler = newConsoleHandler(w, levelVar, addSource)
	}
	if len(overrides) > 0 {
		handler = newComponentLevelHandler(handler, level, overrides)
	}
	return handler
}

// NewFromConfig creates a logger using application config defaults.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", OutputPaths: []string{"stdout"}, ErrorOutputPaths: []string{"stderr"}})
	}

	outputPaths := []string{"stdout"}
	errorOutputs := []string{"stderr"}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		logPath := filepath.Join(cfg.Paths.LogDir, "planet.log")
		outputPaths = append(outputPaths, logPath)
		errorOutputs = append(errorOutputs, logPath)
	}

	return New(Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: errorOutputs,
		ComponentLevels:  cfg.Logging.ComponentLevels,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}

func parseComponentLevels(values map[string]string) map[string]slog.Level {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]slog.Level, len(values))
	for component, level := range values {
		name := strings.ToLower(strings.TrimSpace(component))
		if name == "" {
			continue
		}
		out[name] = parseLevel(level)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		cp := make([]string, len(fallback))
		copy(cp, fallback)
		return cp
	}
	cp := make([]string, len(value))
	copy(cp, value)
	return cp
}

// openWriters splits destinations into terminal streams and log files.
// Either result may be nil.
func openWriters(outputPaths []string, errorPaths []string) (io.Writer, io.Writer, error) {
	seen := map[string]struct{}{}
	var terminal, files []io.Writer
	combined := append([]string{}, outputPaths...)
	combined = append(combined, errorPaths...)

	for _, path := range combined {
		trimmed := strings.TrimSpace(path)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}

		switch trimmed {
		case "stdout":
			terminal = append(terminal, os.Stdout)
		case "stderr":
			terminal = append(terminal, os.Stderr)
		default:
			if err := ensureLogDir(trimmed); err != nil {
				return nil, nil, err
			}
			file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, nil, fmt.Errorf("open log file %s: %w", trimmed, err)
			}
			files = append(files, file)
		}
	}

	if len(terminal) == 0 && len(files) == 0 {
		return os.Stdout, nil, nil
	}
	return joinWriters(terminal...), joinWriters(files...), nil
}

func joinWriters(writers ...io.Writer) io.Writer {
	live := writers[:0:0]
	for _, w := range writers {
		if w != nil {
			live = append(live, w)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return io.MultiWriter(live...)
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
