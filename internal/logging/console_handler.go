package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// consoleHandler writes a header line per record followed by one indented
// "- key: value" line per attribute.
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Leveler
	addSource bool
	color     bool
	prefix    string
	preset    []field
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) write(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(p)
	return err
}

type field struct {
	key   string
	value slog.Value
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{
		out:       &lockedWriter{w: w},
		level:     level,
		addSource: addSource,
		color:     isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.preset = slices.Clip(h.preset)
	for _, attr := range attrs {
		clone.preset = appendField(clone.preset, h.prefix, attr)
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func (h *consoleHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.Enabled(ctx, record.Level) {
		return nil
	}
	fields := slices.Clone(h.preset)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})
	fields = lastWins(fields)

	component := takeField(&fields, FieldComponent)
	feedID := lookupField(fields, FieldFeedID)
	operation := lookupField(fields, FieldOperation)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	message := strings.TrimSpace(record.Message)
	if message == "" {
		message = "(no message)"
	}

	var buf bytes.Buffer
	buf.WriteString(formatTimestamp(ts))
	buf.WriteByte(' ')
	buf.WriteString(h.levelText(record.Level))
	if component != "" {
		buf.WriteString(" [" + component + "]")
	}
	if subj := subject(feedID, operation); subj != "" {
		buf.WriteString(" " + subj)
	}
	buf.WriteString(" – " + message)
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil && src.File != "" {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	buf.WriteByte('\n')

	verbose := record.Level < slog.LevelInfo
	for _, f := range prioritize(fields) {
		if !verbose && (f.key == FieldFeedID || f.key == FieldOperation) {
			continue
		}
		buf.WriteString("    - " + f.key + ": " + formatValueForKey(f.key, f.value) + "\n")
	}
	return h.out.write(buf.Bytes())
}

func (h *consoleHandler) levelText(level slog.Level) string {
	var label, code string
	switch {
	case level >= slog.LevelError:
		label, code = "ERROR", "\033[31m"
	case level >= slog.LevelWarn:
		label, code = "WARN", "\033[33m"
	case level >= slog.LevelInfo:
		label, code = "INFO", "\033[36m"
	default:
		label, code = "DEBUG", "\033[90m"
	}
	if !h.color {
		return label
	}
	return code + label + "\033[0m"
}

// subject names the feed (first eight characters of its ID) and operation a
// record is about.
func subject(feedID, operation string) string {
	feedID = strings.TrimSpace(feedID)
	operation = strings.TrimSpace(operation)
	if len(feedID) > 8 {
		feedID = feedID[:8]
	}
	switch {
	case feedID != "" && operation != "":
		return "Feed " + feedID + " (" + operation + ")"
	case feedID != "":
		return "Feed " + feedID
	default:
		return operation
	}
}

// leadingKeys are printed first, in this order, when present.
var leadingKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldErrorHint,
	FieldImpact,
	FieldAddress,
	"cid",
	"state",
	"api_port",
	"gateway_port",
	"peers",
}

func prioritize(fields []field) []field {
	rank := func(key string) int {
		if i := slices.Index(leadingKeys, key); i >= 0 {
			return i
		}
		return len(leadingKeys)
	}
	ordered := slices.Clone(fields)
	slices.SortStableFunc(ordered, func(a, b field) int {
		return rank(a.key) - rank(b.key)
	})
	return ordered
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		inner := prefix
		if attr.Key != "" {
			inner = prefix + attr.Key + "."
		}
		for _, member := range value.Group() {
			dst = appendField(dst, inner, member)
		}
		return dst
	}
	key := prefix + attr.Key
	if attr.Key == "" {
		key = strings.TrimSuffix(prefix, ".")
	}
	if key == "" {
		return dst
	}
	return append(dst, field{key: key, value: value})
}

// lastWins drops earlier occurrences of a repeated key, keeping the position
// of the first and the value of the last.
func lastWins(fields []field) []field {
	if len(fields) < 2 {
		return fields
	}
	index := make(map[string]int, len(fields))
	out := fields[:0:0]
	for _, f := range fields {
		if i, seen := index[f.key]; seen {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func lookupField(fields []field, key string) string {
	for _, f := range fields {
		if f.key == key {
			return attrString(f.value)
		}
	}
	return ""
}

func takeField(fields *[]field, key string) string {
	for i, f := range *fields {
		if f.key == key {
			*fields = slices.Delete(*fields, i, i+1)
			return attrString(f.value)
		}
	}
	return ""
}
