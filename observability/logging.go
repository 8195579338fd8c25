package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// TraceContextHandler is a slog.Handler that adds trace context to log records.
type TraceContextHandler struct {
	handler slog.Handler
}

// NewTraceContextHandler creates a new handler that adds trace context.
func NewTraceContextHandler(handler slog.Handler) *TraceContextHandler {
	return &TraceContextHandler{
		handler: handler,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *TraceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds trace context and passes to underlying handler.
func (h *TraceContextHandler) Handle(ctx context.Context, record slog.Record) error {
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		record.AddAttrs(
			slog.String("trace_id", spanContext.TraceID().String()),
			slog.String("span_id", spanContext.SpanID().String()),
		)
	}

	return h.handler.Handle(ctx, record)
}

// WithAttrs returns a new handler with additional attributes.
func (h *TraceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceContextHandler{
		handler: h.handler.WithAttrs(attrs),
	}
}

// WithGroup returns a new handler with the given group.
func (h *TraceContextHandler) WithGroup(name string) slog.Handler {
	return &TraceContextHandler{
		handler: h.handler.WithGroup(name),
	}
}

// StructuredHandler writes one flat JSON object per record. Group names are
// joined into dotted keys.
type StructuredHandler struct {
	out    io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewStructuredHandler creates a new structured JSON handler.
func NewStructuredHandler(out io.Writer, level slog.Leveler) *StructuredHandler {
	if out == nil {
		out = os.Stderr
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &StructuredHandler{
		out:   out,
		mu:    &sync.Mutex{},
		level: level,
	}
}

// Enabled reports whether level is at or above the configured minimum.
func (h *StructuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats and outputs the log record as JSON.
func (h *StructuredHandler) Handle(_ context.Context, record slog.Record) error {
	logEntry := make(map[string]interface{})

	logEntry["timestamp"] = record.Time.Format(time.RFC3339)
	logEntry["level"] = record.Level.String()
	logEntry["message"] = record.Message

	if record.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{record.PC})
		f, _ := fs.Next()
		logEntry["source"] = map[string]interface{}{
			"function": f.Function,
			"file":     f.File,
			"line":     f.Line,
		}
	}

	// Handler attributes were captured before any record-level group.
	for _, attr := range h.attrs {
		logEntry[attr.Key] = attrValue(attr.Value)
	}

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	record.Attrs(func(attr slog.Attr) bool {
		logEntry[prefix+attr.Key] = attrValue(attr.Value)
		return true
	})

	data, err := json.Marshal(logEntry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = fmt.Fprintln(h.out, string(data))
	return err
}

func attrValue(v slog.Value) interface{} {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.Any()
}

// WithAttrs returns a new handler with additional attributes.
func (h *StructuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		newAttrs = append(newAttrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}

	clone := *h
	clone.attrs = newAttrs
	return &clone
}

// WithGroup returns a new handler with the given group.
func (h *StructuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	clone := *h
	clone.groups = newGroups
	return &clone
}

// ParseLevel maps a config string (debug, info, warn, error) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// ConfigureLogging installs the process-wide logger. format is "json" or
// "text". Logs go to out, which should not be the stream the chat writes to.
func ConfigureLogging(out io.Writer, level slog.Level, format string, includeTraceContext bool) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if format == "json" {
		handler = NewStructuredHandler(out, level)
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level: level,
		})
	}

	if includeTraceContext {
		handler = NewTraceContextHandler(handler)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// GetLoggerWithTrace returns a logger that includes trace context.
func GetLoggerWithTrace() *slog.Logger {
	handler := NewTraceContextHandler(slog.Default().Handler())
	return slog.New(handler)
}
