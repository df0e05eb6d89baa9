// Package ccoslog provides the layered, dependency-free structured logger
// shared by every CCOS core component. It is grounded on the teacher
// framework's core.ProductionLogger: JSON output in production, a
// human-readable line format for local development, level gating, and a
// component tag so logs can be filtered by subsystem.
//
// CCOS keeps this hand-rolled rather than importing zap/zerolog/logrus
// because the teacher itself treats logging as a zero-dependency concern
// by design (see core/config.go's ProductionLogger doc comments) — this is
// one of the few ambient concerns where the teacher's own idiom is stdlib.
package ccoslog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the logging contract used throughout CCOS.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
	InfoContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorContext(ctx context.Context, msg string, fields map[string]interface{})
	WithComponent(component string) Logger
}

type baggageKey struct{}

// WithBaggage attaches trace-correlation baggage (e.g. request_id, plan_id)
// to a context so it is rendered by InfoContext/ErrorContext.
func WithBaggage(ctx context.Context, baggage map[string]string) context.Context {
	return context.WithValue(ctx, baggageKey{}, baggage)
}

func baggageFrom(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	if b, ok := ctx.Value(baggageKey{}).(map[string]string); ok {
		return b
	}
	return nil
}

// levelRank orders levels so Level gating can compare them.
var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// logger is the concrete, concurrency-safe Logger implementation.
type logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     string
	format    string // "json" | "text"
	service   string
	component string
}

// Option configures a Logger at construction time.
type Option func(*logger)

// WithOutput overrides the default stdout writer.
func WithOutput(w io.Writer) Option { return func(l *logger) { l.out = w } }

// WithLevel sets the minimum level emitted ("debug", "info", "warn", "error").
func WithLevel(level string) Option {
	return func(l *logger) { l.level = strings.ToLower(level) }
}

// WithFormat selects "json" (production) or "text" (local development).
func WithFormat(format string) Option { return func(l *logger) { l.format = format } }

// New constructs a Logger for the given service name.
func New(service string, opts ...Option) Logger {
	l := &logger{out: os.Stdout, level: "info", format: "json", service: service, component: "framework/core"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *logger) WithComponent(component string) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &logger{out: l.out, level: l.level, format: l.format, service: l.service, component: component}
}

func (l *logger) enabled(level string) bool {
	return levelRank[level] >= levelRank[l.level]
}

func (l *logger) emit(ctx context.Context, level, msg string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().UTC().Format(time.RFC3339Nano)
	baggage := baggageFrom(ctx)

	if l.format == "json" {
		entry := map[string]interface{}{
			"timestamp": ts,
			"level":     level,
			"service":   l.service,
			"component": l.component,
			"message":   msg,
		}
		for k, v := range baggage {
			entry["trace."+k] = v
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.out, string(data))
		}
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s/%s] %s", ts, strings.ToUpper(level), l.service, l.component, msg)
	if reqID := baggage["request_id"]; reqID != "" {
		fmt.Fprintf(&b, " req=%s", reqID)
	}
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintln(l.out, b.String())
}

func (l *logger) Info(msg string, fields map[string]interface{})  { l.emit(nil, "info", msg, fields) }
func (l *logger) Warn(msg string, fields map[string]interface{})  { l.emit(nil, "warn", msg, fields) }
func (l *logger) Error(msg string, fields map[string]interface{}) { l.emit(nil, "error", msg, fields) }
func (l *logger) Debug(msg string, fields map[string]interface{}) { l.emit(nil, "debug", msg, fields) }

func (l *logger) InfoContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.emit(ctx, "info", msg, fields)
}
func (l *logger) ErrorContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.emit(ctx, "error", msg, fields)
}

// NoOp is a Logger that discards everything, used as a safe zero value.
type noOp struct{}

func NoOp() Logger                                                              { return noOp{} }
func (noOp) Info(string, map[string]interface{})                                {}
func (noOp) Warn(string, map[string]interface{})                                {}
func (noOp) Error(string, map[string]interface{})                               {}
func (noOp) Debug(string, map[string]interface{})                               {}
func (noOp) InfoContext(context.Context, string, map[string]interface{})        {}
func (noOp) ErrorContext(context.Context, string, map[string]interface{})       {}
func (n noOp) WithComponent(string) Logger                                      { return n }
