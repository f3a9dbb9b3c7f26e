package observability

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// DefaultRedactPatterns matches the secret shapes that actually flow
// through Aura's logs: LLM provider API keys passed to the gateway as
// X-Provider-API-Key, and the generic key/token/secret=value shape any
// collaborator might log by accident.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey|token|secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-[a-zA-Z0-9]{40,}`,
	`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
}

// RedactingHandler wraps an slog.Handler and redacts credential-shaped
// substrings from the record message and every string-valued attribute
// before handing the record to next. The LLM Gateway logs provider
// errors and request metadata that can carry a credential in the message
// text (e.g. an upstream HTTP error echoing the request); this is the
// one layer all such logging passes through regardless of which
// collaborator produced it.
type RedactingHandler struct {
	next    slog.Handler
	redacts []*regexp.Regexp
}

// NewRedactingHandler wraps next, compiling DefaultRedactPatterns plus any
// caller-supplied extra patterns. Patterns that fail to compile are
// skipped rather than treated as a configuration error — logging must
// never be the reason the process fails to start.
func NewRedactingHandler(next slog.Handler, extraPatterns ...string) *RedactingHandler {
	h := &RedactingHandler{next: next}
	for _, pattern := range append(append([]string{}, DefaultRedactPatterns...), extraPatterns...) {
		if re, err := regexp.Compile(pattern); err == nil {
			h.redacts = append(h.redacts, re)
		}
	}
	return h
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	record.Message = h.redact(record.Message)
	redacted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(a slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, redacted)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), redacts: h.redacts}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), redacts: h.redacts}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.redact(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, h.redact(err.Error()))
		}
	}
	return a
}

func (h *RedactingHandler) redact(s string) string {
	for _, re := range h.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// LogLevelFromString converts a config string to a slog.Level, defaulting
// to Info for an empty or unrecognized value.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
