// Package observability configures log/slog for ilji.
//
// Setup installs the process-wide handler. Every string attribute passes
// through a redaction hook that replaces configured secret values (API
// keys, access tokens) with a placeholder, so a token echoed inside an
// upstream error message never reaches the log. Attributes whose key names
// a secret ("access_token", "api_key") are masked outright. Logger attaches
// the per-message trace ID carried in the context.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bdobrica/ilji/common/redact"
	"github.com/bdobrica/ilji/common/trace"
)

// Options configures Setup.
type Options struct {
	// Level is debug, info, warn or error. Default: info.
	Level string
	// Format is text or json. Default: text.
	Format string
	// Writer defaults to os.Stdout.
	Writer io.Writer
	// Secrets are literal values scrubbed from every string attribute.
	// Values shorter than 4 bytes are ignored.
	Secrets []string
}

// ParseLevel maps a level name onto slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// New builds a logger from opts without installing it.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	secrets := redact.Usable(opts.Secrets)
	hopts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString && redact.SensitiveKey(a.Key) && a.Value.String() != "" {
				a.Value = slog.StringValue(redact.Placeholder)
				return a
			}
			if len(secrets) == 0 {
				return a
			}
			switch a.Value.Kind() {
			case slog.KindString:
				a.Value = slog.StringValue(redact.String(a.Value.String(), secrets...))
			case slog.KindAny:
				if err, ok := a.Value.Any().(error); ok {
					a.Value = slog.StringValue(redact.String(err.Error(), secrets...))
				}
			}
			return a
		},
	}

	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h)
}

// Setup builds a logger from opts and installs it as slog's default.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// Logger returns base (or the default logger when nil) annotated with ctx's
// trace ID when one is present.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := trace.FromContext(ctx); id != "" {
		return base.With("trace_id", id)
	}
	return base
}
