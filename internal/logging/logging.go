// Package logging constructs the structured logger shared by every
// NexusConnect component.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/Lakshan1806/Nexus-Connect-sub000/config"
)

// LevelTrace is a verbosity level below slog.LevelDebug, used for
// per-frame wire tracing.
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

// New builds the process-wide *slog.Logger according to cfg.LogLevel.
func New(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "trace":
		level = LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info":
		fallthrough
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				lvl := a.Value.Any().(slog.Level)
				label, ok := levelNames[lvl]
				if !ok {
					label = lvl.String()
				}
				a.Value = slog.StringValue(label)
			}
			return a
		},
	}
	return slog.New(handler{slog.NewTextHandler(os.Stdout, opts)})
}

// handler enriches every log record with contextual fields (username, remote
// IP) pulled from the request/session context, so call sites don't have to
// repeat them.
type handler struct {
	slog.Handler
}

type ctxKey string

// CtxKeyUsername and CtxKeyIP are the context keys components use to stash
// values the logging handler picks up automatically.
const (
	CtxKeyUsername ctxKey = "username"
	CtxKeyIP       ctxKey = "ip"
)

func (h handler) Handle(ctx context.Context, r slog.Record) error {
	if u := ctx.Value(CtxKeyUsername); u != nil {
		if s, ok := u.(string); ok {
			r.AddAttrs(slog.String("username", s))
		}
	}
	if ip := ctx.Value(CtxKeyIP); ip != nil {
		if s, ok := ip.(string); ok {
			r.AddAttrs(slog.String("ip", s))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return handler{h.Handler.WithAttrs(attrs)}
}

func (h handler) WithGroup(name string) slog.Handler {
	return handler{h.Handler.WithGroup(name)}
}

// WithUsername returns a context carrying the username for logging.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, CtxKeyUsername, username)
}

// WithIP returns a context carrying the remote IP for logging.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, CtxKeyIP, ip)
}
