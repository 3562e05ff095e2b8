// Package logging configures the process-wide slog logger.
//
// Interactive runs log human-readable text to stderr. When chiropctl runs
// under systemd (e.g. from a Grid'5000 node unit) and the journal socket is
// available, records are mirrored to the journal with structured fields so
// they survive the job's stdout capture.
package logging

import (
	"context"
	"log/slog"
	"os"

	"github.com/coreos/go-systemd/v22/journal"
)

// Setup installs the default slog logger. verbose enables debug level.
func Setup(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	if journal.Enabled() {
		handler = &journalHandler{next: handler}
	}

	slog.SetDefault(slog.New(handler))
}

// journalHandler mirrors records to the systemd journal in addition to the
// wrapped handler. Journal send failures are ignored; the primary handler
// already has the record.
type journalHandler struct {
	next slog.Handler
}

func (h *journalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *journalHandler) Handle(ctx context.Context, r slog.Record) error {
	vars := map[string]string{
		"SYSLOG_IDENTIFIER": "chiropctl",
	}
	r.Attrs(func(a slog.Attr) bool {
		vars[journalFieldName(a.Key)] = a.Value.String()
		return true
	})
	_ = journal.Send(r.Message, journalPriority(r.Level), vars)

	return h.next.Handle(ctx, r)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &journalHandler{next: h.next.WithAttrs(attrs)}
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	return &journalHandler{next: h.next.WithGroup(name)}
}

// journalFieldName maps an attr key to a journal variable name. Journal
// fields must be uppercase ASCII with underscores.
func journalFieldName(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z':
			out = append(out, c-'a'+'A')
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9' && i > 0):
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "FIELD"
	}
	return string(out)
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}
