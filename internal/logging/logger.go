// Package logging builds the process logger and keeps personal data out of it.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Options struct {
	Level  string
	Format string
	Writer io.Writer
	// RedactFields overrides PIIFields when non-empty.
	RedactFields []string
}

// New returns a slog logger whose attributes and messages are scrubbed of
// the configured PII fields.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	fields := opts.RedactFields
	if len(fields) == 0 {
		fields = PIIFields
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       ParseLevel(opts.Level),
		ReplaceAttr: RedactAttr(fields),
	}

	var h slog.Handler
	if strings.EqualFold(opts.Format, FormatText) {
		h = slog.NewTextHandler(w, handlerOpts)
	} else {
		h = slog.NewJSONHandler(w, handlerOpts)
	}

	return slog.New(NewRedactingHandler(h, fields))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// LogError logs err with its oops code and context when it carries them.
func LogError(logger *slog.Logger, msg string, err error) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{"error", oopsErr.Error()}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, "error", err)
}
