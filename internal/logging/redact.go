package logging

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

const (
	Redaction = "***"
	Separator = ";"
)

// PIIFields are scrubbed from every log line unless overridden.
var PIIFields = []string{"name", "email", "phone", "ssn", "password"}

// FilterDatum replaces the value of every field=value pair in message with
// redaction. A value runs until the next separator or the end of message.
func FilterDatum(fields []string, redaction, message, separator string) string {
	for _, field := range fields {
		if field == "" {
			continue
		}
		re := datumPattern(field, separator)
		message = re.ReplaceAllString(message, "${1}"+escapeReplacement(field+"="+redaction))
	}
	return message
}

type patternKey struct {
	field     string
	separator string
}

// datumPatterns caches compiled patterns by field and separator; the handler
// filters every record with the same few of them.
var datumPatterns sync.Map

func datumPattern(field, separator string) *regexp.Regexp {
	key := patternKey{field: field, separator: separator}
	if re, ok := datumPatterns.Load(key); ok {
		return re.(*regexp.Regexp)
	}

	value := `.*`
	if separator != "" {
		value = `[^` + regexp.QuoteMeta(separator) + `]*`
	}
	re := regexp.MustCompile(`(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(field) + `=` + value)
	actual, _ := datumPatterns.LoadOrStore(key, re)
	return actual.(*regexp.Regexp)
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// RedactAttr is a slog ReplaceAttr func masking attributes named after one
// of fields, compared case-insensitively.
func RedactAttr(fields []string) func(groups []string, a slog.Attr) slog.Attr {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = struct{}{}
	}

	return func(_ []string, a slog.Attr) slog.Attr {
		if _, ok := set[strings.ToLower(a.Key)]; ok {
			return slog.String(a.Key, Redaction)
		}
		return a
	}
}

// RedactingHandler runs FilterDatum over each record message before handing
// it to the wrapped handler.
type RedactingHandler struct {
	inner  slog.Handler
	fields []string
}

func NewRedactingHandler(inner slog.Handler, fields []string) *RedactingHandler {
	return &RedactingHandler{inner: inner, fields: fields}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, FilterDatum(h.fields, Redaction, r.Message, Separator), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithAttrs(attrs), fields: h.fields}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), fields: h.fields}
}
