package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	level = new(slog.LevelVar)

	mu      sync.RWMutex
	handler slog.Handler = newHandler(os.Stdout)
)

func newHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				a.Key = "timestamp"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"))
			case slog.MessageKey:
				a.Key = "message"
			}
			return a
		},
	})
}

// Configure sets the process-wide level ("debug", "info", "warn", "error") and output.
// Loggers created afterwards write to w.
func Configure(lvl string, w io.Writer) {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	if w != nil {
		mu.Lock()
		handler = newHandler(w)
		mu.Unlock()
	}
}

type Logger struct {
	service string
	sl      *slog.Logger
}

func New(service string) *Logger {
	mu.RLock()
	h := handler
	mu.RUnlock()
	return &Logger{
		service: service,
		sl:      slog.New(h).With("service", service, "hostname", hostname()),
	}
}

// WithRequestID tags every entry with the request id.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{service: l.service, sl: l.sl.With("request_id", id)}
}

// reserved keys are set by the logger itself; colliding fields are renamed.
var reserved = map[string]bool{
	"service": true, "hostname": true, "request_id": true, "action": true,
	"timestamp": true, "level": true, "message": true, "error": true,
}

func (l *Logger) log(lvl slog.Level, action string, fields map[string]any, err error) {
	attrs := make([]any, 0, 2+2*len(fields)+2)
	attrs = append(attrs, "action", action)
	for k, v := range fields {
		if reserved[k] {
			k = "field_" + k
		}
		attrs = append(attrs, k, v)
	}
	if err != nil {
		attrs = append(attrs, slog.Group("error", "msg", err.Error()))
	}
	l.sl.Log(context.Background(), lvl, action, attrs...)
}

func (l *Logger) Info(action string, fields map[string]any)  { l.log(slog.LevelInfo, action, fields, nil) }
func (l *Logger) Debug(action string, fields map[string]any) { l.log(slog.LevelDebug, action, fields, nil) }
func (l *Logger) Warn(action string, err error, fields map[string]any) {
	l.log(slog.LevelWarn, action, fields, err)
}
func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.log(slog.LevelError, action, fields, err)
}

func hostname() string { h, _ := os.Hostname(); return h }
