// Package logging sets up the process-wide structured logger.
package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type debugIDKey struct{}

// WithDebugID attaches a debug id to ctx so CustomHandler groups every log
// line emitted while handling one dispatch turn under the same tag.
func WithDebugID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, debugIDKey{}, id)
}

// CustomHandler implements slog.Handler with a terse
// "[TIME] [LEVEL] [DEBUG_ID] message attr=val..." line format.
type CustomHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{w: w, opts: opts}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	debugID := ""
	if ctx != nil {
		if v := ctx.Value(debugIDKey{}); v != nil {
			if id, ok := v.(string); ok {
				debugID = id
			}
		}
	}

	fmt.Fprintf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), r.Level)
	if debugID != "" {
		fmt.Fprintf(buf, " [%s]", debugID)
	}
	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})
	buf.WriteString("\n")

	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{w: h.w, opts: h.opts, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
}

func (h *CustomHandler) WithGroup(string) slog.Handler {
	// Grouping isn't needed by anything this process logs; flatten instead.
	return h
}

// Setup installs the CustomHandler as the default slog logger at the given level.
func Setup(levelStr string) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// PrintBanner prints the startup banner.
func PrintBanner() {
	fmt.Println(`
  ____ _                 _ _
 / ___| | __ _ _   _  __| (_)_ __ ___   __ _
| |   | |/ _` + "`" + ` | | | |/ _` + "`" + ` | | '_ ` + "`" + ` _ \ / _` + "`" + ` |
| |___| | (_| | |_| | (_| | | | | | | | (_| |
 \____|_|\__,_|\__,_|\__,_|_|_| |_| |_|\__,_|
`)
}
