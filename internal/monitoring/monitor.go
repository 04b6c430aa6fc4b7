// Package monitoring provides observability fan-out for the user/assistant
// and moderation message flow, independent of structured logging.
package monitoring

import (
	"fmt"
	"io"
	"os"
	"time"
)

// Message is a standardized observability packet broadcast by the gateway
// whenever a user message, assistant reply, or moderation action occurs.
type Message struct {
	Timestamp time.Time
	Kind      string // "USER", "ASSISTANT", "MODERATION", "SYSTEM"
	ChatID    int64
	Username  string
	Content   string
}

// Monitor is the lifecycle and consumption protocol for observability sinks.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg Message)
}

// CLIMonitor prints the message flow to stdout, for interactive operation.
type CLIMonitor struct {
	w io.Writer
}

func NewCLIMonitor() *CLIMonitor {
	return &CLIMonitor{w: os.Stdout}
}

func (m *CLIMonitor) Start() error {
	fmt.Fprintln(m.w, "---------------------------------------------------------")
	fmt.Fprintln(m.w, "claudima monitor active - message flow will appear here")
	fmt.Fprintln(m.w, "---------------------------------------------------------")
	return nil
}

func (m *CLIMonitor) Stop() error { return nil }

func (m *CLIMonitor) OnMessage(msg Message) {
	ts := msg.Timestamp.Format("2006-01-02 15:04:05")
	var line string
	switch msg.Kind {
	case "ASSISTANT":
		line = fmt.Sprintf("[bot] %s", msg.Content)
	case "MODERATION":
		line = fmt.Sprintf("[mod/%d] %s", msg.ChatID, msg.Content)
	default:
		line = fmt.Sprintf("[%d/%s] %s", msg.ChatID, msg.Username, msg.Content)
	}
	fmt.Fprintf(m.w, "\033[90m[%s]\033[0m %s\n", ts, line)
}
