package reasoner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// Bridge owns the persistent `claude` child process and exposes the
// turn API (send_text/send_image/send_tool_results) over its
// newline-delimited JSON stdio protocol. Exactly one turn is in flight
// at a time, serialized by turnMu per spec.md §4.2's concurrency note.
type Bridge struct {
	model       string
	sessionFile string

	turnMu sync.Mutex

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan outputFrame

	session string
}

// Start launches the child process, performs the startup handshake
// (seed frame, wait for `system`, wait for the first `result`), and
// returns a ready Bridge. If sessionFile contains a prior session id,
// the child is launched with --resume.
func Start(ctx context.Context, model, systemPrompt, sessionFile string) (*Bridge, error) {
	resume := loadSessionID(sessionFile)

	cmd := newBridgeCmd(model, resume)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("reasoner: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("reasoner: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("reasoner: spawn: %w", err)
	}
	slog.Info("reasoner subprocess started", "pid", cmd.Process.Pid, "resumed", resume != "")

	b := &Bridge{
		model:       model,
		sessionFile: sessionFile,
		cmd:         cmd,
		stdin:       stdin,
		frames:      make(chan outputFrame, 100),
		session:     resume,
	}

	go b.readLoop(stdout)

	first := systemPrompt
	if resume != "" {
		first = "Session resumed. Ready for new messages."
	}
	if err := b.writeUserFrame(first); err != nil {
		return nil, err
	}

	if err := b.awaitSystemFrame(); err != nil {
		return nil, err
	}
	if _, err := b.awaitResult(); err != nil {
		return nil, fmt.Errorf("reasoner: startup turn failed: %w", err)
	}
	return b, nil
}

// newBridgeCmd builds the child process command. Overridable in tests
// so the subprocess can be a test-harness stub instead of the real
// `claude` binary.
var newBridgeCmd = buildCommand

func buildCommand(model, resume string) *exec.Cmd {
	args := []string{
		"--print",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
		"--model", model,
		"--tools", "",
		"--json-schema", toolCallsSchema,
	}
	if resume != "" {
		args = append(args, "--resume", resume)
	}
	return exec.Command("claude", args...)
}

func (b *Bridge) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var frame outputFrame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			slog.Debug("reasoner: parse error on stdout frame", "err", err, "line_prefix", truncateForLog(line))
			continue
		}
		b.frames <- frame
	}
	close(b.frames)
}

func truncateForLog(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

func (b *Bridge) writeUserFrame(content any) error {
	frame := inputFrame{Type: "user", Message: inputFrameMsg{Role: "user", Content: content}}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("reasoner: marshal input frame: %w", err)
	}
	if _, err := b.stdin.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("reasoner: write stdin: %w", err)
	}
	return nil
}

// awaitSystemFrame blocks until the `system` frame arrives, validating
// the tools list carries nothing beyond the structured-output sentinel.
func (b *Bridge) awaitSystemFrame() error {
	for frame := range b.frames {
		switch frame.Type {
		case "system":
			for _, t := range frame.Tools {
				if t != "StructuredOutput" {
					return fmt.Errorf("reasoner: security violation: unexpected tool %q in system frame", t)
				}
			}
			if frame.SessionID != "" {
				b.session = frame.SessionID
				saveSessionID(b.sessionFile, frame.SessionID)
			}
			return nil
		default:
			continue
		}
	}
	return fmt.Errorf("reasoner: output channel closed before system frame")
}

// awaitResult consumes frames until a `result` frame, detecting
// compaction from any intermediate `assistant` frame along the way.
func (b *Bridge) awaitResult() (Response, error) {
	compacted := false
	for frame := range b.frames {
		switch frame.Type {
		case "assistant":
			if frame.Message != nil && frame.Message.ContextManagement != nil &&
				frame.Message.ContextManagement.TruncatedContentLength != nil {
				compacted = true
			}
		case "result":
			if frame.SessionID != "" && frame.SessionID != b.session {
				b.session = frame.SessionID
				saveSessionID(b.sessionFile, frame.SessionID)
			}
			return Response{
				ToolCalls: parseToolCalls(frame.StructuredOutput),
				Compacted: compacted,
			}, nil
		default:
			continue
		}
	}
	return Response{}, fmt.Errorf("reasoner: output channel closed before result frame")
}

func parseToolCalls(so *structuredOutput) []ToolCall {
	if so == nil {
		return nil
	}
	calls := make([]ToolCall, 0, len(so.ToolCalls))
	for i, raw := range so.ToolCalls {
		if raw.Tool == "" {
			slog.Warn("reasoner: tool call missing tool name")
			continue
		}
		calls = append(calls, ToolCall{
			ID:   fmt.Sprintf("tool_%d", i),
			Tool: raw.Tool,
			Args: raw.ToArgs(),
		})
	}
	return calls
}

// SendText sends a plain-text user turn and waits for the response.
func (b *Bridge) SendText(ctx context.Context, content string) (Response, error) {
	b.turnMu.Lock()
	defer b.turnMu.Unlock()
	if err := b.writeUserFrame(content); err != nil {
		return Response{}, err
	}
	return b.awaitResult()
}

// SendImage sends a turn carrying text plus one inline image, base64-encoded.
func (b *Bridge) SendImage(ctx context.Context, text string, data []byte, mimeType string) (Response, error) {
	b.turnMu.Lock()
	defer b.turnMu.Unlock()

	blocks := []contentBlock{}
	if text != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: text})
	}
	blocks = append(blocks, contentBlock{
		Type:   "image",
		Source: &blockImgSource{Type: "base64", MediaType: mimeType, Data: base64Encode(data)},
	})

	if err := b.writeUserFrame(blocks); err != nil {
		return Response{}, err
	}
	return b.awaitResult()
}

// SendToolResults reports the tool-call loop's results for the prior
// turn and waits for the next response.
func (b *Bridge) SendToolResults(ctx context.Context, results []ToolResult) (Response, error) {
	b.turnMu.Lock()
	defer b.turnMu.Unlock()

	var sb strings.Builder
	sb.WriteString("Tool results:\n")
	for _, r := range results {
		sb.WriteString("- ")
		sb.WriteString(r.ToolUseID)
		sb.WriteString(": ")
		sb.WriteString(r.Content)
		if r.IsError {
			sb.WriteString(" (ERROR)")
		}
		sb.WriteString("\n")
	}

	if err := b.writeUserFrame(sb.String()); err != nil {
		return Response{}, err
	}
	return b.awaitResult()
}

// Close closes stdin, which per spec.md §4.2 is a terminal action for
// the child process, and waits for it to exit.
func (b *Bridge) Close() error {
	b.turnMu.Lock()
	defer b.turnMu.Unlock()
	if err := b.stdin.Close(); err != nil {
		return err
	}
	return b.cmd.Wait()
}

func loadSessionID(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveSessionID(path, sessionID string) {
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte(sessionID), 0o644); err != nil {
		slog.Warn("reasoner: failed to persist session id", "err", err)
	}
}
