package reasoner

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// TestMain re-execs this test binary as a stub `claude` child process
// when GO_WANT_HELPER_PROCESS is set, mirroring the standard library's
// own os/exec test idiom. The stub echoes a system frame, then for
// every stdin line emits an assistant frame (marking compaction on the
// third line) followed by a result frame carrying one tool call.
func TestMain(m *testing.M) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") == "1" {
		runHelperProcess()
		return
	}
	os.Exit(m.Run())
}

func runHelperProcess() {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	fmt.Fprintln(out, `{"type":"system","tools":["StructuredOutput"],"session_id":"sess-1"}`)
	out.Flush()

	scanner := bufio.NewScanner(os.Stdin)
	turn := 0
	for scanner.Scan() {
		turn++
		if turn == 3 {
			fmt.Fprintln(out, `{"type":"assistant","message":{"context_management":{"truncated_content_length":500}}}`)
		}
		fmt.Fprintf(out, `{"type":"result","total_cost_usd":0.01,"session_id":"sess-1","structured_output":{"tool_calls":[{"tool":"done"}]}}`+"\n")
		out.Flush()
	}
}

func newTestBridgeCmd() *exec.Cmd {
	cmd := exec.Command(os.Args[0], "-test.run=TestMain")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd
}

func startTestBridge(t *testing.T) *Bridge {
	t.Helper()
	prev := newBridgeCmd
	newBridgeCmd = func(model, resume string) *exec.Cmd {
		return newTestBridgeCmd()
	}
	t.Cleanup(func() { newBridgeCmd = prev })

	sessionFile := filepath.Join(t.TempDir(), "session_id")
	b, err := Start(context.Background(), "opus", "system prompt", sessionFile)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBridgeStartupHandshakeAndFirstTurn(t *testing.T) {
	b := startTestBridge(t)
	if b.session != "sess-1" {
		t.Errorf("session = %q, want sess-1", b.session)
	}
}

func TestBridgeSendTextReturnsToolCalls(t *testing.T) {
	b := startTestBridge(t)
	resp, err := b.SendText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Tool != "done" {
		t.Fatalf("ToolCalls = %+v, want one done call", resp.ToolCalls)
	}
	if resp.Compacted {
		t.Errorf("expected compacted=false on this turn")
	}
}

func TestBridgeDetectsCompaction(t *testing.T) {
	b := startTestBridge(t)
	// Helper process marks turn 2 (the second stdin line after the seed
	// message) as compacted.
	if _, err := b.SendText(context.Background(), "first"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	resp, err := b.SendText(context.Background(), "second")
	if err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if !resp.Compacted {
		t.Errorf("expected compacted=true on the marked turn")
	}
}
