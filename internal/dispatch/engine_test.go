package dispatch

import (
	"context"
	"path/filepath"
	"testing"

	"claudima/internal/archive"
	"claudima/internal/config"
	"claudima/internal/contextbuffer"
	"claudima/internal/llmprovider"
	"claudima/internal/moderation"
	"claudima/internal/reasoner"
	"claudima/internal/toolsurface"
)

// fakeBridge is a scripted stand-in for the Reasoner Bridge: each call
// pops the next queued response, recording every turn it was sent.
type fakeBridge struct {
	responses []reasoner.Response
	sent      []string
}

func (f *fakeBridge) next() reasoner.Response {
	if len(f.responses) == 0 {
		return reasoner.Response{}
	}
	r := f.responses[0]
	f.responses = f.responses[1:]
	return r
}

func (f *fakeBridge) SendText(ctx context.Context, content string) (reasoner.Response, error) {
	f.sent = append(f.sent, content)
	return f.next(), nil
}

func (f *fakeBridge) SendImage(ctx context.Context, text string, data []byte, mimeType string) (reasoner.Response, error) {
	f.sent = append(f.sent, text)
	return f.next(), nil
}

func (f *fakeBridge) SendToolResults(ctx context.Context, results []reasoner.ToolResult) (reasoner.Response, error) {
	f.sent = append(f.sent, "tool_results")
	return f.next(), nil
}

func newTestArchive(t *testing.T) *archive.Store {
	t.Helper()
	s, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestEngine(t *testing.T, bridge *fakeBridge, registry *toolsurface.Registry) *Engine {
	t.Helper()
	if registry == nil {
		registry = toolsurface.NewRegistry()
	}
	deps := Deps{
		Archive:    newTestArchive(t),
		ContextBuf: contextbuffer.New(50),
		Registry:   registry,
		Bridge:     bridge,
		Trust:      config.NewTrustSet(&config.Config{OwnerIDs: []int64{1}}),
	}
	return New(deps)
}

func doneOnly(id string) reasoner.Response {
	return reasoner.Response{ToolCalls: []reasoner.ToolCall{{ID: id, Tool: "done"}}}
}

// Termination condition (§4.1): a response carrying done, no error
// result, no textual result, and no image exits the loop after exactly
// one iteration.
func TestProcessBatchExitsCleanlyOnBareDone(t *testing.T) {
	bridge := &fakeBridge{responses: []reasoner.Response{doneOnly("t1")}}
	e := newTestEngine(t, bridge, nil)

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(bridge.sent) != 1 {
		t.Fatalf("expected exactly one turn sent, got %d: %v", len(bridge.sent), bridge.sent)
	}
}

// An action tool's non-error, content-free result alongside done should
// also exit cleanly in the same turn.
func TestProcessBatchExitsCleanlyAfterActionToolPlusDone(t *testing.T) {
	registry := toolsurface.NewRegistry()
	registry.Register(&toolsurface.Spec{
		Name: "send_message",
		Execute: func(ctx context.Context, x *toolsurface.ExecContext, args map[string]any) *toolsurface.Result {
			return toolsurface.Ok("")
		},
	})
	bridge := &fakeBridge{responses: []reasoner.Response{
		{ToolCalls: []reasoner.ToolCall{
			{ID: "t1", Tool: "send_message", Args: map[string]any{"chat_id": float64(-100), "text": "hi"}},
			{ID: "t2", Tool: "done"},
		}},
	}}
	e := newTestEngine(t, bridge, registry)

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(bridge.sent) != 1 {
		t.Fatalf("expected exactly one turn sent, got %d: %v", len(bridge.sent), bridge.sent)
	}
}

// A query tool's textual result means the loop must continue even
// though done was also present in the same response.
func TestProcessBatchContinuesWhenToolReturnsContent(t *testing.T) {
	registry := toolsurface.NewRegistry()
	registry.Register(&toolsurface.Spec{
		Name:    "query",
		IsQuery: true,
		Execute: func(ctx context.Context, x *toolsurface.ExecContext, args map[string]any) *toolsurface.Result {
			return toolsurface.Ok("3 rows returned")
		},
	})
	bridge := &fakeBridge{responses: []reasoner.Response{
		{ToolCalls: []reasoner.ToolCall{{ID: "t1", Tool: "query"}, {ID: "t2", Tool: "done"}}},
		doneOnly("t3"),
	}}
	e := newTestEngine(t, bridge, registry)

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(bridge.sent) != 2 {
		t.Fatalf("expected two turns sent (content forces another round), got %d: %v", len(bridge.sent), bridge.sent)
	}
}

// A tool error likewise forces another round even with done present.
func TestProcessBatchContinuesOnToolError(t *testing.T) {
	registry := toolsurface.NewRegistry()
	registry.Register(&toolsurface.Spec{
		Name: "ban_user",
		Execute: func(ctx context.Context, x *toolsurface.ExecContext, args map[string]any) *toolsurface.Result {
			return toolsurface.Errf("not authorized")
		},
	})
	bridge := &fakeBridge{responses: []reasoner.Response{
		{ToolCalls: []reasoner.ToolCall{{ID: "t1", Tool: "ban_user"}, {ID: "t2", Tool: "done"}}},
		doneOnly("t3"),
	}}
	e := newTestEngine(t, bridge, registry)

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(bridge.sent) != 2 {
		t.Fatalf("expected two turns sent (error forces another round), got %d: %v", len(bridge.sent), bridge.sent)
	}
}

// An empty tool_calls response is nudged rather than treated as done.
func TestProcessBatchNudgesEmptyResponse(t *testing.T) {
	bridge := &fakeBridge{responses: []reasoner.Response{
		{},
		doneOnly("t1"),
	}}
	e := newTestEngine(t, bridge, nil)

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(bridge.sent) != 2 {
		t.Fatalf("expected a nudge turn then a clean exit turn, got %d: %v", len(bridge.sent), bridge.sent)
	}
}

// Exhausting MaxIterations without a clean exit returns without error
// (logged, not fatal).
func TestProcessBatchReturnsAfterMaxIterationsWithoutCleanExit(t *testing.T) {
	responses := make([]reasoner.Response, 0, MaxIterations+1)
	for i := 0; i < MaxIterations+1; i++ {
		responses = append(responses, reasoner.Response{}) // never carries done
	}
	bridge := &fakeBridge{responses: responses}
	e := newTestEngine(t, bridge, nil)

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(bridge.sent) != MaxIterations+1 {
		t.Fatalf("expected %d turns sent, got %d", MaxIterations+1, len(bridge.sent))
	}
}

// Compaction recovery monotonicity (§4.1, §8 scenario 5): the engine
// sends a restoration payload as a side turn but still executes the
// original compacted response's tool intents afterward.
func TestProcessBatchRestoresContextButStillExecutesOriginalToolCalls(t *testing.T) {
	registry := toolsurface.NewRegistry()
	executed := false
	registry.Register(&toolsurface.Spec{
		Name: "send_message",
		Execute: func(ctx context.Context, x *toolsurface.ExecContext, args map[string]any) *toolsurface.Result {
			executed = true
			return toolsurface.Ok("")
		},
	})
	bridge := &fakeBridge{responses: []reasoner.Response{
		{Compacted: true, ToolCalls: []reasoner.ToolCall{
			{ID: "t1", Tool: "send_message", Args: map[string]any{"chat_id": float64(-100)}},
			{ID: "t2", Tool: "done"},
		}},
		doneOnly("restore-ack"), // response to the side-channel restoration turn
	}}
	e := newTestEngine(t, bridge, registry)
	if err := e.deps.Archive.AddMessage(context.Background(), archive.Message{
		MessageID: 0, ChatID: -100, UserID: 1, Username: "a", Timestamp: "09:59", Text: "earlier message",
	}); err != nil {
		t.Fatalf("seed archive: %v", err)
	}

	err := e.processBatch(context.Background(), []Message{
		{MessageID: 1, ChatID: -100, UserID: 1, Username: "a", Timestamp: "10:00", Text: "hi"},
	})
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !executed {
		t.Fatalf("expected the original compacted response's tool call to still execute")
	}
	if len(bridge.sent) != 2 {
		t.Fatalf("expected initial turn + restoration turn, got %d: %v", len(bridge.sent), bridge.sent)
	}
}

// Default reply threading (§4.1): send_message omitting
// reply_to_message_id, targeting the batch's last chat, gets
// last_message_id injected automatically.
func TestApplyDefaultReplyThreadingInjectsLastMessageID(t *testing.T) {
	turn := &toolsurface.TurnState{LastChatID: -100, LastMessageID: 42}
	args := map[string]any{"chat_id": float64(-100)}
	applyDefaultReplyThreading("send_message", args, turn)
	if args["reply_to_message_id"] != int64(42) {
		t.Errorf("reply_to_message_id = %v, want 42", args["reply_to_message_id"])
	}
}

func TestApplyDefaultReplyThreadingSkipsWhenReplyAlreadySet(t *testing.T) {
	turn := &toolsurface.TurnState{LastChatID: -100, LastMessageID: 42}
	args := map[string]any{"chat_id": float64(-100), "reply_to_message_id": float64(7)}
	applyDefaultReplyThreading("send_message", args, turn)
	if args["reply_to_message_id"] != float64(7) {
		t.Errorf("explicit reply target should not be overwritten, got %v", args["reply_to_message_id"])
	}
}

func TestApplyDefaultReplyThreadingSkipsDifferentChat(t *testing.T) {
	turn := &toolsurface.TurnState{LastChatID: -100, LastMessageID: 42}
	args := map[string]any{"chat_id": float64(-200)}
	applyDefaultReplyThreading("send_message", args, turn)
	if _, ok := args["reply_to_message_id"]; ok {
		t.Errorf("should not inject a reply target for a different chat, got %v", args)
	}
}

func TestApplyDefaultReplyThreadingSkipsNonThreadedTools(t *testing.T) {
	turn := &toolsurface.TurnState{LastChatID: -100, LastMessageID: 42}
	args := map[string]any{"chat_id": float64(-100)}
	applyDefaultReplyThreading("ban_user", args, turn)
	if _, ok := args["reply_to_message_id"]; ok {
		t.Errorf("ban_user is not a reply-threaded tool, got %v", args)
	}
}

// No-spam-leakage invariant (§4.3, §8): a spam-classified group message
// must never reach the Archive or the Pending Batch.
func TestIntakeRejectsSpamBeforeArchivingOrBatching(t *testing.T) {
	trust := config.NewTrustSet(&config.Config{OwnerIDs: []int64{1}})
	prefilter, err := moderation.NewPrefilter([]string{`t\.me/\w+`}, nil)
	if err != nil {
		t.Fatalf("NewPrefilter: %v", err)
	}
	classifier := moderation.NewClassifier(alwaysSafeClient{})
	pipeline := moderation.NewPipeline(trust, prefilter, classifier, noopEnforcer{}, 3, false)

	deps := Deps{
		Archive:    newTestArchive(t),
		ContextBuf: contextbuffer.New(50),
		Registry:   toolsurface.NewRegistry(),
		Bridge:     &fakeBridge{},
		Trust:      trust,
		Moderation: pipeline,
	}
	e := New(deps)

	verdict := e.Intake(context.Background(), Message{
		MessageID: 1, ChatID: -100, UserID: 2, Username: "spammer", Timestamp: "10:00",
		Text: "join us at t.me/scamgroup",
	}, 0)
	if !verdict.Spam {
		t.Fatalf("expected spam verdict")
	}

	e.mu.Lock()
	pendingLen := len(e.pending)
	e.mu.Unlock()
	if pendingLen != 0 {
		t.Errorf("spam message leaked into the pending batch")
	}

	recent, err := deps.Archive.GetRecentByTokens(context.Background(), 10000)
	if err != nil {
		t.Fatalf("GetRecentByTokens: %v", err)
	}
	if len(recent) != 0 {
		t.Errorf("spam message leaked into the archive: %+v", recent)
	}
}

func TestIntakeArchivesAndBatchesNonSpamMessages(t *testing.T) {
	e := newTestEngine(t, &fakeBridge{}, nil)
	verdict := e.Intake(context.Background(), Message{
		MessageID: 1, ChatID: -100, UserID: 2, Username: "alice", Timestamp: "10:00", Text: "hello there",
	}, 0)
	if verdict.Spam {
		t.Fatalf("unexpected spam verdict for a plain message")
	}

	e.mu.Lock()
	pendingLen := len(e.pending)
	e.mu.Unlock()
	if pendingLen != 1 {
		t.Errorf("expected message appended to the pending batch, got %d", pendingLen)
	}
}

// EnqueueSystemMessage (the scheduler's SystemMessageSink hook) injects
// a synthetic chat=0/user=0 message straight into the batch.
func TestEnqueueSystemMessageAppendsToPendingBatch(t *testing.T) {
	e := newTestEngine(t, &fakeBridge{}, nil)
	e.EnqueueSystemMessage("scan:idle")

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) != 1 {
		t.Fatalf("expected one pending message, got %d", len(e.pending))
	}
	if e.pending[0].ChatID != 0 || e.pending[0].UserID != 0 {
		t.Errorf("expected chat=0/user=0 synthetic message, got %+v", e.pending[0])
	}
	if e.pending[0].Text != "scan:idle" {
		t.Errorf("text = %q, want scan:idle", e.pending[0].Text)
	}
}

type alwaysSafeClient struct{}

func (alwaysSafeClient) Complete(ctx context.Context, messages []llmprovider.Message) (string, *llmprovider.Usage, error) {
	return "SAFE", nil, nil
}
func (alwaysSafeClient) IsTransientError(error) bool { return false }

type noopEnforcer struct{}

func (noopEnforcer) DeleteMessage(ctx context.Context, chatID, messageID int64) error { return nil }
func (noopEnforcer) BanUser(ctx context.Context, chatID, userID int64) error          { return nil }
