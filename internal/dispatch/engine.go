// Package dispatch is the engine that turns inbound Telegram updates
// into reasoner turns and executes the resulting tool calls: intake,
// debounced batch flush, the turn protocol against the Reasoner Bridge,
// compaction recovery, and the bounded tool-call loop. Grounded on the
// teacher's `pkg/agent/engine.go` recursive-turn shape and the original
// source's `chatbot/engine.rs`, generalized from a single LLM-tool-call
// cycle to the Reasoner Bridge's subprocess turn protocol.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"claudima/internal/archive"
	"claudima/internal/config"
	"claudima/internal/contextbuffer"
	"claudima/internal/moderation"
	"claudima/internal/monitoring"
	"claudima/internal/reasoner"
	"claudima/internal/scheduler"
	"claudima/internal/toolsurface"
)

// MaxIterations bounds the tool-call loop per batch turn (§4.1).
const MaxIterations = 10

// CompactionRestoreTokens is the token budget for the restoration
// payload sent after a compaction is detected (§4.1, §8 scenario 5).
const CompactionRestoreTokens = 10000

// Bridge is the narrow slice of the Reasoner Bridge's turn API the
// engine depends on, mirroring toolsurface.Transport's narrowing
// pattern so a fake reasoner can stand in under test.
type Bridge interface {
	SendText(ctx context.Context, content string) (reasoner.Response, error)
	SendImage(ctx context.Context, text string, data []byte, mimeType string) (reasoner.Response, error)
	SendToolResults(ctx context.Context, results []reasoner.ToolResult) (reasoner.Response, error)
}

// TypingSignaler surfaces a transport's "typing..." chat action; the
// Telegram Transport implements it directly. Signaling failures are the
// signaler's own concern, not the engine's.
type TypingSignaler interface {
	SignalTyping(chatID int64)
}

// Deps bundles every collaborator the engine needs. It mirrors the tool
// surface's ExecContext collaborator set plus the pieces specific to
// turn orchestration (bridge, registry, moderation, monitor).
type Deps struct {
	Archive    *archive.Store
	ContextBuf *contextbuffer.Buffer
	Registry   *toolsurface.Registry
	Bridge     Bridge
	Transport  toolsurface.Transport
	Trust      *config.TrustSet
	Moderation *moderation.Pipeline // nil disables group moderation entirely

	ImageGen toolsurface.ImageGenerator
	TTS      toolsurface.SpeechSynthesizer
	OEmbed   toolsurface.OEmbedClient
	Signals  toolsurface.Signals    // nil disables the signal-tracking tools
	Peer     toolsurface.PeerSender // nil disables notify_peer
	PeerBots []int64                // configured sibling bot IDs
	Monitor  monitoring.Monitor     // nil is a valid no-op
	Signaler TypingSignaler         // nil disables the typing-indicator UX

	MemoriesDir     string
	FeedbackLog     string
	OwnerUserID     int64
	DryRun          bool
	TrustedChannels moderation.TrustedChannels
}

// Engine is the dispatch state machine. It exclusively owns the Pending
// Batch and the Context Buffer (per spec.md §3 Ownership); the Archive
// is shared behind its own internal guard.
type Engine struct {
	deps Deps

	mu      sync.Mutex
	pending []Message

	debouncer *scheduler.Debouncer
}

// New builds an Engine. Call Start to begin accepting debounced flushes.
func New(deps Deps) *Engine {
	return &Engine{deps: deps}
}

// Start wires the debounce timer; its callback runs processBatch in a
// detached goroutine so the timer loop itself never blocks (§5
// Scheduling model).
func (e *Engine) Start(ctx context.Context, debounce time.Duration) {
	e.debouncer = scheduler.NewDebouncer(debounce, func() {
		go e.flush(ctx)
	})
}

// Stop tears down the debounce timer.
func (e *Engine) Stop() {
	if e.debouncer != nil {
		e.debouncer.Stop()
	}
}

func (e *Engine) monitor(msg monitoring.Message) {
	if e.deps.Monitor != nil {
		e.deps.Monitor.OnMessage(msg)
	}
}

// Intake is the single inbound entry point for a freshly-received chat
// message (§4.1 Intake contract). For group chats (chatID < 0) with
// moderation configured, the message first runs the moderation
// pipeline; a spam verdict rejects the message before it ever reaches
// Archive or the Pending Batch (§4.3 critical invariant). senderChatID
// is the Telegram "sent on behalf of a channel" id, 0 for ordinary users.
func (e *Engine) Intake(ctx context.Context, msg Message, senderChatID int64) moderation.Verdict {
	if msg.ChatID < 0 && e.deps.Moderation != nil {
		verdict := e.deps.Moderation.Evaluate(ctx, msg.ChatID, msg.MessageID, msg.UserID, senderChatID, msg.Text, e.deps.TrustedChannels)
		if verdict.Spam {
			e.monitor(monitoring.Message{Timestamp: timeNow(), Kind: "MODERATION", ChatID: msg.ChatID, Username: msg.Username,
				Content: fmt.Sprintf("deleted spam from %s (strike %d)", msg.Username, verdict.Strikes)})
			return verdict
		}
	}

	e.monitor(monitoring.Message{Timestamp: timeNow(), Kind: "USER", ChatID: msg.ChatID, Username: msg.Username, Content: msg.Text})

	if err := e.deps.Archive.AddMessage(ctx, toArchiveMessage(msg)); err != nil {
		slog.Error("dispatch: failed to archive inbound message", "err", err)
	}
	e.deps.ContextBuf.Append(contextbuffer.Entry{
		ChatID: msg.ChatID, MessageID: msg.MessageID, UserID: msg.UserID, Username: msg.Username, Text: msg.Text,
	})

	e.mu.Lock()
	e.pending = append(e.pending, msg)
	e.mu.Unlock()

	if e.debouncer != nil {
		e.debouncer.Trigger()
	}
	return moderation.Verdict{Spam: false}
}

// EnqueueSystemMessage implements scheduler.SystemMessageSink: the scan
// loop's synthetic prompt goes straight into the Pending Batch as a
// chat=0/user=0 system message, bypassing Archive and moderation (it
// never happened on Telegram, there is nothing to persist or filter).
func (e *Engine) EnqueueSystemMessage(text string) {
	msg := Message{ChatID: 0, UserID: 0, Username: "system", Timestamp: timeNow().UTC().Format("15:04"), Text: text}
	e.mu.Lock()
	e.pending = append(e.pending, msg)
	e.mu.Unlock()
	if e.debouncer != nil {
		e.debouncer.Trigger()
	}
}

// Edit updates the Context Buffer in place; edits never trigger a batch.
func (e *Engine) Edit(chatID, messageID int64, newText string) {
	e.deps.ContextBuf.Update(chatID, messageID, newText)
}

// MemberJoined/Left/Banned go straight to the Archive, bypassing the batch.
func (e *Engine) MemberJoined(ctx context.Context, userID int64, username, firstName string) {
	joinDate := timeNow().UTC().Format("2006-01-02 15:04")
	if err := e.deps.Archive.UpsertMember(ctx, userID, username, firstName, joinDate, archive.StatusMember); err != nil {
		slog.Error("dispatch: failed to record member join", "err", err)
	}
}

func (e *Engine) MemberLeft(ctx context.Context, userID int64) {
	if err := e.deps.Archive.UpdateMemberStatus(ctx, userID, archive.StatusLeft, timeNow().UTC().Format("2006-01-02 15:04")); err != nil {
		slog.Error("dispatch: failed to record member leave", "err", err)
	}
}

func (e *Engine) MemberBanned(ctx context.Context, userID int64) {
	if err := e.deps.Archive.UpdateMemberStatus(ctx, userID, archive.StatusBanned, timeNow().UTC().Format("2006-01-02 15:04")); err != nil {
		slog.Error("dispatch: failed to record member ban", "err", err)
	}
}

func timeNow() time.Time { return time.Now() }

func toArchiveMessage(m Message) archive.Message {
	return archive.Message{
		MessageID: m.MessageID, ChatID: m.ChatID, UserID: m.UserID, Username: m.Username,
		Timestamp: m.Timestamp, Text: m.Text, ReplyTo: m.ReplyTo,
		VoiceTranscription: m.VoiceTranscription, Documents: m.Documents,
	}
}

// flush drains the pending batch and runs one dispatch turn. An empty
// swapped batch is a no-op (§4.1 Batch flush).
func (e *Engine) flush(ctx context.Context) {
	e.mu.Lock()
	messages := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(messages) == 0 {
		return
	}

	slog.Info("dispatch: processing batch", "count", len(messages))
	if err := e.processBatch(ctx, messages); err != nil {
		slog.Error("dispatch: batch processing failed", "err", err)
	}
}

// processBatch implements the turn protocol, compaction recovery, and
// the bounded tool-call loop (§4.1).
func (e *Engine) processBatch(ctx context.Context, messages []Message) error {
	turn := toolsurface.NewTurnState()
	last := messages[len(messages)-1]
	turn.LastMessageID = last.MessageID
	turn.LastChatID = last.ChatID

	if e.deps.Signaler != nil && last.ChatID != 0 {
		e.deps.Signaler.SignalTyping(last.ChatID)
	}

	caller := toolsurface.Caller{}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ChatID != 0 {
			caller = toolsurface.Caller{UserID: messages[i].UserID, ChatID: messages[i].ChatID}
			break
		}
	}

	var firstImage *InlineImage
	for _, m := range messages {
		if m.Image != nil {
			firstImage = m.Image
			break
		}
	}

	x := &toolsurface.ExecContext{
		Transport:   e.deps.Transport,
		Archive:     e.deps.Archive,
		Trust:       e.deps.Trust,
		ContextBuf:  e.deps.ContextBuf,
		MemoriesDir: e.deps.MemoriesDir,
		FeedbackLog: e.deps.FeedbackLog,
		ImageGen:    e.deps.ImageGen,
		TTS:         e.deps.TTS,
		OEmbed:      e.deps.OEmbed,
		Signals:     e.deps.Signals,
		Peer:        e.deps.Peer,
		PeerBots:    e.deps.PeerBots,
		OwnerID:     e.deps.OwnerUserID,
		DryRun:      e.deps.DryRun,
		Caller:      caller,
		Turn:        turn,
	}

	payload := formatBatch(messages)
	var resp reasoner.Response
	var err error
	if firstImage != nil {
		resp, err = e.deps.Bridge.SendImage(ctx, payload, firstImage.Data, firstImage.MimeType)
	} else {
		resp, err = e.deps.Bridge.SendText(ctx, payload)
	}
	if err != nil {
		return fmt.Errorf("dispatch: initial turn failed: %w", err)
	}
	resp = e.maybeRestore(ctx, resp)

	for iteration := 0; iteration < MaxIterations; iteration++ {
		if len(resp.ToolCalls) == 0 {
			resp, err = e.deps.Bridge.SendToolResults(ctx, []reasoner.ToolResult{{
				ToolUseID: "system",
				Content:   "you must call at least one tool; use `done` when finished",
				IsError:   true,
			}})
			if err != nil {
				return fmt.Errorf("dispatch: empty-response nudge failed: %w", err)
			}
			resp = e.maybeRestore(ctx, resp)
			continue
		}

		hasDone := false
		hasError := false
		hasContent := false
		var images []*toolsurface.Image
		results := make([]reasoner.ToolResult, 0, len(resp.ToolCalls))

		for _, tc := range resp.ToolCalls {
			if tc.Tool == "done" {
				hasDone = true
				results = append(results, reasoner.ToolResult{ToolUseID: tc.ID})
				continue
			}

			r := e.executeTool(ctx, x, tc)
			results = append(results, reasoner.ToolResult{ToolUseID: tc.ID, Content: r.Content, IsError: r.IsError})
			if r.IsError {
				hasError = true
			}
			if r.Content != "" {
				hasContent = true
			}
			if r.Image != nil {
				images = append(images, r.Image)
				hasContent = true
			}
		}

		if hasDone && !hasError && !hasContent && len(images) == 0 {
			slog.Info("dispatch: turn done", "iteration", iteration+1)
			return nil
		}

		resp, err = e.deps.Bridge.SendToolResults(ctx, results)
		if err != nil {
			return fmt.Errorf("dispatch: tool-results turn failed: %w", err)
		}
		resp = e.maybeRestore(ctx, resp)

		for _, img := range images {
			resp, err = e.deps.Bridge.SendImage(ctx, "Here is the image you just produced:", img.Data, img.MimeType)
			if err != nil {
				return fmt.Errorf("dispatch: image follow-up turn failed: %w", err)
			}
			resp = e.maybeRestore(ctx, resp)
		}
	}

	slog.Warn("dispatch: max iterations reached without a clean exit")
	return nil
}

// executeTool resolves one tool-call intent to a Tool Surface executor,
// injecting default reply threading (§4.1) before dispatch. A panicking
// executor is recovered and folded into an is_error result.
func (e *Engine) executeTool(ctx context.Context, x *toolsurface.ExecContext, tc reasoner.ToolCall) (res *toolsurface.Result) {
	spec, ok := e.deps.Registry.Get(tc.Tool)
	if !ok {
		slog.Warn("dispatch: unknown tool call", "tool", tc.Tool)
		return toolsurface.Errf("unknown tool %q", tc.Tool)
	}

	if missing := missingRequired(spec, tc.Args); len(missing) > 0 {
		slog.Warn("dispatch: tool call missing required fields", "tool", tc.Tool, "missing", missing)
		return toolsurface.Errf("tool %q missing required field(s): %s", tc.Tool, strings.Join(missing, ", "))
	}

	applyDefaultReplyThreading(tc.Tool, tc.Args, x.Turn)

	slog.Info("dispatch: executing tool", "tool", tc.Tool, "args", tc.Args)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("dispatch: tool panicked", "tool", tc.Tool, "panic", p)
			res = toolsurface.Errf("tool %q panicked: %v", tc.Tool, p)
		}
	}()
	return spec.Execute(ctx, x, tc.Args)
}

// missingRequired reports which of spec's Required fields are absent
// from args (not present, or present but nil), per spec.md §4.2/§7:
// missing-required-field tool intents are dropped with a warning rather
// than reaching Execute.
func missingRequired(spec *toolsurface.Spec, args map[string]any) []string {
	var missing []string
	for _, name := range spec.Required {
		if v, ok := args[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// replyThreadedTools omit reply_to_message_id and target the batch's
// last chat get last_message_id injected automatically (§4.1 Default
// reply threading, §8 reply-thread-injection property).
var replyThreadedTools = map[string]bool{"send_message": true, "send_photo": true, "send_voice": true}

func applyDefaultReplyThreading(tool string, args map[string]any, turn *toolsurface.TurnState) {
	if !replyThreadedTools[tool] {
		return
	}
	if v, ok := args["reply_to_message_id"]; ok && v != nil {
		return
	}
	if toInt64(args["chat_id"]) != turn.LastChatID {
		return
	}
	args["reply_to_message_id"] = turn.LastMessageID
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// maybeRestore sends the compaction-recovery payload as a side-channel
// turn when resp is flagged compacted, then returns resp UNCHANGED so
// the caller still executes the original tool intents afterward (§4.1
// Compaction recovery, §8 compaction-recovery-monotonicity, §8 scenario 5).
func (e *Engine) maybeRestore(ctx context.Context, resp reasoner.Response) reasoner.Response {
	if !resp.Compacted {
		return resp
	}
	slog.Warn("dispatch: compaction detected, restoring context")

	readme := e.readReadme()
	recent, err := e.deps.Archive.GetRecentByTokens(ctx, CompactionRestoreTokens)
	if err != nil {
		slog.Error("dispatch: failed to load recent messages for restoration", "err", err)
		return resp
	}
	if readme == "" && len(recent) == 0 {
		return resp
	}

	payload := formatRestoration(readme, recent)
	if _, err := e.deps.Bridge.SendText(ctx, payload); err != nil {
		slog.Error("dispatch: restoration turn failed", "err", err)
	}
	return resp
}

func (e *Engine) readReadme() string {
	if e.deps.MemoriesDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(e.deps.MemoriesDir, "README.md"))
	if err != nil {
		return ""
	}
	return string(data)
}
