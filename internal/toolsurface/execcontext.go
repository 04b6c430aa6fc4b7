package toolsurface

import (
	"context"
	"time"

	"claudima/internal/archive"
	"claudima/internal/config"
	"claudima/internal/contextbuffer"
	"claudima/internal/signalstore"
)

// Transport is the narrow slice of the Telegram transport the tool
// surface depends on. Kept as an interface so toolsurface never imports
// transport internals (long-polling, update decoding) — only the
// operations tools actually invoke.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, html string, replyToMessageID int64) (int64, error)
	SendPhoto(ctx context.Context, chatID int64, data []byte, caption string, replyToMessageID int64) (int64, error)
	SendVoice(ctx context.Context, chatID int64, oggOpus []byte, replyToMessageID int64) (int64, error)
	AddReaction(ctx context.Context, chatID, messageID int64, emoji string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	MuteUser(ctx context.Context, chatID, userID int64, duration time.Duration) error
	BanUser(ctx context.Context, chatID, userID int64) error
	UnbanUser(ctx context.Context, chatID, userID int64) error
	GetChatAdmins(ctx context.Context, chatID int64) ([]string, error)
	GetUserProfilePhoto(ctx context.Context, userID int64) ([]byte, string, error)
	NotifyOwner(ctx context.Context, text string) error
}

// ImageGenerator is the external text-to-image service.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (data []byte, mimeType string, err error)
}

// SpeechSynthesizer is the external TTS service; it returns audio already
// post-processed into Ogg Opus, ready for the Telegram voice channel.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (oggOpus []byte, err error)
}

// OEmbedClient looks up oEmbed metadata (used by youtube_info).
type OEmbedClient interface {
	Lookup(ctx context.Context, url string) (title, author string, err error)
}

// Signals is the tracked-signals collaborator the scan loop's add_signal/
// update_signal/list_signals tools operate on. Kept as a narrow interface
// so toolsurface never imports the signalstore package's disk-persistence
// details directly.
type Signals interface {
	Add(title, notes string, tags []string) (string, error)
	UpdateStatus(id string, status signalstore.Status, notes string) (bool, error)
	FormatForPrompt() string
}

// PeerSender relays a message to a sibling bot instance over the shared-
// directory transport (Telegram's Bot API has no bot-to-bot delivery
// path). Satisfied by internal/peer's Sender, which binds the
// package-level Send to the caller's own data_dir and bot ID.
type PeerSender interface {
	Send(toBotID, chatID int64, text string, replyToMessageID int64) error
}

// Caller is the batch's authorization context: the requesting user and chat.
type Caller struct {
	UserID int64
	ChatID int64
}

// TurnState is per-turn, reset-each-turn bookkeeping the tool surface needs:
// which memory files have been read (gating edit_memory) and the default
// reply target for chat-action tools.
type TurnState struct {
	FilesRead       map[string]bool
	LastMessageID   int64
	LastChatID      int64
}

func NewTurnState() *TurnState {
	return &TurnState{FilesRead: make(map[string]bool)}
}

// ExecContext bundles every collaborator a tool's Execute function may need.
type ExecContext struct {
	Transport   Transport
	Archive     *archive.Store
	Trust       *config.TrustSet
	ContextBuf  *contextbuffer.Buffer
	MemoriesDir string
	FeedbackLog string

	ImageGen ImageGenerator
	TTS      SpeechSynthesizer
	OEmbed   OEmbedClient
	Signals  Signals    // nil disables the signal-tracking tools (add_signal/update_signal/list_signals)
	Peer     PeerSender // nil disables notify_peer
	PeerBots []int64    // configured sibling bot IDs notify_peer may target

	OwnerID int64
	DryRun  bool

	Caller Caller
	Turn   *TurnState
}
