// Package telegram is the concrete Telegram Bot API transport (§4.7):
// long-polling inbound updates into the Dispatch Engine's intake
// contract, and executing the Tool Surface's outbound side effects.
// Grounded on the teacher's pkg/channels/telegram/telegram_channel.go.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Config carries the pieces of Telegram wiring that vary per deployment.
type Config struct {
	Token         string
	DataDir       string
	MessageLimit  int   // Telegram's outbound message cap; 0 defaults to 4096.
	LogChatID     int64 // tracing/log stream target (TelegramLogLayer-style); 0 disables it.
	OwnerUserID   int64 // NotifyOwner's DM target; Telegram DMs use chat_id == user_id.
	AllowedGroups []int64

	// MediaGroupDebounce bounds how long an album's parts are buffered
	// before flushing as one message; 0 defaults to one second.
	MediaGroupDebounce time.Duration

	// Transcriber and DocExtractor are the inbound-enrichment boundaries
	// spec.md §1 names as external collaborators out of scope for this
	// spec ("embedded speech-to-text inference", "DOCX text extraction"):
	// nil is a valid no-op, leaving voice/document messages with empty
	// enrichment text rather than failing intake.
	Transcriber Transcriber
	DocExtractor DocumentExtractor
}

// Transcriber turns a downloaded voice message into text.
type Transcriber interface {
	Transcribe(ctx context.Context, oggPath string) (string, error)
}

// DocumentExtractor pulls plaintext out of a downloaded document that
// isn't already text/*-sniffable.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, path, mimeType string) (string, error)
}

// Transport is the production toolsurface.Transport implementation plus
// the inbound long-polling loop. One Transport owns exactly one bot
// identity (spec.md's "no multi-tenant isolation" non-goal).
type Transport struct {
	cfg          Config
	bot          *tgbotapi.BotAPI
	httpClient   *http.Client
	messageLimit int
	allowed      map[int64]struct{}

	stopCtx    context.Context
	stopCancel context.CancelFunc

	mu                  sync.Mutex
	mediaGroups         map[string]*mediaGroupBuffer
	mediaGroupDebounce  time.Duration
}

// New authorizes against the Telegram Bot API using a dedicated
// http.Client whose dialer is tied to a cancellable context, so Stop can
// force-abort an in-flight long-poll request immediately instead of
// waiting out Telegram's long-poll timeout (avoids a 409 Conflict on
// fast restart).
func New(cfg Config) (*Transport, error) {
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = 4096
	}
	if cfg.MediaGroupDebounce <= 0 {
		cfg.MediaGroupDebounce = time.Second
	}
	stopCtx, stopCancel := context.WithCancel(context.Background())

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	client := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				merged, mergedCancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-stopCtx.Done():
						mergedCancel()
					case <-merged.Done():
					}
				}()
				return dialer.DialContext(merged, network, addr)
			},
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		stopCancel()
		return nil, fmt.Errorf("telegram: authorize: %w", err)
	}
	slog.Info("telegram: bot authorized", "username", bot.Self.UserName)

	allowed := make(map[int64]struct{}, len(cfg.AllowedGroups))
	for _, id := range cfg.AllowedGroups {
		allowed[id] = struct{}{}
	}

	return &Transport{
		cfg:                cfg,
		bot:                bot,
		httpClient:         client,
		messageLimit:       cfg.MessageLimit,
		allowed:            allowed,
		stopCtx:            stopCtx,
		stopCancel:         stopCancel,
		mediaGroups:        make(map[string]*mediaGroupBuffer),
		mediaGroupDebounce: cfg.MediaGroupDebounce,
	}, nil
}

// BotUsername is surfaced to the system prompt builder.
func (t *Transport) BotUsername() string { return t.bot.Self.UserName }

// BotID is this bot instance's own numeric Telegram user ID, used to
// address inter-bot peer messages (internal/peer) to/from this instance.
func (t *Transport) BotID() int64 { return t.bot.Self.ID }

// Stop forcibly aborts the long-polling loop and clears idle connections.
func (t *Transport) Stop() {
	t.stopCancel()
	if transport, ok := t.bot.Client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// groupAllowed reports whether chatID may be processed: an empty
// AllowedGroups list permits every group, matching the original's
// "no restriction configured" default.
func (t *Transport) groupAllowed(chatID int64) bool {
	if len(t.allowed) == 0 {
		return true
	}
	_, ok := t.allowed[chatID]
	return ok
}

func chunkByRune(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	var chunks []string
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// SendMessage implements toolsurface.Transport. HTML is chunked at
// Telegram's 4096-character cap; only the first chunk carries the reply
// threading, and the first sent message's id is returned.
func (t *Transport) SendMessage(ctx context.Context, chatID int64, html string, replyToMessageID int64) (int64, error) {
	var firstID int64
	for i, chunk := range chunkByRune(html, t.messageLimit) {
		cfg := tgbotapi.NewMessage(chatID, chunk)
		cfg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && replyToMessageID != 0 {
			cfg.ReplyToMessageID = int(replyToMessageID)
		}
		sent, err := t.bot.Send(cfg)
		if err != nil {
			return 0, fmt.Errorf("telegram: send message: %w", err)
		}
		if i == 0 {
			firstID = int64(sent.MessageID)
		}
	}
	return firstID, nil
}

// SendPhoto implements toolsurface.Transport.
func (t *Transport) SendPhoto(ctx context.Context, chatID int64, data []byte, caption string, replyToMessageID int64) (int64, error) {
	cfg := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "image.png", Bytes: data})
	cfg.Caption = caption
	if replyToMessageID != 0 {
		cfg.ReplyToMessageID = int(replyToMessageID)
	}
	sent, err := t.bot.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send photo: %w", err)
	}
	return int64(sent.MessageID), nil
}

// SendVoice implements toolsurface.Transport; oggOpus is already
// post-processed by the external transcoder (§6).
func (t *Transport) SendVoice(ctx context.Context, chatID int64, oggOpus []byte, replyToMessageID int64) (int64, error) {
	cfg := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: "voice.ogg", Bytes: oggOpus})
	if replyToMessageID != 0 {
		cfg.ReplyToMessageID = int(replyToMessageID)
	}
	sent, err := t.bot.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("telegram: send voice: %w", err)
	}
	return int64(sent.MessageID), nil
}

// AddReaction implements toolsurface.Transport.
func (t *Transport) AddReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	cfg := tgbotapi.SetMessageReactionConfig{
		BaseChatMessage: tgbotapi.BaseChatMessage{
			ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
			MessageID:  int(messageID),
		},
		Reaction: []tgbotapi.ReactionType{{Type: tgbotapi.StickerTypeEmoji, Emoji: emoji}},
	}
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("telegram: add reaction: %w", err)
	}
	return nil
}

// DeleteMessage implements toolsurface.Transport.
func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	cfg := tgbotapi.NewDeleteMessage(chatID, int(messageID))
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("telegram: delete message: %w", err)
	}
	return nil
}

// MuteUser implements toolsurface.Transport via a restrict-permissions
// call with every permission denied until now+duration.
func (t *Transport) MuteUser(ctx context.Context, chatID, userID int64, duration time.Duration) error {
	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        time.Now().Add(duration).Unix(),
		Permissions:      &tgbotapi.ChatPermissions{},
	}
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("telegram: mute user: %w", err)
	}
	return nil
}

// BanUser implements toolsurface.Transport.
func (t *Transport) BanUser(ctx context.Context, chatID, userID int64) error {
	cfg := tgbotapi.BanChatMemberConfig{ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}}
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("telegram: ban user: %w", err)
	}
	return nil
}

// UnbanUser implements toolsurface.Transport.
func (t *Transport) UnbanUser(ctx context.Context, chatID, userID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}}
	if _, err := t.bot.Request(cfg); err != nil {
		return fmt.Errorf("telegram: unban user: %w", err)
	}
	return nil
}

// GetChatAdmins implements toolsurface.Transport.
func (t *Transport) GetChatAdmins(ctx context.Context, chatID int64) ([]string, error) {
	cfg := tgbotapi.ChatAdministratorsConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}}
	members, err := t.bot.GetChatAdministrators(cfg)
	if err != nil {
		return nil, fmt.Errorf("telegram: get chat admins: %w", err)
	}
	names := make([]string, 0, len(members))
	for _, m := range members {
		name := m.User.UserName
		if name == "" {
			name = m.User.FirstName
		}
		names = append(names, name)
	}
	return names, nil
}

// GetUserProfilePhoto implements toolsurface.Transport, returning the
// highest-resolution variant of the user's current profile photo.
func (t *Transport) GetUserProfilePhoto(ctx context.Context, userID int64) ([]byte, string, error) {
	photos, err := t.bot.GetUserProfilePhotos(tgbotapi.NewUserProfilePhotos(userID))
	if err != nil {
		return nil, "", fmt.Errorf("telegram: get profile photos: %w", err)
	}
	if len(photos.Photos) == 0 {
		return nil, "", fmt.Errorf("telegram: user %d has no profile photo", userID)
	}
	sizes := photos.Photos[0]
	fileID := sizes[len(sizes)-1].FileID
	_, data, mimeType, err := t.downloadFile(fileID, "")
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

// NotifyOwner implements toolsurface.Transport by DMing the configured
// owner (chat_id == user_id for a Telegram DM, matching trust.go's
// ownerDM routing assumption); a blank OwnerUserID makes this a silent
// no-op. Distinct from LogChatID, which only streams tracing output.
func (t *Transport) NotifyOwner(ctx context.Context, text string) error {
	if t.cfg.OwnerUserID == 0 {
		return nil
	}
	_, err := t.SendMessage(ctx, t.cfg.OwnerUserID, text, 0)
	return err
}

// SendText implements scheduler.Sender for the reminder loop's delivery
// path: a plain, unthreaded chunked send.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := t.SendMessage(ctx, chatID, text, 0)
	return err
}

// SignalTyping sends Telegram's "typing..." chat action, mirroring the
// teacher's SendSignal("thinking") pattern as the dispatch turn's
// in-progress UX.
func (t *Transport) SignalTyping(chatID int64) {
	if _, err := t.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		slog.Debug("telegram: typing signal failed", "chat_id", chatID, "err", err)
	}
}

func attachmentsDir(dataDir string) string {
	dir := dataDir
	if dir == "" {
		dir = "data"
	}
	return dir + "/attachments"
}

func ensureAttachmentsDir(dataDir string) error {
	return os.MkdirAll(attachmentsDir(dataDir), 0o755)
}

func sanitizeFileID(fileID string) string {
	return strings.ReplaceAll(fileID, "/", "_")
}
