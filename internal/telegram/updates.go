package telegram

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"claudima/internal/archive"
	"claudima/internal/dispatch"
	"claudima/internal/moderation"
	"claudima/internal/scheduler"
	"claudima/internal/utils"
)

// IntakeSink is the narrow slice of the Dispatch Engine this package
// depends on: dispatch.Engine satisfies it directly.
type IntakeSink interface {
	Intake(ctx context.Context, msg dispatch.Message, senderChatID int64) moderation.Verdict
	Edit(chatID, messageID int64, newText string)
	MemberJoined(ctx context.Context, userID int64, username, firstName string)
	MemberLeft(ctx context.Context, userID int64)
	MemberBanned(ctx context.Context, userID int64)
}

// mediaGroupBuffer aggregates messages sharing a media_group_id into a
// single dispatch.Message, flushed once the group's debouncer fires.
type mediaGroupBuffer struct {
	msg       dispatch.Message
	debouncer *scheduler.Debouncer
}

// Run starts the long-polling loop, translating inbound updates into
// calls against sink. It blocks until ctx is cancelled or Stop() aborts
// the in-flight request.
func (t *Transport) Run(ctx context.Context, sink IntakeSink) {
	offset := 0
	for {
		select {
		case <-t.stopCtx.Done():
			return
		case <-ctx.Done():
			return
		default:
		}

		cfg := tgbotapi.NewUpdate(offset)
		cfg.Timeout = 60

		updates, err := t.bot.GetUpdates(cfg)
		if err != nil {
			select {
			case <-t.stopCtx.Done():
				return
			default:
				slog.Debug("telegram: get updates failed", "err", err)
				time.Sleep(3 * time.Second)
				continue
			}
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			t.handleUpdate(ctx, sink, u)
		}
	}
}

func (t *Transport) handleUpdate(ctx context.Context, sink IntakeSink, u tgbotapi.Update) {
	switch {
	case u.Message != nil && len(u.Message.NewChatMembers) > 0:
		for _, m := range u.Message.NewChatMembers {
			sink.MemberJoined(ctx, m.ID, m.UserName, m.FirstName)
		}
	case u.Message != nil && u.Message.LeftChatMember != nil:
		sink.MemberLeft(ctx, u.Message.LeftChatMember.ID)
	case u.EditedMessage != nil:
		t.handleEdit(sink, u.EditedMessage)
	case u.Message != nil:
		t.handleMessage(ctx, sink, u.Message)
	}
}

func (t *Transport) handleEdit(sink IntakeSink, m *tgbotapi.Message) {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	sink.Edit(m.Chat.ID, int64(m.MessageID), text)
}

func (t *Transport) handleMessage(ctx context.Context, sink IntakeSink, m *tgbotapi.Message) {
	if m.Chat.IsGroup() || m.Chat.IsSuperGroup() {
		if !t.groupAllowed(m.Chat.ID) {
			return
		}
	}

	senderChatID := int64(0)
	if m.SenderChat != nil {
		senderChatID = m.SenderChat.ID
	}

	if m.MediaGroupID != "" {
		msg := t.buildMessage(ctx, m)
		t.bufferMediaGroup(ctx, sink, m.MediaGroupID, msg, senderChatID)
		return
	}

	hasAttachment := len(m.Photo) > 0 || m.Voice != nil || m.Document != nil
	if !hasAttachment {
		sink.Intake(ctx, t.buildMessage(ctx, m), senderChatID)
		return
	}

	// Attachment downloads run off the long-poll loop so a slow fetch
	// never delays the next GetUpdates call, matching the teacher's
	// async photo-download goroutine.
	go func() {
		sink.Intake(ctx, t.buildMessage(ctx, m), senderChatID)
	}()
}

// buildMessage enriches one raw Telegram message into a dispatch.Message:
// downloads at most one photo inline, downloads and transcribes voice,
// downloads and extracts document text. Per spec.md §4.3, media-only
// messages (no text/caption) are tagged for the moderation bypass by
// virtue of carrying empty Text — the pipeline's own bypass rule handles
// the rest.
func (t *Transport) buildMessage(ctx context.Context, m *tgbotapi.Message) dispatch.Message {
	text := m.Text
	if text == "" {
		text = m.Caption
	}

	msg := dispatch.Message{
		MessageID: int64(m.MessageID),
		ChatID:    m.Chat.ID,
		UserID:    userID(m.From),
		Username:  username(m.From),
		Timestamp: m.Time().UTC().Format("2006-01-02 15:04"),
		Text:      text,
	}

	if m.ReplyToMessage != nil {
		quoted := m.ReplyToMessage.Text
		if quoted == "" {
			quoted = m.ReplyToMessage.Caption
		}
		msg.ReplyTo = &archive.ReplyTo{
			MessageID: int64(m.ReplyToMessage.MessageID),
			Username:  username(m.ReplyToMessage.From),
			Text:      quoted,
		}
	}

	if len(m.Photo) > 0 {
		biggest := m.Photo[len(m.Photo)-1]
		if _, data, mimeType, err := t.downloadFile(biggest.FileID, ".jpg"); err == nil {
			msg.Image = &dispatch.InlineImage{Data: data, MimeType: mimeType}
		} else {
			slog.Error("telegram: photo download failed", "err", err)
		}
	}

	if m.Voice != nil {
		if path, _, _, err := t.downloadFile(m.Voice.FileID, ".ogg"); err == nil && t.cfg.Transcriber != nil {
			if text, err := t.cfg.Transcriber.Transcribe(ctx, path); err == nil {
				msg.VoiceTranscription = text
			} else {
				slog.Error("telegram: voice transcription failed", "err", err)
			}
		} else if err != nil {
			slog.Error("telegram: voice download failed", "err", err)
		}
	}

	if m.Document != nil {
		if path, data, mimeType, err := t.downloadFile(m.Document.FileID, ""); err == nil {
			docText := ""
			if utils.IsTextLike(mimeType) {
				docText = string(data)
			} else if t.cfg.DocExtractor != nil {
				if extracted, err := t.cfg.DocExtractor.ExtractText(ctx, path, mimeType); err == nil {
					docText = extracted
				} else {
					slog.Error("telegram: document extraction failed", "err", err)
				}
			}
			name := m.Document.FileName
			if name == "" {
				name = path
			}
			msg.Documents = append(msg.Documents, archive.Document{Filename: name, Text: docText})
		} else {
			slog.Error("telegram: document download failed", "err", err)
		}
	}

	return msg
}

// bufferMediaGroup accumulates every message sharing groupID, flushing
// the merged message once the group's own Debouncer fires — the same
// quiescence-coalescing primitive the Scheduler uses (§4.5), instantiated
// per active group instead of once globally.
func (t *Transport) bufferMediaGroup(ctx context.Context, sink IntakeSink, groupID string, msg dispatch.Message, senderChatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	debounce := t.mediaGroupDebounce
	if debounce <= 0 {
		debounce = time.Second
	}

	buf, ok := t.mediaGroups[groupID]
	if !ok {
		buf = &mediaGroupBuffer{msg: msg}
		buf.debouncer = scheduler.NewDebouncer(debounce, func() {
			t.mu.Lock()
			final, exists := t.mediaGroups[groupID]
			if exists {
				delete(t.mediaGroups, groupID)
			}
			t.mu.Unlock()
			if exists {
				sink.Intake(ctx, final.msg, senderChatID)
			}
		})
		t.mediaGroups[groupID] = buf
	} else {
		if msg.Text != "" {
			if buf.msg.Text != "" {
				buf.msg.Text += "\n" + msg.Text
			} else {
				buf.msg.Text = msg.Text
			}
		}
		if msg.Image != nil && buf.msg.Image == nil {
			buf.msg.Image = msg.Image
		}
		buf.msg.Documents = append(buf.msg.Documents, msg.Documents...)
	}
	buf.debouncer.Trigger()
}

func userID(u *tgbotapi.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func username(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}
