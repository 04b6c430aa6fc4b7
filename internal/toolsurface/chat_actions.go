package toolsurface

import (
	"context"
	"time"

	"claudima/internal/archive"
	"claudima/internal/contextbuffer"
)

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argInt64(args map[string]any, key string) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func argOptInt64(args map[string]any, key string) (int64, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	return argInt64(args, key), true
}

// resolveReply validates a proposed reply_to id against the context
// buffer; an id outside the chat silently drops the hint rather than
// failing the whole tool.
func resolveReply(x *ExecContext, chatID, proposed int64) int64 {
	if proposed == 0 {
		return 0
	}
	if _, ok := x.ContextBuf.Lookup(chatID, proposed); ok {
		return proposed
	}
	return 0
}

var sendMessageSpec = &Spec{
	Name:        "send_message",
	Description: "Send an HTML-formatted message to a chat.",
	Params: map[string]ParamSchema{
		"chat_id":              {Type: "integer", Description: "Target chat id"},
		"text":                 {Type: "string", Description: "HTML-formatted message text"},
		"reply_to_message_id":  {Type: "integer", Description: "Optional message id to reply to"},
	},
	Required: []string{"chat_id", "text"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID := argInt64(args, "chat_id")
		text := argString(args, "text")
		replyTo, _ := argOptInt64(args, "reply_to_message_id")
		replyTo = resolveReply(x, chatID, replyTo)

		msgID, err := x.Transport.SendMessage(ctx, chatID, text, replyTo)
		if err != nil {
			return Errf("send_message: %v", err)
		}
		x.ContextBuf.Append(newBotEntry(chatID, msgID, text))
		_ = x.Archive.AddMessage(ctx, archive.Message{
			MessageID: msgID, ChatID: chatID, UserID: 0, Username: "claudima",
			Timestamp: time.Now().UTC().Format("2006-01-02 15:04"), Text: text,
		})
		return Ok("")
	},
}

func newBotEntry(chatID, msgID int64, text string) contextbuffer.Entry {
	return contextbuffer.Entry{ChatID: chatID, MessageID: msgID, UserID: 0, Username: "claudima", Text: text}
}

var addReactionSpec = &Spec{
	Name:        "add_reaction",
	Description: "Add an emoji reaction to a message. Use sparingly.",
	Params: map[string]ParamSchema{
		"chat_id":    {Type: "integer"},
		"message_id": {Type: "integer"},
		"emoji":      {Type: "string"},
	},
	Required: []string{"chat_id", "message_id", "emoji"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID := argInt64(args, "chat_id")
		msgID := argInt64(args, "message_id")
		emoji := argString(args, "emoji")
		if err := x.Transport.AddReaction(ctx, chatID, msgID, emoji); err != nil {
			return Errf("add_reaction: %v", err)
		}
		return Ok("")
	},
}

var sendPhotoSpec = &Spec{
	Name:        "send_photo",
	Description: "Generate an image from a text prompt and send it to a chat.",
	Params: map[string]ParamSchema{
		"chat_id":             {Type: "integer"},
		"prompt":              {Type: "string", Description: "Text prompt to generate the image"},
		"caption":             {Type: "string"},
		"reply_to_message_id": {Type: "integer"},
	},
	Required: []string{"chat_id", "prompt"},
	IsQuery:  true, // returns the generated image for the reasoner to observe
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID := argInt64(args, "chat_id")
		prompt := argString(args, "prompt")
		caption := argString(args, "caption")
		replyTo, _ := argOptInt64(args, "reply_to_message_id")
		replyTo = resolveReply(x, chatID, replyTo)

		data, mime, err := x.ImageGen.Generate(ctx, prompt)
		if err != nil {
			return Errf("send_photo: image generation failed: %v", err)
		}
		if _, err := x.Transport.SendPhoto(ctx, chatID, data, caption, replyTo); err != nil {
			return Errf("send_photo: %v", err)
		}
		return OkImage("sent photo", &Image{Data: data, MimeType: mime})
	},
}

var sendVoiceSpec = &Spec{
	Name:        "send_voice",
	Description: "Synthesize speech from text and send it as a voice message.",
	Params: map[string]ParamSchema{
		"chat_id":             {Type: "integer"},
		"text":                {Type: "string"},
		"voice":               {Type: "string"},
		"reply_to_message_id": {Type: "integer"},
	},
	Required: []string{"chat_id", "text"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID := argInt64(args, "chat_id")
		text := argString(args, "text")
		voice := argString(args, "voice")
		replyTo, _ := argOptInt64(args, "reply_to_message_id")
		replyTo = resolveReply(x, chatID, replyTo)

		audio, err := x.TTS.Synthesize(ctx, text, voice)
		if err != nil {
			return Errf("send_voice: tts failed: %v", err)
		}
		if _, err := x.Transport.SendVoice(ctx, chatID, audio, replyTo); err != nil {
			return Errf("send_voice: %v", err)
		}
		return Ok("")
	},
}
