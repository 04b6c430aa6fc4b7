package toolsurface

import (
	"context"
	"fmt"
	"time"
)

func notifyOwner(ctx context.Context, x *ExecContext, line string) {
	if err := x.Transport.NotifyOwner(ctx, line); err != nil {
		// Best-effort audit notification; never fails the admin action itself.
		_ = err
	}
}

var deleteMessageSpec = &Spec{
	Name:        "delete_message",
	Description: "Delete a message (admin action - use for spam/abuse).",
	Params: map[string]ParamSchema{
		"chat_id":    {Type: "integer"},
		"message_id": {Type: "integer"},
	},
	Required: []string{"chat_id", "message_id"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID, msgID := argInt64(args, "chat_id"), argInt64(args, "message_id")
		if err := x.Transport.DeleteMessage(ctx, chatID, msgID); err != nil {
			return Errf("delete_message: %v", err)
		}
		notifyOwner(ctx, x, fmt.Sprintf("deleted message %d in chat %d", msgID, chatID))
		return Ok("")
	},
}

var muteUserSpec = &Spec{
	Name:        "mute_user",
	Description: "Mute a user temporarily (admin action).",
	Params: map[string]ParamSchema{
		"chat_id":           {Type: "integer"},
		"user_id":           {Type: "integer"},
		"duration_minutes":  {Type: "integer", Description: "1 to 1440 minutes"},
	},
	Required: []string{"chat_id", "user_id", "duration_minutes"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID, userID := argInt64(args, "chat_id"), argInt64(args, "user_id")
		minutes := argInt64(args, "duration_minutes")
		if minutes < 1 || minutes > 1440 {
			return Errf("mute_user: duration_minutes must be between 1 and 1440, got %d", minutes)
		}
		if err := x.Transport.MuteUser(ctx, chatID, userID, time.Duration(minutes)*time.Minute); err != nil {
			return Errf("mute_user: %v", err)
		}
		notifyOwner(ctx, x, fmt.Sprintf("muted user %d in chat %d for %d minutes", userID, chatID, minutes))
		return Ok("")
	},
}

var banUserSpec = &Spec{
	Name:        "ban_user",
	Description: "Ban a user permanently (admin action - use for severe abuse).",
	Params: map[string]ParamSchema{
		"chat_id": {Type: "integer"},
		"user_id": {Type: "integer"},
	},
	Required: []string{"chat_id", "user_id"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID, userID := argInt64(args, "chat_id"), argInt64(args, "user_id")
		if err := x.Transport.BanUser(ctx, chatID, userID); err != nil {
			return Errf("ban_user: %v", err)
		}
		notifyOwner(ctx, x, fmt.Sprintf("banned user %d in chat %d", userID, chatID))
		return Ok("")
	},
}

var kickUserSpec = &Spec{
	Name:        "kick_user",
	Description: "Kick a user from the group (softer than ban - they can rejoin).",
	Params: map[string]ParamSchema{
		"chat_id": {Type: "integer"},
		"user_id": {Type: "integer"},
	},
	Required: []string{"chat_id", "user_id"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID, userID := argInt64(args, "chat_id"), argInt64(args, "user_id")
		if err := x.Transport.BanUser(ctx, chatID, userID); err != nil {
			return Errf("kick_user: %v", err)
		}
		if err := x.Transport.UnbanUser(ctx, chatID, userID); err != nil {
			return Errf("kick_user: ban succeeded but unban failed: %v", err)
		}
		notifyOwner(ctx, x, fmt.Sprintf("kicked user %d from chat %d", userID, chatID))
		return Ok("")
	},
}
