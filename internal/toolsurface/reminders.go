package toolsurface

import (
	"context"
	"fmt"
	"strings"
	"time"

	"claudima/internal/archive"
	"claudima/internal/scheduler"
)

var setReminderSpec = &Spec{
	Name:        "set_reminder",
	Description: "Schedule a reminder message, one-shot or recurring.",
	Params: map[string]ParamSchema{
		"chat_id":     {Type: "integer"},
		"message":     {Type: "string"},
		"trigger_at":  {Type: "string", Description: "'+N{m|h|d|w}' or 'YYYY-MM-DD HH:MM' (UTC)"},
		"repeat_cron": {Type: "string", Description: "optional 7-field 'sec min hour day month dow year' cron"},
	},
	Required: []string{"chat_id", "message", "trigger_at"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID := argInt64(args, "chat_id")
		message := argString(args, "message")
		repeatCron := argString(args, "repeat_cron")

		triggerAt, err := scheduler.ParseTriggerTime(argString(args, "trigger_at"), time.Now())
		if err != nil {
			return Errf("set_reminder: %v", err)
		}
		if repeatCron != "" {
			if _, err := scheduler.ParseSchedule(repeatCron); err != nil {
				return Errf("set_reminder: invalid repeat_cron: %v", err)
			}
		}

		id, err := x.Archive.AddReminder(ctx, archive.Reminder{
			ChatID:     chatID,
			UserID:     x.Caller.UserID,
			Message:    message,
			TriggerAt:  triggerAt,
			RepeatCron: repeatCron,
			CreatedAt:  time.Now().UTC(),
			Active:     true,
		})
		if err != nil {
			return Errf("set_reminder: %v", err)
		}
		return Ok(fmt.Sprintf("reminder %d scheduled for %s", id, triggerAt.Format(time.RFC3339)))
	},
}

var listRemindersSpec = &Spec{
	Name:        "list_reminders",
	Description: "List active reminders, optionally scoped to a chat.",
	Params:      map[string]ParamSchema{"chat_id": {Type: "integer"}},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID, _ := argOptInt64(args, "chat_id")
		reminders, err := x.Archive.ListReminders(ctx, chatID)
		if err != nil {
			return Errf("list_reminders: %v", err)
		}
		var sb strings.Builder
		for _, r := range reminders {
			fmt.Fprintf(&sb, "%d\t%d\t%s\t%s\t%s\n",
				r.ID, r.ChatID, r.TriggerAt.Format(time.RFC3339), r.RepeatCron, r.Message)
		}
		return Ok(sb.String())
	},
}

var cancelReminderSpec = &Spec{
	Name:        "cancel_reminder",
	Description: "Cancel a pending reminder by id.",
	Params:      map[string]ParamSchema{"id": {Type: "integer"}},
	Required:    []string{"id"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		id := argInt64(args, "id")
		if err := x.Archive.CancelReminder(ctx, id); err != nil {
			return Errf("cancel_reminder: %v", err)
		}
		return Ok("")
	},
}
