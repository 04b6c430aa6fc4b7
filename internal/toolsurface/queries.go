package toolsurface

import (
	"context"
	"fmt"
	"strings"
	"time"

	"claudima/internal/archive"
)

var getUserInfoSpec = &Spec{
	Name:        "get_user_info",
	Description: "Get information about a user by id or username.",
	Params: map[string]ParamSchema{
		"user_id":  {Type: "integer"},
		"username": {Type: "string"},
	},
	IsQuery: true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		userID, hasID := argOptInt64(args, "user_id")
		username := argString(args, "username")
		if !hasID && username == "" {
			return Errf("get_user_info: one of user_id or username is required")
		}

		members, err := x.Archive.GetMembers(ctx, archive.FilterAll, 0, 0)
		if err != nil {
			return Errf("get_user_info: %v", err)
		}
		var found *archive.Member
		for i := range members {
			m := &members[i]
			if hasID && m.UserID == userID {
				found = m
				break
			}
			if username != "" && strings.EqualFold(m.Username, username) {
				found = m
				break
			}
		}
		if found == nil {
			return Errf("get_user_info: no matching member found")
		}

		blob := fmt.Sprintf(`{"user_id":%d,"username":%q,"first_name":%q,"status":%q,"message_count":%d}`,
			found.UserID, found.Username, found.FirstName, found.Status, found.MessageCount)

		photo, mime, err := x.Transport.GetUserProfilePhoto(ctx, found.UserID)
		if err != nil || len(photo) == 0 {
			return Ok(blob)
		}
		return OkImage(blob, &Image{Data: photo, MimeType: mime})
	},
}

var getChatAdminsSpec = &Spec{
	Name:        "get_chat_admins",
	Description: "List the administrators of a chat.",
	Params:      map[string]ParamSchema{"chat_id": {Type: "integer"}},
	Required:    []string{"chat_id"},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		chatID := argInt64(args, "chat_id")
		admins, err := x.Transport.GetChatAdmins(ctx, chatID)
		if err != nil {
			return Errf("get_chat_admins: %v", err)
		}
		return Ok(strings.Join(admins, ", "))
	},
}

var getMembersSpec = &Spec{
	Name:        "get_members",
	Description: "List known members from the archive, optionally filtered.",
	Params: map[string]ParamSchema{
		"filter":         {Type: "string", Description: "all, active, inactive, never_posted, left, banned"},
		"days_inactive":  {Type: "integer", Description: "for filter=inactive, default 30"},
		"limit":          {Type: "integer", Description: "default 50"},
	},
	IsQuery: true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		filter := archive.MemberFilter(argString(args, "filter"))
		if filter == "" {
			filter = archive.FilterAll
		}
		days := int(argInt64(args, "days_inactive"))
		limit := int(argInt64(args, "limit"))
		if limit == 0 {
			limit = 50
		}
		members, err := x.Archive.GetMembers(ctx, filter, days, limit)
		if err != nil {
			return Errf("get_members: %v", err)
		}
		var sb strings.Builder
		for _, m := range members {
			fmt.Fprintf(&sb, "%d\t%s\t%s\t%d\n", m.UserID, m.Username, m.Status, m.MessageCount)
		}
		return Ok(sb.String())
	},
}

var querySQLSpec = &Spec{
	Name:        "query",
	Description: "Run a read-only SELECT statement against the archive.",
	Params:      map[string]ParamSchema{"sql": {Type: "string"}},
	Required:    []string{"sql"},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		rawSQL := argString(args, "sql")
		res, err := x.Archive.Query(ctx, rawSQL)
		if err != nil {
			return Errf("query: %v", err)
		}
		var sb strings.Builder
		sb.WriteString(strings.Join(res.Columns, "\t"))
		sb.WriteString("\n")
		for _, row := range res.Rows {
			sb.WriteString(strings.Join(row, "\t"))
			sb.WriteString("\n")
		}
		return Ok(sb.String())
	},
}

var youtubeInfoSpec = &Spec{
	Name:        "youtube_info",
	Description: "Look up title/author metadata for a YouTube URL via oEmbed.",
	Params:      map[string]ParamSchema{"url": {Type: "string"}},
	Required:    []string{"url"},
	IsQuery:     true,
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		url := argString(args, "url")
		title, author, err := x.OEmbed.Lookup(ctx, url)
		if err != nil {
			return Errf("youtube_info: %v", err)
		}
		return Ok(fmt.Sprintf("%s — %s", title, author))
	},
}

var reportBugSpec = &Spec{
	Name:        "report_bug",
	Description: "Append a timestamped bug report to the feedback log.",
	Params: map[string]ParamSchema{
		"description": {Type: "string"},
		"severity":    {Type: "string"},
	},
	Required: []string{"description"},
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		desc := argString(args, "description")
		severity := argString(args, "severity")
		if severity == "" {
			severity = "normal"
		}
		line := fmt.Sprintf("[%s] (%s) %s\n", time.Now().UTC().Format(time.RFC3339), severity, desc)
		if err := appendFile(x.FeedbackLog, line); err != nil {
			return Errf("report_bug: %v", err)
		}
		return Ok("")
	},
}

var noopSpec = &Spec{
	Name:        "noop",
	Description: "Do nothing. Terminal sentinel with no side effect.",
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		return Ok("")
	},
}

var doneSpec = &Spec{
	Name:        "done",
	Description: "Signal that processing for this turn is complete.",
	Execute: func(ctx context.Context, x *ExecContext, args map[string]any) *Result {
		return Ok("")
	},
}
