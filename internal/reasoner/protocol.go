// Package reasoner owns the persistent sidecar reasoning subprocess: a
// `claude` CLI child with all built-in tools disabled, pinned to a
// schema-constrained structured-output contract, talking newline-delimited
// JSON over stdin/stdout.
package reasoner

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// toolCallsSchema is the JSON schema attached to the child via
// --json-schema, constraining its structured output to a flat,
// optional-field tool-call record per spec.md §6.
const toolCallsSchema = `{
  "type": "object",
  "properties": {
    "tool_calls": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "tool": {"type": "string"},
          "chat_id": {"type": "integer"},
          "text": {"type": "string"},
          "reply_to_message_id": {"type": "integer"},
          "user_id": {"type": "integer"},
          "message_id": {"type": "integer"},
          "emoji": {"type": "string"},
          "last_n": {"type": "integer"},
          "from_date": {"type": "string"},
          "to_date": {"type": "string"},
          "username": {"type": "string"},
          "limit": {"type": "integer"},
          "query": {"type": "string"},
          "duration_minutes": {"type": "integer"},
          "days_inactive": {"type": "integer"},
          "filter": {"type": "string"},
          "file_path": {"type": "string"},
          "prompt": {"type": "string"},
          "voice": {"type": "string"},
          "path": {"type": "string"},
          "content": {"type": "string"},
          "old_string": {"type": "string"},
          "new_string": {"type": "string"},
          "pattern": {"type": "string"},
          "description": {"type": "string"},
          "severity": {"type": "string"},
          "url": {"type": "string"},
          "sql": {"type": "string"},
          "message": {"type": "string"},
          "trigger_at": {"type": "string"},
          "repeat_cron": {"type": "string"},
          "reminder_id": {"type": "integer"}
        },
        "required": ["tool"]
      }
    }
  },
  "required": ["tool_calls"]
}`

// inputFrame is one outbound stdin line: {type:"user", message:{role, content}}.
type inputFrame struct {
	Type    string        `json:"type"`
	Message inputFrameMsg `json:"message"`
}

type inputFrameMsg struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string, or []contentBlock for multimodal
}

type contentBlock struct {
	Type   string         `json:"type"`
	Text   string         `json:"text,omitempty"`
	Source *blockImgSource `json:"source,omitempty"`
}

type blockImgSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// outputFrame is one inbound stdout NDJSON line, discriminated by Type.
type outputFrame struct {
	Type string `json:"type"`

	// system
	Tools     []string `json:"tools,omitempty"`
	SessionID string   `json:"session_id,omitempty"`

	// assistant
	Message *assistantMessage `json:"message,omitempty"`

	// result
	TotalCostUSD      float64            `json:"total_cost_usd,omitempty"`
	StructuredOutput  *structuredOutput  `json:"structured_output,omitempty"`
}

type assistantMessage struct {
	ContextManagement *contextManagement `json:"context_management,omitempty"`
}

type contextManagement struct {
	TruncatedContentLength *int `json:"truncated_content_length,omitempty"`
}

type structuredOutput struct {
	ToolCalls []RawToolCall `json:"tool_calls"`
}

// RawToolCall is the flat record the reasoner emits; the Tool Surface's
// per-tool required-field map governs how it is validated into an
// invocation (§6).
type RawToolCall struct {
	Tool               string  `json:"tool"`
	ChatID             *int64  `json:"chat_id,omitempty"`
	Text               *string `json:"text,omitempty"`
	ReplyToMessageID   *int64  `json:"reply_to_message_id,omitempty"`
	UserID             *int64  `json:"user_id,omitempty"`
	MessageID          *int64  `json:"message_id,omitempty"`
	Emoji              *string `json:"emoji,omitempty"`
	LastN              *int64  `json:"last_n,omitempty"`
	FromDate           *string `json:"from_date,omitempty"`
	ToDate             *string `json:"to_date,omitempty"`
	Username           *string `json:"username,omitempty"`
	Limit              *int64  `json:"limit,omitempty"`
	Query              *string `json:"query,omitempty"`
	DurationMinutes    *int64  `json:"duration_minutes,omitempty"`
	DaysInactive       *int64  `json:"days_inactive,omitempty"`
	Filter             *string `json:"filter,omitempty"`
	FilePath           *string `json:"file_path,omitempty"`
	Prompt             *string `json:"prompt,omitempty"`
	Voice              *string `json:"voice,omitempty"`
	Path               *string `json:"path,omitempty"`
	Content            *string `json:"content,omitempty"`
	OldString          *string `json:"old_string,omitempty"`
	NewString          *string `json:"new_string,omitempty"`
	Pattern            *string `json:"pattern,omitempty"`
	Description        *string `json:"description,omitempty"`
	Severity           *string `json:"severity,omitempty"`
	URL                *string `json:"url,omitempty"`
	SQL                *string `json:"sql,omitempty"`
	Message            *string `json:"message,omitempty"`
	TriggerAt          *string `json:"trigger_at,omitempty"`
	RepeatCron         *string `json:"repeat_cron,omitempty"`
	ReminderID         *int64  `json:"reminder_id,omitempty"`
}

// ToArgs flattens the raw record into the generic args map the Tool
// Surface's Spec.Execute expects, dropping nil-valued fields.
func (r RawToolCall) ToArgs() map[string]any {
	args := make(map[string]any)
	put := func(k string, v any) {
		args[k] = v
	}
	if r.ChatID != nil {
		put("chat_id", *r.ChatID)
	}
	if r.Text != nil {
		put("text", *r.Text)
	}
	if r.ReplyToMessageID != nil {
		put("reply_to_message_id", *r.ReplyToMessageID)
	}
	if r.UserID != nil {
		put("user_id", *r.UserID)
	}
	if r.MessageID != nil {
		put("message_id", *r.MessageID)
	}
	if r.Emoji != nil {
		put("emoji", *r.Emoji)
	}
	if r.LastN != nil {
		put("last_n", *r.LastN)
	}
	if r.FromDate != nil {
		put("from_date", *r.FromDate)
	}
	if r.ToDate != nil {
		put("to_date", *r.ToDate)
	}
	if r.Username != nil {
		put("username", *r.Username)
	}
	if r.Limit != nil {
		put("limit", *r.Limit)
	}
	if r.Query != nil {
		put("query", *r.Query)
	}
	if r.DurationMinutes != nil {
		put("duration_minutes", *r.DurationMinutes)
	}
	if r.DaysInactive != nil {
		put("days_inactive", *r.DaysInactive)
	}
	if r.Filter != nil {
		put("filter", *r.Filter)
	}
	if r.FilePath != nil {
		put("file_path", *r.FilePath)
	}
	if r.Prompt != nil {
		put("prompt", *r.Prompt)
	} else if r.Text != nil {
		// send_photo aliases its prompt field to "text" on the wire.
		put("prompt", *r.Text)
	}
	if r.Voice != nil {
		put("voice", *r.Voice)
	}
	if r.Path != nil {
		put("path", *r.Path)
	}
	if r.Content != nil {
		put("content", *r.Content)
	}
	if r.OldString != nil {
		put("old_string", *r.OldString)
	}
	if r.NewString != nil {
		put("new_string", *r.NewString)
	}
	if r.Pattern != nil {
		put("pattern", *r.Pattern)
	}
	if r.Description != nil {
		put("description", *r.Description)
	}
	if r.Severity != nil {
		put("severity", *r.Severity)
	}
	if r.URL != nil {
		put("url", *r.URL)
	}
	if r.SQL != nil {
		put("sql", *r.SQL)
	}
	if r.Message != nil {
		put("message", *r.Message)
	}
	if r.TriggerAt != nil {
		put("trigger_at", *r.TriggerAt)
	}
	if r.RepeatCron != nil {
		put("repeat_cron", *r.RepeatCron)
	}
	if r.ReminderID != nil {
		put("id", *r.ReminderID)
	}
	return args
}

// ToolCall is one intent parsed from the reasoner's structured output.
type ToolCall struct {
	ID   string
	Tool string
	Args map[string]any
}

// ToolResult is what the engine feeds back for one tool call.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// Response is what one bridge turn returns to the dispatch engine.
type Response struct {
	ToolCalls []ToolCall
	Compacted bool
}
