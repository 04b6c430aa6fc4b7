package reasoner

import "testing"

func strptr(s string) *string { return &s }
func i64ptr(n int64) *int64   { return &n }

func TestToArgsFlattensSetFields(t *testing.T) {
	raw := RawToolCall{
		Tool:   "send_message",
		ChatID: i64ptr(-12345),
		Text:   strptr("hi!"),
	}
	args := raw.ToArgs()
	if args["chat_id"] != int64(-12345) {
		t.Errorf("chat_id = %v, want -12345", args["chat_id"])
	}
	if args["text"] != "hi!" {
		t.Errorf("text = %v, want hi!", args["text"])
	}
	if _, ok := args["reply_to_message_id"]; ok {
		t.Errorf("unset reply_to_message_id should be absent, got %v", args["reply_to_message_id"])
	}
}

func TestToArgsAliasesTextToPromptForSendPhoto(t *testing.T) {
	raw := RawToolCall{
		Tool:   "send_photo",
		ChatID: i64ptr(1),
		Text:   strptr("a cat wearing a hat"),
	}
	args := raw.ToArgs()
	if args["prompt"] != "a cat wearing a hat" {
		t.Errorf("prompt = %v, want the text-aliased prompt", args["prompt"])
	}
}

func TestToArgsPrefersExplicitPromptOverTextAlias(t *testing.T) {
	raw := RawToolCall{
		Tool:   "send_photo",
		Text:   strptr("fallback"),
		Prompt: strptr("explicit prompt"),
	}
	args := raw.ToArgs()
	if args["prompt"] != "explicit prompt" {
		t.Errorf("prompt = %v, want explicit prompt to win", args["prompt"])
	}
}

func TestReminderIDMapsToIDArg(t *testing.T) {
	raw := RawToolCall{Tool: "cancel_reminder", ReminderID: i64ptr(7)}
	args := raw.ToArgs()
	if args["id"] != int64(7) {
		t.Errorf("id = %v, want 7", args["id"])
	}
}
