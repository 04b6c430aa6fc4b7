package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"claudima/internal/dispatch"
	"claudima/internal/moderation"
)

func TestChunkByRuneReturnsSingleChunkUnderLimit(t *testing.T) {
	chunks := chunkByRune("hello", 10)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("got %v, want [\"hello\"]", chunks)
	}
}

func TestChunkByRuneSplitsOnLimit(t *testing.T) {
	chunks := chunkByRune("abcdefgh", 3)
	want := []string{"abc", "def", "gh"}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d: %v", len(chunks), len(want), chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkByRuneIsRuneSafe(t *testing.T) {
	s := strings.Repeat("é", 10)
	chunks := chunkByRune(s, 4)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	joined := strings.Join(chunks, "")
	if joined != s {
		t.Fatalf("chunks lost data: got %q, want %q", joined, s)
	}
	for _, c := range chunks {
		if !strings.Contains(s, c) || strings.Count(c, "é") == 0 {
			t.Fatalf("chunk %q was split mid-rune", c)
		}
	}
}

func TestGroupAllowedPermitsEveryGroupWhenListEmpty(t *testing.T) {
	tr := &Transport{allowed: map[int64]struct{}{}}
	if !tr.groupAllowed(-100123) {
		t.Fatal("empty AllowedGroups must permit every group")
	}
}

func TestGroupAllowedRestrictsToConfiguredList(t *testing.T) {
	tr := &Transport{allowed: map[int64]struct{}{-100123: {}}}
	if !tr.groupAllowed(-100123) {
		t.Fatal("expected -100123 to be allowed")
	}
	if tr.groupAllowed(-100456) {
		t.Fatal("expected -100456 to be rejected")
	}
}

func TestSanitizeFileIDReplacesSlashes(t *testing.T) {
	got := sanitizeFileID("AAA/BBB/CCC")
	if got != "AAA_BBB_CCC" {
		t.Fatalf("got %q", got)
	}
}

func TestAttachmentsDirDefaultsWhenDataDirEmpty(t *testing.T) {
	if got := attachmentsDir(""); got != "data/attachments" {
		t.Fatalf("got %q", got)
	}
}

func TestAttachmentsDirUsesConfiguredDataDir(t *testing.T) {
	if got := attachmentsDir("/var/claudima"); got != "/var/claudima/attachments" {
		t.Fatalf("got %q", got)
	}
}

func TestUserIDHandlesNilUser(t *testing.T) {
	if userID(nil) != 0 {
		t.Fatal("nil user must yield id 0")
	}
}

func TestUsernamePrefersHandleOverFirstName(t *testing.T) {
	u := &tgbotapi.User{UserName: "dmitri", FirstName: "Dmitri"}
	if got := username(u); got != "dmitri" {
		t.Fatalf("got %q", got)
	}
}

func TestUsernameFallsBackToFirstNameWhenNoHandle(t *testing.T) {
	u := &tgbotapi.User{FirstName: "Dmitri"}
	if got := username(u); got != "Dmitri" {
		t.Fatalf("got %q", got)
	}
}

// fakeSink records every Intake call, letting bufferMediaGroup's flush
// behavior be observed without a real dispatch.Engine.
type fakeSink struct {
	mu      sync.Mutex
	intaken []dispatch.Message
}

func (f *fakeSink) Intake(ctx context.Context, msg dispatch.Message, senderChatID int64) moderation.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intaken = append(f.intaken, msg)
	return moderation.Verdict{}
}
func (f *fakeSink) Edit(chatID, messageID int64, newText string)                          {}
func (f *fakeSink) MemberJoined(ctx context.Context, userID int64, username, first string) {}
func (f *fakeSink) MemberLeft(ctx context.Context, userID int64)                            {}
func (f *fakeSink) MemberBanned(ctx context.Context, userID int64)                          {}

func (f *fakeSink) snapshot() []dispatch.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dispatch.Message, len(f.intaken))
	copy(out, f.intaken)
	return out
}

func newTestTransport() *Transport {
	return &Transport{mediaGroups: make(map[string]*mediaGroupBuffer)}
}

func TestBufferMediaGroupMergesTextAcrossParts(t *testing.T) {
	tr := newTestTransport()
	sink := &fakeSink{}
	ctx := context.Background()

	tr.mediaGroupDebounce = time.Millisecond * 20
	tr.bufferMediaGroup(ctx, sink, "group-1", dispatch.Message{ChatID: 1, Text: "part one"}, 0)
	tr.bufferMediaGroup(ctx, sink, "group-1", dispatch.Message{ChatID: 1, Text: "part two"}, 0)

	time.Sleep(100 * time.Millisecond)

	got := sink.snapshot()
	if len(got) != 1 {
		t.Fatalf("got %d flushed messages, want 1: %v", len(got), got)
	}
	if got[0].Text != "part one\npart two" {
		t.Fatalf("got text %q", got[0].Text)
	}
}

func TestBufferMediaGroupKeepsFirstImage(t *testing.T) {
	tr := newTestTransport()
	sink := &fakeSink{}
	ctx := context.Background()
	tr.mediaGroupDebounce = time.Millisecond * 20

	img := &dispatch.InlineImage{Data: []byte{1}, MimeType: "image/jpeg"}
	tr.bufferMediaGroup(ctx, sink, "group-2", dispatch.Message{ChatID: 1, Image: img}, 0)
	tr.bufferMediaGroup(ctx, sink, "group-2", dispatch.Message{ChatID: 1, Image: &dispatch.InlineImage{Data: []byte{2}}}, 0)

	time.Sleep(100 * time.Millisecond)

	got := sink.snapshot()
	if len(got) != 1 {
		t.Fatalf("got %d flushed messages, want 1", len(got))
	}
	if got[0].Image != img {
		t.Fatal("expected the first message's image to win")
	}
}
