package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddMessageUpsertsUserAndIncrementsCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		err := s.AddMessage(ctx, Message{
			MessageID: i, ChatID: -100, UserID: 42, Username: "alice",
			Timestamp: "2026-07-31 10:0" + string(rune('0'+i)), Text: "hello",
		})
		if err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}

	members, err := s.GetMembers(ctx, FilterAll, 0, 0)
	if err != nil {
		t.Fatalf("get members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if members[0].MessageCount != 3 {
		t.Fatalf("expected message_count 3, got %d", members[0].MessageCount)
	}
}

func TestQueryRejectsNonSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []string{
		"DROP TABLE users",
		"SELECT * FROM users; DELETE FROM users",
		"  update users set status='banned'",
		"INSERT INTO users VALUES (1)",
	}
	for _, sql := range cases {
		if _, err := s.Query(ctx, sql); err != ErrUnsafeQuery {
			t.Errorf("query %q: expected ErrUnsafeQuery, got %v", sql, err)
		}
	}
}

func TestQueryAllowsSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.AddMessage(ctx, Message{MessageID: 1, ChatID: -1, UserID: 1, Username: "a", Timestamp: "2026-07-31 10:00", Text: "hi"}); err != nil {
		t.Fatalf("add message: %v", err)
	}
	res, err := s.Query(ctx, "SELECT user_id, username FROM users")
	if err != nil {
		t.Fatalf("expected SELECT to succeed, got %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(res.Rows))
	}
}

func TestDueRemindersAndRetire(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	id, err := s.AddReminder(ctx, Reminder{ChatID: -1, Message: "ping", TriggerAt: past})
	if err != nil {
		t.Fatalf("add reminder: %v", err)
	}

	due, err := s.DueReminders(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("due reminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("expected 1 due reminder with id %d, got %+v", id, due)
	}

	if err := s.RetireReminder(ctx, id, time.Now().UTC()); err != nil {
		t.Fatalf("retire: %v", err)
	}
	due, err = s.DueReminders(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("due reminders after retire: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected reminder retired after firing, got %d still due", len(due))
	}
}

func TestGetRecentByTokensRespectsBudget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	for i := int64(1); i <= 5; i++ {
		err := s.AddMessage(ctx, Message{
			MessageID: i, ChatID: -1, UserID: 1, Username: "a",
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04"),
			Text:      string(long),
		})
		if err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	msgs, err := s.GetRecentByTokens(ctx, 100) // budget*4 = 400 chars ~= 2 messages
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if len(msgs) == 0 || len(msgs) >= 5 {
		t.Fatalf("expected budget to cap well under all 5 messages, got %d", len(msgs))
	}
}
