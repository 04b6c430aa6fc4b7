package llmprovider

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubClient struct {
	calls     int
	failTimes int
	transient bool
	reply     string
	err       error
}

func (s *stubClient) Complete(ctx context.Context, messages []Message) (string, *Usage, error) {
	s.calls++
	if s.calls <= s.failTimes {
		return "", nil, s.err
	}
	return s.reply, &Usage{}, nil
}

func (s *stubClient) IsTransientError(err error) bool { return s.transient }

func TestFallbackClientRetriesTransientError(t *testing.T) {
	s := &stubClient{failTimes: 2, transient: true, reply: "SPAM", err: errors.New("temporary glitch")}
	f := &FallbackClient{Clients: []Client{s}, MaxRetries: 3, RetryDelay: time.Millisecond}

	text, _, err := f.Complete(context.Background(), []Message{{Role: "user", Text: "hi"}})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if text != "SPAM" {
		t.Fatalf("expected SPAM, got %q", text)
	}
	if s.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", s.calls)
	}
}

func TestFallbackClientFallsThroughOnNonTransient(t *testing.T) {
	bad := &stubClient{failTimes: 99, transient: false, err: errors.New("unauthorized")}
	good := &stubClient{reply: "NOT_SPAM"}
	f := &FallbackClient{Clients: []Client{bad, good}, MaxRetries: 2, RetryDelay: time.Millisecond}

	text, _, err := f.Complete(context.Background(), []Message{{Role: "user", Text: "hi"}})
	if err != nil {
		t.Fatalf("expected fallback provider to succeed, got %v", err)
	}
	if text != "NOT_SPAM" {
		t.Fatalf("expected NOT_SPAM, got %q", text)
	}
	if bad.calls != 1 {
		t.Fatalf("expected non-transient error to stop retries after 1 call, got %d", bad.calls)
	}
}

func TestFallbackClientAllProvidersFail(t *testing.T) {
	s := &stubClient{failTimes: 99, err: errors.New("boom")}
	f := &FallbackClient{Clients: []Client{s}, MaxRetries: 1, RetryDelay: time.Millisecond}

	_, _, err := f.Complete(context.Background(), []Message{{Role: "user", Text: "hi"}})
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
}
