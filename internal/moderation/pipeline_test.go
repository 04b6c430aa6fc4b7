package moderation

import (
	"context"
	"testing"

	"claudima/internal/config"
	"claudima/internal/llmprovider"
)

type fakeEnforcer struct {
	deleted []int64
	banned  []int64
}

func (f *fakeEnforcer) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeEnforcer) BanUser(ctx context.Context, chatID, userID int64) error {
	f.banned = append(f.banned, userID)
	return nil
}

type alwaysSpamClient struct{}

func (alwaysSpamClient) Complete(ctx context.Context, messages []llmprovider.Message) (string, *llmprovider.Usage, error) {
	return "SPAM", nil, nil
}
func (alwaysSpamClient) IsTransientError(error) bool { return false }

func newTestPipeline(t *testing.T, maxStrikes int) (*Pipeline, *fakeEnforcer) {
	t.Helper()
	trust := config.NewTrustSet(&config.Config{OwnerIDs: []int64{1}})
	prefilter := testPrefilter(t)
	classifier := NewClassifier(alwaysSpamClient{})
	enforcer := &fakeEnforcer{}
	return NewPipeline(trust, prefilter, classifier, enforcer, maxStrikes, false), enforcer
}

func TestEvaluateBypassesOwner(t *testing.T) {
	p, enforcer := newTestPipeline(t, 2)
	v := p.Evaluate(context.Background(), -100, 5, 1, 0, "crypto profit scheme", nil)
	if v.Spam {
		t.Errorf("owner message should bypass moderation entirely")
	}
	if len(enforcer.deleted) != 0 {
		t.Errorf("owner message should never be deleted")
	}
}

func TestEvaluateBypassesTrustedChannel(t *testing.T) {
	p, _ := newTestPipeline(t, 2)
	trusted := TrustedChannels{-999: {}}
	v := p.Evaluate(context.Background(), -100, 5, 2, -999, "crypto profit scheme", trusted)
	if v.Spam {
		t.Errorf("trusted channel message should bypass moderation")
	}
}

func TestEvaluateDeletesObviousSpamWithoutClassifierCall(t *testing.T) {
	p, enforcer := newTestPipeline(t, 5)
	v := p.Evaluate(context.Background(), -100, 5, 2, 0, "Join us at t.me/scamgroup", nil)
	if !v.Spam {
		t.Fatalf("expected spam verdict")
	}
	if len(enforcer.deleted) != 1 || enforcer.deleted[0] != 5 {
		t.Errorf("deleted = %v, want [5]", enforcer.deleted)
	}
}

func TestStrikeLadderBansAfterMaxStrikes(t *testing.T) {
	p, enforcer := newTestPipeline(t, 2)
	userID := int64(2)

	v1 := p.Evaluate(context.Background(), -100, 1, userID, 0, "Join us at t.me/scamgroup", nil)
	if v1.Strikes != 1 || v1.Banned {
		t.Fatalf("first strike = %+v, want strikes=1 banned=false", v1)
	}

	v2 := p.Evaluate(context.Background(), -100, 2, userID, 0, "Join us at t.me/scamgroup", nil)
	if v2.Strikes != 2 || !v2.Banned {
		t.Fatalf("second strike = %+v, want strikes=2 banned=true", v2)
	}
	if len(enforcer.banned) != 1 || enforcer.banned[0] != userID {
		t.Errorf("banned = %v, want [%d]", enforcer.banned, userID)
	}
}

func TestAmbiguousMessageFallsThroughToClassifier(t *testing.T) {
	p, enforcer := newTestPipeline(t, 5)
	text := "I've been thinking about this project and have questions about direction"
	v := p.Evaluate(context.Background(), -100, 9, 2, 0, text, nil)
	if !v.Spam {
		t.Fatalf("expected classifier (alwaysSpamClient) to mark this spam")
	}
	if len(enforcer.deleted) != 1 {
		t.Errorf("expected the ambiguous message to be deleted after classifier verdict")
	}
}
