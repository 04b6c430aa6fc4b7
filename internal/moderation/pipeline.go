package moderation

import (
	"context"
	"log/slog"
	"sync"

	"claudima/internal/config"
)

// Enforcer is the narrow slice of the Telegram transport the pipeline
// needs to act on a spam verdict.
type Enforcer interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	BanUser(ctx context.Context, chatID, userID int64) error
}

// Verdict is the pipeline's final decision for one inbound message.
type Verdict struct {
	Spam    bool
	Strikes int
	Banned  bool
}

// Pipeline is the full bypass → prefilter → classifier → enforcement chain.
type Pipeline struct {
	trust      *config.TrustSet
	prefilter  *Prefilter
	classifier *Classifier
	enforcer   Enforcer
	maxStrikes int
	dryRun     bool

	mu      sync.Mutex
	strikes map[int64]int
}

func NewPipeline(trust *config.TrustSet, prefilter *Prefilter, classifier *Classifier, enforcer Enforcer, maxStrikes int, dryRun bool) *Pipeline {
	return &Pipeline{
		trust:      trust,
		prefilter:  prefilter,
		classifier: classifier,
		enforcer:   enforcer,
		maxStrikes: maxStrikes,
		dryRun:     dryRun,
		strikes:    make(map[int64]int),
	}
}

// trustedChannels holds the configured trusted sender-chat ids; the
// dispatch engine passes senderChatID=0 for ordinary user messages.
type TrustedChannels map[int64]struct{}

// Evaluate runs the full pipeline for one group message. Bypass applies
// to owner-authored messages, messages sent on behalf of a trusted
// channel (senderChatID != 0 and present in trustedChannels), and
// media-only messages (empty text), which count as not spam.
func (p *Pipeline) Evaluate(ctx context.Context, chatID, messageID, userID, senderChatID int64, text string, trustedChannels TrustedChannels) Verdict {
	if p.trust.IsOwner(userID) {
		return Verdict{Spam: false}
	}
	if senderChatID != 0 {
		if _, ok := trustedChannels[senderChatID]; ok {
			return Verdict{Spam: false}
		}
	}
	if text == "" {
		return Verdict{Spam: false}
	}

	spam := p.classify(ctx, text)
	if !spam {
		return Verdict{Spam: false}
	}

	return p.enforce(ctx, chatID, messageID, userID)
}

func (p *Pipeline) classify(ctx context.Context, text string) bool {
	switch p.prefilter.Classify(text) {
	case ObviousSpam:
		return true
	case ObviousSafe:
		return false
	default:
		if p.classifier == nil {
			return false
		}
		verdict, err := p.classifier.Classify(ctx, text)
		if err != nil {
			slog.Warn("moderation: classification error, defaulting to not-spam", "err", err)
			return false
		}
		return verdict == Spam
	}
}

func (p *Pipeline) enforce(ctx context.Context, chatID, messageID, userID int64) Verdict {
	if p.dryRun {
		slog.Info("moderation: [dry run] would delete message", "chat_id", chatID, "message_id", messageID)
	} else if err := p.enforcer.DeleteMessage(ctx, chatID, messageID); err != nil {
		slog.Warn("moderation: failed to delete spam message", "err", err)
	}

	strikes := p.addStrike(userID)
	banned := false
	if strikes >= p.maxStrikes {
		banned = true
		if p.dryRun {
			slog.Info("moderation: [dry run] would ban user", "user_id", userID)
		} else if err := p.enforcer.BanUser(ctx, chatID, userID); err != nil {
			slog.Warn("moderation: failed to ban user", "err", err)
		}
	}

	return Verdict{Spam: true, Strikes: strikes, Banned: banned}
}

func (p *Pipeline) addStrike(userID int64) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strikes[userID]++
	return p.strikes[userID]
}
