package moderation

import (
	"context"
	"fmt"
	"strings"

	"claudima/internal/llmprovider"
)

// Classification is the LLM classifier's verdict for an ambiguous message.
type Classification int

const (
	NotSpam Classification = iota
	Spam
)

const classifierPrompt = `You are a spam classifier for a Telegram group. Analyze this message and respond with exactly one word: SPAM or NOT_SPAM.

Spam includes:
- Crypto/forex/investment scams
- Unsolicited promotions
- Phishing attempts
- Invite links to other groups/channels
- "Get rich quick" schemes
- Adult content promotion

NOT spam includes:
- Normal conversation
- Questions and answers
- Opinions and discussions
- Sharing relevant content

Message to classify:
"%s"

Respond with exactly one word: SPAM or NOT_SPAM`

// Classifier calls an LLM provider to resolve ambiguous prefilter verdicts.
type Classifier struct {
	client llmprovider.Client
}

func NewClassifier(client llmprovider.Client) *Classifier {
	return &Classifier{client: client}
}

func (c *Classifier) Classify(ctx context.Context, text string) (Classification, error) {
	prompt := fmt.Sprintf(classifierPrompt, text)
	reply, _, err := c.client.Complete(ctx, []llmprovider.Message{
		{Role: "user", Text: prompt},
	})
	if err != nil {
		return NotSpam, fmt.Errorf("moderation: classifier call failed: %w", err)
	}

	result := strings.ToUpper(strings.TrimSpace(reply))
	if strings.Contains(result, "SPAM") && !strings.Contains(result, "NOT") {
		return Spam, nil
	}
	return NotSpam, nil
}
