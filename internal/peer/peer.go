// Package peer implements inter-bot messaging over a shared directory.
// Telegram's Bot API gives a bot no way to receive messages sent by
// another bot, so sibling claudima instances relay through plain JSON
// files instead of Telegram itself. Grounded on
// original_source/src/chatbot/peer.rs, addressed by numeric bot user ID
// rather than the original's bot username (claudima's `peer_bots` config
// field is an ID list, matching `trusted_channels`/`allowed_groups`'s
// ID-list convention rather than carrying a separate username registry).
package peer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Message is one relayed message between bot instances.
type Message struct {
	FromBotID        int64  `json:"from_bot_id"`
	ToBotID          int64  `json:"to_bot_id"`
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	Timestamp        string `json:"timestamp"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

// SharedDir is data_dir's sibling "shared" directory, the common drop
// point every sibling bot instance reads and writes.
func SharedDir(dataDir string) string {
	return filepath.Join(filepath.Dir(dataDir), "shared")
}

// Send writes msg into the shared directory as one file, named so
// Receive can filter by target without parsing every file's contents.
func Send(dataDir string, msg Message) error {
	dir := SharedDir(dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("peer: create shared dir: %w", err)
	}

	raw, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return fmt.Errorf("peer: marshal message: %w", err)
	}

	name := fmt.Sprintf("%d_%d_to_%d.json", time.Now().UTC().UnixMilli(), msg.FromBotID, msg.ToBotID)
	if err := os.WriteFile(filepath.Join(dir, name), raw, 0o644); err != nil {
		return fmt.Errorf("peer: write message: %w", err)
	}
	return nil
}

// Sender binds the shared-directory transport to one bot's own identity,
// implementing toolsurface.PeerSender.
type Sender struct {
	DataDir string
	BotID   int64
}

func (s Sender) Send(toBotID, chatID int64, text string, replyToMessageID int64) error {
	return Send(s.DataDir, Message{
		FromBotID:        s.BotID,
		ToBotID:          toBotID,
		ChatID:           chatID,
		Text:             text,
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		ReplyToMessageID: replyToMessageID,
	})
}

// Receive reads and consumes every message addressed to myBotID,
// deleting each file once parsed, and returns them oldest first.
func Receive(dataDir string, myBotID int64) ([]Message, error) {
	dir := SharedDir(dataDir)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peer: read shared dir: %w", err)
	}

	suffix := fmt.Sprintf("_to_%d.json", myBotID)
	var messages []Message
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
		os.Remove(path)
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp < messages[j].Timestamp })
	return messages, nil
}
