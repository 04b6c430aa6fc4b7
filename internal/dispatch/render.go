package dispatch

import (
	"strconv"
	"strings"

	"claudima/internal/archive"
)

// maxQuoteLength bounds how much of a quoted reply is inlined into the
// rendered frame, per spec.md §6/§8's escape-soundness property.
const maxQuoteLength = 200

// Message is the dispatch engine's in-memory view of one chat message,
// carrying everything §6's wire format can render plus an optional
// inline image (never persisted, resident only for the current turn).
type Message struct {
	MessageID          int64
	ChatID             int64
	UserID             int64
	Username           string
	Timestamp          string
	Text               string
	ReplyTo            *archive.ReplyTo
	Image              *InlineImage
	VoiceTranscription string
	Documents          []archive.Document
}

// InlineImage is image data attached to one inbound message.
type InlineImage struct {
	Data     []byte
	MimeType string
}

// xmlEscape escapes element content: `< > &`.
func xmlEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// xmlEscapeAttr escapes attribute values: `< > &` plus `"`.
func xmlEscapeAttr(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truncateSafe truncates s to at most maxChars runes without splitting a
// multi-byte rune.
func truncateSafe(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	return string(r[:maxChars])
}

// Format renders m as the XML frame the reasoner sees. Escaping is the
// sole defense against prompt injection through message content (§6, §8
// escape-soundness): `< > &` never appear raw in content, and attribute
// values additionally escape `"`.
func (m Message) Format() string {
	var b strings.Builder
	b.WriteString(`<msg id="`)
	b.WriteString(strconv.FormatInt(m.MessageID, 10))
	b.WriteString(`" chat="`)
	b.WriteString(strconv.FormatInt(m.ChatID, 10))
	b.WriteString(`" user="`)
	b.WriteString(strconv.FormatInt(m.UserID, 10))
	b.WriteString(`" name="`)
	b.WriteString(xmlEscapeAttr(m.Username))
	b.WriteString(`" time="`)
	b.WriteString(xmlEscapeAttr(m.Timestamp))
	b.WriteString(`">`)

	if m.ReplyTo != nil {
		quote := m.ReplyTo.Text
		truncated := false
		if len([]rune(quote)) > maxQuoteLength {
			quote = truncateSafe(quote, maxQuoteLength)
			truncated = true
		}
		b.WriteString(`<reply id="`)
		b.WriteString(strconv.FormatInt(m.ReplyTo.MessageID, 10))
		b.WriteString(`" from="`)
		b.WriteString(xmlEscapeAttr(m.ReplyTo.Username))
		b.WriteString(`">`)
		b.WriteString(xmlEscape(quote))
		if truncated {
			b.WriteString("...")
		}
		b.WriteString(`</reply>`)
	}

	b.WriteString(xmlEscape(m.Text))

	if m.VoiceTranscription != "" {
		b.WriteString(`<voice-transcription note="speech-to-text, may contain errors">`)
		b.WriteString(xmlEscape(m.VoiceTranscription))
		b.WriteString(`</voice-transcription>`)
	}

	for _, d := range m.Documents {
		b.WriteString(`<document name="`)
		b.WriteString(xmlEscapeAttr(d.Filename))
		b.WriteString(`">`)
		b.WriteString(xmlEscape(d.Text))
		b.WriteString(`</document>`)
	}

	b.WriteString(`</msg>`)
	return b.String()
}

// formatBatch renders a batch of messages as the single payload sent to
// the reasoner on debounce fire (§4.1 Turn protocol).
func formatBatch(messages []Message) string {
	var b strings.Builder
	b.WriteString("New messages:\n\n")
	for _, m := range messages {
		b.WriteString(m.Format())
		b.WriteString("\n")
	}
	return b.String()
}

// formatRestoration renders the compaction-recovery payload: the
// persistent memory file's contents (if any) followed by the N most
// recent archived messages (§4.1 Compaction recovery, §8 scenario 5).
func formatRestoration(readme string, recent []archive.Message) string {
	var b strings.Builder
	if readme != "" {
		b.WriteString(readme)
		b.WriteString("\n\n")
	}
	b.WriteString("Context was compacted. Here are the most recent ")
	b.WriteString(strconv.Itoa(len(recent)))
	b.WriteString(" messages to restore context:\n\n")
	for _, am := range recent {
		b.WriteString(messageFromArchive(am).Format())
		b.WriteString("\n")
	}
	return b.String()
}

// messageFromArchive adapts an archived message into the render shape.
func messageFromArchive(am archive.Message) Message {
	return Message{
		MessageID:          am.MessageID,
		ChatID:             am.ChatID,
		UserID:             am.UserID,
		Username:           am.Username,
		Timestamp:          am.Timestamp,
		Text:               am.Text,
		ReplyTo:            am.ReplyTo,
		VoiceTranscription: am.VoiceTranscription,
		Documents:          am.Documents,
	}
}
