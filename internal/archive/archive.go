// Package archive is the durable message/member/reminder store: a thin
// typed facade over an embedded SQLite database, single-writer via one
// serialized connection, with a read-only parameterized query surface
// for the `query` tool.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	_ "modernc.org/sqlite" // pure-Go driver, blank-imported for side effects
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ReplyTo is a denormalized snapshot of the quoted message, avoiding any
// pointer/graph relationship between messages.
type ReplyTo struct {
	MessageID int64  `json:"message_id"`
	Username  string `json:"username"`
	Text      string `json:"text"`
}

// Document is an extracted-text attachment.
type Document struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// Message is one archived chat message.
type Message struct {
	MessageID         int64
	ChatID            int64
	UserID            int64
	Username          string
	Timestamp         string // sortable to minute granularity
	Text              string
	ReplyTo           *ReplyTo
	VoiceTranscription string
	Documents         []Document
}

// Member is one chat participant's tracked state.
type Member struct {
	UserID          int64
	Username        string
	FirstName       string
	JoinDate        string
	LastMessageDate *string
	MessageCount    int
	Status          string // member | left | banned
}

const (
	StatusMember = "member"
	StatusLeft   = "left"
	StatusBanned = "banned"
)

// Reminder is one scheduled, possibly-recurring delivery.
type Reminder struct {
	ID              int64
	ChatID          int64
	UserID          int64
	Message         string
	TriggerAt       time.Time
	RepeatCron      string
	CreatedAt       time.Time
	LastTriggeredAt *time.Time
	Active          bool
}

// MemberFilter selects a subset of members for get_members.
type MemberFilter string

const (
	FilterAll          MemberFilter = "all"
	FilterActive       MemberFilter = "active"
	FilterInactive     MemberFilter = "inactive"
	FilterNeverPosted  MemberFilter = "never_posted"
	FilterLeft         MemberFilter = "left"
	FilterBanned       MemberFilter = "banned"
)

// Store is the single-writer SQLite-backed archive.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the database file at path and
// initializes its schema. A single connection serializes every writer,
// matching the spec's single-writer-guard requirement without needing a
// separate mutex: database/sql pools to exactly one live connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			join_date TEXT,
			last_message_date TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'member'
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			chat_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			username TEXT,
			timestamp TEXT NOT NULL,
			text TEXT NOT NULL DEFAULT '',
			reply_to TEXT,
			voice_transcription TEXT,
			documents TEXT,
			PRIMARY KEY (chat_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL DEFAULT 0,
			message TEXT NOT NULL,
			trigger_at INTEGER NOT NULL,
			repeat_cron TEXT,
			created_at INTEGER NOT NULL,
			last_triggered_at INTEGER,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(active, trigger_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_message ON users(last_message_date)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("archive: init schema: %w", err)
		}
	}
	return nil
}

// AddMessage upserts the author into users (creating on first sight,
// bumping message_count and last_message_date otherwise) and inserts or
// replaces the message row.
func (s *Store) AddMessage(ctx context.Context, msg Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: add message: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE user_id = ?`, msg.UserID).Scan(new(int))
	exists = err == nil

	if !exists {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (user_id, username, first_name, join_date, last_message_date, message_count, status)
			 VALUES (?, ?, ?, ?, ?, 1, ?)`,
			msg.UserID, msg.Username, msg.Username, msg.Timestamp, msg.Timestamp, StatusMember,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET username = ?, message_count = message_count + 1, last_message_date = ?
			 WHERE user_id = ?`,
			msg.Username, msg.Timestamp, msg.UserID,
		)
	}
	if err != nil {
		return fmt.Errorf("archive: add message: upsert user: %w", err)
	}

	var replyJSON, docsJSON []byte
	if msg.ReplyTo != nil {
		replyJSON, _ = json.Marshal(msg.ReplyTo)
	}
	if len(msg.Documents) > 0 {
		docsJSON, _ = json.Marshal(msg.Documents)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO messages
		 (chat_id, message_id, user_id, username, timestamp, text, reply_to, voice_transcription, documents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ChatID, msg.MessageID, msg.UserID, msg.Username, msg.Timestamp, msg.Text,
		nullableString(replyJSON), nullableString([]byte(msg.VoiceTranscription)), nullableString(docsJSON),
	)
	if err != nil {
		return fmt.Errorf("archive: add message: insert: %w", err)
	}
	return tx.Commit()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// GetRecentByTokens streams messages in reverse timestamp order,
// accumulating each row's raw content length (text, quoted reply text,
// voice transcription and document texts) until the next row would
// exceed budget*4 characters (4 characters per token), then returns the
// accumulated slice in chronological order. The rendered markup (element
// names, attributes) is not counted, so the formatted payload can exceed
// the budget. The newest row is always returned.
func (s *Store) GetRecentByTokens(ctx context.Context, budget int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, message_id, user_id, username, timestamp, text, reply_to, voice_transcription, documents
		 FROM messages ORDER BY timestamp DESC, message_id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: get recent: %w", err)
	}
	defer rows.Close()

	maxChars := budget * 4
	var total int
	var out []Message
	for rows.Next() {
		m, length, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		if total+length > maxChars && len(out) > 0 {
			break
		}
		total += length
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanMessage(rows *sql.Rows) (Message, int, error) {
	var m Message
	var replyJSON, voice, docsJSON sql.NullString
	if err := rows.Scan(&m.ChatID, &m.MessageID, &m.UserID, &m.Username, &m.Timestamp, &m.Text, &replyJSON, &voice, &docsJSON); err != nil {
		return Message{}, 0, fmt.Errorf("archive: scan message: %w", err)
	}
	length := len(m.Text)
	if replyJSON.Valid {
		var r ReplyTo
		if json.Unmarshal([]byte(replyJSON.String), &r) == nil {
			m.ReplyTo = &r
			length += len(r.Text)
		}
	}
	if voice.Valid {
		m.VoiceTranscription = voice.String
		length += len(voice.String)
	}
	if docsJSON.Valid {
		var docs []Document
		if json.Unmarshal([]byte(docsJSON.String), &docs) == nil {
			m.Documents = docs
			for _, d := range docs {
				length += len(d.Text)
			}
		}
	}
	return m, length, nil
}

// UpsertMember records a membership transition (join, leave, ban/unban)
// independent of message traffic.
func (s *Store) UpsertMember(ctx context.Context, userID int64, username, firstName, joinDate, status string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, first_name, join_date, message_count, status)
		 VALUES (?, ?, ?, ?, 0, ?)
		 ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, status = excluded.status`,
		userID, username, firstName, joinDate, status,
	)
	if err != nil {
		return fmt.Errorf("archive: upsert member: %w", err)
	}
	return nil
}

// UpdateMemberStatus transitions an existing member's status without
// touching username/first_name, for join/leave/ban events that arrive
// without a display name (Telegram membership updates carry only the
// user id in some cases). A user never seen before is inserted bare.
func (s *Store) UpdateMemberStatus(ctx context.Context, userID int64, status, joinDate string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, username, first_name, join_date, message_count, status)
		 VALUES (?, '', '', ?, 0, ?)
		 ON CONFLICT(user_id) DO UPDATE SET status = excluded.status`,
		userID, joinDate, status,
	)
	if err != nil {
		return fmt.Errorf("archive: update member status: %w", err)
	}
	return nil
}

// GetMembers returns members matching filter, capped at limit (0 = no cap).
func (s *Store) GetMembers(ctx context.Context, filter MemberFilter, daysInactive, limit int) ([]Member, error) {
	query := `SELECT user_id, username, first_name, join_date, last_message_date, message_count, status FROM users WHERE 1=1`
	var args []any

	switch filter {
	case FilterActive:
		query += ` AND status = ?`
		args = append(args, StatusMember)
	case FilterLeft:
		query += ` AND status = ?`
		args = append(args, StatusLeft)
	case FilterBanned:
		query += ` AND status = ?`
		args = append(args, StatusBanned)
	case FilterNeverPosted:
		query += ` AND message_count = 0`
	case FilterInactive:
		if daysInactive <= 0 {
			daysInactive = 30
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -daysInactive).Format("2006-01-02 15:04")
		query += ` AND (last_message_date IS NULL OR last_message_date < ?)`
		args = append(args, cutoff)
	case FilterAll, "":
		// no extra predicate
	}

	query += ` ORDER BY message_count DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: get members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var lastMsg sql.NullString
		if err := rows.Scan(&m.UserID, &m.Username, &m.FirstName, &m.JoinDate, &lastMsg, &m.MessageCount, &m.Status); err != nil {
			return nil, fmt.Errorf("archive: scan member: %w", err)
		}
		if lastMsg.Valid {
			m.LastMessageDate = &lastMsg.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// forbiddenTokens guards the read-only query surface.
var forbiddenTokens = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE", "ATTACH", "DETACH"}

// ErrUnsafeQuery is returned when a query(sql) call fails the read-only check.
var ErrUnsafeQuery = fmt.Errorf("archive: statement must be a read-only SELECT")

// QueryResult is a capped, text-truncated row grid for the query tool.
type QueryResult struct {
	Columns []string
	Rows    [][]string
}

// Query runs a read-only SQL statement and returns up to 100 rows with
// text columns truncated to 100 characters and blobs rendered as
// "<blob N bytes>". sql must begin with SELECT (case-insensitive) and
// must not contain any forbidden DDL/DML token anywhere.
func (s *Store) Query(ctx context.Context, rawSQL string) (*QueryResult, error) {
	trimmed := strings.TrimSpace(rawSQL)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return nil, ErrUnsafeQuery
	}
	for _, tok := range forbiddenTokens {
		if strings.Contains(upper, tok) {
			return nil, ErrUnsafeQuery
		}
	}

	rows, err := s.db.QueryContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("archive: query columns: %w", err)
	}

	result := &QueryResult{Columns: cols}
	count := 0
	for rows.Next() && count < 100 {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("archive: query scan: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			row[i] = formatCell(v)
		}
		result.Rows = append(result.Rows, row)
		count++
	}
	return result, rows.Err()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return fmt.Sprintf("<blob %d bytes>", len(val))
	case string:
		return truncateChars(val, 100)
	default:
		return truncateChars(fmt.Sprintf("%v", val), 100)
	}
}

func truncateChars(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// --- Reminders ---

// AddReminder inserts a new reminder and returns its assigned id.
func (s *Store) AddReminder(ctx context.Context, r Reminder) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (chat_id, user_id, message, trigger_at, repeat_cron, created_at, active)
		 VALUES (?, ?, ?, ?, ?, ?, 1)`,
		r.ChatID, r.UserID, r.Message, r.TriggerAt.Unix(), nullableString([]byte(r.RepeatCron)), time.Now().UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("archive: add reminder: %w", err)
	}
	return res.LastInsertId()
}

// DueReminders returns active reminders whose trigger_at has passed, in
// trigger_at order.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]Reminder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, user_id, message, trigger_at, repeat_cron, created_at, last_triggered_at, active
		 FROM reminders WHERE active = 1 AND trigger_at <= ? ORDER BY trigger_at ASC`,
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// ListReminders returns reminders, optionally filtered to one chat (0 = all).
func (s *Store) ListReminders(ctx context.Context, chatID int64) ([]Reminder, error) {
	var rows *sql.Rows
	var err error
	if chatID != 0 {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, chat_id, user_id, message, trigger_at, repeat_cron, created_at, last_triggered_at, active
			 FROM reminders WHERE chat_id = ? AND active = 1 ORDER BY trigger_at ASC`, chatID)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, chat_id, user_id, message, trigger_at, repeat_cron, created_at, last_triggered_at, active
			 FROM reminders WHERE active = 1 ORDER BY trigger_at ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		var r Reminder
		var triggerAt, createdAt int64
		var lastTriggered sql.NullInt64
		var cron sql.NullString
		var active int
		if err := rows.Scan(&r.ID, &r.ChatID, &r.UserID, &r.Message, &triggerAt, &cron, &createdAt, &lastTriggered, &active); err != nil {
			return nil, fmt.Errorf("archive: scan reminder: %w", err)
		}
		r.TriggerAt = time.Unix(triggerAt, 0).UTC()
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.RepeatCron = cron.String
		r.Active = active != 0
		if lastTriggered.Valid {
			t := time.Unix(lastTriggered.Int64, 0).UTC()
			r.LastTriggeredAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AdvanceReminder sets a recurring reminder's next trigger_at and bumps
// last_triggered_at, leaving it active. RetireReminder marks a one-shot
// reminder fired.
func (s *Store) AdvanceReminder(ctx context.Context, id int64, next time.Time, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET trigger_at = ?, last_triggered_at = ? WHERE id = ?`,
		next.Unix(), firedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("archive: advance reminder: %w", err)
	}
	return nil
}

func (s *Store) RetireReminder(ctx context.Context, id int64, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET active = 0, last_triggered_at = ? WHERE id = ?`,
		firedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("archive: retire reminder: %w", err)
	}
	return nil
}

// CancelReminder deactivates a reminder by id regardless of schedule.
func (s *Store) CancelReminder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive: cancel reminder: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		slog.Warn("cancel_reminder: no active reminder with that id", "id", id)
	}
	return nil
}
