package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keshon/server-miyabi/internal/mind"
)

// SQLStore provides SQLite-backed persistence for messages, conversations and mood history.
type SQLStore struct {
	db *sql.DB
}

// OpenSQL opens (creating if needed) the database file at path and migrates it.
func OpenSQL(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("open sqlite: path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("open sqlite: create directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; mood saves run from background jobs
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQL(db)
}

// NewSQL returns a SQLStore bound to an existing, migrated database handle.
func NewSQL(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveMoodChange appends a mood history row.
func (s *SQLStore) SaveMoodChange(ctx context.Context, moodName string, durationHeldMs int64) error {
	if moodName == "" {
		return fmt.Errorf("save mood change: mood name is empty")
	}
	if durationHeldMs < 0 {
		durationHeldMs = 0
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mood_history (mood_name, duration, timestamp) VALUES (?, ?, ?)`,
		moodName, durationHeldMs, now)
	if err != nil {
		return fmt.Errorf("save mood change: insert: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit messages of a conversation, most recent first.
func (s *SQLStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]mind.ConversationTurn, error) {
	if limit <= 0 {
		return []mind.ConversationTurn{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, message, timestamp, is_bot
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: query: %w", err)
	}
	defer rows.Close()

	turns := make([]mind.ConversationTurn, 0, limit)
	for rows.Next() {
		var t mind.ConversationTurn
		var ts string
		if err := rows.Scan(&t.Sender, &t.Text, &ts, &t.IsAgent); err != nil {
			return nil, fmt.Errorf("recent turns: scan: %w", err)
		}
		t.Timestamp, err = time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("recent turns: parse timestamp: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent turns: rows: %w", err)
	}
	return turns, nil
}

// RecordMessage stores a message. A message ID seen before is ignored.
func (s *SQLStore) RecordMessage(ctx context.Context, m Message) error {
	if m.ID == "" || m.ConversationID == "" {
		return fmt.Errorf("record message: message and conversation IDs are required")
	}
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (message_id, chat_id, sender, message, is_group, is_bot, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`,
		m.ID, m.ConversationID, m.Sender, m.Text, m.IsGroup, m.IsAgent,
		at.UTC().Format(timeLayout), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record message: insert: %w", err)
	}
	return nil
}

// RecordConversationActivity bumps the conversation's last activity and message count.
func (s *SQLStore) RecordConversationActivity(ctx context.Context, conversationID string, at time.Time) error {
	if conversationID == "" {
		return fmt.Errorf("record conversation activity: conversation ID is empty")
	}
	ts := at.UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (chat_id, last_activity, message_count, created_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (chat_id) DO UPDATE SET
			last_activity = excluded.last_activity,
			message_count = conversations.message_count + 1`,
		conversationID, ts, ts)
	if err != nil {
		return fmt.Errorf("record conversation activity: upsert: %w", err)
	}
	return nil
}

// Conversation returns activity stats for one conversation.
func (s *SQLStore) Conversation(ctx context.Context, conversationID string) (Conversation, error) {
	var c Conversation
	var last string
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, last_activity, message_count FROM conversations WHERE chat_id = ?`,
		conversationID).Scan(&c.ID, &last, &c.MessageCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, fmt.Errorf("conversation %s: not found", conversationID)
		}
		return Conversation{}, fmt.Errorf("conversation %s: scan: %w", conversationID, err)
	}
	c.LastActivity, err = time.Parse(timeLayout, last)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: parse last_activity: %w", conversationID, err)
	}
	return c, nil
}

// MoodHistory returns the latest limit mood changes, most recent first.
func (s *SQLStore) MoodHistory(ctx context.Context, limit int) ([]MoodChange, error) {
	if limit <= 0 {
		return []MoodChange{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT mood_name, duration, timestamp FROM mood_history ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("mood history: query: %w", err)
	}
	defer rows.Close()

	out := make([]MoodChange, 0, limit)
	for rows.Next() {
		var mc MoodChange
		var ts string
		if err := rows.Scan(&mc.MoodName, &mc.DurationMs, &ts); err != nil {
			return nil, fmt.Errorf("mood history: scan: %w", err)
		}
		if mc.At, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("mood history: parse timestamp: %w", err)
		}
		out = append(out, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mood history: rows: %w", err)
	}
	return out, nil
}
