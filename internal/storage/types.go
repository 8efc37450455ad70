package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/keshon/server-miyabi/internal/mind"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Message is one chat message as recorded after an exchange.
type Message struct {
	ID             string    `json:"message_id"`
	ConversationID string    `json:"chat_id"`
	Sender         string    `json:"sender"`
	Text           string    `json:"message"`
	IsGroup        bool      `json:"is_group"`
	IsAgent        bool      `json:"is_bot"`
	At             time.Time `json:"timestamp"`
}

// MoodChange is one row of mood history.
type MoodChange struct {
	MoodName   string    `json:"mood_name"`
	DurationMs int64     `json:"duration"`
	At         time.Time `json:"timestamp"`
}

// Conversation tracks activity per conversation.
type Conversation struct {
	ID           string    `json:"chat_id"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
}

// Store is the persistence surface used by the mood scheduler, the context
// assembler and the chat handler.
type Store interface {
	SaveMoodChange(ctx context.Context, moodName string, durationHeldMs int64) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]mind.ConversationTurn, error)
	RecordMessage(ctx context.Context, m Message) error
	RecordConversationActivity(ctx context.Context, conversationID string, at time.Time) error
	Conversation(ctx context.Context, conversationID string) (Conversation, error)
	MoodHistory(ctx context.Context, limit int) ([]MoodChange, error)
	Close() error
}

// Open creates the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return OpenSQL(path)
	case BackendJSON:
		return OpenFile(path)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

func turnFromMessage(m Message) mind.ConversationTurn {
	return mind.ConversationTurn{
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: m.At,
		IsAgent:   m.IsAgent,
	}
}
