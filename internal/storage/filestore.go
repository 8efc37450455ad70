package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keshon/datastore"

	"github.com/keshon/server-miyabi/internal/mind"
)

const (
	messageHistoryLimit int = 200
	moodHistoryLimit    int = 500

	moodHistoryKey     = "mood_history"
	conversationPrefix = "conv:"
)

// FileStore keeps everything in one JSON file through datastore.
type FileStore struct {
	ds *datastore.DataStore
	mu sync.Mutex // serializes read-modify-write of records
}

type conversationRecord struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

// OpenFile opens (creating if needed) the JSON datastore at path.
func OpenFile(path string) (*FileStore, error) {
	ds, err := datastore.New(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{ds: ds}, nil
}

func (s *FileStore) Close() error {
	return s.ds.Close()
}

// decode converts a datastore value (typed after Add, map after reload) into out.
func decode(data any, out any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshalling data: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("error unmarshalling data: %w", err)
	}
	return nil
}

func (s *FileStore) getConversation(conversationID string) (*conversationRecord, error) {
	data, exists := s.ds.Get(conversationPrefix + conversationID)
	if !exists {
		return &conversationRecord{Conversation: Conversation{ID: conversationID}}, nil
	}
	var rec conversationRecord
	if err := decode(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *FileStore) getMoodHistory() ([]MoodChange, error) {
	data, exists := s.ds.Get(moodHistoryKey)
	if !exists {
		return []MoodChange{}, nil
	}
	var list []MoodChange
	if err := decode(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *FileStore) SaveMoodChange(ctx context.Context, moodName string, durationHeldMs int64) error {
	if moodName == "" {
		return fmt.Errorf("save mood change: mood name is empty")
	}
	if durationHeldMs < 0 {
		durationHeldMs = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.getMoodHistory()
	if err != nil {
		return fmt.Errorf("save mood change: %w", err)
	}
	list = append(list, MoodChange{MoodName: moodName, DurationMs: durationHeldMs, At: time.Now().UTC()})
	if len(list) > moodHistoryLimit {
		list = list[len(list)-moodHistoryLimit:]
	}
	s.ds.Add(moodHistoryKey, list)
	return nil
}

func (s *FileStore) RecentTurns(ctx context.Context, conversationID string, limit int) ([]mind.ConversationTurn, error) {
	if limit <= 0 {
		return []mind.ConversationTurn{}, nil
	}
	s.mu.Lock()
	rec, err := s.getConversation(conversationID)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}

	// newest insertion first so equal timestamps keep arrival order
	msgs := make([]Message, 0, len(rec.Messages))
	for i := len(rec.Messages) - 1; i >= 0; i-- {
		msgs = append(msgs, rec.Messages[i])
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].At.After(msgs[j].At) })
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	turns := make([]mind.ConversationTurn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, turnFromMessage(m))
	}
	return turns, nil
}

func (s *FileStore) RecordMessage(ctx context.Context, m Message) error {
	if m.ID == "" || m.ConversationID == "" {
		return fmt.Errorf("record message: message and conversation IDs are required")
	}
	if m.At.IsZero() {
		m.At = time.Now()
	}
	m.At = m.At.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getConversation(m.ConversationID)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	for _, existing := range rec.Messages {
		if existing.ID == m.ID {
			return nil
		}
	}
	rec.Messages = append(rec.Messages, m)
	if len(rec.Messages) > messageHistoryLimit {
		rec.Messages = rec.Messages[len(rec.Messages)-messageHistoryLimit:]
	}
	s.ds.Add(conversationPrefix+m.ConversationID, rec)
	return nil
}

func (s *FileStore) RecordConversationActivity(ctx context.Context, conversationID string, at time.Time) error {
	if conversationID == "" {
		return fmt.Errorf("record conversation activity: conversation ID is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.getConversation(conversationID)
	if err != nil {
		return fmt.Errorf("record conversation activity: %w", err)
	}
	rec.Conversation.ID = conversationID
	rec.Conversation.LastActivity = at.UTC()
	rec.Conversation.MessageCount++
	s.ds.Add(conversationPrefix+conversationID, rec)
	return nil
}

func (s *FileStore) Conversation(ctx context.Context, conversationID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.ds.Get(conversationPrefix + conversationID); !exists {
		return Conversation{}, fmt.Errorf("conversation %s: not found", conversationID)
	}
	rec, err := s.getConversation(conversationID)
	if err != nil {
		return Conversation{}, fmt.Errorf("conversation %s: %w", conversationID, err)
	}
	return rec.Conversation, nil
}

func (s *FileStore) MoodHistory(ctx context.Context, limit int) ([]MoodChange, error) {
	if limit <= 0 {
		return []MoodChange{}, nil
	}
	s.mu.Lock()
	list, err := s.getMoodHistory()
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("mood history: %w", err)
	}
	out := make([]MoodChange, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
