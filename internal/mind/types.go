package mind

import "time"

// Mood is one immutable catalog entry. Name is the unique key.
type Mood struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight,omitempty"` // selection bias for automatic changes, <= 0 means 1
}

// MoodState is the active mood and when it became active.
type MoodState struct {
	Current     Mood      `json:"current"`
	ActivatedAt time.Time `json:"activated_at"`
}

// ConversationTurn is one stored message as seen by the context assembler.
type ConversationTurn struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsAgent   bool      `json:"is_agent"`
}

// MoodTransitionEvent is emitted once per effective mood change.
type MoodTransitionEvent struct {
	Previous     Mood
	Next         Mood
	DurationHeld time.Duration
	At           time.Time
	Automatic    bool
}

// ReplyRequest is one incoming message that needs an answer.
type ReplyRequest struct {
	Message             string
	ConversationID      string
	SenderID            string
	IsPrivilegedSender  bool
	IsGroupConversation bool
}

// PromptContext lives for a single reply generation and is never stored.
type PromptContext struct {
	Mood       Mood
	Turns      []ConversationTurn
	Message    string
	Privileged bool
	Group      bool
}
