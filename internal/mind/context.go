package mind

import (
	"context"
	"log"
	"sort"
)

// TurnSource returns up to limit turns of a conversation, most recent first.
type TurnSource interface {
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]ConversationTurn, error)
}

// ContextAssembler builds the bounded chronological transcript for a conversation.
// Context is best-effort: store failures yield an empty transcript, never an error.
type ContextAssembler struct {
	source TurnSource
}

func NewContextAssembler(source TurnSource) *ContextAssembler {
	return &ContextAssembler{source: source}
}

// Assemble returns at most maxTurns turns, oldest first, with non-decreasing timestamps.
func (a *ContextAssembler) Assemble(ctx context.Context, conversationID string, maxTurns int) []ConversationTurn {
	if maxTurns < 0 {
		log.Printf("[MIND] action=context conv=%s negative maxTurns=%d, using 0", conversationID, maxTurns)
		maxTurns = 0
	}
	if maxTurns == 0 || a == nil || a.source == nil {
		return []ConversationTurn{}
	}

	recent, err := a.source.RecentTurns(ctx, conversationID, maxTurns)
	if err != nil {
		log.Printf("[MIND] action=context conv=%s fetch failed: %v", conversationID, err)
		return []ConversationTurn{}
	}

	out := make([]ConversationTurn, len(recent))
	for i, t := range recent {
		out[len(recent)-1-i] = t
	}
	// stores are expected to return newest first; the sort covers those that don't
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if len(out) > maxTurns {
		out = out[len(out)-maxTurns:]
	}
	return out
}
