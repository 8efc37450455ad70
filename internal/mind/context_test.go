package mind

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

type fakeTurnSource struct {
	turns  []ConversationTurn
	err    error
	calls  int
	limits []int
}

func (f *fakeTurnSource) RecentTurns(ctx context.Context, conversationID string, limit int) ([]ConversationTurn, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.turns) {
		return f.turns[:limit], nil
	}
	return f.turns, nil
}

// newestFirst builds n turns one second apart, newest first.
func newestFirst(n int) []ConversationTurn {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]ConversationTurn, n)
	for i := 0; i < n; i++ {
		out[i] = ConversationTurn{
			Sender:    "u",
			Text:      string(rune('a' + n - 1 - i)),
			Timestamp: base.Add(time.Duration(n-1-i) * time.Second),
			IsAgent:   i%2 == 0,
		}
	}
	return out
}

func TestAssemble_ZeroTurnsNeverHitsStore(t *testing.T) {
	src := &fakeTurnSource{turns: newestFirst(5)}
	a := NewContextAssembler(src)

	got := a.Assemble(context.Background(), "c1", 0)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if src.calls != 0 {
		t.Fatalf("store should not be queried for maxTurns=0")
	}
}

func TestAssemble_ReversesNewestFirst(t *testing.T) {
	stored := newestFirst(4)
	a := NewContextAssembler(&fakeTurnSource{turns: stored})

	got := a.Assemble(context.Background(), "c1", 4)
	if len(got) != len(stored) {
		t.Fatalf("expected %d turns, got %d", len(stored), len(got))
	}
	for i := range got {
		if got[i] != stored[len(stored)-1-i] {
			t.Fatalf("turn %d: got %+v, want %+v", i, got[i], stored[len(stored)-1-i])
		}
	}
}

func TestAssemble_PassesLimitToStore(t *testing.T) {
	src := &fakeTurnSource{turns: newestFirst(10)}
	got := NewContextAssembler(src).Assemble(context.Background(), "c1", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(got))
	}
	if src.limits[0] != 3 {
		t.Fatalf("expected limit 3, got %d", src.limits[0])
	}
	if got[2].Text != "j" {
		t.Fatalf("expected newest turn last, got %q", got[2].Text)
	}
}

type greedySource struct{ turns []ConversationTurn }

func (g greedySource) RecentTurns(ctx context.Context, conversationID string, limit int) ([]ConversationTurn, error) {
	return g.turns, nil
}

func TestAssemble_BoundedAndOrderedForAnyStoreOrder(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for n := 0; n <= 8; n++ {
		for trial := 0; trial < 20; trial++ {
			turns := newestFirst(6)
			rnd.Shuffle(len(turns), func(i, j int) { turns[i], turns[j] = turns[j], turns[i] })

			got := NewContextAssembler(greedySource{turns: turns}).Assemble(context.Background(), "c", n)
			if len(got) > n {
				t.Fatalf("n=%d: got %d turns", n, len(got))
			}
			for i := 1; i < len(got); i++ {
				if got[i].Timestamp.Before(got[i-1].Timestamp) {
					t.Fatalf("n=%d: timestamps out of order at %d", n, i)
				}
			}
			if n > 0 && n <= 6 && got[len(got)-1].Text != "f" {
				t.Fatalf("n=%d: expected most recent turn kept, got %q", n, got[len(got)-1].Text)
			}
		}
	}
}

func TestAssemble_StoreFailureYieldsEmpty(t *testing.T) {
	a := NewContextAssembler(&fakeTurnSource{err: errors.New("connection refused")})
	got := a.Assemble(context.Background(), "c1", 5)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty transcript, got %#v", got)
	}
}

func TestAssemble_NegativeTreatedAsZero(t *testing.T) {
	src := &fakeTurnSource{turns: newestFirst(2)}
	if got := NewContextAssembler(src).Assemble(context.Background(), "c1", -1); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %d turns", len(got))
	}
}
