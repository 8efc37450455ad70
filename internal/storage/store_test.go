package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

type backendCase struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backendCase {
	return []backendCase{
		{"sqlite", func(t *testing.T) Store {
			s, err := Open(BackendSQLite, filepath.Join(t.TempDir(), "test.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"json", func(t *testing.T) Store {
			s, err := Open(BackendJSON, filepath.Join(t.TempDir(), "test.json"))
			if err != nil {
				t.Fatalf("open json: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open("redis", "x"); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestStore_RecentTurnsNewestFirst(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t)
			ctx := context.Background()
			base := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

			for i, text := range []string{"one", "two", "three", "four"} {
				m := Message{
					ID:             "m" + text,
					ConversationID: "chat-1",
					Sender:         "u1",
					Text:           text,
					At:             base.Add(time.Duration(i) * time.Minute),
					IsAgent:        i%2 == 1,
				}
				if err := s.RecordMessage(ctx, m); err != nil {
					t.Fatalf("RecordMessage(%s): %v", text, err)
				}
			}
			if err := s.RecordMessage(ctx, Message{ID: "other", ConversationID: "chat-2", Text: "elsewhere", At: base}); err != nil {
				t.Fatalf("RecordMessage(other): %v", err)
			}

			turns, err := s.RecentTurns(ctx, "chat-1", 3)
			if err != nil {
				t.Fatalf("RecentTurns: %v", err)
			}
			if len(turns) != 3 {
				t.Fatalf("expected 3 turns, got %d", len(turns))
			}
			want := []string{"four", "three", "two"}
			for i, w := range want {
				if turns[i].Text != w {
					t.Fatalf("turn %d: expected %q, got %q", i, w, turns[i].Text)
				}
			}
			if !turns[0].IsAgent || turns[1].IsAgent {
				t.Fatalf("agent flags not preserved: %+v", turns)
			}
			if !turns[0].Timestamp.Equal(base.Add(3 * time.Minute)) {
				t.Fatalf("timestamp not preserved: %v", turns[0].Timestamp)
			}
		})
	}
}

func TestStore_RecentTurnsZeroLimit(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t)
			turns, err := s.RecentTurns(context.Background(), "nobody", 0)
			if err != nil {
				t.Fatalf("RecentTurns: %v", err)
			}
			if turns == nil || len(turns) != 0 {
				t.Fatalf("expected empty non-nil slice, got %#v", turns)
			}
		})
	}
}

func TestStore_RecordMessageIdempotent(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t)
			ctx := context.Background()
			m := Message{ID: "dup", ConversationID: "c", Sender: "u", Text: "first", At: time.Now()}
			if err := s.RecordMessage(ctx, m); err != nil {
				t.Fatalf("first RecordMessage: %v", err)
			}
			m.Text = "second"
			if err := s.RecordMessage(ctx, m); err != nil {
				t.Fatalf("second RecordMessage: %v", err)
			}
			turns, err := s.RecentTurns(ctx, "c", 10)
			if err != nil {
				t.Fatalf("RecentTurns: %v", err)
			}
			if len(turns) != 1 || turns[0].Text != "first" {
				t.Fatalf("expected only the first copy, got %+v", turns)
			}
		})
	}
}

func TestStore_RecordMessageRequiresIDs(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t)
			if err := s.RecordMessage(context.Background(), Message{Text: "x"}); err == nil {
				t.Fatalf("expected error for missing IDs")
			}
		})
	}
}

func TestStore_ConversationActivity(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t)
			ctx := context.Background()

			if _, err := s.Conversation(ctx, "c1"); err == nil {
				t.Fatalf("expected not-found error before any activity")
			}

			t1 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
			t2 := t1.Add(5 * time.Minute)
			if err := s.RecordConversationActivity(ctx, "c1", t1); err != nil {
				t.Fatalf("activity 1: %v", err)
			}
			if err := s.RecordConversationActivity(ctx, "c1", t2); err != nil {
				t.Fatalf("activity 2: %v", err)
			}

			c, err := s.Conversation(ctx, "c1")
			if err != nil {
				t.Fatalf("Conversation: %v", err)
			}
			if c.ID != "c1" || c.MessageCount != 2 || !c.LastActivity.Equal(t2) {
				t.Fatalf("unexpected conversation: %+v", c)
			}
		})
	}
}

func TestStore_MoodHistory(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			s := bc.open(t)
			ctx := context.Background()

			if err := s.SaveMoodChange(ctx, "sad", 1000); err != nil {
				t.Fatalf("save sad: %v", err)
			}
			if err := s.SaveMoodChange(ctx, "angry", -5); err != nil {
				t.Fatalf("save angry: %v", err)
			}
			if err := s.SaveMoodChange(ctx, "", 10); err == nil {
				t.Fatalf("expected error for empty mood name")
			}

			hist, err := s.MoodHistory(ctx, 10)
			if err != nil {
				t.Fatalf("MoodHistory: %v", err)
			}
			if len(hist) != 2 {
				t.Fatalf("expected 2 entries, got %d", len(hist))
			}
			if hist[0].MoodName != "angry" || hist[0].DurationMs != 0 {
				t.Fatalf("unexpected newest entry: %+v", hist[0])
			}
			if hist[1].MoodName != "sad" || hist[1].DurationMs != 1000 {
				t.Fatalf("unexpected oldest entry: %+v", hist[1])
			}

			one, err := s.MoodHistory(ctx, 1)
			if err != nil {
				t.Fatalf("MoodHistory(1): %v", err)
			}
			if len(one) != 1 || one[0].MoodName != "angry" {
				t.Fatalf("unexpected limited history: %+v", one)
			}
		})
	}
}
