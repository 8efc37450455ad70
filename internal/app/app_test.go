package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/keshon/server-miyabi/internal/chat"
	"github.com/keshon/server-miyabi/internal/config"
)

type scriptedGenerator struct {
	prompts []string
	reply   string
}

func (g *scriptedGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, nil
}

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		StorageBackend: backend,
		StoragePath:    filepath.Join(t.TempDir(), "store."+backend),
		DefaultMood:    "happy",
		MoodMinMs:      int64(time.Hour / time.Millisecond),
		MoodMaxMs:      int64(2 * time.Hour / time.Millisecond),
		MaxTurns:       5,
		AgentName:      "Miyabi",
		CreatorID:      "boss",
		ReplyRetries:   1,
	}
}

func TestApp_EndToEnd(t *testing.T) {
	for _, backend := range []string{"sqlite", "json"} {
		t.Run(backend, func(t *testing.T) {
			gen := &scriptedGenerator{reply: "*smiles* Hello!\nignored second line"}
			a, err := New(testConfig(t, backend), gen)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			a.Start()
			ctx := context.Background()

			got, err := a.Handler.Handle(ctx, chat.Inbound{ID: "1", ConversationID: "dm", SenderID: "u", SenderName: "alice", Text: "hi there"})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if got != "Hello!" {
				t.Fatalf("unexpected reply %q", got)
			}

			if _, err := a.Handler.Handle(ctx, chat.Inbound{ID: "2", ConversationID: "dm", SenderID: "u", Text: "again"}); err != nil {
				t.Fatalf("second Handle: %v", err)
			}
			if len(gen.prompts) != 2 {
				t.Fatalf("expected 2 prompts, got %d", len(gen.prompts))
			}
			second := gen.prompts[1]
			if !strings.Contains(second, "User: hi there") || !strings.Contains(second, "Miyabi: Hello!") {
				t.Fatalf("second prompt lacks the first exchange:\n%s", second)
			}

			if got, _ := a.Handler.Handle(ctx, chat.Inbound{ConversationID: "dm", SenderID: "boss", Text: "!mood sad"}); got != "Mood is now sad." {
				t.Fatalf("unexpected command reply %q", got)
			}
			a.Jobs.Wait()
			hist, err := a.Store.MoodHistory(ctx, 5)
			if err != nil {
				t.Fatalf("MoodHistory: %v", err)
			}
			if len(hist) != 1 || hist[0].MoodName != "sad" {
				t.Fatalf("mood change not persisted: %+v", hist)
			}

			if err := a.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
		})
	}
}

func TestApp_MissingPersonaFile(t *testing.T) {
	cfg := testConfig(t, "json")
	cfg.PersonaPath = filepath.Join(t.TempDir(), "missing.md")
	if _, err := New(cfg, &scriptedGenerator{}); err == nil {
		t.Fatalf("expected error for missing persona file")
	}
}

func TestApp_RequiresAPIKeyWithoutGenerator(t *testing.T) {
	if _, err := New(testConfig(t, "json"), nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}
