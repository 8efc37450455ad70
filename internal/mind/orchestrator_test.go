package mind

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (g *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type fixedMood struct{ mood Mood }

func (f fixedMood) CurrentMood() Mood { return f.mood }

func newTestOrchestrator(gen Generator, turns []ConversationTurn, maxTurns int) *ResponseOrchestrator {
	return NewResponseOrchestrator(
		fixedMood{Mood{Name: "tired", Description: "sleepy and slow"}},
		NewContextAssembler(&fakeTurnSource{turns: turns}),
		NewPersonaTemplate("", "Miyabi"),
		gen,
		maxTurns,
	)
}

func TestGenerateReply_PromptCarriesMoodTranscriptAndMessage(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	turns := []ConversationTurn{ // newest first, as the store returns them
		{Sender: "Miyabi", Text: "ohayo~", Timestamp: base.Add(time.Minute), IsAgent: true},
		{Sender: "kenji", Text: "good morning", Timestamp: base},
	}
	gen := &fakeGenerator{reply: "mm... hi"}
	o := newTestOrchestrator(gen, turns, 5)

	reply, err := o.GenerateReply(context.Background(), ReplyRequest{
		Message:        "are you awake?",
		ConversationID: "c1",
		SenderID:       "kenji",
	})
	if err != nil {
		t.Fatalf("GenerateReply error: %v", err)
	}
	if reply != "mm... hi" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if len(gen.prompts) != 1 {
		t.Fatalf("expected one generator call, got %d", len(gen.prompts))
	}
	p := gen.prompts[0]
	for _, want := range []string{
		"Current mood: tired (sleepy and slow)",
		"User: good morning\nMiyabi: ohayo~",
		"Current message from the user in a private chat: are you awake?",
		"You are Miyabi",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if !strings.HasSuffix(p, "Reply:") {
		t.Fatalf("prompt should end with the reply cue")
	}
}

func TestGenerateReply_PrivilegedGroupFraming(t *testing.T) {
	gen := &fakeGenerator{reply: "yes mom!"}
	o := newTestOrchestrator(gen, nil, 5)

	_, err := o.GenerateReply(context.Background(), ReplyRequest{
		Message:             "behave",
		ConversationID:      "g1",
		IsPrivilegedSender:  true,
		IsGroupConversation: true,
	})
	if err != nil {
		t.Fatalf("GenerateReply error: %v", err)
	}
	if !strings.Contains(gen.prompts[0], "Current message from your mother and creator in a group chat: behave") {
		t.Fatalf("privileged framing missing:\n%s", gen.prompts[0])
	}
}

func TestGenerateReply_GeneratorFailureIsGenerationError(t *testing.T) {
	cause := errors.New("503 upstream")
	o := newTestOrchestrator(&fakeGenerator{err: cause}, nil, 5)

	reply, err := o.GenerateReply(context.Background(), ReplyRequest{Message: "hi", ConversationID: "c1"})
	if reply != "" {
		t.Fatalf("expected empty reply on failure, got %q", reply)
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if !errors.Is(err, cause) || !errors.Is(err, ErrGeneration) {
		t.Fatalf("GenerationError should wrap cause and match ErrGeneration: %v", err)
	}
}

func TestGenerateReply_WhitespaceCompletionFallsBack(t *testing.T) {
	o := newTestOrchestrator(&fakeGenerator{reply: " \n\t "}, nil, 5)
	reply, err := o.GenerateReply(context.Background(), ReplyRequest{Message: "hi", ConversationID: "c1"})
	if err != nil {
		t.Fatalf("GenerateReply error: %v", err)
	}
	if reply != FallbackReply {
		t.Fatalf("expected fallback, got %q", reply)
	}
}

func TestGenerateReply_DoesNotTouchMood(t *testing.T) {
	s, _, events := newTestScheduler(t)
	before := s.State()
	o := NewResponseOrchestrator(s, NewContextAssembler(nil), NewPersonaTemplate("", "Miyabi"), &fakeGenerator{reply: "ok"}, 3)

	if _, err := o.GenerateReply(context.Background(), ReplyRequest{Message: "hi", ConversationID: "c1"}); err != nil {
		t.Fatalf("GenerateReply error: %v", err)
	}
	if s.State() != before || len(events.all()) != 0 {
		t.Fatalf("reply generation changed the mood")
	}
}

func TestGenerateReply_ZeroContextTurns(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	src := &fakeTurnSource{turns: newestFirst(3)}
	o := NewResponseOrchestrator(fixedMood{Mood{Name: "happy"}}, NewContextAssembler(src), NewPersonaTemplate("{context}|", "Miyabi"), gen, 0)

	if _, err := o.GenerateReply(context.Background(), ReplyRequest{Message: "hi", ConversationID: "c1"}); err != nil {
		t.Fatalf("GenerateReply error: %v", err)
	}
	if src.calls != 0 {
		t.Fatalf("store queried with zero context turns")
	}
	if !strings.HasPrefix(gen.prompts[0], "|") {
		t.Fatalf("expected empty context, got prompt %q", gen.prompts[0])
	}
}
