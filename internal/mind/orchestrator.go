package mind

import (
	"context"
	"errors"
	"log"
	"time"
)

// Generator is the text generation collaborator: prompt in, completion out.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// MoodReader exposes the current mood without allowing changes. *MoodScheduler satisfies it.
type MoodReader interface {
	CurrentMood() Mood
}

// ResponseOrchestrator turns one incoming message into one reply.
// It reads the mood but never changes it.
type ResponseOrchestrator struct {
	moods     MoodReader
	assembler *ContextAssembler
	persona   *PersonaTemplate
	generator Generator
	maxTurns  int
}

func NewResponseOrchestrator(moods MoodReader, assembler *ContextAssembler, persona *PersonaTemplate, generator Generator, maxTurns int) *ResponseOrchestrator {
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &ResponseOrchestrator{
		moods:     moods,
		assembler: assembler,
		persona:   persona,
		generator: generator,
		maxTurns:  maxTurns,
	}
}

// GenerateReply builds the prompt, calls the generator once and cleans the result.
// Generator failures come back as *GenerationError; retrying is up to the caller.
func (o *ResponseOrchestrator) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	pc := PromptContext{
		Mood:       o.moods.CurrentMood(),
		Turns:      o.assembler.Assemble(ctx, req.ConversationID, o.maxTurns),
		Message:    req.Message,
		Privileged: req.IsPrivilegedSender,
		Group:      req.IsGroupConversation,
	}
	prompt := o.persona.Build(pc)
	LogPrompt("reply", prompt, map[string]string{
		"conv":   req.ConversationID,
		"sender": req.SenderID,
		"mood":   pc.Mood.Name,
	})

	if o.generator == nil {
		return "", &GenerationError{Err: errors.New("no generator configured")}
	}
	start := time.Now()
	raw, err := o.generator.Complete(ctx, prompt)
	if err != nil {
		log.Printf("[MIND] action=reply conv=%s generate failed after %s: %v", req.ConversationID, time.Since(start).Round(time.Millisecond), err)
		return "", &GenerationError{Err: err}
	}

	reply := CleanReply(raw)
	log.Printf("[MIND] action=reply conv=%s took=%s raw_len=%d reply: %s",
		req.ConversationID, time.Since(start).Round(time.Millisecond), len(raw), truncateForLog(reply, 120))
	return reply, nil
}
