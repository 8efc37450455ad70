package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/keshon/server-miyabi/internal/mind"
	"github.com/keshon/server-miyabi/internal/storage"
	"github.com/keshon/server-miyabi/pkg/retrylimit"
)

// FallbackApology is sent when every generation attempt failed.
const FallbackApology = "Sorry, my thoughts got tangled... try again in a moment?"

const (
	moodCommand      = "!mood"
	historyLimit     = 5
	recordTimeout    = 5 * time.Second
	replyIDSuffix    = ":reply"
	defaultRetryWait = 500 * time.Millisecond
)

// Inbound is one message delivered by a transport.
type Inbound struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Text           string
	IsGroup        bool
	Mentioned      bool // transport says the agent was mentioned
	At             time.Time
}

// Replier produces replies; *mind.ResponseOrchestrator satisfies it.
type Replier interface {
	GenerateReply(ctx context.Context, req mind.ReplyRequest) (string, error)
}

// MoodController is the slice of the mood scheduler the creator commands use.
type MoodController interface {
	State() mind.MoodState
	RequestTransition(name string) error
	Catalog() *mind.Catalog
}

// Recorder persists exchanges and serves mood history.
type Recorder interface {
	RecordMessage(ctx context.Context, m storage.Message) error
	RecordConversationActivity(ctx context.Context, conversationID string, at time.Time) error
	MoodHistory(ctx context.Context, limit int) ([]storage.MoodChange, error)
}

// Options configures a Handler.
type Options struct {
	AgentName string
	CreatorID string
	Retries   int           // extra attempts after a failed generation
	RetryWait time.Duration // first backoff between attempts
	Limiter   *ReplyLimiter
	Now       func() time.Time
}

// Handler decides whether to answer an inbound message and produces the answer.
type Handler struct {
	replier  Replier
	moods    MoodController
	recorder Recorder
	opts     Options
	nameRe   *regexp.Regexp
	locks    *convLocks
}

// NewHandler wires a handler. recorder may be nil.
func NewHandler(replier Replier, moods MoodController, recorder Recorder, opts Options) (*Handler, error) {
	if replier == nil {
		return nil, fmt.Errorf("chat: replier is nil")
	}
	if moods == nil {
		return nil, fmt.Errorf("chat: mood controller is nil")
	}
	name := strings.TrimSpace(opts.AgentName)
	if name == "" {
		return nil, fmt.Errorf("chat: agent name is empty")
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		replier:  replier,
		moods:    moods,
		recorder: recorder,
		opts:     opts,
		nameRe:   regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])@?` + regexp.QuoteMeta(name) + `($|[^\p{L}\p{N}_])`),
		locks:    newConvLocks(),
	}, nil
}

// ShouldRespond reports whether msg is addressed to the agent. Direct
// conversations always are; group messages need a mention or the agent's
// name as a word.
func (h *Handler) ShouldRespond(msg Inbound, isGroup bool) bool {
	if !isGroup {
		return true
	}
	return msg.Mentioned || h.nameRe.MatchString(msg.Text)
}

// Handle processes one inbound message and returns the text to send back.
// An empty string means stay silent.
func (h *Handler) Handle(ctx context.Context, in Inbound) (string, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", nil
	}
	in.Text = text
	if in.At.IsZero() {
		in.At = h.opts.Now()
	}
	privileged := h.opts.CreatorID != "" && in.SenderID == h.opts.CreatorID

	if privileged && isMoodCommand(text) {
		return h.moodCommand(ctx, strings.TrimSpace(text[len(moodCommand):])), nil
	}
	if !h.ShouldRespond(in, in.IsGroup) {
		return "", nil
	}

	unlock := h.locks.lock(in.ConversationID)
	defer unlock()

	// Checked under the lock so a queued message sees the reply recorded before it.
	if !h.opts.Limiter.Allow(in.ConversationID, h.opts.Now()) {
		log.Printf("[CHAT] action=throttled chat=%s sender=%s", in.ConversationID, in.SenderID)
		return "", nil
	}

	log.Printf("[CHAT] action=incoming chat=%s sender=%s group=%t privileged=%t len=%d",
		in.ConversationID, in.SenderID, in.IsGroup, privileged, len(text))

	req := mind.ReplyRequest{
		Message:             text,
		ConversationID:      in.ConversationID,
		SenderID:            in.SenderID,
		IsPrivilegedSender:  privileged,
		IsGroupConversation: in.IsGroup,
	}

	var reply string
	policy := retrylimit.Policy{
		Attempts:     h.opts.Retries + 1,
		InitialDelay: h.opts.RetryWait,
		Jitter:       true,
		Retryable:    func(err error) bool { return errors.Is(err, mind.ErrGeneration) },
	}
	err := retrylimit.Do(ctx, policy, nil, func(ctx context.Context) error {
		r, err := h.replier.GenerateReply(ctx, req)
		if err != nil {
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Printf("[ERR] [CHAT] action=reply_failed chat=%s err=%v", in.ConversationID, err)
		reply = FallbackApology
	}

	now := h.opts.Now()
	h.opts.Limiter.Record(in.ConversationID, now)
	h.record(in, reply, now)
	return reply, nil
}

// record stores the incoming message and the reply. Failures are logged.
func (h *Handler) record(in Inbound, reply string, now time.Time) {
	if h.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	sender := in.SenderName
	if sender == "" {
		sender = in.SenderID
	}
	msgs := []storage.Message{
		{ID: in.ID, ConversationID: in.ConversationID, Sender: sender, Text: in.Text, IsGroup: in.IsGroup, At: in.At},
		{ID: in.ID + replyIDSuffix, ConversationID: in.ConversationID, Sender: h.opts.AgentName, Text: reply, IsGroup: in.IsGroup, IsAgent: true, At: now},
	}
	for _, m := range msgs {
		if m.ID == "" || m.ID == replyIDSuffix {
			continue
		}
		if err := h.recorder.RecordMessage(ctx, m); err != nil {
			log.Printf("[ERR] [STORE] action=record_message chat=%s id=%s err=%v", m.ConversationID, m.ID, err)
			continue
		}
		if err := h.recorder.RecordConversationActivity(ctx, m.ConversationID, m.At); err != nil {
			log.Printf("[ERR] [STORE] action=record_activity chat=%s err=%v", m.ConversationID, err)
		}
	}
}

func isMoodCommand(text string) bool {
	if !strings.HasPrefix(strings.ToLower(text), moodCommand) {
		return false
	}
	rest := text[len(moodCommand):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

func (h *Handler) moodCommand(ctx context.Context, arg string) string {
	switch strings.ToLower(arg) {
	case "":
		st := h.moods.State()
		held := h.opts.Now().Sub(st.ActivatedAt).Round(time.Second)
		return fmt.Sprintf("Current mood: %s (%s), for %s.", st.Current.Name, st.Current.Description, held)
	case "history":
		return h.moodHistory(ctx)
	}

	if err := h.moods.RequestTransition(arg); err != nil {
		var unknown *mind.UnknownMoodError
		if errors.As(err, &unknown) {
			return fmt.Sprintf("Unknown mood %q. Known moods: %s.", unknown.Name, strings.Join(h.moods.Catalog().Names(), ", "))
		}
		log.Printf("[ERR] [CHAT] action=mood_command arg=%s err=%v", arg, err)
		return "Could not change mood."
	}
	log.Printf("[CHAT] action=mood_command to=%s", arg)
	return fmt.Sprintf("Mood is now %s.", h.moods.State().Current.Name)
}

func (h *Handler) moodHistory(ctx context.Context) string {
	if h.recorder == nil {
		return "No mood history available."
	}
	hist, err := h.recorder.MoodHistory(ctx, historyLimit)
	if err != nil {
		log.Printf("[ERR] [STORE] action=mood_history err=%v", err)
		return "No mood history available."
	}
	if len(hist) == 0 {
		return "No mood changes yet."
	}
	parts := make([]string, 0, len(hist))
	for _, mc := range hist {
		held := (time.Duration(mc.DurationMs) * time.Millisecond).Round(time.Second)
		parts = append(parts, fmt.Sprintf("%s after %s (%s)", mc.MoodName, held, mc.At.Format("2006-01-02 15:04")))
	}
	return "Recent moods: " + strings.Join(parts, "; ") + "."
}
