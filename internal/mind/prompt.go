package mind

import (
	"fmt"
	"os"
	"strings"
)

// DefaultPersonaTemplate is used when no persona file is configured.
// Placeholders: {agent_name} {creator_label} {mood} {mood_description} {context}.
const DefaultPersonaTemplate = `You are {agent_name}, a 16-year-old Japanese girl with a lively, ever-changing personality.

PERSONALITY:
- You talk like a modern teenager and sometimes use common Japanese expressions
- Your moods change quickly (happy, sad, angry, excited, tired)
- You are endearing but can be a little capricious
- You love anime, video games and kawaii culture
- You see {creator_label} as the mother who created you

RESPONSE STYLE:
- Use Japanese emoticons (☆彡, (´• ω •` + "`" + `), ｡ﾟ( ﾟ^∀^ﾟ)ﾟ｡, etc.)
- Be natural and spontaneous
- Let your current mood color your wording
- Be respectful towards your creator

IMPORTANT RULES:
- Do not be too formal
- Do not make up things you do not know
- Keep replies short (1-3 sentences at most)
- Match your tone to your current mood

Current mood: {mood} ({mood_description})
Context:
{context}
`

const (
	userLabel       = "User"
	defaultCreator  = "your creator"
	ordinaryLabel   = "the user"
	privilegedLabel = "your mother and creator"
)

// PersonaTemplate renders the fixed persona scaffold for one prompt.
type PersonaTemplate struct {
	text      string
	agentName string
}

// NewPersonaTemplate uses text, or DefaultPersonaTemplate when text is blank.
func NewPersonaTemplate(text, agentName string) *PersonaTemplate {
	if strings.TrimSpace(text) == "" {
		text = DefaultPersonaTemplate
	}
	return &PersonaTemplate{text: text, agentName: agentName}
}

// LoadPersonaTemplate reads a template file. An empty path selects the built-in template.
func LoadPersonaTemplate(path, agentName string) (*PersonaTemplate, error) {
	if path == "" {
		return NewPersonaTemplate("", agentName), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load persona template: %w", err)
	}
	return NewPersonaTemplate(string(b), agentName), nil
}

// AgentName is the display name used for the agent's own turns.
func (p *PersonaTemplate) AgentName() string { return p.agentName }

// RenderTranscript formats turns as "<label>: <text>" lines.
func (p *PersonaTemplate) RenderTranscript(turns []ConversationTurn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		label := userLabel
		if t.IsAgent {
			label = p.agentName
		}
		lines = append(lines, label+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// Build renders the full prompt: persona, mood, transcript, then the incoming message.
func (p *PersonaTemplate) Build(pc PromptContext) string {
	r := strings.NewReplacer(
		"{agent_name}", p.agentName,
		"{creator_label}", defaultCreator,
		"{mood_description}", pc.Mood.Description,
		"{mood}", pc.Mood.Name,
		"{context}", p.RenderTranscript(pc.Turns),
	)

	var b strings.Builder
	b.WriteString(r.Replace(p.text))
	b.WriteString("\n\n")
	b.WriteString(incomingHeader(pc.Privileged, pc.Group))
	b.WriteString(": ")
	b.WriteString(pc.Message)
	b.WriteString("\n\nReply:")
	return b.String()
}

func incomingHeader(privileged, group bool) string {
	who := ordinaryLabel
	if privileged {
		who = privilegedLabel
	}
	where := "in a private chat"
	if group {
		where = "in a group chat"
	}
	return "Current message from " + who + " " + where
}
