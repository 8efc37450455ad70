package mind

import (
	"regexp"
	"strings"
)

// FallbackReply is sent when the cleaned completion is empty.
const FallbackReply = "Hmm... I don't know what to say to that..."

// leadingEmphasis matches one *action* or **bold** prefix, e.g. "*giggles*".
var leadingEmphasis = regexp.MustCompile(`^\*+[^*\n]*\*+`)

// CleanReply turns a raw completion into a single-line reply.
func CleanReply(raw string) string {
	text := strings.TrimSpace(raw)
	text = leadingEmphasis.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackReply
	}
	return text
}
