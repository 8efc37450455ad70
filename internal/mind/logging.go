package mind

import (
	"log"
	"sort"
	"strings"
	"unicode/utf8"
)

// LogPrompt logs prompt size, params and a preview. Call right before Generator.Complete.
func LogPrompt(action, prompt string, params map[string]string) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		if v := params[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	log.Printf("[MIND] action=%s %s prompt_len=%d", action, strings.Join(parts, " "), len(prompt))
	log.Printf("[MIND] prompt_tail: %s", tailForLog(prompt, 300))
}

func truncateForLog(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// tailForLog keeps the end of the prompt, where the conversation and message live.
func tailForLog(s string, max int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " | ")
	if len(s) <= max {
		return s
	}
	cut := len(s) - max
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}
