package adapter

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Upstream storage schemas are private and shift between releases, so tables,
// keys and file names are matched by substring instead of exact name.
var conversationHints = []string{
	"chat", "conversation", "ai", "assistant", "prompt", "completion", "message", "composer",
}

func nameLooksConversational(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range conversationHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

var roleAliases = map[string]string{
	"user": "user", "human": "user", "me": "user",
	"question": "user", "prompt": "user", "input": "user",
	"assistant": "assistant", "ai": "assistant", "bot": "assistant",
	"claude": "assistant", "chatgpt": "assistant", "gpt": "assistant",
	"cursor": "assistant", "windsurf": "assistant",
	"response": "assistant", "completion": "assistant", "output": "assistant",
	"system": "system", "instruction": "system", "context": "system",
}

// aliasRole maps a source-specific role onto the canonical set. Unknown roles
// become assistant, matching how most tools label generated turns.
func aliasRole(role string) string {
	if canonical, ok := roleAliases[strings.ToLower(strings.TrimSpace(role))]; ok {
		return canonical
	}
	return "assistant"
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// inferTimestamp accepts epoch seconds, epoch milliseconds and the string
// layouts the supported tools have been seen writing. The second return is
// false when parsing failed and the caller fell back to now.
func inferTimestamp(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return epochToTime(t), true
	case int64:
		return epochToTime(float64(t)), true
	case int:
		return epochToTime(float64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			break
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
	case time.Time:
		return t.UTC(), true
	}
	return time.Now().UTC(), false
}

// epochToTime treats values above 1e10 as milliseconds.
func epochToTime(v float64) time.Time {
	if v > 1e10 {
		v = v / 1000
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// timestampFrom scans a decoded object for the first parseable timestamp
// field.
func timestampFrom(data map[string]interface{}, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		if v, ok := data[key]; ok && v != nil {
			if ts, parsed := inferTimestamp(v); parsed {
				return ts, true
			}
		}
	}
	return time.Now().UTC(), false
}

// titleFrom pulls a title out of common fields, falling back to the first
// message.
func titleFrom(data map[string]interface{}, fallback string) string {
	for _, key := range []string{"title", "name", "subject", "topic"} {
		if v, ok := data[key].(string); ok && strings.TrimSpace(v) != "" {
			return truncate(strings.TrimSpace(v), 200)
		}
	}
	return fallback
}

// truncate caps s at max bytes, backing off so a multi-byte rune is never
// split.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
