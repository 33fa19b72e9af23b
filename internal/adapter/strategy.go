package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// messageStrategy is one way a tool has been seen encoding a message. parse
// returns the recovered messages, or nil plus a reason describing why the
// shape did not apply.
type messageStrategy struct {
	name  string
	parse func(raw interface{}) ([]models.Message, string)
}

// messageStrategies is the ranked cascade tried against every candidate
// value. Order matters: the most specific shapes come before the catch-alls.
func messageStrategies() []messageStrategy {
	return []messageStrategy{
		{name: "role-content", parse: parseRoleContent},
		{name: "nested-parts", parse: parseNestedParts},
		{name: "prompt-completion", parse: parsePromptCompletion},
		{name: "plain-string", parse: parsePlainString},
	}
}

// parseMessageValue runs the strategy cascade over one decoded value. When no
// strategy applies, every attempted strategy's reason is retained in stats.
func parseMessageValue(raw interface{}, path string, st *Stats) []models.Message {
	var attempts []ParseFailure
	for _, strat := range messageStrategies() {
		msgs, reason := strat.parse(raw)
		if msgs != nil {
			return msgs
		}
		attempts = append(attempts, ParseFailure{Path: path, Strategy: strat.name, Reason: reason})
	}
	st.Failures = append(st.Failures, attempts...)
	return nil
}

func parsePlainString(raw interface{}) ([]models.Message, string) {
	s, ok := raw.(string)
	if !ok {
		return nil, "value is not a string"
	}
	if strings.TrimSpace(s) == "" {
		return nil, "string is empty"
	}
	return []models.Message{models.NewMessage(models.RoleUser, s, time.Now())}, ""
}

func parseRoleContent(raw interface{}) ([]models.Message, string) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, "value is not an object"
	}
	role, _ := obj["role"].(string)
	if role == "" {
		if author, ok := obj["author"].(map[string]interface{}); ok {
			role, _ = author["role"].(string)
		}
	}
	if role == "" {
		return nil, "object has no role"
	}
	content, ok := obj["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, "object has no string content"
	}
	ts, _ := timestampFrom(obj, "timestamp", "created_at", "createdAt", "create_time", "time", "ts")
	msg := models.NewMessage(canonicalRole(role), content, ts)
	if parent, ok := obj["parent_id"].(string); ok {
		msg.ParentID = parent
	}
	return []models.Message{msg}, ""
}

func parseNestedParts(raw interface{}) ([]models.Message, string) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, "value is not an object"
	}
	content, ok := obj["content"].(map[string]interface{})
	if !ok {
		return nil, "object has no content object"
	}
	parts, ok := content["parts"].([]interface{})
	if !ok {
		return nil, "content has no parts array"
	}
	var texts []string
	for _, part := range parts {
		if s, ok := part.(string); ok && strings.TrimSpace(s) != "" {
			texts = append(texts, s)
		}
	}
	if len(texts) == 0 {
		return nil, "parts contain no text"
	}
	role, _ := obj["role"].(string)
	if author, ok := obj["author"].(map[string]interface{}); ok && role == "" {
		role, _ = author["role"].(string)
	}
	ts, _ := timestampFrom(obj, "timestamp", "create_time", "created_at")
	return []models.Message{models.NewMessage(canonicalRole(role), strings.Join(texts, "\n"), ts)}, ""
}

func parsePromptCompletion(raw interface{}) ([]models.Message, string) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, "value is not an object"
	}
	prompt, ok := obj["prompt"].(string)
	if !ok || strings.TrimSpace(prompt) == "" {
		return nil, "object has no prompt"
	}
	ts, _ := timestampFrom(obj, "timestamp", "created_at", "unixMs", "time")
	msgs := []models.Message{models.NewMessage(models.RoleUser, prompt, ts)}
	for _, key := range []string{"completion", "response", "answer"} {
		if reply, ok := obj[key].(string); ok && strings.TrimSpace(reply) != "" {
			msgs = append(msgs, models.NewMessage(models.RoleAssistant, reply, ts))
			break
		}
	}
	return msgs, ""
}

// canonicalRole aliases a role, keeping an explicit system role intact.
func canonicalRole(role string) string {
	if strings.EqualFold(strings.TrimSpace(role), models.RoleSystem) {
		return models.RoleSystem
	}
	return aliasRole(role)
}

// conversationFromMap recovers one conversation from a decoded JSON object,
// trying the message-list shape first and falling back to a bare
// prompt/completion pair.
func conversationFromMap(data map[string]interface{}, source, path string, st *Stats) *models.Conversation {
	var msgs []models.Message

	if rawMsgs, ok := data["messages"].([]interface{}); ok {
		for _, rawMsg := range rawMsgs {
			msgs = append(msgs, parseMessageValue(rawMsg, path, st)...)
		}
	}
	if len(msgs) == 0 {
		if pair, _ := parsePromptCompletion(data); pair != nil {
			msgs = pair
		}
	}
	if len(msgs) == 0 {
		return nil
	}

	createdAt, parsed := timestampFrom(data, "created_at", "createdAt", "create_time", "timestamp")
	if !parsed {
		st.Warnings++
		createdAt = earliestTimestamp(msgs)
	}
	updatedAt, parsed := timestampFrom(data, "updated_at", "updatedAt", "update_time")
	if !parsed {
		updatedAt = latestTimestamp(msgs)
	}

	threadID := firstString(data, "id", "conversation_id", "conversationId", "thread_id", "session_id", "sessionId")

	conv := models.Conversation{
		Source:    source,
		Title:     titleFrom(data, firstUserPreview(msgs, 100)),
		Messages:  msgs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		ThreadID:  threadID,
	}
	conv.EnsureID()
	return &conv
}

func firstString(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		switch v := data[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

func firstUserPreview(msgs []models.Message, max int) string {
	for _, msg := range msgs {
		if msg.Role == models.RoleUser && msg.Content != "" {
			return truncate(msg.Content, max)
		}
	}
	if len(msgs) > 0 {
		return truncate(msgs[0].Content, max)
	}
	return ""
}

func earliestTimestamp(msgs []models.Message) time.Time {
	ts := msgs[0].Timestamp
	for _, msg := range msgs[1:] {
		if msg.Timestamp.Before(ts) {
			ts = msg.Timestamp
		}
	}
	return ts
}

func latestTimestamp(msgs []models.Message) time.Time {
	ts := msgs[0].Timestamp
	for _, msg := range msgs[1:] {
		if msg.Timestamp.After(ts) {
			ts = msg.Timestamp
		}
	}
	return ts
}
