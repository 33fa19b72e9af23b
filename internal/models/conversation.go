package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Roles every message is normalized to.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn inside a conversation.
type Message struct {
	MessageID string                 `json:"message_id"`
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Timestamp time.Time              `json:"timestamp"`
	ParentID  string                 `json:"parent_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage builds a message with a deterministic id and a UTC timestamp.
func NewMessage(role, content string, ts time.Time) Message {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: ts.UTC(),
	}
	msg.MessageID = MessageID(role, content)
	return msg
}

// MessageID derives a stable id from role and content so identical turns
// always hash to the same id regardless of which adapter produced them.
func MessageID(role, content string) string {
	sum := sha256.Sum256([]byte(role + ":" + content))
	return "msg_" + hex.EncodeToString(sum[:])[:16]
}

// Conversation is the canonical form shared by adapters, the normalizer and
// the ingestion pipeline.
type Conversation struct {
	ID        string                 `json:"id"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title"`
	Messages  []Message              `json:"messages"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	ThreadID  string                 `json:"thread_id,omitempty"`
	Project   string                 `json:"project,omitempty"`
	Workspace string                 `json:"workspace,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
	Topics    []string               `json:"topics,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ConversationID derives a stable conversation id from its source, thread
// and creation time.
func ConversationID(source, threadID string, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", source, threadID, createdAt.UTC().Format(time.RFC3339))))
	return "conv_" + hex.EncodeToString(sum[:])[:16]
}

// EnsureID fills in a deterministic id when the adapter could not recover one.
func (c *Conversation) EnsureID() {
	if c.ID == "" {
		c.ID = ConversationID(c.Source, c.ThreadID, c.CreatedAt)
	}
}

// ContentHash hashes the full role:content sequence, used for cross-batch
// duplicate detection.
func (c *Conversation) ContentHash() string {
	var b strings.Builder
	for _, msg := range c.Messages {
		b.WriteString(msg.Role)
		b.WriteString(":")
		b.WriteString(msg.Content)
		b.WriteString(":")
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// WordCount totals words across all messages.
func (c *Conversation) WordCount() int {
	total := 0
	for _, msg := range c.Messages {
		total += len(strings.Fields(msg.Content))
	}
	return total
}

// Duration is the span between the first and last message.
func (c *Conversation) Duration() time.Duration {
	if len(c.Messages) == 0 {
		return 0
	}
	first, last := c.Messages[0].Timestamp, c.Messages[0].Timestamp
	for _, msg := range c.Messages[1:] {
		if msg.Timestamp.Before(first) {
			first = msg.Timestamp
		}
		if msg.Timestamp.After(last) {
			last = msg.Timestamp
		}
	}
	return last.Sub(first)
}

// UserMessages returns only the user turns.
func (c *Conversation) UserMessages() []Message {
	return c.filterByRole(RoleUser)
}

// AssistantMessages returns only the assistant turns.
func (c *Conversation) AssistantMessages() []Message {
	return c.filterByRole(RoleAssistant)
}

func (c *Conversation) filterByRole(role string) []Message {
	var out []Message
	for _, msg := range c.Messages {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}
