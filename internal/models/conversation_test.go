package models

import (
	"strings"
	"testing"
	"time"
)

func TestMessageIDDeterministic(t *testing.T) {
	a := MessageID(RoleUser, "how do I mount a volume?")
	b := MessageID(RoleUser, "how do I mount a volume?")
	if a != b {
		t.Errorf("same role and content must hash to the same id: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "msg_") || len(a) != len("msg_")+16 {
		t.Errorf("unexpected id shape: %s", a)
	}

	if MessageID(RoleAssistant, "how do I mount a volume?") == a {
		t.Error("different role must change the id")
	}
	if MessageID(RoleUser, "how do I mount a volume") == a {
		t.Error("different content must change the id")
	}
}

func TestConversationIDDeterministic(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	a := ConversationID("cursor", "thread-1", created)
	b := ConversationID("cursor", "thread-1", created)
	if a != b {
		t.Errorf("same inputs must hash to the same id: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "conv_") || len(a) != len("conv_")+16 {
		t.Errorf("unexpected id shape: %s", a)
	}

	// Timezone must not matter; the hash uses UTC.
	est := time.FixedZone("EST", -5*3600)
	if ConversationID("cursor", "thread-1", created.In(est)) != a {
		t.Error("id must be timezone-independent")
	}

	if ConversationID("windsurf", "thread-1", created) == a {
		t.Error("different source must change the id")
	}
	if ConversationID("cursor", "thread-2", created) == a {
		t.Error("different thread must change the id")
	}
}

func TestEnsureID(t *testing.T) {
	conv := Conversation{
		Source:    "chatgpt",
		ThreadID:  "abc",
		CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	conv.EnsureID()
	want := ConversationID("chatgpt", "abc", conv.CreatedAt)
	if conv.ID != want {
		t.Errorf("EnsureID: got %s, want %s", conv.ID, want)
	}

	conv.ID = "conv_existing"
	conv.EnsureID()
	if conv.ID != "conv_existing" {
		t.Error("EnsureID must not overwrite an existing id")
	}
}

func TestContentHash(t *testing.T) {
	base := time.Now().UTC()
	conv := Conversation{Messages: []Message{
		NewMessage(RoleUser, "hello", base),
		NewMessage(RoleAssistant, "hi there", base.Add(time.Second)),
	}}
	same := Conversation{Messages: []Message{
		NewMessage(RoleUser, "hello", base.Add(time.Hour)),
		NewMessage(RoleAssistant, "hi there", base.Add(2*time.Hour)),
	}}
	if conv.ContentHash() != same.ContentHash() {
		t.Error("content hash must ignore timestamps")
	}

	reordered := Conversation{Messages: []Message{same.Messages[1], same.Messages[0]}}
	if conv.ContentHash() == reordered.ContentHash() {
		t.Error("content hash must depend on message order")
	}
}

func TestConversationAccessors(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conv := Conversation{Messages: []Message{
		NewMessage(RoleUser, "two words", base),
		NewMessage(RoleAssistant, "three more words", base.Add(90*time.Second)),
		NewMessage(RoleSystem, "context", base.Add(-time.Minute)),
	}}

	if got := conv.WordCount(); got != 6 {
		t.Errorf("WordCount: got %d, want 6", got)
	}
	if got := conv.Duration(); got != 150*time.Second {
		t.Errorf("Duration: got %s, want 2m30s", got)
	}
	if got := len(conv.UserMessages()); got != 1 {
		t.Errorf("UserMessages: got %d, want 1", got)
	}
	if got := len(conv.AssistantMessages()); got != 1 {
		t.Errorf("AssistantMessages: got %d, want 1", got)
	}

	var empty Conversation
	if empty.Duration() != 0 {
		t.Error("Duration of an empty conversation must be zero")
	}
}
