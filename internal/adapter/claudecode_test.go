package adapter

import (
	"strings"
	"testing"
)

const sampleSession = `{"type":"user","message":{"role":"user","content":"How do I fix this docker error?"},"timestamp":"2024-04-02T10:00:00Z","sessionId":"sess-123","cwd":"/home/dev/shipyard"}
{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Check the compose file indentation."},{"type":"tool_use","name":"Bash"}]},"timestamp":"2024-04-02T10:00:30Z","sessionId":"sess-123"}
{"type":"user","message":{"role":"user","content":[{"type":"tool_result","content":"ok"}]},"timestamp":"2024-04-02T10:01:00Z"}
{"type":"summary","summary":"irrelevant"}`

func TestClaudeCodeParseJSONL(t *testing.T) {
	a := NewClaudeCode()
	st := newStats(a.Name())

	conv, err := a.parseJSONL(strings.NewReader(sampleSession), "session.jsonl", st)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages (tool results skipped), got %d", len(conv.Messages))
	}
	if conv.ThreadID != "sess-123" {
		t.Errorf("thread id = %q, want sess-123", conv.ThreadID)
	}
	if conv.Workspace != "/home/dev/shipyard" {
		t.Errorf("workspace = %q", conv.Workspace)
	}
	if conv.Project != "shipyard" {
		t.Errorf("project = %q, want shipyard", conv.Project)
	}
	if conv.Title != "How do I fix this docker error?" {
		t.Errorf("title = %q", conv.Title)
	}
	if !strings.Contains(conv.Messages[1].Content, "[Used tool: Bash]") {
		t.Errorf("assistant message should include tool marker: %q", conv.Messages[1].Content)
	}
	if !conv.UpdatedAt.After(conv.CreatedAt) {
		t.Errorf("updated %v should be after created %v", conv.UpdatedAt, conv.CreatedAt)
	}
	if conv.ID == "" || !strings.HasPrefix(conv.ID, "conv_") {
		t.Errorf("conversation id not synthesized: %q", conv.ID)
	}
}

func TestClaudeCodeParseJSONLEmpty(t *testing.T) {
	a := NewClaudeCode()
	st := newStats(a.Name())

	if _, err := a.parseJSONL(strings.NewReader("\n\n"), "empty.jsonl", st); err == nil {
		t.Fatal("expected error for session with no messages")
	}
}

func TestChatGPTParseMappingTree(t *testing.T) {
	export := `[{"title":"Compose debugging","create_time":1712050000,"update_time":1712050600,"conversation_id":"abc-1","mapping":{
		"n1":{"message":{"author":{"role":"user"},"content":{"parts":["Docker compose failing"]},"create_time":1712050000},"parent":null},
		"n2":{"message":{"author":{"role":"assistant"},"content":{"parts":["Check docker-compose logs"]},"create_time":1712050060},"parent":"n1"},
		"n3":{"message":{"author":{"role":"assistant"},"content":{"parts":[]}},"parent":"n2"}
	}}]`

	a := NewChatGPT()
	st := newStats(a.Name())
	convs := a.parseExport([]byte(export), "conversations.json", st)

	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	conv := convs[0]
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != "user" || conv.Messages[1].Role != "assistant" {
		t.Errorf("messages out of order: %s then %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.Title != "Compose debugging" {
		t.Errorf("title = %q", conv.Title)
	}
	if conv.ThreadID != "abc-1" {
		t.Errorf("thread id = %q", conv.ThreadID)
	}
}
