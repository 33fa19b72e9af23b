package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/syndtr/goleveldb/leveldb"
)

func TestClaudeDesktopLevelDB(t *testing.T) {
	dir := t.TempDir()
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		t.Fatalf("failed to create leveldb: %v", err)
	}
	value := `{"id":"desk-1","title":"Build failure","created_at":"2024-03-01T10:30:00Z","messages":[
		{"role":"user","content":"why does the build fail?","timestamp":"2024-03-01T10:30:00Z"},
		{"role":"assistant","content":"a missing import in main.go","timestamp":"2024-03-01T10:30:20Z"}
	]}`
	if err := db.Put([]byte("session-key"), []byte(value), nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Put([]byte("noise"), []byte(`{"windowBounds":{"x":0,"y":0}}`), nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	a := NewClaudeDesktop()
	st := newStats(a.Name())
	convs := a.collectLevelDB(dir, st)

	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	conv := convs[0]
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Title != "Build failure" {
		t.Errorf("title = %q", conv.Title)
	}
	if conv.ThreadID != "desk-1" {
		t.Errorf("thread id = %q", conv.ThreadID)
	}
	if conv.Messages[0].Role != "user" || conv.Messages[1].Role != "assistant" {
		t.Errorf("roles wrong: %s then %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
}

func TestClaudeDesktopScrapeFallback(t *testing.T) {
	// No CURRENT file, so the store can't be opened and the table files get
	// scraped raw.
	dir := t.TempDir()
	framed := append([]byte{0x00, 0x01, 0xff, 0x12}, []byte(`{"messages":[{"role":"user","content":"hello from session storage"},{"role":"assistant","content":"recovered intact"}]}`)...)
	framed = append(framed, 0xfe, 0x03)
	if err := os.WriteFile(filepath.Join(dir, "000005.ldb"), framed, 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewClaudeDesktop()
	st := newStats(a.Name())
	convs := a.collectLevelDB(dir, st)

	if len(convs) != 1 {
		t.Fatalf("expected 1 scraped conversation, got %d", len(convs))
	}
	if len(convs[0].Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(convs[0].Messages))
	}
	if convs[0].Messages[0].Content != "hello from session storage" {
		t.Errorf("content = %q", convs[0].Messages[0].Content)
	}
}

func TestClaudeDesktopJSONExports(t *testing.T) {
	dir := t.TempDir()
	export := `{"conversations":[
		{"title":"First","messages":[{"role":"user","content":"one"},{"role":"assistant","content":"two"}]},
		{"title":"Second","messages":[{"role":"user","content":"three"}]}
	]}`
	if err := os.WriteFile(filepath.Join(dir, "chat_export.json"), []byte(export), 0o644); err != nil {
		t.Fatal(err)
	}
	// Non-conversational names are skipped.
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"theme":"dark"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	a := NewClaudeDesktop()
	st := newStats(a.Name())
	convs := a.collectJSONExports(dir, st)

	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].Title != "First" || convs[1].Title != "Second" {
		t.Errorf("titles = %q, %q", convs[0].Title, convs[1].Title)
	}
}

func TestPromoteMessages(t *testing.T) {
	chat := map[string]interface{}{
		"chat": []interface{}{map[string]interface{}{"role": "user", "content": "hi"}},
	}
	promoteMessages(chat)
	if _, ok := chat["messages"].([]interface{}); !ok {
		t.Error("chat list not promoted to messages")
	}

	nested := map[string]interface{}{
		"conversation": map[string]interface{}{
			"messages": []interface{}{map[string]interface{}{"role": "user", "content": "hi"}},
		},
	}
	promoteMessages(nested)
	if _, ok := nested["messages"].([]interface{}); !ok {
		t.Error("nested conversation messages not promoted")
	}

	already := map[string]interface{}{
		"messages": []interface{}{"keep"},
		"chat":     []interface{}{"ignore"},
	}
	promoteMessages(already)
	if list := already["messages"].([]interface{}); list[0] != "keep" {
		t.Error("existing messages must not be overwritten")
	}
}

func TestPrintableRuns(t *testing.T) {
	data := append([]byte{0x00, 0x01}, []byte("this run is long enough to keep")...)
	data = append(data, 0xff)
	data = append(data, []byte("short")...) // under the threshold, dropped
	data = append(data, 0x02)

	got := printableRuns(data)
	if got != "this run is long enough to keep" {
		t.Errorf("printableRuns = %q", got)
	}
}
