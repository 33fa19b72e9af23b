package adapter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// ClaudeCode reads session transcripts from ~/.claude/projects. Each session
// is one JSONL file of typed envelope lines.
type ClaudeCode struct{}

func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{}
}

func (a *ClaudeCode) Name() string {
	return "claude-code"
}

func (a *ClaudeCode) StoragePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return existingPaths([]string{
		filepath.Join(home, ".claude", "projects"),
	})
}

func (a *ClaudeCode) Collect(since *time.Time) ([]models.Conversation, *Stats) {
	st := newStats(a.Name())
	var convs []models.Conversation

	for _, base := range a.StoragePaths() {
		projects, err := os.ReadDir(base)
		if err != nil {
			st.fail(base, "read-dir", err.Error())
			continue
		}
		for _, project := range projects {
			if !project.IsDir() {
				continue
			}
			projectDir := filepath.Join(base, project.Name())
			sessions, err := os.ReadDir(projectDir)
			if err != nil {
				st.fail(projectDir, "read-dir", err.Error())
				continue
			}
			for _, session := range sessions {
				if !strings.HasSuffix(session.Name(), ".jsonl") {
					continue
				}
				path := filepath.Join(projectDir, session.Name())
				conv, err := a.parseSession(path, st)
				if err != nil {
					st.fail(path, "session", err.Error())
					continue
				}
				convs = append(convs, *conv)
			}
		}
	}

	return finishCollect(convs, since, st), st
}

type claudeLine struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
}

type claudeUserMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type claudeAssistantMessage struct {
	Role    string              `json:"role"`
	Content []claudeContentItem `json:"content"`
}

type claudeContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

func (a *ClaudeCode) parseSession(path string, st *Stats) (*models.Conversation, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session file: %w", err)
	}
	defer file.Close()

	return a.parseJSONL(file, path, st)
}

func (a *ClaudeCode) parseJSONL(r io.Reader, path string, st *Stats) (*models.Conversation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	var messages []models.Message
	var sessionID, workspace string
	var first, last time.Time

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var envelope claudeLine
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			st.fail(path, "jsonl-line", err.Error())
			continue
		}

		if envelope.SessionID != "" && sessionID == "" {
			sessionID = envelope.SessionID
		}
		if envelope.CWD != "" && workspace == "" {
			workspace = envelope.CWD
		}

		ts, parsed := inferTimestamp(envelope.Timestamp)
		if !parsed && envelope.Timestamp != "" {
			st.Warnings++
		}

		var msg *models.Message
		switch envelope.Type {
		case "user":
			msg = parseClaudeUser(envelope.Message, ts)
		case "assistant":
			msg = parseClaudeAssistant(envelope.Message, ts)
		default:
			continue
		}
		if msg == nil {
			continue
		}

		messages = append(messages, *msg)
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading JSONL: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages found in session")
	}
	if first.IsZero() {
		first = time.Now().UTC()
		last = first
	}

	conv := models.Conversation{
		Source:    a.Name(),
		Title:     firstUserPreview(messages, 100),
		Messages:  messages,
		CreatedAt: first,
		UpdatedAt: last,
		ThreadID:  sessionID,
		Project:   projectNameFromPath(workspace),
		Workspace: workspace,
		Tags:      []string{"claude-code"},
	}
	conv.EnsureID()
	return &conv, nil
}

// parseClaudeUser keeps only real user text. Tool results come back on user
// lines as arrays and are skipped.
func parseClaudeUser(raw json.RawMessage, ts time.Time) *models.Message {
	var userMsg claudeUserMessage
	if err := json.Unmarshal(raw, &userMsg); err != nil || userMsg.Role != "user" {
		return nil
	}

	var content string
	if err := json.Unmarshal(userMsg.Content, &content); err != nil {
		return nil
	}
	if content == "" {
		return nil
	}

	msg := models.NewMessage(models.RoleUser, content, ts)
	return &msg
}

func parseClaudeAssistant(raw json.RawMessage, ts time.Time) *models.Message {
	var assistantMsg claudeAssistantMessage
	if err := json.Unmarshal(raw, &assistantMsg); err != nil || assistantMsg.Role != "assistant" {
		return nil
	}

	var parts []string
	for _, item := range assistantMsg.Content {
		switch item.Type {
		case "text":
			if item.Text != "" {
				parts = append(parts, item.Text)
			}
		case "tool_use":
			parts = append(parts, fmt.Sprintf("[Used tool: %s]", item.Name))
		}
	}
	if len(parts) == 0 {
		return nil
	}

	msg := models.NewMessage(models.RoleAssistant, strings.Join(parts, "\n"), ts)
	return &msg
}

func projectNameFromPath(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}
