package adapter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// ChatGPT reads the desktop app's local storage and, more usefully, account
// export archives: a conversations.json holding mapping trees keyed by node
// id, plus simpler history/chats JSON files.
type ChatGPT struct{}

func NewChatGPT() *ChatGPT {
	return &ChatGPT{}
}

func (a *ChatGPT) Name() string {
	return "chatgpt"
}

func (a *ChatGPT) StoragePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = append(candidates,
			filepath.Join(home, "Library", "Application Support", "com.openai.chat"),
			filepath.Join(home, "Library", "Application Support", "ChatGPT"),
		)
	}
	candidates = append(candidates,
		filepath.Join(home, ".config", "chatgpt"),
		filepath.Join(home, ".config", "openai"),
		filepath.Join(home, ".local", "share", "chatgpt"),
		filepath.Join(home, "AppData", "Roaming", "ChatGPT"),
		filepath.Join(home, "AppData", "Roaming", "OpenAI"),
		filepath.Join(home, "Downloads", "chatgpt-export"),
	)
	return existingPaths(candidates)
}

func (a *ChatGPT) Collect(since *time.Time) ([]models.Conversation, *Stats) {
	st := newStats(a.Name())
	var convs []models.Conversation

	for _, base := range a.StoragePaths() {
		entries, err := os.ReadDir(base)
		if err != nil {
			st.fail(base, "read-dir", err.Error())
			continue
		}
		for _, entry := range entries {
			name := strings.ToLower(entry.Name())
			if entry.IsDir() || !strings.HasSuffix(name, ".json") {
				continue
			}
			if !nameLooksConversational(name) && name != "history.json" {
				continue
			}
			path := filepath.Join(base, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				st.fail(path, "read-file", err.Error())
				continue
			}
			convs = append(convs, a.parseExport(data, path, st)...)
		}
	}

	return finishCollect(convs, since, st), st
}

// parseExport handles both the export archive shape (array of objects with a
// mapping tree) and plainer message-list files.
func (a *ChatGPT) parseExport(data []byte, path string, st *Stats) []models.Conversation {
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		st.fail(path, "json-decode", err.Error())
		return nil
	}

	switch v := decoded.(type) {
	case []interface{}:
		var convs []models.Conversation
		plain := make([]interface{}, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]interface{}); ok {
				if _, hasMapping := obj["mapping"]; hasMapping {
					if conv := a.parseMappingTree(obj, path, st); conv != nil {
						convs = append(convs, *conv)
					}
					continue
				}
			}
			plain = append(plain, item)
		}
		if len(plain) > 0 {
			convs = append(convs, conversationsFromValue(plain, a.Name(), path, st)...)
		}
		return convs
	case map[string]interface{}:
		if _, hasMapping := v["mapping"]; hasMapping {
			if conv := a.parseMappingTree(v, path, st); conv != nil {
				return []models.Conversation{*conv}
			}
			return nil
		}
		return conversationsFromValue(v, a.Name(), path, st)
	default:
		st.fail(path, "json-shape", "top-level value is neither object nor array")
		return nil
	}
}

// parseMappingTree flattens an export mapping (node id -> {message, parent,
// children}) into a timestamp-ordered message list.
func (a *ChatGPT) parseMappingTree(obj map[string]interface{}, path string, st *Stats) *models.Conversation {
	mapping, ok := obj["mapping"].(map[string]interface{})
	if !ok {
		st.fail(path, "mapping-tree", "mapping is not an object")
		return nil
	}

	var msgs []models.Message
	for _, node := range mapping {
		nodeObj, ok := node.(map[string]interface{})
		if !ok {
			continue
		}
		rawMsg, ok := nodeObj["message"].(map[string]interface{})
		if !ok || rawMsg == nil {
			continue
		}
		parsed := parseMessageValue(rawMsg, path, st)
		if parent, ok := nodeObj["parent"].(string); ok {
			for i := range parsed {
				parsed[i].ParentID = parent
			}
		}
		msgs = append(msgs, parsed...)
	}
	if len(msgs) == 0 {
		return nil
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	createdAt, parsedCreated := timestampFrom(obj, "create_time", "created_at")
	if !parsedCreated {
		st.Warnings++
		createdAt = earliestTimestamp(msgs)
	}
	updatedAt, parsedUpdated := timestampFrom(obj, "update_time", "updated_at")
	if !parsedUpdated {
		updatedAt = latestTimestamp(msgs)
	}

	conv := models.Conversation{
		Source:    a.Name(),
		Title:     titleFrom(obj, firstUserPreview(msgs, 100)),
		Messages:  msgs,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		ThreadID:  firstString(obj, "conversation_id", "id"),
	}
	conv.EnsureID()
	return &conv
}
