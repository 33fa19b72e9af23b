package adapter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// Cursor pulls chat data out of Cursor's Electron storage: per-workspace
// state.vscdb key/value databases, the global storage database, and loose
// JSON files the AI panes drop next to them.
type Cursor struct{}

func NewCursor() *Cursor {
	return &Cursor{}
}

func (a *Cursor) Name() string {
	return "cursor"
}

func (a *Cursor) StoragePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = append(candidates,
			filepath.Join(home, "Library", "Application Support", "Cursor", "User", "workspaceStorage"),
			filepath.Join(home, "Library", "Application Support", "Cursor", "User", "globalStorage"),
		)
	}
	candidates = append(candidates,
		filepath.Join(home, ".config", "Cursor", "User", "workspaceStorage"),
		filepath.Join(home, ".config", "Cursor", "User", "globalStorage"),
		filepath.Join(home, "AppData", "Roaming", "Cursor", "User", "workspaceStorage"),
		filepath.Join(home, "AppData", "Roaming", "Cursor", "User", "globalStorage"),
	)
	return existingPaths(candidates)
}

func (a *Cursor) Collect(since *time.Time) ([]models.Conversation, *Stats) {
	st := newStats(a.Name())
	var convs []models.Conversation

	for _, base := range a.StoragePaths() {
		if strings.Contains(base, "workspaceStorage") {
			convs = append(convs, a.collectWorkspaces(base, st)...)
		} else {
			convs = append(convs, a.collectDir(base, st)...)
		}
	}

	return finishCollect(convs, since, st), st
}

// collectWorkspaces walks per-workspace hash directories, each holding a
// state.vscdb plus occasional chat JSON files.
func (a *Cursor) collectWorkspaces(base string, st *Stats) []models.Conversation {
	entries, err := os.ReadDir(base)
	if err != nil {
		st.fail(base, "read-dir", err.Error())
		return nil
	}

	var convs []models.Conversation
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(base, entry.Name())
		workspace := workspaceFromStorage(dir)

		statePath := filepath.Join(dir, "state.vscdb")
		if _, err := os.Stat(statePath); err == nil {
			found := conversationsFromSQLite(statePath, a.Name(), st)
			for i := range found {
				if found[i].Workspace == "" {
					found[i].Workspace = workspace
				}
			}
			convs = append(convs, found...)
		}

		convs = append(convs, a.collectDir(dir, st)...)
	}
	return convs
}

// collectDir scans one directory for databases and conversational JSON files.
func (a *Cursor) collectDir(dir string, st *Stats) []models.Conversation {
	var convs []models.Conversation

	entries, err := os.ReadDir(dir)
	if err != nil {
		st.fail(dir, "read-dir", err.Error())
		return nil
	}
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)
		switch {
		case entry.IsDir():
			if nameLooksConversational(name) {
				convs = append(convs, a.collectDir(path, st)...)
			}
		case strings.HasSuffix(name, ".db") || strings.HasSuffix(name, ".sqlite") || strings.HasSuffix(name, ".vscdb"):
			convs = append(convs, conversationsFromSQLite(path, a.Name(), st)...)
		case strings.HasSuffix(name, ".json") && nameLooksConversational(name):
			data, err := os.ReadFile(path)
			if err != nil {
				st.fail(path, "read-file", err.Error())
				continue
			}
			convs = append(convs, conversationsFromJSON(data, a.Name(), path, st)...)
		}
	}
	return convs
}

// workspaceFromStorage resolves the original workspace folder from the
// workspace.json marker Cursor writes into each storage directory.
func workspaceFromStorage(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "workspace.json"))
	if err != nil {
		return ""
	}
	var marker struct {
		Folder string `json:"folder"`
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		return ""
	}
	return strings.TrimPrefix(marker.Folder, "file://")
}
