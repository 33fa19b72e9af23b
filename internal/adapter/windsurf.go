package adapter

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// Windsurf reads Codeium/Windsurf storage: the ~/.codeium tree plus the
// editor's Electron state databases. Layouts differ per release, so the walk
// is heuristic throughout.
type Windsurf struct{}

func NewWindsurf() *Windsurf {
	return &Windsurf{}
}

func (a *Windsurf) Name() string {
	return "windsurf"
}

func (a *Windsurf) StoragePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var candidates []string
	candidates = append(candidates,
		filepath.Join(home, ".codeium", "windsurf"),
		filepath.Join(home, ".codeium"),
	)
	if runtime.GOOS == "darwin" {
		candidates = append(candidates,
			filepath.Join(home, "Library", "Application Support", "Windsurf", "User", "workspaceStorage"),
			filepath.Join(home, "Library", "Application Support", "Windsurf", "User", "globalStorage"),
		)
	}
	candidates = append(candidates,
		filepath.Join(home, ".config", "Windsurf", "User", "workspaceStorage"),
		filepath.Join(home, ".config", "Windsurf", "User", "globalStorage"),
		filepath.Join(home, "AppData", "Roaming", "Windsurf", "User", "workspaceStorage"),
		filepath.Join(home, "AppData", "Roaming", "Windsurf", "User", "globalStorage"),
	)
	return existingPaths(candidates)
}

func (a *Windsurf) Collect(since *time.Time) ([]models.Conversation, *Stats) {
	st := newStats(a.Name())
	var convs []models.Conversation

	for _, base := range a.StoragePaths() {
		convs = append(convs, a.walk(base, 0, st)...)
	}

	return finishCollect(convs, since, st), st
}

// walk descends at most three levels looking for databases and chat JSON
// files; deeper trees belong to caches we do not understand.
func (a *Windsurf) walk(dir string, depth int, st *Stats) []models.Conversation {
	if depth > 3 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		st.fail(dir, "read-dir", err.Error())
		return nil
	}

	var convs []models.Conversation
	for _, entry := range entries {
		name := entry.Name()
		path := filepath.Join(dir, name)
		if entry.IsDir() {
			if depth == 0 || nameLooksConversational(name) || strings.Contains(strings.ToLower(name), "storage") {
				convs = append(convs, a.walk(path, depth+1, st)...)
			}
			continue
		}
		switch {
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
