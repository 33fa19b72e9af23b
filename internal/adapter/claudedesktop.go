package adapter

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/jordanmatta/recollect/internal/models"
)

// ClaudeDesktop pulls conversations out of the Claude desktop app's Electron
// storage: LevelDB session storage, IndexedDB sqlite files, the Local Storage
// key/value database, and any JSON exports saved next to them. Session
// storage values are often framed binary, so recovery falls back to scraping
// printable runs for embedded JSON objects.
type ClaudeDesktop struct{}

func NewClaudeDesktop() *ClaudeDesktop {
	return &ClaudeDesktop{}
}

func (a *ClaudeDesktop) Name() string {
	return "claude-desktop"
}

func (a *ClaudeDesktop) StoragePaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var candidates []string
	if runtime.GOOS == "darwin" {
		candidates = append(candidates,
			filepath.Join(home, "Library", "Application Support", "Claude"),
		)
	}
	candidates = append(candidates,
		filepath.Join(home, ".config", "Claude"),
		filepath.Join(home, "AppData", "Roaming", "Claude"),
	)
	return existingPaths(candidates)
}

func (a *ClaudeDesktop) Collect(since *time.Time) ([]models.Conversation, *Stats) {
	st := newStats(a.Name())
	var convs []models.Conversation

	for _, base := range a.StoragePaths() {
		convs = append(convs, a.collectRoot(base, st)...)
	}

	return finishCollect(convs, since, st), st
}

// collectRoot scans one app-data root: loose JSON exports at the top level,
// LevelDB stores under Session Storage and Local Storage, and sqlite
// databases under IndexedDB.
func (a *ClaudeDesktop) collectRoot(base string, st *Stats) []models.Conversation {
	var convs []models.Conversation

	convs = append(convs, a.collectJSONExports(base, st)...)

	for _, dir := range []string{
		filepath.Join(base, "Session Storage"),
		filepath.Join(base, "Local Storage", "leveldb"),
	} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		convs = append(convs, a.collectLevelDB(dir, st)...)
	}

	for _, dir := range []string{
		filepath.Join(base, "IndexedDB"),
		filepath.Join(base, "Local Storage"),
	} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		convs = append(convs, a.collectDatabases(dir, st)...)
	}

	return convs
}

// collectJSONExports reads conversational JSON files the app (or the user)
// dropped directly into the storage root.
func (a *ClaudeDesktop) collectJSONExports(base string, st *Stats) []models.Conversation {
	entries, err := os.ReadDir(base)
	if err != nil {
		st.fail(base, "read-dir", err.Error())
		return nil
	}

	var convs []models.Conversation
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || !nameLooksConversational(name) {
			continue
		}
		path := filepath.Join(base, name)
		data, err := os.ReadFile(path)
		if err != nil {
			st.fail(path, "read-file", err.Error())
			continue
		}
		convs = append(convs, conversationsFromJSON(data, a.Name(), path, st)...)
	}
	return convs
}

// collectLevelDB opens a LevelDB store read-only and scans every value. When
// the store cannot be opened, usually because the app holds the lock or the
// manifest is torn, the .ldb and .log files are scraped directly instead.
func (a *ClaudeDesktop) collectLevelDB(dir string, st *Stats) []models.Conversation {
	db, err := leveldb.OpenFile(dir, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		st.fail(dir, "leveldb-open", err.Error())
		return a.scrapeLevelDBFiles(dir, st)
	}
	defer db.Close()

	var convs []models.Conversation
	iter := db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		convs = append(convs, a.conversationsFromRecovered(iter.Value(), dir, st)...)
	}
	if err := iter.Error(); err != nil {
		st.fail(dir, "leveldb-iter", err.Error())
	}
	return convs
}

// scrapeLevelDBFiles reads table and log files raw and recovers whatever JSON
// objects survive in their printable content.
func (a *ClaudeDesktop) scrapeLevelDBFiles(dir string, st *Stats) []models.Conversation {
	entries, err := os.ReadDir(dir)
	if err != nil {
		st.fail(dir, "read-dir", err.Error())
		return nil
	}

	var convs []models.Conversation
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".ldb") && !strings.HasSuffix(name, ".log")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			st.fail(path, "read-file", err.Error())
			continue
		}
		convs = append(convs, a.conversationsFromText(printableRuns(data), path, st)...)
	}
	return convs
}

// collectDatabases walks a directory tree for sqlite files. IndexedDB nests
// its .sqlite3 files one level down per origin.
func (a *ClaudeDesktop) collectDatabases(dir string, st *Stats) []models.Conversation {
	var convs []models.Conversation
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			st.fail(path, "walk", err.Error())
			return nil
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".db") || strings.HasSuffix(name, ".sqlite") || strings.HasSuffix(name, ".sqlite3") {
			convs = append(convs, conversationsFromSQLite(path, a.Name(), st)...)
		}
		return nil
	})
	if err != nil {
		st.fail(dir, "walk", err.Error())
	}
	return convs
}

// conversationsFromRecovered handles one recovered LevelDB value: clean JSON
// values are decoded directly, anything else is scraped as text.
func (a *ClaudeDesktop) conversationsFromRecovered(data []byte, path string, st *Stats) []models.Conversation {
	if json.Valid(data) {
		var decoded interface{}
		if err := json.Unmarshal(data, &decoded); err == nil {
			if convs := a.conversationsFromCandidate(decoded, path, st); convs != nil {
				return convs
			}
		}
	}
	return a.conversationsFromText(printableRuns(data), path, st)
}

// conversationsFromText extracts JSON objects embedded in scraped text and
// keeps the ones shaped like conversations. Values that don't look
// conversational are ignored silently: session storage is full of unrelated
// app state.
func (a *ClaudeDesktop) conversationsFromText(text, path string, st *Stats) []models.Conversation {
	var convs []models.Conversation
	for _, candidate := range jsonObjectPattern.FindAllString(text, -1) {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
			continue
		}
		if convs2 := a.conversationsFromCandidate(obj, path, st); convs2 != nil {
			convs = append(convs, convs2...)
		}
	}
	return convs
}

func (a *ClaudeDesktop) conversationsFromCandidate(decoded interface{}, path string, st *Stats) []models.Conversation {
	obj, ok := decoded.(map[string]interface{})
	if !ok || !looksLikeConversation(obj) {
		return nil
	}
	promoteMessages(obj)
	if conv := conversationFromMap(obj, a.Name(), path, st); conv != nil {
		return []models.Conversation{*conv}
	}
	return nil
}

// jsonObjectPattern matches JSON objects with at most one level of nesting,
// which covers the message containers the desktop app writes.
var jsonObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

func looksLikeConversation(obj map[string]interface{}) bool {
	for _, key := range []string{"messages", "conversation", "chat", "thread"} {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

// promoteMessages lifts alternative message containers onto the canonical
// "messages" key so the shared parse cascade can take over.
func promoteMessages(obj map[string]interface{}) {
	if _, ok := obj["messages"]; ok {
		return
	}
	for _, key := range []string{"chat", "thread"} {
		if list, ok := obj[key].([]interface{}); ok {
			obj["messages"] = list
			return
		}
	}
	if inner, ok := obj["conversation"].(map[string]interface{}); ok {
		if list, ok := inner["messages"].([]interface{}); ok {
			obj["messages"] = list
		}
	}
}

// printableRuns keeps runs of printable ASCII longer than 10 bytes, joined
// with spaces, discarding the binary framing around them.
func printableRuns(data []byte) string {
	var b strings.Builder
	var run []byte
	flush := func() {
		if len(run) > 10 {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.Write(run)
		}
		run = run[:0]
	}
	for _, c := range data {
		if c >= 32 && c <= 126 {
			run = append(run, c)
			continue
		}
		flush()
	}
	flush()
	return b.String()
}
