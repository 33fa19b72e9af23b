// Package watcher follows AI tool storage directories and triggers
// collection whenever session files change, so new conversations land in the
// store without manual collect runs.
package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jordanmatta/recollect/internal/adapter"
	"github.com/jordanmatta/recollect/internal/ingest"
	"github.com/jordanmatta/recollect/internal/models"
	"github.com/jordanmatta/recollect/internal/normalizer"
	"github.com/jordanmatta/recollect/internal/storage"
)

// DefaultDebounce is how long a source stays quiet before it is collected.
// Session files are appended in bursts while a conversation is active.
const DefaultDebounce = 10 * time.Second

// Watcher ties filesystem events to adapter collection.
type Watcher struct {
	adapters []adapter.Adapter
	gateway  *ingest.Gateway
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	dirty   map[string]time.Time // source -> last event
	lastRun map[string]time.Time // source -> last collect
}

func New(adapters []adapter.Adapter, gateway *ingest.Gateway, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		adapters: adapters,
		gateway:  gateway,
		debounce: debounce,
		logger:   logger,
		dirty:    make(map[string]time.Time),
		lastRun:  make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled. Sources whose paths do not exist are
// skipped; at least one watchable path is required.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	pathSource := make(map[string]string)
	watched := 0
	for _, a := range w.adapters {
		for _, path := range a.StoragePaths() {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			for _, dir := range watchableDirs(path) {
				if err := fsw.Add(dir); err != nil {
					w.logger.Warn("failed to watch", "path", dir, "error", err)
					continue
				}
				pathSource[dir] = a.Name()
				watched++
			}
		}
	}
	if watched == 0 {
		return errors.New("no AI tool storage paths found to watch")
	}
	w.logger.Info("watching", "directories", watched, "debounce", w.debounce)

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			source := sourceForPath(pathSource, event.Name)
			if source == "" {
				continue
			}
			w.mu.Lock()
			w.dirty[source] = time.Now()
			w.mu.Unlock()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-ticker.C:
			w.collectQuiet(ctx)
		}
	}
}

// collectQuiet collects every dirty source whose last event is older than
// the debounce window.
func (w *Watcher) collectQuiet(ctx context.Context) {
	now := time.Now()

	w.mu.Lock()
	var due []string
	for source, last := range w.dirty {
		if now.Sub(last) >= w.debounce {
			due = append(due, source)
			delete(w.dirty, source)
		}
	}
	w.mu.Unlock()

	for _, source := range due {
		w.collectSource(ctx, source)
	}
}

func (w *Watcher) collectSource(ctx context.Context, source string) {
	a := adapter.ByName(source)
	if a == nil {
		return
	}

	w.mu.Lock()
	since := w.lastRun[source]
	w.lastRun[source] = time.Now()
	w.mu.Unlock()

	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	convs, stats := a.Collect(sinceArg)
	if len(convs) == 0 {
		return
	}
	normalized, _ := normalizer.Normalize(convs, "")
	merged := normalizer.Merge(normalized)

	stored := 0
	for _, conv := range merged {
		input, err := conversationInput(conv)
		if err != nil {
			continue
		}
		if _, err := w.gateway.Ingest(ctx, input); err != nil {
			if errors.Is(err, storage.ErrDuplicateConversation) {
				continue
			}
			w.logger.Warn("ingest failed", "source", source, "conversation", conv.ID, "error", err)
			continue
		}
		stored++
	}
	w.logger.Info("collected on change",
		"source", source, "found", stats.Conversations, "stored", stored)
}

func conversationInput(conv models.Conversation) (ingest.Input, error) {
	payload, err := json.Marshal(conv)
	if err != nil {
		return ingest.Input{}, err
	}
	created := conv.CreatedAt
	return ingest.Input{
		Source:               conv.Source,
		SourceConversationID: conv.ID,
		Workspace:            conv.Workspace,
		Title:                conv.Title,
		Content:              payload,
		Metadata:             conv.Metadata,
		SourceCreatedAt:      &created,
		Project:              conv.Project,
		Topics:               conv.Topics,
	}, nil
}

// watchableDirs returns the path plus its direct subdirectories; session
// files usually live one level down (per-project or per-workspace dirs).
func watchableDirs(path string) []string {
	dirs := []string{path}
	entries, err := os.ReadDir(path)
	if err != nil {
		return dirs
	}
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(path, entry.Name()))
		}
	}
	return dirs
}

func sourceForPath(pathSource map[string]string, name string) string {
	dir := filepath.Dir(name)
	if source, ok := pathSource[dir]; ok {
		return source
	}
	// New subdirectory under a watched root.
	if source, ok := pathSource[filepath.Dir(dir)]; ok {
		return source
	}
	return ""
}
