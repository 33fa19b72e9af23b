package adapter

import (
	"os"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

// Adapter extracts conversations from one tool's on-disk storage. Collect is
// best-effort: a broken file or row is recorded in Stats and skipped, never
// surfaced as an error.
type Adapter interface {
	Name() string
	StoragePaths() []string
	Collect(since *time.Time) ([]models.Conversation, *Stats)
}

// ParseFailure records one attempted parse that did not produce a result.
type ParseFailure struct {
	Path     string `json:"path"`
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Stats accumulates per-run counters for one adapter invocation. Failures are
// kept instead of discarded so a collection run can be diagnosed afterwards.
type Stats struct {
	Source        string         `json:"source"`
	Conversations int            `json:"conversations"`
	Messages      int            `json:"messages"`
	Warnings      int            `json:"warnings"`
	Skipped       int            `json:"skipped"`
	Failures      []ParseFailure `json:"failures,omitempty"`
}

func newStats(source string) *Stats {
	return &Stats{Source: source}
}

func (s *Stats) fail(path, strategy, reason string) {
	s.Failures = append(s.Failures, ParseFailure{Path: path, Strategy: strategy, Reason: reason})
}

// All returns every supported adapter.
func All() []Adapter {
	return []Adapter{
		NewClaudeCode(),
		NewClaudeDesktop(),
		NewCursor(),
		NewWindsurf(),
		NewChatGPT(),
	}
}

// ByName looks up a single adapter, or nil if the source is unknown.
func ByName(name string) Adapter {
	for _, a := range All() {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// existingPaths filters a candidate list down to paths present on this machine.
func existingPaths(candidates []string) []string {
	var out []string
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// finishCollect applies the shared post-collection pipeline: id/content-hash
// dedup, since filtering and counter updates.
func finishCollect(convs []models.Conversation, since *time.Time, st *Stats) []models.Conversation {
	convs = dedupeConversations(convs, st)
	convs = filterSince(convs, since)
	st.Conversations = len(convs)
	for i := range convs {
		st.Messages += len(convs[i].Messages)
	}
	return convs
}

func dedupeConversations(convs []models.Conversation, st *Stats) []models.Conversation {
	seenIDs := make(map[string]bool)
	seenHashes := make(map[string]bool)
	out := make([]models.Conversation, 0, len(convs))
	for _, conv := range convs {
		if seenIDs[conv.ID] {
			st.Skipped++
			continue
		}
		hash := conv.ContentHash()
		if seenHashes[hash] {
			st.Skipped++
			continue
		}
		seenIDs[conv.ID] = true
		seenHashes[hash] = true
		out = append(out, conv)
	}
	return out
}

func filterSince(convs []models.Conversation, since *time.Time) []models.Conversation {
	if since == nil {
		return convs
	}
	cutoff := since.UTC()
	out := make([]models.Conversation, 0, len(convs))
	for _, conv := range convs {
		if conv.UpdatedAt.Before(cutoff) && conv.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, conv)
	}
	return out
}
