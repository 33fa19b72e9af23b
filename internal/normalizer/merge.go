package normalizer

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jordanmatta/recollect/internal/models"
)

// mergeGap is the longest pause between two captures that still counts as one
// ongoing session.
const mergeGap = 30 * time.Minute

// boundarySimilarity is the Jaccard token-overlap threshold between the tail
// of one conversation and the head of the next.
const boundarySimilarity = 0.7

// Merge folds conversations that continue each other into single
// conversations. Candidates must share a source and sit within mergeGap of
// each other, and either carry the same thread id or have overlapping
// boundary text.
func Merge(convs []models.Conversation) []models.Conversation {
	if len(convs) == 0 {
		return nil
	}

	sorted := make([]models.Conversation, len(convs))
	copy(sorted, convs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var merged []models.Conversation
	group := []models.Conversation{sorted[0]}

	for _, conv := range sorted[1:] {
		if shouldMerge(&group[len(group)-1], &conv) {
			group = append(group, conv)
			continue
		}
		merged = append(merged, mergeGroup(group))
		group = []models.Conversation{conv}
	}
	merged = append(merged, mergeGroup(group))

	return merged
}

func shouldMerge(prev, next *models.Conversation) bool {
	if prev.Source != next.Source {
		return false
	}
	if next.CreatedAt.Sub(prev.UpdatedAt) > mergeGap {
		return false
	}
	if prev.ThreadID != "" && prev.ThreadID == next.ThreadID {
		return true
	}
	if len(prev.Messages) == 0 || len(next.Messages) == 0 {
		return false
	}
	tail := lastChars(prev.Messages[len(prev.Messages)-1].Content, 100)
	head := firstChars(next.Messages[0].Content, 100)
	return jaccard(tail, head) > boundarySimilarity
}

// jaccard computes word-level token overlap between two snippets.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(s)) {
		set[token] = struct{}{}
	}
	return set
}

func mergeGroup(group []models.Conversation) models.Conversation {
	if len(group) == 1 {
		return group[0]
	}

	seen := make(map[string]struct{})
	var msgs []models.Message
	for _, conv := range group {
		for _, msg := range conv.Messages {
			key := messageKey(msg)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			msgs = append(msgs, msg)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	first := group[0]
	last := group[len(group)-1]

	mergedIDs := make([]string, 0, len(group))
	for _, conv := range group {
		mergedIDs = append(mergedIDs, conv.ID)
	}

	metadata := map[string]interface{}{}
	for _, conv := range group {
		for k, v := range conv.Metadata {
			metadata[k] = v
		}
	}
	metadata["merged"] = true
	metadata["merged_count"] = len(group)
	metadata["merged_ids"] = mergedIDs

	return models.Conversation{
		ID:        first.ID,
		Source:    first.Source,
		Title:     mergedTitle(group),
		Messages:  msgs,
		CreatedAt: first.CreatedAt,
		UpdatedAt: last.UpdatedAt,
		ThreadID:  first.ThreadID,
		Project:   first.Project,
		Workspace: first.Workspace,
		Tags:      unionTags(group),
		Metadata:  metadata,
	}
}

// mergedTitle prefers a title that isn't the generated source fallback.
func mergedTitle(group []models.Conversation) string {
	for _, conv := range group {
		if conv.Title != "" && !strings.HasPrefix(conv.Title, conv.Source) {
			return conv.Title
		}
	}
	return group[0].Title
}

func unionTags(group []models.Conversation) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, conv := range group {
		for _, tag := range conv.Tags {
			if _, ok := seen[tag]; ok {
				continue
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		}
	}
	return tags
}

// firstChars and lastChars take byte windows off either end of a snippet,
// widened or narrowed so a multi-byte rune is never cut in half.
func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
