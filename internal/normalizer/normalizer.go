// Package normalizer cleans, validates, deduplicates and merges adapter
// output into one corpus. All dedup state is scoped to a single call so
// repeated or concurrent runs cannot leak hashes into each other.
package normalizer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jordanmatta/recollect/internal/models"
)

// Stats counts what one normalization pass did.
type Stats struct {
	TotalInput         int `json:"total_input"`
	TotalOutput        int `json:"total_output"`
	DuplicatesRemoved  int `json:"duplicates_removed"`
	InvalidRemoved     int `json:"invalid_removed"`
	MessagesNormalized int `json:"messages_normalized"`
	TimestampsFixed    int `json:"timestamps_fixed"`
	RolesStandardized  int `json:"roles_standardized"`
	ContentCleaned     int `json:"content_cleaned"`
}

// dedupState holds the hash sets for one normalization invocation.
type dedupState struct {
	conversations map[string]struct{}
	messages      map[string]struct{}
}

func newDedupState() *dedupState {
	return &dedupState{
		conversations: make(map[string]struct{}),
		messages:      make(map[string]struct{}),
	}
}

var (
	controlChars   = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	zeroWidthChars = regexp.MustCompile("[\u200B\u200C\u200D\uFEFF]")
	spaceRuns      = regexp.MustCompile(`[ \t]+`)
	newlineRuns    = regexp.MustCompile(`\n{3,}`)
)

var roleAliases = map[string]string{
	"user": models.RoleUser, "human": models.RoleUser, "me": models.RoleUser,
	"question": models.RoleUser, "prompt": models.RoleUser, "input": models.RoleUser,
	"assistant": models.RoleAssistant, "ai": models.RoleAssistant, "bot": models.RoleAssistant,
	"claude": models.RoleAssistant, "chatgpt": models.RoleAssistant, "gpt": models.RoleAssistant,
	"cursor": models.RoleAssistant, "windsurf": models.RoleAssistant,
	"response": models.RoleAssistant, "completion": models.RoleAssistant, "output": models.RoleAssistant,
	"system": models.RoleSystem, "instruction": models.RoleSystem, "context": models.RoleSystem,
}

// Normalize cleans and deduplicates a batch. sourceFilter, when non-empty,
// drops conversations from other sources before any work happens. The result
// is deterministic for identical input ordering, and running Normalize over
// its own output changes nothing beyond the idempotent normalized marker.
func Normalize(convs []models.Conversation, sourceFilter string) ([]models.Conversation, *Stats) {
	stats := &Stats{TotalInput: len(convs)}
	state := newDedupState()

	out := make([]models.Conversation, 0, len(convs))
	for _, conv := range convs {
		if sourceFilter != "" && conv.Source != sourceFilter {
			continue
		}
		norm := normalizeConversation(conv, state, stats)
		if norm == nil {
			stats.InvalidRemoved++
			continue
		}
		key := conversationKey(norm)
		if _, seen := state.conversations[key]; seen {
			stats.DuplicatesRemoved++
			continue
		}
		state.conversations[key] = struct{}{}
		out = append(out, *norm)
	}

	stats.TotalOutput = len(out)
	return out, stats
}

func normalizeConversation(conv models.Conversation, state *dedupState, stats *Stats) *models.Conversation {
	if len(conv.Messages) == 0 {
		return nil
	}

	msgs := make([]models.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		norm, ok := normalizeMessage(msg, stats)
		if !ok {
			continue
		}
		key := messageKey(norm)
		if _, seen := state.messages[key]; seen {
			continue
		}
		state.messages[key] = struct{}{}
		msgs = append(msgs, norm)
	}
	if len(msgs) == 0 {
		return nil
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	conv.Messages = msgs

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = msgs[0].Timestamp
		stats.TimestampsFixed++
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = msgs[len(msgs)-1].Timestamp
		stats.TimestampsFixed++
	}
	conv.CreatedAt = conv.CreatedAt.UTC()
	conv.UpdatedAt = conv.UpdatedAt.UTC()

	conv.Title = normalizeTitle(&conv)
	conv.EnsureID()

	if conv.Metadata == nil {
		conv.Metadata = map[string]interface{}{}
	}
	conv.Metadata["normalized"] = true

	return &conv
}

func normalizeMessage(msg models.Message, stats *Stats) (models.Message, bool) {
	stats.MessagesNormalized++

	role := strings.ToLower(strings.TrimSpace(msg.Role))
	canonical, ok := roleAliases[role]
	if !ok {
		canonical = models.RoleAssistant
	}
	if canonical != msg.Role {
		msg.Role = canonical
		stats.RolesStandardized++
	}

	cleaned := CleanContent(msg.Content)
	if cleaned != msg.Content {
		msg.Content = cleaned
		stats.ContentCleaned++
	}
	if strings.TrimSpace(msg.Content) == "" {
		return msg, false
	}

	msg.Timestamp = msg.Timestamp.UTC()
	if msg.MessageID == "" {
		msg.MessageID = models.MessageID(msg.Role, msg.Content)
	}
	return msg, true
}

// CleanContent strips control and zero-width characters, normalizes line
// endings, collapses space runs and squeezes 3+ blank lines down to one.
func CleanContent(content string) string {
	if content == "" {
		return content
	}
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	content = controlChars.ReplaceAllString(content, "")
	content = zeroWidthChars.ReplaceAllString(content, "")
	content = spaceRuns.ReplaceAllString(content, " ")
	content = newlineRuns.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

func normalizeTitle(conv *models.Conversation) string {
	if strings.TrimSpace(conv.Title) != "" {
		title := CleanContent(conv.Title)
		if len(title) > 200 {
			title = cutRunes(title, 197) + "..."
		}
		return title
	}
	for _, msg := range conv.Messages {
		if msg.Role == models.RoleUser {
			title := msg.Content
			if len(title) > 100 {
				title = cutRunes(title, 100) + "..."
			}
			return title
		}
	}
	return conv.Source + " conversation"
}

// cutRunes trims s to at most n bytes without splitting a multi-byte rune.
func cutRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// conversationKey hashes source, the full role:content sequence and the
// calendar date of creation, so the same exchange captured twice on one day
// dedups while a genuinely repeated conversation on another day survives.
func conversationKey(conv *models.Conversation) string {
	var b strings.Builder
	b.WriteString(conv.Source)
	b.WriteString(":")
	for _, msg := range conv.Messages {
		b.WriteString(msg.Role)
		b.WriteString(":")
		b.WriteString(msg.Content)
		b.WriteString(":")
	}
	b.WriteString(conv.CreatedAt.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func messageKey(msg models.Message) string {
	sum := sha256.Sum256([]byte(msg.Role + ":" + msg.Content + ":" + msg.Timestamp.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}
