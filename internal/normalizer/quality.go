package normalizer

import (
	"fmt"
	"time"

	"github.com/jordanmatta/recollect/internal/models"
)

const (
	minMessageLength = 2
	maxMessageLength = 50000
)

// Issue is one non-fatal quality flag raised against a conversation.
type Issue struct {
	ConversationID string `json:"conversation_id"`
	Flag           string `json:"flag"`
	Detail         string `json:"detail,omitempty"`
}

// Report aggregates quality flags and corpus-level statistics for one batch.
type Report struct {
	Issues           []Issue        `json:"issues,omitempty"`
	Dropped          []Issue        `json:"dropped,omitempty"`
	TotalMessages    int            `json:"total_messages"`
	TotalWords       int            `json:"total_words"`
	AvgMessageLength float64        `json:"avg_message_length"`
	SourceBreakdown  map[string]int `json:"source_breakdown"`
	MinTimestamp     *time.Time     `json:"min_timestamp,omitempty"`
	MaxTimestamp     *time.Time     `json:"max_timestamp,omitempty"`
}

var validRoles = map[string]bool{
	models.RoleUser:      true,
	models.RoleAssistant: true,
	models.RoleSystem:    true,
}

// ValidateQuality checks structural invariants and heuristics over a batch.
// Structurally broken conversations are dropped with the reason recorded;
// everything else is kept and merely flagged.
func ValidateQuality(convs []models.Conversation) ([]models.Conversation, *Report) {
	report := &Report{SourceBreakdown: make(map[string]int)}
	valid := make([]models.Conversation, 0, len(convs))

	totalLength := 0
	for _, conv := range convs {
		if reason := structuralProblem(&conv); reason != "" {
			report.Dropped = append(report.Dropped, Issue{ConversationID: conv.ID, Flag: "invalid", Detail: reason})
			continue
		}

		flagConversation(&conv, report)
		valid = append(valid, conv)

		report.SourceBreakdown[conv.Source]++
		report.TotalMessages += len(conv.Messages)
		report.TotalWords += conv.WordCount()
		for _, msg := range conv.Messages {
			totalLength += len(msg.Content)
		}
		trackTimestamps(&conv, report)
	}

	if report.TotalMessages > 0 {
		report.AvgMessageLength = float64(totalLength) / float64(report.TotalMessages)
	}
	return valid, report
}

func structuralProblem(conv *models.Conversation) string {
	if conv.ID == "" {
		return "missing id"
	}
	if len(conv.Messages) == 0 {
		return "no messages"
	}
	if conv.CreatedAt.IsZero() {
		return "missing created_at"
	}
	for _, msg := range conv.Messages {
		if !validRoles[msg.Role] {
			return fmt.Sprintf("unknown role %q", msg.Role)
		}
	}
	return ""
}

func flagConversation(conv *models.Conversation, report *Report) {
	add := func(flag, detail string) {
		report.Issues = append(report.Issues, Issue{ConversationID: conv.ID, Flag: flag, Detail: detail})
	}

	if len(conv.Messages) < 2 {
		add("too-few-messages", fmt.Sprintf("%d message(s)", len(conv.Messages)))
	}

	hasUser, hasAssistant := false, false
	lastTS := time.Time{}
	ordered := true
	for _, msg := range conv.Messages {
		switch msg.Role {
		case models.RoleUser:
			hasUser = true
		case models.RoleAssistant:
			hasAssistant = true
		}
		if msg.Content == "" {
			add("empty-message", msg.MessageID)
		}
		if length := len(msg.Content); length > 0 && length < minMessageLength {
			add("message-too-short", msg.MessageID)
		} else if length > maxMessageLength {
			add("message-too-long", msg.MessageID)
		}
		if !lastTS.IsZero() && msg.Timestamp.Before(lastTS) {
			ordered = false
		}
		lastTS = msg.Timestamp
	}

	if !hasUser {
		add("missing-user-turn", "")
	}
	if !hasAssistant {
		add("missing-assistant-turn", "")
	}
	if !ordered {
		add("out-of-order-timestamps", "")
	}
}

func trackTimestamps(conv *models.Conversation, report *Report) {
	for _, msg := range conv.Messages {
		ts := msg.Timestamp
		if report.MinTimestamp == nil || ts.Before(*report.MinTimestamp) {
			t := ts
			report.MinTimestamp = &t
		}
		if report.MaxTimestamp == nil || ts.After(*report.MaxTimestamp) {
			t := ts
			report.MaxTimestamp = &t
		}
	}
}
