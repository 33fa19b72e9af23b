package models

import (
	"encoding/json"
	"time"
)

// RawRecord is the immutable capture of one conversation payload. Rows are
// append-only: only ProcessedAt, ProcessingError and RetryCount change after
// insert, and only the deriver or worker touches them.
type RawRecord struct {
	ID                   string                 `json:"id"`
	Source               string                 `json:"source"`
	SourceConversationID string                 `json:"source_conversation_id,omitempty"`
	WorkspacePath        string                 `json:"workspace_path,omitempty"`
	Payload              json.RawMessage        `json:"payload"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	CapturedAt           time.Time              `json:"captured_at"`
	InsertedAt           time.Time              `json:"inserted_at"`
	ProcessedAt          *time.Time             `json:"processed_at,omitempty"`
	ProcessingError      *string                `json:"processing_error,omitempty"`
	RetryCount           int                    `json:"retry_count"`
}

// Derived reports whether the record reached a successful derivation.
func (r *RawRecord) Derived() bool {
	return r.ProcessedAt != nil && r.ProcessingError == nil
}

// TerminallyFailed reports whether the record was given up on.
func (r *RawRecord) TerminallyFailed() bool {
	return r.ProcessedAt != nil && r.ProcessingError != nil
}

// DerivedRecord is the enriched, embedded form of one raw record. Exactly one
// derived record exists per successfully processed raw record.
type DerivedRecord struct {
	ID                   string                 `json:"id"`
	RawID                *string                `json:"raw_id,omitempty"`
	Source               string                 `json:"source"`
	SourceConversationID string                 `json:"source_conversation_id,omitempty"`
	Title                string                 `json:"title"`
	Content              string                 `json:"content"`
	RawContent           string                 `json:"raw_content,omitempty"`
	Embedding            []float32              `json:"embedding,omitempty"`
	Project              string                 `json:"project,omitempty"`
	Topics               []string               `json:"topics,omitempty"`
	WorkspacePath        string                 `json:"workspace_path,omitempty"`
	MessageCount         int                    `json:"message_count"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	SourceCreatedAt      *time.Time             `json:"source_created_at,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

// SearchResult is one ranked hit returned to the search caller.
type SearchResult struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Source         string    `json:"source"`
	Project        string    `json:"project,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
	Similarity     float64   `json:"similarity"`
	Combined       float64   `json:"combined"`
	CreatedAt      time.Time `json:"created_at"`
	ContentPreview string    `json:"content_preview"`
}

// StoreStats summarizes the persistent store for the stats command.
type StoreStats struct {
	TotalRaw          int            `json:"total_raw"`
	PendingRaw        int            `json:"pending_raw"`
	FailedRaw         int            `json:"failed_raw"`
	TotalDerived      int            `json:"total_derived"`
	TotalMessages     int            `json:"total_messages"`
	SourceBreakdown   map[string]int `json:"source_breakdown"`
	ProjectBreakdown  map[string]int `json:"project_breakdown"`
	EarliestDerivedAt *time.Time     `json:"earliest_derived_at,omitempty"`
	LatestDerivedAt   *time.Time     `json:"latest_derived_at,omitempty"`
}
