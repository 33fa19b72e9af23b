// Package ingest accepts conversation payloads, persists them as immutable
// raw records, and derives embedded records either inline or through the
// async worker.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordanmatta/recollect/internal/models"
	"github.com/jordanmatta/recollect/internal/storage"
)

// ErrInvalidInput wraps all input validation failures.
var ErrInvalidInput = errors.New("invalid ingest input")

// Modes for Gateway.Ingest.
const (
	ModeSync   = "sync"
	ModeQueued = "queued"
)

// Input is one conversation payload handed to the gateway.
type Input struct {
	Source               string                 `json:"source"`
	SourceConversationID string                 `json:"source_conversation_id,omitempty"`
	Workspace            string                 `json:"workspace,omitempty"`
	Title                string                 `json:"title,omitempty"`
	Content              json.RawMessage        `json:"content"`
	Metadata             map[string]interface{} `json:"metadata,omitempty"`
	SourceCreatedAt      *time.Time             `json:"source_created_at,omitempty"`
	Project              string                 `json:"project,omitempty"`
	Topics               []string               `json:"topics,omitempty"`
}

// Validate checks the fields a raw record cannot be stored without.
func (in *Input) Validate() error {
	if strings.TrimSpace(in.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}
	if len(in.Content) == 0 {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if !json.Valid(in.Content) {
		return fmt.Errorf("%w: content is not valid JSON", ErrInvalidInput)
	}
	return nil
}

// Result is what Ingest returns. In queued mode only RawID and Status are
// set; in sync mode Derived carries the finished record.
type Result struct {
	RawID   string                `json:"raw_id"`
	Status  string                `json:"status"`
	Derived *models.DerivedRecord `json:"derived,omitempty"`
}

// Gateway is the single entry point for writes.
type Gateway struct {
	store   storage.Store
	deriver *Deriver
	mode    string
	logger  *slog.Logger
}

// NewGateway builds a gateway. mode is ModeSync or ModeQueued; anything else
// falls back to sync.
func NewGateway(store storage.Store, deriver *Deriver, mode string, logger *slog.Logger) *Gateway {
	if mode != ModeQueued {
		mode = ModeSync
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{store: store, deriver: deriver, mode: mode, logger: logger}
}

// workspaceHintKeys are checked, in order, when no explicit workspace is
// given.
var workspaceHintKeys = []string{"workspace", "workspace_path", "project_path", "cwd"}

// StoreRaw persists the payload as an immutable raw record. Storage is
// durable regardless of whether derivation ever succeeds. A payload already
// stored for this (source, source_conversation_id) surfaces
// storage.ErrDuplicateConversation.
func (g *Gateway) StoreRaw(ctx context.Context, in Input) (*models.RawRecord, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if in.Title != "" {
		metadata["title"] = in.Title
	}
	if in.Project != "" {
		metadata["project"] = in.Project
	}
	if len(in.Topics) > 0 {
		metadata["topics"] = in.Topics
	}

	capturedAt := time.Now().UTC()
	if in.SourceCreatedAt != nil {
		capturedAt = in.SourceCreatedAt.UTC()
	}

	rec := &models.RawRecord{
		ID:                   uuid.New().String(),
		Source:               in.Source,
		SourceConversationID: in.SourceConversationID,
		WorkspacePath:        resolveWorkspace(in),
		Payload:              in.Content,
		Metadata:             metadata,
		CapturedAt:           capturedAt,
	}

	if err := g.store.InsertRaw(ctx, rec); err != nil {
		return nil, err
	}
	g.logger.Debug("stored raw record", "id", rec.ID, "source", rec.Source)
	return rec, nil
}

// Ingest stores the raw record and, in sync mode, derives it immediately.
func (g *Gateway) Ingest(ctx context.Context, in Input) (*Result, error) {
	raw, err := g.StoreRaw(ctx, in)
	if err != nil {
		return nil, err
	}

	if g.mode == ModeQueued {
		return &Result{RawID: raw.ID, Status: "queued"}, nil
	}

	derived, err := g.deriver.DeriveOne(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", raw.ID, err)
	}
	return &Result{RawID: raw.ID, Status: "derived", Derived: derived}, nil
}

// resolveWorkspace applies the precedence explicit > content hint > metadata
// hint.
func resolveWorkspace(in Input) string {
	if in.Workspace != "" {
		return in.Workspace
	}

	var content map[string]interface{}
	if err := json.Unmarshal(in.Content, &content); err == nil {
		for _, key := range workspaceHintKeys {
			if v, ok := content[key].(string); ok && v != "" {
				return v
			}
		}
	}
	for _, key := range workspaceHintKeys {
		if v, ok := in.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
