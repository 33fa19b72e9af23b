package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jordanmatta/recollect/internal/classifier"
	"github.com/jordanmatta/recollect/internal/embedding"
	"github.com/jordanmatta/recollect/internal/models"
	"github.com/jordanmatta/recollect/internal/storage"
)

// Deriver turns one raw record into its embedded, classified derived record.
type Deriver struct {
	store    storage.Store
	embedder embedding.Embedder
	logger   *slog.Logger
}

func NewDeriver(store storage.Store, embedder embedding.Embedder, logger *slog.Logger) *Deriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deriver{store: store, embedder: embedder, logger: logger}
}

// payload is the shape DeriveOne understands. Conversations from the
// adapters marshal into it directly; hand-ingested payloads only need a
// messages array.
type payload struct {
	Title     string                 `json:"title"`
	Messages  []payloadMessage       `json:"messages"`
	CreatedAt *time.Time             `json:"created_at"`
	Project   string                 `json:"project"`
	Topics    []string               `json:"topics"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type payloadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeriveOne embeds and classifies one raw record, inserts the derived record
// and stamps the raw as processed. A raw record that already has a derived
// record surfaces storage.ErrAlreadyDerived.
func (d *Deriver) DeriveOne(ctx context.Context, raw *models.RawRecord) (*models.DerivedRecord, error) {
	var p payload
	if err := json.Unmarshal(raw.Payload, &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	text := flatten(p.Messages)

	vec, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	var contentMap map[string]interface{}
	json.Unmarshal(raw.Payload, &contentMap)

	explicitProject := p.Project
	if explicitProject == "" {
		explicitProject, _ = raw.Metadata["project"].(string)
	}
	project := classifier.InferProject(raw.Metadata, contentMap, text, explicitProject)

	topics := p.Topics
	if len(topics) == 0 {
		topics = stringSlice(raw.Metadata["topics"])
	}
	topics = classifier.InferTopics(text, topics)

	sourceCreated := p.CreatedAt
	if sourceCreated == nil && !raw.CapturedAt.IsZero() {
		t := raw.CapturedAt
		sourceCreated = &t
	}

	metadata := map[string]interface{}{}
	for k, v := range raw.Metadata {
		metadata[k] = v
	}
	for k, v := range p.Metadata {
		metadata[k] = v
	}

	rawID := raw.ID
	rec := &models.DerivedRecord{
		ID:                   uuid.New().String(),
		RawID:                &rawID,
		Source:               raw.Source,
		SourceConversationID: raw.SourceConversationID,
		Title:                deriveTitle(&p, raw, text),
		Content:              text,
		RawContent:           string(raw.Payload),
		Embedding:            vec,
		Project:              project,
		Topics:               topics,
		WorkspacePath:        raw.WorkspacePath,
		MessageCount:         len(p.Messages),
		Metadata:             metadata,
		SourceCreatedAt:      sourceCreated,
	}

	if err := d.store.InsertDerived(ctx, rec); err != nil {
		return nil, err
	}
	if err := d.store.MarkRawProcessed(ctx, raw.ID, nil); err != nil {
		return nil, fmt.Errorf("mark processed: %w", err)
	}

	d.logger.Debug("derived record",
		"raw_id", raw.ID, "derived_id", rec.ID, "project", project, "topics", topics)
	return rec, nil
}

// flatten joins messages as "role: content" lines. Empty conversations
// become a single space so the embedding call always has input.
func flatten(msgs []payloadMessage) string {
	var b strings.Builder
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(msg.Role)
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	if b.Len() == 0 {
		return " "
	}
	return b.String()
}

func deriveTitle(p *payload, raw *models.RawRecord, text string) string {
	if p.Title != "" {
		return p.Title
	}
	if title, ok := raw.Metadata["title"].(string); ok && title != "" {
		return title
	}
	for _, msg := range p.Messages {
		if msg.Role == models.RoleUser && strings.TrimSpace(msg.Content) != "" {
			return truncate(msg.Content, 100)
		}
	}
	return truncate(strings.TrimSpace(text), 100)
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// stringSlice converts JSON-decoded topic lists, which arrive as
// []interface{}, back into strings.
func stringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		var out []string
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
