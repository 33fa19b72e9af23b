package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jordanmatta/recollect/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "recollect_test.db")
	cfg.Dimensions = 3

	store, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func rawRecord(id, source, sourceConvID string) *models.RawRecord {
	return &models.RawRecord{
		ID:                   id,
		Source:               source,
		SourceConversationID: sourceConvID,
		Payload:              json.RawMessage(`{"messages":[{"role":"user","content":"hi"}]}`),
		CapturedAt:           time.Now().UTC(),
	}
}

func TestSQLiteRawRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		rec := rawRecord("raw-1", "cursor", "conv-abc")
		rec.Metadata = map[string]interface{}{"project": "demo"}

		if err := store.InsertRaw(ctx, rec); err != nil {
			t.Fatalf("Failed to insert raw record: %v", err)
		}

		got, err := store.GetRaw(ctx, "raw-1")
		if err != nil {
			t.Fatalf("Failed to get raw record: %v", err)
		}
		if got.Source != "cursor" || got.SourceConversationID != "conv-abc" {
			t.Errorf("Round-trip mismatch: %+v", got)
		}
		if got.ProcessedAt != nil {
			t.Error("New record should not be processed")
		}
		if got.Metadata["project"] != "demo" {
			t.Errorf("Metadata lost: %v", got.Metadata)
		}
	})

	t.Run("DuplicateSourceConversation", func(t *testing.T) {
		err := store.InsertRaw(ctx, rawRecord("raw-2", "cursor", "conv-abc"))
		if !errors.Is(err, ErrDuplicateConversation) {
			t.Errorf("Expected ErrDuplicateConversation, got %v", err)
		}
	})

	t.Run("EmptySourceConversationIDsDoNotCollide", func(t *testing.T) {
		if err := store.InsertRaw(ctx, rawRecord("raw-3", "cursor", "")); err != nil {
			t.Fatalf("First empty-id insert failed: %v", err)
		}
		if err := store.InsertRaw(ctx, rawRecord("raw-4", "cursor", "")); err != nil {
			t.Errorf("Second empty-id insert should not collide: %v", err)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.GetRaw(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestSQLitePendingAndFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := rawRecord("raw-old", "chatgpt", "a")
	first.InsertedAt = time.Now().UTC().Add(-time.Hour)
	second := rawRecord("raw-new", "chatgpt", "b")

	if err := store.InsertRaw(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertRaw(ctx, second); err != nil {
		t.Fatal(err)
	}

	pending, err := store.PendingRaw(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to query pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending, got %d", len(pending))
	}
	if pending[0].ID != "raw-old" {
		t.Errorf("Pending must be oldest-first, got %s first", pending[0].ID)
	}

	// Failures keep the record pending.
	for want := 1; want <= 2; want++ {
		count, err := store.RecordRawFailure(ctx, "raw-old", "embed timeout")
		if err != nil {
			t.Fatalf("Failed to record failure: %v", err)
		}
		if count != want {
			t.Errorf("Retry count: got %d, want %d", count, want)
		}
	}
	pending, _ = store.PendingRaw(ctx, 10)
	if len(pending) != 2 {
		t.Errorf("Failed record should stay pending, got %d", len(pending))
	}

	// Terminal failure stamps processed_at with the error.
	reason := "embed timeout"
	if err := store.MarkRawProcessed(ctx, "raw-old", &reason); err != nil {
		t.Fatalf("Failed to mark processed: %v", err)
	}
	pending, _ = store.PendingRaw(ctx, 10)
	if len(pending) != 1 || pending[0].ID != "raw-new" {
		t.Errorf("Terminal record must leave the queue: %+v", pending)
	}

	got, _ := store.GetRaw(ctx, "raw-old")
	if !got.TerminallyFailed() {
		t.Errorf("Record should be terminally failed: %+v", got)
	}

	// Success path has a nil error.
	if err := store.MarkRawProcessed(ctx, "raw-new", nil); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetRaw(ctx, "raw-new")
	if !got.Derived() {
		t.Errorf("Record should be derived: %+v", got)
	}

	if err := store.MarkRawProcessed(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func derivedRecord(id, rawID string, embedding []float32, created time.Time) *models.DerivedRecord {
	rec := &models.DerivedRecord{
		ID:           id,
		Source:       "cursor",
		Title:        "Title " + id,
		Content:      "user: docker compose failing assistant: check the logs",
		Embedding:    embedding,
		Project:      "demo",
		Topics:       []string{"Docker-First Development"},
		MessageCount: 2,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if rawID != "" {
		rec.RawID = &rawID
	}
	return rec
}

func TestSQLiteDerivedRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertRaw(ctx, rawRecord("raw-1", "cursor", "c1")); err != nil {
		t.Fatal(err)
	}

	created := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	rec := derivedRecord("drv-1", "raw-1", []float32{1, 0, 0}, created)
	if err := store.InsertDerived(ctx, rec); err != nil {
		t.Fatalf("Failed to insert derived: %v", err)
	}

	t.Run("SecondDerivationRejected", func(t *testing.T) {
		dup := derivedRecord("drv-2", "raw-1", []float32{1, 0, 0}, created)
		if err := store.InsertDerived(ctx, dup); !errors.Is(err, ErrAlreadyDerived) {
			t.Errorf("Expected ErrAlreadyDerived, got %v", err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		got, err := store.GetDerived(ctx, "drv-1")
		if err != nil {
			t.Fatalf("Failed to get derived: %v", err)
		}
		if got.RawID == nil || *got.RawID != "raw-1" {
			t.Errorf("RawID mismatch: %v", got.RawID)
		}
		if len(got.Embedding) != 3 || got.Embedding[0] != 1 {
			t.Errorf("Embedding mismatch: %v", got.Embedding)
		}
		if len(got.Topics) != 1 || got.Topics[0] != "Docker-First Development" {
			t.Errorf("Topics mismatch: %v", got.Topics)
		}
	})

	t.Run("List", func(t *testing.T) {
		records, err := store.ListDerived(ctx, ListFilter{Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 record, got %d", len(records))
		}
	})

	t.Run("SearchText", func(t *testing.T) {
		records, err := store.SearchText(ctx, "docker", 10)
		if err != nil {
			t.Fatalf("Failed to search text: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("Expected 1 keyword hit, got %d", len(records))
		}
	})
}

func TestSQLiteListDerivedFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		rec := derivedRecord(fmt.Sprintf("drv-%d", i), "", []float32{1, 0, 0}, base.Add(time.Duration(i)*time.Minute))
		if i%2 == 0 {
			rec.Source = "chatgpt"
			rec.Project = "research"
		}
		if err := store.InsertDerived(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("SourceFilterFillsPages", func(t *testing.T) {
		// Filters must apply before pagination so every page is full.
		page, err := store.ListDerived(ctx, ListFilter{Limit: 2, Source: "chatgpt"})
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 2 {
			t.Fatalf("First page: got %d records, want 2", len(page))
		}
		for _, rec := range page {
			if rec.Source != "chatgpt" {
				t.Errorf("Wrong source in page: %s", rec.Source)
			}
		}

		rest, err := store.ListDerived(ctx, ListFilter{Limit: 2, Offset: 2, Source: "chatgpt"})
		if err != nil {
			t.Fatal(err)
		}
		if len(rest) != 1 {
			t.Fatalf("Second page: got %d records, want 1", len(rest))
		}
		if rest[0].ID == page[0].ID || rest[0].ID == page[1].ID {
			t.Errorf("Pages overlap: %s seen twice", rest[0].ID)
		}
	})

	t.Run("ProjectFilter", func(t *testing.T) {
		records, err := store.ListDerived(ctx, ListFilter{Limit: 10, Project: "research"})
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 3 {
			t.Errorf("Project filter: got %d records, want 3", len(records))
		}
	})

	t.Run("CombinedFilters", func(t *testing.T) {
		records, err := store.ListDerived(ctx, ListFilter{Limit: 10, Source: "cursor", Project: "research"})
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 0 {
			t.Errorf("Disjoint filters should match nothing, got %d", len(records))
		}
	})

	t.Run("NewestFirst", func(t *testing.T) {
		records, err := store.ListDerived(ctx, ListFilter{Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 6 || records[0].ID != "drv-5" {
			t.Errorf("Expected drv-5 first of 6, got %d records starting with %s", len(records), records[0].ID)
		}
	})
}

func TestTruncateContentRuneSafe(t *testing.T) {
	// "héllo wörld" repeated pushes multi-byte runes across the cut point.
	content := strings.Repeat("héllo wörld ", 30)
	preview := truncateContent(content, 100)

	if !utf8.ValidString(preview) {
		t.Errorf("Preview contains a split rune: %q", preview)
	}
	if !strings.HasSuffix(preview, "...") {
		t.Errorf("Preview missing ellipsis: %q", preview)
	}
	if len(preview) > 103 {
		t.Errorf("Preview too long: %d bytes", len(preview))
	}

	if got := truncateContent("short", 100); got != "short" {
		t.Errorf("Short content should pass through, got %q", got)
	}
}

func TestSQLiteSearchSimilar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	records := []*models.DerivedRecord{
		derivedRecord("drv-a", "", []float32{1, 0, 0}, created),
		derivedRecord("drv-b", "", []float32{0.8, 0.6, 0}, created),
		derivedRecord("drv-c", "", []float32{0, 1, 0}, created),
	}
	records[2].Source = "chatgpt"
	for _, rec := range records {
		if err := store.InsertDerived(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	query := []float32{1, 0, 0}

	t.Run("OrderedBySimilarity", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, query, SearchFilter{Limit: 10})
		if err != nil {
			t.Fatalf("Failed to search: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("Expected 3 results, got %d", len(results))
		}
		if results[0].ID != "drv-a" || results[1].ID != "drv-b" {
			t.Errorf("Wrong order: %s, %s", results[0].ID, results[1].ID)
		}
		if results[0].Similarity < 0.999 {
			t.Errorf("Identical vector should score ~1, got %f", results[0].Similarity)
		}
	})

	t.Run("ThresholdExcludes", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, query, SearchFilter{Limit: 10, Threshold: 0.9})
		if err != nil {
			t.Fatal(err)
		}
		for _, r := range results {
			if r.Similarity < 0.9 {
				t.Errorf("Result %s below threshold: %f", r.ID, r.Similarity)
			}
		}
		if len(results) != 1 {
			t.Errorf("Expected only the exact match, got %d", len(results))
		}
	})

	t.Run("SourceFilter", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, query, SearchFilter{Limit: 10, Source: "chatgpt"})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 || results[0].ID != "drv-c" {
			t.Errorf("Source filter failed: %+v", results)
		}
	})

	t.Run("TopicFilter", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, query, SearchFilter{Limit: 10, Topic: "Docker-First Development"})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 3 {
			t.Errorf("Topic filter should match all, got %d", len(results))
		}
	})
}

func TestSQLiteStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.InsertRaw(ctx, rawRecord("raw-1", "cursor", "c1")); err != nil {
		t.Fatal(err)
	}
	created := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	if err := store.InsertDerived(ctx, derivedRecord("drv-1", "raw-1", []float32{1, 0, 0}, created)); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.TotalRaw != 1 || stats.PendingRaw != 1 || stats.TotalDerived != 1 {
		t.Errorf("Counts wrong: %+v", stats)
	}
	if stats.TotalMessages != 2 {
		t.Errorf("TotalMessages: got %d, want 2", stats.TotalMessages)
	}
	if stats.SourceBreakdown["cursor"] != 1 {
		t.Errorf("SourceBreakdown: %v", stats.SourceBreakdown)
	}
	if stats.ProjectBreakdown["demo"] != 1 {
		t.Errorf("ProjectBreakdown: %v", stats.ProjectBreakdown)
	}
	if stats.EarliestDerivedAt == nil || stats.LatestDerivedAt == nil {
		t.Error("Derived timespan missing")
	}
}
