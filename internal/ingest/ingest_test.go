package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanmatta/recollect/internal/embedding"
	"github.com/jordanmatta/recollect/internal/storage"
)

// fakeEmbedder returns a fixed-width vector, or a scripted error.
type fakeEmbedder struct {
	dims  int
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, f.dims)
	for i := range vec {
		vec[i] = float32(len(text)%7) + float32(i)
	}
	return vec, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	cfg := storage.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "ingest_test.db")
	store, err := storage.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dockerInput() Input {
	return Input{
		Source:               "claude-code",
		SourceConversationID: "sess-77",
		Content: json.RawMessage(`{
			"title": "",
			"messages": [
				{"role": "user", "content": "Docker compose failing"},
				{"role": "assistant", "content": "Check docker-compose logs"}
			]
		}`),
	}
}

func TestInputValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"missing source", Input{Content: json.RawMessage(`{}`)}},
		{"missing content", Input{Source: "cursor"}},
		{"invalid json", Input{Source: "cursor", Content: json.RawMessage(`{nope`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	assert.NoError(t, (&Input{Source: "cursor", Content: json.RawMessage(`{"messages":[]}`)}).Validate())
}

func TestStoreRawWorkspacePrecedence(t *testing.T) {
	store := newTestStore(t)
	gw := NewGateway(store, nil, ModeQueued, nil)
	ctx := context.Background()

	content := json.RawMessage(`{"workspace": "/from/content", "messages": []}`)

	t.Run("explicit wins", func(t *testing.T) {
		raw, err := gw.StoreRaw(ctx, Input{
			Source:    "cursor",
			Workspace: "/explicit",
			Content:   content,
			Metadata:  map[string]interface{}{"workspace": "/from/metadata"},
		})
		require.NoError(t, err)
		assert.Equal(t, "/explicit", raw.WorkspacePath)
	})

	t.Run("content beats metadata", func(t *testing.T) {
		raw, err := gw.StoreRaw(ctx, Input{
			Source:   "cursor",
			Content:  content,
			Metadata: map[string]interface{}{"workspace": "/from/metadata"},
		})
		require.NoError(t, err)
		assert.Equal(t, "/from/content", raw.WorkspacePath)
	})

	t.Run("metadata as fallback", func(t *testing.T) {
		raw, err := gw.StoreRaw(ctx, Input{
			Source:   "cursor",
			Content:  json.RawMessage(`{"messages": []}`),
			Metadata: map[string]interface{}{"workspace": "/from/metadata"},
		})
		require.NoError(t, err)
		assert.Equal(t, "/from/metadata", raw.WorkspacePath)
	})
}

func TestStoreRawDuplicate(t *testing.T) {
	store := newTestStore(t)
	gw := NewGateway(store, nil, ModeQueued, nil)
	ctx := context.Background()

	_, err := gw.StoreRaw(ctx, dockerInput())
	require.NoError(t, err)

	_, err = gw.StoreRaw(ctx, dockerInput())
	assert.ErrorIs(t, err, storage.ErrDuplicateConversation)
}

func TestIngestSyncDerivesAndClassifies(t *testing.T) {
	store := newTestStore(t)
	deriver := NewDeriver(store, &fakeEmbedder{dims: 3}, nil)
	gw := NewGateway(store, deriver, ModeSync, nil)
	ctx := context.Background()

	result, err := gw.Ingest(ctx, dockerInput())
	require.NoError(t, err)
	require.NotNil(t, result.Derived)

	derived := result.Derived
	assert.Equal(t, "derived", result.Status)
	assert.Equal(t, []string{"Docker-First Development"}, derived.Topics)
	assert.Equal(t, "Docker compose failing", derived.Title)
	assert.Equal(t, 2, derived.MessageCount)
	assert.Len(t, derived.Embedding, 3)
	assert.Contains(t, derived.Content, "user: Docker compose failing")

	// The raw record is stamped processed without an error.
	raw, err := store.GetRaw(ctx, result.RawID)
	require.NoError(t, err)
	assert.True(t, raw.Derived())
}

func TestIngestQueued(t *testing.T) {
	store := newTestStore(t)
	gw := NewGateway(store, nil, ModeQueued, nil)

	result, err := gw.Ingest(context.Background(), dockerInput())
	require.NoError(t, err)
	assert.Equal(t, "queued", result.Status)
	assert.NotEmpty(t, result.RawID)
	assert.Nil(t, result.Derived)

	pending, err := store.PendingRaw(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestDeriveOneTwiceRejected(t *testing.T) {
	store := newTestStore(t)
	deriver := NewDeriver(store, &fakeEmbedder{dims: 3}, nil)
	gw := NewGateway(store, deriver, ModeQueued, nil)
	ctx := context.Background()

	raw, err := gw.StoreRaw(ctx, dockerInput())
	require.NoError(t, err)

	_, err = deriver.DeriveOne(ctx, raw)
	require.NoError(t, err)

	_, err = deriver.DeriveOne(ctx, raw)
	assert.ErrorIs(t, err, storage.ErrAlreadyDerived)
}

func TestDeriveOneEmptyConversation(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{dims: 3}
	deriver := NewDeriver(store, embedder, nil)
	gw := NewGateway(store, deriver, ModeQueued, nil)
	ctx := context.Background()

	raw, err := gw.StoreRaw(ctx, Input{
		Source:  "cursor",
		Content: json.RawMessage(`{"messages": []}`),
	})
	require.NoError(t, err)

	derived, err := deriver.DeriveOne(ctx, raw)
	require.NoError(t, err)
	// Empty conversations still embed a placeholder instead of failing.
	assert.Equal(t, " ", derived.Content)
	assert.Equal(t, []string{"General"}, derived.Topics)
	assert.Equal(t, 1, embedder.calls)
}

func TestWorkerRetryCeiling(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{
		dims: 3,
		err:  &embedding.RetryableError{Err: errors.New("model unavailable")},
	}
	deriver := NewDeriver(store, embedder, nil)
	gw := NewGateway(store, deriver, ModeQueued, nil)
	worker := NewWorker(store, deriver, WorkerConfig{BatchSize: 5, IdleInterval: time.Millisecond, MaxRetries: 3}, nil)
	ctx := context.Background()

	result, err := gw.Ingest(ctx, dockerInput())
	require.NoError(t, err)

	// Two failed attempts leave the record pending with a growing count.
	for attempt := 1; attempt <= 2; attempt++ {
		processed, err := worker.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, processed)

		raw, err := store.GetRaw(ctx, result.RawID)
		require.NoError(t, err)
		assert.Equal(t, attempt, raw.RetryCount)
		assert.Nil(t, raw.ProcessedAt)
	}

	// Third failure hits the ceiling: terminal, error retained.
	_, err = worker.ProcessBatch(ctx)
	require.NoError(t, err)

	raw, err := store.GetRaw(ctx, result.RawID)
	require.NoError(t, err)
	assert.Equal(t, 3, raw.RetryCount)
	assert.True(t, raw.TerminallyFailed())
	require.NotNil(t, raw.ProcessingError)
	assert.Contains(t, *raw.ProcessingError, "model unavailable")

	// Terminal records leave the queue for good.
	processed, err := worker.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestWorkerPermanentFailure(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{dims: 3, err: errors.New("wrong dimensions")}
	deriver := NewDeriver(store, embedder, nil)
	gw := NewGateway(store, deriver, ModeQueued, nil)
	worker := NewWorker(store, deriver, DefaultWorkerConfig(), nil)
	ctx := context.Background()

	result, err := gw.Ingest(ctx, dockerInput())
	require.NoError(t, err)

	_, err = worker.ProcessBatch(ctx)
	require.NoError(t, err)

	raw, err := store.GetRaw(ctx, result.RawID)
	require.NoError(t, err)
	assert.True(t, raw.TerminallyFailed(), "non-retryable errors go terminal on the first attempt")
	assert.Equal(t, 1, raw.RetryCount, "the failed attempt is still counted")
	require.NotNil(t, raw.ProcessingError)
	assert.Contains(t, *raw.ProcessingError, "wrong dimensions")

	// Terminal records leave the queue for good.
	processed, err := worker.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, processed)
}

func TestWorkerRecoversAfterFailure(t *testing.T) {
	store := newTestStore(t)
	embedder := &fakeEmbedder{
		dims: 3,
		err:  &embedding.RetryableError{Err: errors.New("timeout")},
	}
	deriver := NewDeriver(store, embedder, nil)
	gw := NewGateway(store, deriver, ModeQueued, nil)
	worker := NewWorker(store, deriver, DefaultWorkerConfig(), nil)
	ctx := context.Background()

	result, err := gw.Ingest(ctx, dockerInput())
	require.NoError(t, err)

	_, err = worker.ProcessBatch(ctx)
	require.NoError(t, err)

	// Embedder comes back before the ceiling: next poll succeeds.
	embedder.err = nil
	_, err = worker.ProcessBatch(ctx)
	require.NoError(t, err)

	raw, err := store.GetRaw(ctx, result.RawID)
	require.NoError(t, err)
	assert.True(t, raw.Derived())
	assert.Equal(t, 1, raw.RetryCount)
}
