package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/jordanmatta/recollect/internal/models"
)

// PostgresStore backs the same contract with postgres and the pgvector
// extension. Similarity runs inside the database, so thresholds and filters
// are pushed into SQL.
type PostgresStore struct {
	db         *sql.DB
	dimensions int
	distance   Distance
}

func NewPostgresStore(cfg *Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres store requires store.dsn")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &PostgresStore{
		db:         db,
		dimensions: cfg.Dimensions,
		distance:   cfg.distance(),
	}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTables() error {
	queries := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS raw_conversations (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_conversation_id TEXT,
			workspace_path TEXT,
			payload JSONB NOT NULL,
			metadata JSONB,
			captured_at TIMESTAMPTZ NOT NULL,
			inserted_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ,
			processing_error TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			CONSTRAINT raw_source_conv_unique UNIQUE (source, source_conversation_id)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			raw_id TEXT UNIQUE REFERENCES raw_conversations(id),
			source TEXT NOT NULL,
			source_conversation_id TEXT,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			raw_content TEXT,
			embedding vector(%d),
			project TEXT,
			topics JSONB,
			workspace_path TEXT,
			message_count INTEGER NOT NULL DEFAULT 0,
			metadata JSONB,
			source_created_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS idx_raw_pending ON raw_conversations(inserted_at) WHERE processed_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_source ON conversations(source)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) InsertRaw(ctx context.Context, rec *models.RawRecord) error {
	metadata, err := marshalMap(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if rec.InsertedAt.IsZero() {
		rec.InsertedAt = time.Now().UTC()
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = rec.InsertedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_conversations
			(id, source, source_conversation_id, workspace_path, payload, metadata, captured_at, inserted_at, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)`,
		rec.ID, rec.Source, nullString(rec.SourceConversationID), nullString(rec.WorkspacePath),
		string(rec.Payload), metadata, rec.CapturedAt.UTC(), rec.InsertedAt.UTC(),
	)
	if err != nil {
		if isPQUnique(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("failed to insert raw record: %w", err)
	}
	return nil
}

const rawColumns = `id, source, source_conversation_id, workspace_path, payload::text, metadata::text,
	captured_at, inserted_at, processed_at, processing_error, retry_count`

func (s *PostgresStore) GetRaw(ctx context.Context, id string) (*models.RawRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+rawColumns+` FROM raw_conversations WHERE id = $1`, id)
	return scanRawRecord(row)
}

func (s *PostgresStore) PendingRaw(ctx context.Context, limit int) ([]models.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rawColumns+` FROM raw_conversations
		 WHERE processed_at IS NULL ORDER BY inserted_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}
	defer rows.Close()

	var pending []models.RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *rec)
	}
	return pending, rows.Err()
}

func (s *PostgresStore) MarkRawProcessed(ctx context.Context, id string, procErr *string) error {
	var errVal sql.NullString
	if procErr != nil {
		errVal = sql.NullString{String: *procErr, Valid: true}
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE raw_conversations SET processed_at = $1, processing_error = $2 WHERE id = $3`,
		time.Now().UTC(), errVal, id)
	if err != nil {
		return fmt.Errorf("failed to mark record processed: %w", err)
	}
	return requireRowAffected(result)
}

func (s *PostgresStore) RecordRawFailure(ctx context.Context, id string, reason string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`UPDATE raw_conversations SET retry_count = retry_count + 1, processing_error = $1
		 WHERE id = $2 RETURNING retry_count`, reason, id).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertDerived(ctx context.Context, rec *models.DerivedRecord) error {
	metadata, err := marshalMap(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	topics, _ := json.Marshal(rec.Topics)

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	var rawID sql.NullString
	if rec.RawID != nil {
		rawID = sql.NullString{String: *rec.RawID, Valid: true}
	}
	var sourceCreated sql.NullTime
	if rec.SourceCreatedAt != nil {
		sourceCreated = sql.NullTime{Time: rec.SourceCreatedAt.UTC(), Valid: true}
	}
	var embedding interface{}
	if len(rec.Embedding) > 0 {
		embedding = pgvector.NewVector(rec.Embedding)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations
			(id, raw_id, source, source_conversation_id, title, content, raw_content, embedding,
			 project, topics, workspace_path, message_count, metadata, source_created_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		rec.ID, rawID, rec.Source, nullString(rec.SourceConversationID),
		rec.Title, rec.Content, nullString(rec.RawContent), embedding,
		nullString(rec.Project), string(topics), nullString(rec.WorkspacePath),
		rec.MessageCount, metadata, sourceCreated, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isPQUnique(err) {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Constraint == "conversations_raw_id_key" {
				return ErrAlreadyDerived
			}
			return ErrDuplicateConversation
		}
		return fmt.Errorf("failed to insert derived record: %w", err)
	}
	return nil
}

const derivedColumns = `id, raw_id, source, source_conversation_id, title, content, raw_content, embedding::text,
	project, topics::text, workspace_path, message_count, metadata::text, source_created_at, created_at, updated_at`

func (s *PostgresStore) GetDerived(ctx context.Context, id string) (*models.DerivedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+derivedColumns+` FROM conversations WHERE id = $1`, id)
	return scanDerivedRecord(row)
}

func (s *PostgresStore) ListDerived(ctx context.Context, filter ListFilter) ([]models.DerivedRecord, error) {
	query := `SELECT ` + derivedColumns + ` FROM conversations`
	var clauses []string
	var args []interface{}
	if filter.Source != "" {
		args = append(args, filter.Source)
		clauses = append(clauses, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Project != "" {
		args = append(args, filter.Project)
		clauses = append(clauses, fmt.Sprintf("project = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list derived records: %w", err)
	}
	defer rows.Close()
	return collectDerived(rows)
}

// similarityExpr maps the configured distance to a pgvector expression where
// higher means more similar.
func (s *PostgresStore) similarityExpr() string {
	switch s.distance {
	case DistanceL2:
		return `1 / (1 + (embedding <-> $1))`
	case DistanceDot:
		return `-(embedding <#> $1)`
	default:
		return `1 - (embedding <=> $1)`
	}
}

func (s *PostgresStore) SearchSimilar(ctx context.Context, embedding []float32, filter SearchFilter) ([]models.SearchResult, error) {
	expr := s.similarityExpr()
	query := `SELECT id, title, source, COALESCE(project, ''), topics::text, created_at, content, ` + expr + ` AS sim
		FROM conversations WHERE embedding IS NOT NULL`
	args := []interface{}{pgvector.NewVector(embedding)}

	if filter.Threshold > 0 {
		args = append(args, filter.Threshold)
		query += fmt.Sprintf(" AND %s >= $%d", expr, len(args))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}
	if filter.Project != "" {
		args = append(args, filter.Project)
		query += fmt.Sprintf(" AND project = $%d", len(args))
	}
	if filter.Workspace != "" {
		args = append(args, filter.Workspace)
		query += fmt.Sprintf(" AND workspace_path = $%d", len(args))
	}
	if filter.Topic != "" {
		args = append(args, fmt.Sprintf(`["%s"]`, filter.Topic))
		query += fmt.Sprintf(" AND topics @> $%d::jsonb", len(args))
	}

	query += " ORDER BY sim DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var result models.SearchResult
		var topics, content string
		if err := rows.Scan(&result.ID, &result.Title, &result.Source, &result.Project,
			&topics, &result.CreatedAt, &content, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if topics != "" {
			json.Unmarshal([]byte(topics), &result.Topics)
		}
		result.ContentPreview = truncateContent(content, 200)
		results = append(results, result)
	}
	return results, rows.Err()
}

func (s *PostgresStore) SearchText(ctx context.Context, query string, limit int) ([]models.DerivedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+derivedColumns+` FROM conversations
		 WHERE title ILIKE $1 OR content ILIKE $1
		 ORDER BY created_at DESC LIMIT $2`,
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search text: %w", err)
	}
	defer rows.Close()
	return collectDerived(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{
		SourceBreakdown:  make(map[string]int),
		ProjectBreakdown: make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM raw_conversations`, &stats.TotalRaw},
		{`SELECT COUNT(*) FROM raw_conversations WHERE processed_at IS NULL`, &stats.PendingRaw},
		{`SELECT COUNT(*) FROM raw_conversations WHERE processed_at IS NOT NULL AND processing_error IS NOT NULL`, &stats.FailedRaw},
		{`SELECT COUNT(*) FROM conversations`, &stats.TotalDerived},
		{`SELECT COALESCE(SUM(message_count), 0) FROM conversations`, &stats.TotalMessages},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to gather stats: %w", err)
		}
	}

	if err := scanBreakdown(ctx, s.db, `SELECT source, COUNT(*) FROM conversations GROUP BY source`, stats.SourceBreakdown); err != nil {
		return nil, err
	}
	if err := scanBreakdown(ctx, s.db, `SELECT project, COUNT(*) FROM conversations WHERE project IS NOT NULL AND project != '' GROUP BY project`, stats.ProjectBreakdown); err != nil {
		return nil, err
	}

	var earliest, latest sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM conversations`).Scan(&earliest, &latest); err == nil {
		if earliest.Valid {
			t := earliest.Time
			stats.EarliestDerivedAt = &t
		}
		if latest.Valid {
			t := latest.Time
			stats.LatestDerivedAt = &t
		}
	}

	return stats, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isPQUnique(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
