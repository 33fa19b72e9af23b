package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jordanmatta/recollect/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps everything in one embedded database file. Vectors are
// stored as JSON arrays and similarity is computed in process, which is fine
// at personal-archive scale.
type SQLiteStore struct {
	writeDB  *sql.DB // single connection for writes
	readDB   *sql.DB // pool for reads
	dbPath   string
	distance Distance
}

func NewSQLiteStore(cfg *Config) (*SQLiteStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".recollect", "recollect.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	writeDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(cfg.MaxOpenConns)
	readDB.SetMaxIdleConns(cfg.MaxIdleConns)

	store := &SQLiteStore{
		writeDB:  writeDB,
		readDB:   readDB,
		dbPath:   dbPath,
		distance: cfg.distance(),
	}

	if err := store.initializeDB(cfg); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.createTables(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initializeDB(cfg *Config) error {
	for _, pragma := range cfg.pragmas() {
		if _, err := s.writeDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLiteStore) createTables() error {
	queries := []string{
		queryCreateRawTable,
		queryCreateDerivedTable,
		queryCreateIndexRawPending,
		queryCreateIndexRawSource,
		queryCreateIndexDerivedSource,
		queryCreateIndexDerivedProj,
		queryCreateIndexDerivedCreate,
		queryCreateDerivedFTS,
		queryCreateDerivedInsertTrigger,
		queryCreateDerivedDeleteTrigger,
	}
	for _, query := range queries {
		if _, err := s.writeDB.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) InsertRaw(ctx context.Context, rec *models.RawRecord) error {
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

	_, err = s.writeDB.ExecContext(ctx, queryInsertRaw,
		rec.ID, rec.Source, nullString(rec.SourceConversationID), nullString(rec.WorkspacePath),
		string(rec.Payload), metadata, rec.CapturedAt.UTC(), rec.InsertedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("failed to insert raw record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRaw(ctx context.Context, id string) (*models.RawRecord, error) {
	return scanRawRecord(s.readDB.QueryRowContext(ctx, querySelectRaw, id))
}

func (s *SQLiteStore) PendingRaw(ctx context.Context, limit int) ([]models.RawRecord, error) {
	rows, err := s.readDB.QueryContext(ctx, querySelectPendingRaw, limit)
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

func (s *SQLiteStore) MarkRawProcessed(ctx context.Context, id string, procErr *string) error {
	var errVal sql.NullString
	if procErr != nil {
		errVal = sql.NullString{String: *procErr, Valid: true}
	}
	result, err := s.writeDB.ExecContext(ctx, queryMarkRawProcessed, time.Now().UTC(), errVal, id)
	if err != nil {
		return fmt.Errorf("failed to mark record processed: %w", err)
	}
	return requireRowAffected(result)
}

func (s *SQLiteStore) RecordRawFailure(ctx context.Context, id string, reason string) (int, error) {
	var count int
	err := s.writeDB.QueryRowContext(ctx, queryRecordRawFailure, reason, id).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record failure: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) InsertDerived(ctx context.Context, rec *models.DerivedRecord) error {
	metadata, err := marshalMap(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	topics, _ := json.Marshal(rec.Topics)
	embedding, _ := json.Marshal(rec.Embedding)

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

	_, err = s.writeDB.ExecContext(ctx, queryInsertDerived,
		rec.ID, rawID, rec.Source, nullString(rec.SourceConversationID),
		rec.Title, rec.Content, nullString(rec.RawContent), string(embedding),
		nullString(rec.Project), string(topics), nullString(rec.WorkspacePath),
		rec.MessageCount, metadata, sourceCreated, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "raw_id") {
				return ErrAlreadyDerived
			}
			return ErrDuplicateConversation
		}
		return fmt.Errorf("failed to insert derived record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDerived(ctx context.Context, id string) (*models.DerivedRecord, error) {
	return scanDerivedRecord(s.readDB.QueryRowContext(ctx, querySelectDerived, id))
}

func (s *SQLiteStore) ListDerived(ctx context.Context, filter ListFilter) ([]models.DerivedRecord, error) {
	query := `SELECT id, raw_id, source, source_conversation_id, title, content, raw_content, embedding,
		project, topics, workspace_path, message_count, metadata, source_created_at, created_at, updated_at
		FROM conversations`
	var clauses []string
	var args []interface{}
	if filter.Source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Project != "" {
		clauses = append(clauses, "project = ?")
		args = append(args, filter.Project)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list derived records: %w", err)
	}
	defer rows.Close()
	return collectDerived(rows)
}

// SearchSimilar loads candidate rows matching the scalar filters and scores
// them in Go against the query embedding.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, embedding []float32, filter SearchFilter) ([]models.SearchResult, error) {
	query := `SELECT id, raw_id, source, source_conversation_id, title, content, raw_content, embedding,
		project, topics, workspace_path, message_count, metadata, source_created_at, created_at, updated_at
		FROM conversations WHERE embedding IS NOT NULL AND embedding != '' AND embedding != 'null'`
	args := []interface{}{}

	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Project != "" {
		query += " AND project = ?"
		args = append(args, filter.Project)
	}
	if filter.Workspace != "" {
		query += " AND workspace_path = ?"
		args = append(args, filter.Workspace)
	}
	if filter.Topic != "" {
		// topics is a JSON array; a quoted LIKE match avoids prefix hits.
		query += " AND topics LIKE ?"
		args = append(args, `%"`+filter.Topic+`"%`)
	}

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	records, err := collectDerived(rows)
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	for _, rec := range records {
		if len(rec.Embedding) != len(embedding) {
			continue
		}
		sim := similarity(embedding, rec.Embedding, s.distance)
		if sim < filter.Threshold {
			continue
		}
		results = append(results, models.SearchResult{
			ID:             rec.ID,
			Title:          rec.Title,
			Source:         rec.Source,
			Project:        rec.Project,
			Topics:         rec.Topics,
			Similarity:     sim,
			CreatedAt:      rec.CreatedAt,
			ContentPreview: truncateContent(rec.Content, 200),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *SQLiteStore) SearchText(ctx context.Context, query string, limit int) ([]models.DerivedRecord, error) {
	rows, err := s.readDB.QueryContext(ctx, querySearchText, ftsQuote(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search text: %w", err)
	}
	defer rows.Close()
	return collectDerived(rows)
}

func (s *SQLiteStore) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{
		SourceBreakdown:  make(map[string]int),
		ProjectBreakdown: make(map[string]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{queryCountRaw, &stats.TotalRaw},
		{queryCountPendingRaw, &stats.PendingRaw},
		{queryCountFailedRaw, &stats.FailedRaw},
		{queryCountDerived, &stats.TotalDerived},
		{querySumMessages, &stats.TotalMessages},
	}
	for _, c := range counts {
		if err := s.readDB.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to gather stats: %w", err)
		}
	}

	if err := scanBreakdown(ctx, s.readDB, queryGroupBySource, stats.SourceBreakdown); err != nil {
		return nil, err
	}
	if err := scanBreakdown(ctx, s.readDB, queryGroupByProject, stats.ProjectBreakdown); err != nil {
		return nil, err
	}

	var earliest, latest sql.NullTime
	if err := s.readDB.QueryRowContext(ctx, queryDerivedTimespan).Scan(&earliest, &latest); err == nil {
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

func (s *SQLiteStore) Close() error {
	var errs []error
	if _, err := s.writeDB.Exec("PRAGMA optimize"); err != nil {
		errs = append(errs, fmt.Errorf("failed to optimize: %w", err))
	}
	if err := s.readDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close read db: %w", err))
	}
	if err := s.writeDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close write db: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRawRecord(row scanner) (*models.RawRecord, error) {
	rec := &models.RawRecord{}
	var sourceConvID, workspace, metadata, procError sql.NullString
	var payload string
	var processedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.Source, &sourceConvID, &workspace, &payload, &metadata,
		&rec.CapturedAt, &rec.InsertedAt, &processedAt, &procError, &rec.RetryCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan raw record: %w", err)
	}

	rec.SourceConversationID = sourceConvID.String
	rec.WorkspacePath = workspace.String
	rec.Payload = json.RawMessage(payload)
	if metadata.Valid && metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &rec.Metadata)
	}
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	if procError.Valid {
		e := procError.String
		rec.ProcessingError = &e
	}
	return rec, nil
}

func scanDerivedRecord(row scanner) (*models.DerivedRecord, error) {
	rec := &models.DerivedRecord{}
	var rawID, sourceConvID, rawContent, embedding, project, topics, workspace, metadata sql.NullString
	var sourceCreated sql.NullTime

	err := row.Scan(&rec.ID, &rawID, &rec.Source, &sourceConvID, &rec.Title, &rec.Content,
		&rawContent, &embedding, &project, &topics, &workspace, &rec.MessageCount,
		&metadata, &sourceCreated, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan derived record: %w", err)
	}

	if rawID.Valid {
		id := rawID.String
		rec.RawID = &id
	}
	rec.SourceConversationID = sourceConvID.String
	rec.RawContent = rawContent.String
	rec.Project = project.String
	rec.WorkspacePath = workspace.String
	if embedding.Valid && embedding.String != "" {
		json.Unmarshal([]byte(embedding.String), &rec.Embedding)
	}
	if topics.Valid && topics.String != "" {
		json.Unmarshal([]byte(topics.String), &rec.Topics)
	}
	if metadata.Valid && metadata.String != "" {
		json.Unmarshal([]byte(metadata.String), &rec.Metadata)
	}
	if sourceCreated.Valid {
		t := sourceCreated.Time
		rec.SourceCreatedAt = &t
	}
	return rec, nil
}

func collectDerived(rows *sql.Rows) ([]models.DerivedRecord, error) {
	var records []models.DerivedRecord
	for rows.Next() {
		rec, err := scanDerivedRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanBreakdown(ctx context.Context, db *sql.DB, query string, dest map[string]int) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to gather breakdown: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err == nil {
			dest[key] = count
		}
	}
	return rows.Err()
}

// similarity maps the configured distance into a score where higher is more
// similar. Cosine is used as-is; l2 is inverted; dot passes through.
func similarity(a, b []float32, d Distance) float64 {
	switch d {
	case DistanceL2:
		var sum float64
		for i := range a {
			diff := float64(a[i]) - float64(b[i])
			sum += diff * diff
		}
		return 1 / (1 + math.Sqrt(sum))
	case DistanceDot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return dot
	default:
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			return 0
		}
		return dot / (math.Sqrt(normA) * math.Sqrt(normB))
	}
}

func marshalMap(m map[string]interface{}) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func requireRowAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ftsQuote wraps each term in double quotes so user input can't inject FTS5
// query syntax.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

// truncateContent builds a preview of at most maxLen bytes, never splitting a
// multi-byte rune.
func truncateContent(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	for maxLen > 0 && !utf8.RuneStart(content[maxLen]) {
		maxLen--
	}
	return strings.TrimSpace(content[:maxLen]) + "..."
}
