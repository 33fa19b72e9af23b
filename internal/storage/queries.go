package storage

// SQLite schema. raw_conversations is the append-only capture log;
// conversations holds the derived, embedded records. The UNIQUE constraint
// on (source, source_conversation_id) tolerates NULL source ids, so captures
// without a stable upstream id never collide with each other.
const (
	queryCreateRawTable = `CREATE TABLE IF NOT EXISTS raw_conversations (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		source_conversation_id TEXT,
		workspace_path TEXT,
		payload TEXT NOT NULL,
		metadata TEXT,
		captured_at DATETIME NOT NULL,
		inserted_at DATETIME NOT NULL,
		processed_at DATETIME,
		processing_error TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		UNIQUE(source, source_conversation_id)
	)`

	queryCreateDerivedTable = `CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		raw_id TEXT UNIQUE REFERENCES raw_conversations(id),
		source TEXT NOT NULL,
		source_conversation_id TEXT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		raw_content TEXT,
		embedding TEXT,
		project TEXT,
		topics TEXT,
		workspace_path TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		source_created_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`

	queryCreateIndexRawPending    = `CREATE INDEX IF NOT EXISTS idx_raw_pending ON raw_conversations(inserted_at) WHERE processed_at IS NULL`
	queryCreateIndexRawSource     = `CREATE INDEX IF NOT EXISTS idx_raw_source ON raw_conversations(source)`
	queryCreateIndexDerivedSource = `CREATE INDEX IF NOT EXISTS idx_conversations_source ON conversations(source)`
	queryCreateIndexDerivedProj   = `CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project)`
	queryCreateIndexDerivedCreate = `CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at)`

	queryCreateDerivedFTS = `CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
		title,
		content,
		content=conversations,
		content_rowid=rowid
	)`

	queryCreateDerivedInsertTrigger = `CREATE TRIGGER IF NOT EXISTS conversations_ai AFTER INSERT ON conversations
	BEGIN
		INSERT INTO conversations_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
	END`

	queryCreateDerivedDeleteTrigger = `CREATE TRIGGER IF NOT EXISTS conversations_ad AFTER DELETE ON conversations
	BEGIN
		DELETE FROM conversations_fts WHERE rowid = old.rowid;
	END`

	queryInsertRaw = `INSERT INTO raw_conversations
		(id, source, source_conversation_id, workspace_path, payload, metadata, captured_at, inserted_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`

	querySelectRaw = `SELECT id, source, source_conversation_id, workspace_path, payload, metadata,
		captured_at, inserted_at, processed_at, processing_error, retry_count
		FROM raw_conversations WHERE id = ?`

	querySelectPendingRaw = `SELECT id, source, source_conversation_id, workspace_path, payload, metadata,
		captured_at, inserted_at, processed_at, processing_error, retry_count
		FROM raw_conversations WHERE processed_at IS NULL ORDER BY inserted_at ASC LIMIT ?`

	queryMarkRawProcessed = `UPDATE raw_conversations SET processed_at = ?, processing_error = ? WHERE id = ?`

	queryRecordRawFailure = `UPDATE raw_conversations
		SET retry_count = retry_count + 1, processing_error = ?
		WHERE id = ? RETURNING retry_count`

	queryInsertDerived = `INSERT INTO conversations
		(id, raw_id, source, source_conversation_id, title, content, raw_content, embedding,
		 project, topics, workspace_path, message_count, metadata, source_created_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	querySelectDerived = `SELECT id, raw_id, source, source_conversation_id, title, content, raw_content, embedding,
		project, topics, workspace_path, message_count, metadata, source_created_at, created_at, updated_at
		FROM conversations WHERE id = ?`

	querySearchText = `SELECT c.id, c.raw_id, c.source, c.source_conversation_id, c.title, c.content, c.raw_content, c.embedding,
		c.project, c.topics, c.workspace_path, c.message_count, c.metadata, c.source_created_at, c.created_at, c.updated_at
		FROM conversations_fts f
		JOIN conversations c ON c.rowid = f.rowid
		WHERE conversations_fts MATCH ?
		ORDER BY bm25(conversations_fts)
		LIMIT ?`

	queryCountRaw        = `SELECT COUNT(*) FROM raw_conversations`
	queryCountPendingRaw = `SELECT COUNT(*) FROM raw_conversations WHERE processed_at IS NULL`
	queryCountFailedRaw  = `SELECT COUNT(*) FROM raw_conversations WHERE processed_at IS NOT NULL AND processing_error IS NOT NULL`
	queryCountDerived    = `SELECT COUNT(*) FROM conversations`
	querySumMessages     = `SELECT COALESCE(SUM(message_count), 0) FROM conversations`
	queryGroupBySource   = `SELECT source, COUNT(*) FROM conversations GROUP BY source`
	queryGroupByProject  = `SELECT project, COUNT(*) FROM conversations WHERE project IS NOT NULL AND project != '' GROUP BY project`
	queryDerivedTimespan = `SELECT MIN(created_at), MAX(created_at) FROM conversations`
)
