package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// Store owns the single embedded store file: the chunk table (source of
// truth), the vec0 vector table, the FTS5 keyword table and the embedding
// cache table. Every chunk row has exactly one vector entry and one keyword
// entry sharing its id; all writes that touch the triple go through one
// transaction.
type Store struct {
	db   *sql.DB
	path string
	dim  int
	log  zerolog.Logger
}

// OpenStore opens (creating if needed) the store file and initializes the
// schema. Schema creation is idempotent.
func OpenStore(path string, dim int, log zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage path is required")
	}
	if dim <= 0 {
		dim = DefaultDimension
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// WAL keeps concurrent readers unblocked during ingestion.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db, path: path, dim: dim, log: log}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			embedding_model TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, source_id);
		CREATE INDEX IF NOT EXISTS idx_chunks_updated ON chunks(updated_at);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (content_hash, model)
		);
		CREATE INDEX IF NOT EXISTS idx_cache_created ON embedding_cache(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return schemaErr(err)
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
			chunk_id INTEGER PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dim)
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}

	return nil
}

// schemaErr turns the opaque sqlite error for a missing FTS5 module into an
// actionable configuration error. The keyword table needs the driver built
// with the sqlite_fts5 tag.
func schemaErr(err error) error {
	if strings.Contains(err.Error(), "no such module: fts5") {
		return fmt.Errorf("sqlite driver built without FTS5, rebuild with -tags sqlite_fts5: %w", err)
	}
	return err
}

// InsertChunk inserts the chunk row, its vector and its keyword entry in one
// transaction and returns the assigned id. A failure anywhere rolls the whole
// operation back.
func (s *Store) InsertChunk(ctx context.Context, source Source, sourceID, content string, metadata map[string]interface{}, model string, vec []float32) (int64, error) {
	metaJSON, err := encodeMetadata(metadata)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO chunks (source, source_id, content, metadata, embedding_model, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		string(source), sourceID, content, metaJSON, model, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert chunk row: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted chunk id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)",
		id, encodeVector(vec),
	); err != nil {
		return 0, fmt.Errorf("insert vector entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)",
		id, content,
	); err != nil {
		return 0, fmt.Errorf("insert keyword entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert transaction: %w", err)
	}
	return id, nil
}

// DeleteBySource removes every chunk matching (source, sourceID) with its
// paired vector and keyword entries in one transaction. Returns the number of
// chunks removed.
func (s *Store) DeleteBySource(ctx context.Context, source Source, sourceID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM chunks WHERE source = ? AND source_id = ?",
		string(source), sourceID,
	)
	if err != nil {
		return 0, fmt.Errorf("select chunks to delete: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_vectors WHERE chunk_id = ?", id); err != nil {
			return 0, fmt.Errorf("delete vector entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE chunk_id = ?", id); err != nil {
			return 0, fmt.Errorf("delete keyword entry: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chunks WHERE source = ? AND source_id = ?",
		string(source), sourceID,
	); err != nil {
		return 0, fmt.Errorf("delete chunk rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete transaction: %w", err)
	}
	return len(ids), nil
}

// Clear wipes chunk rows, vector entries, keyword entries and the embedding
// cache.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM chunk_vectors",
		"DELETE FROM chunks_fts",
		"DELETE FROM chunks",
		"DELETE FROM embedding_cache",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear store: %w", err)
		}
	}
	return tx.Commit()
}

// GetChunk hydrates a single chunk row.
func (s *Store) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	var (
		c         Chunk
		src       string
		metaJSON  string
		createdAt int64
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, source, source_id, content, metadata, embedding_model, created_at, updated_at FROM chunks WHERE id = ?",
		id,
	).Scan(&c.ID, &src, &c.SourceID, &c.Content, &metaJSON, &c.EmbeddingModel, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Source = Source(src)
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(metaJSON), &c.Metadata); err != nil {
		return nil, fmt.Errorf("decode chunk metadata: %w", err)
	}
	return &c, nil
}

// ExistsExact reports whether a chunk with this exact (source, sourceID,
// content) triple is already stored.
func (s *Store) ExistsExact(ctx context.Context, source Source, sourceID, content string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM chunks WHERE source = ? AND source_id = ? AND content = ? LIMIT 1",
		string(source), sourceID, content,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ChunkOrigin returns the (source, sourceID) pair for a chunk id.
func (s *Store) ChunkOrigin(ctx context.Context, id int64) (Source, string, error) {
	var src, sourceID string
	err := s.db.QueryRowContext(ctx,
		"SELECT source, source_id FROM chunks WHERE id = ?", id,
	).Scan(&src, &sourceID)
	if err != nil {
		return "", "", err
	}
	return Source(src), sourceID, nil
}

// InsertVector implements VectorIndex. Outside of InsertChunk it is used by
// the reindexer, which replaces an existing entry.
func (s *Store) InsertVector(ctx context.Context, id int64, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)",
		id, encodeVector(vec),
	)
	return err
}

// SearchVectors implements VectorIndex with a vec0 KNN query. Matches are
// returned nearest-first with cosine distances in [0, 2].
func (s *Store) SearchVectors(ctx context.Context, vec []float32, k int) ([]VectorMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, distance
		FROM chunk_vectors
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, encodeVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var m VectorMatch
		if err := rows.Scan(&m.ChunkID, &m.Distance); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteVector implements VectorIndex.
func (s *Store) DeleteVector(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunk_vectors WHERE chunk_id = ?", id)
	return err
}

// InsertText implements KeywordIndex.
func (s *Store) InsertText(ctx context.Context, id int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)", id, text,
	)
	return err
}

// SearchKeywords implements KeywordIndex over FTS5. Matches come back
// best-first; Rank carries the raw bm25 value (more negative is better under
// FTS5's convention).
func (s *Store) SearchKeywords(ctx context.Context, query string, k int) ([]KeywordMatch, error) {
	if k <= 0 || query == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []KeywordMatch
	for rows.Next() {
		var m KeywordMatch
		if err := rows.Scan(&m.ChunkID, &m.Rank); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteText implements KeywordIndex.
func (s *Store) DeleteText(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks_fts WHERE chunk_id = ?", id)
	return err
}

// chunkContentRef is a (id, content) pair used by the reindexer.
type chunkContentRef struct {
	ID      int64
	Content string
}

// AllChunks returns the id and content of every stored chunk.
func (s *Store) AllChunks(ctx context.Context) ([]chunkContentRef, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, content FROM chunks ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []chunkContentRef
	for rows.Next() {
		var r chunkContentRef
		if err := rows.Scan(&r.ID, &r.Content); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// UpdateEmbedding replaces a chunk's vector entry, refreshes its keyword
// entry and records the new model in one transaction. Content never changes;
// only embedding_model and updated_at move.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, content, model string, vec []float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reindex transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunk_vectors (chunk_id, embedding) VALUES (?, ?)",
		id, encodeVector(vec),
	); err != nil {
		return fmt.Errorf("replace vector entry: %w", err)
	}

	// Content is unchanged; the keyword entry is rewritten for symmetry so
	// every store mutation path touches all three.
	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks_fts WHERE chunk_id = ?", id); err != nil {
		return fmt.Errorf("refresh keyword entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)", id, content,
	); err != nil {
		return fmt.Errorf("refresh keyword entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE chunks SET embedding_model = ?, updated_at = ? WHERE id = ?",
		model, time.Now().Unix(), id,
	); err != nil {
		return fmt.Errorf("update chunk model: %w", err)
	}

	return tx.Commit()
}

// MarkConversationArchived flags every chunk of a conversation as archived in
// its metadata. Returns the number of chunks touched.
func (s *Store) MarkConversationArchived(ctx context.Context, conversationID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chunks
		SET metadata = json_set(metadata, '$.archived', 1, '$.archivedAt', ?),
		    updated_at = ?
		WHERE source = ? AND source_id = ?
	`, at.UTC().Format(time.RFC3339), at.Unix(), string(SourceConversation), conversationID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation archived: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// ArchivedConversations groups archived conversation chunks by source id.
func (s *Store) ArchivedConversations(ctx context.Context) ([]ArchivedConversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, COUNT(*), MAX(created_at)
		FROM chunks
		WHERE source = ? AND json_extract(metadata, '$.archived') = 1
		GROUP BY source_id
		ORDER BY MAX(created_at) DESC
	`, string(SourceConversation))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedConversation
	for rows.Next() {
		var (
			a       ArchivedConversation
			created int64
		)
		if err := rows.Scan(&a.ConversationID, &a.ChunkCount, &created); err != nil {
			return nil, err
		}
		a.LastCreatedAt = time.Unix(created, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats reports chunk and source counts plus the store file size.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&st.TotalChunks); err != nil {
		return st, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM (SELECT DISTINCT source, source_id FROM chunks)",
	).Scan(&st.TotalSources); err != nil {
		return st, err
	}
	if info, err := os.Stat(s.path); err == nil {
		st.StorageSizeBytes = info.Size()
	}
	return st, nil
}

// Close releases the store handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode chunk metadata: %w", err)
	}
	return string(buf), nil
}
