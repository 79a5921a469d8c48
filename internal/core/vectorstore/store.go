package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/knowbase-io/knowbase/internal/core"
	"github.com/knowbase-io/knowbase/internal/models"
)

// ErrCollectionUnavailable marks a collection that cannot serve queries;
// hybrid search isolates it per collection.
var ErrCollectionUnavailable = errors.New("collection unavailable")

// pointIDNamespace seeds deterministic point IDs so re-ingesting a
// document overwrites its points instead of duplicating them.
var pointIDNamespace = uuid.MustParse("c2aafc30-6cfd-4561-9e40-2e5cbfc7a1d8")

// PointID derives the stable UUID for one chunk of one document.
func PointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(fmt.Sprintf("%s:%d", documentID, chunkIndex))).String()
}

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// Store keeps embedded chunks in Postgres, one pgvector table per
// collection plus a registry table binding each collection to its model
// and dimensionality.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func New(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func tableName(collection string) (string, error) {
	if !collectionNameRe.MatchString(collection) || len(collection) > 55 {
		return "", fmt.Errorf("invalid collection name %q", collection)
	}
	// quoted identifier; the regexp rules out embedded quotes
	return fmt.Sprintf(`"vec_%s"`, collection), nil
}

// EnsureCollection registers the collection and creates its vector table
// if absent. Re-ensuring with the same model and dimensions is a no-op;
// conflicting dimensions are an error.
func (s *Store) EnsureCollection(ctx context.Context, name, model string, dims int) (*models.Collection, error) {
	tbl, err := tableName(name)
	if err != nil {
		return nil, err
	}
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions %d for collection %q", dims, name)
	}

	const insert = `
		INSERT INTO collections (id, name, model, dimensions, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, insert, uuid.NewString(), name, model, dims); err != nil {
		return nil, fmt.Errorf("register collection %q: %w", name, err)
	}

	var col models.Collection
	const sel = `SELECT id, name, model, dimensions, created_at FROM collections WHERE name = $1`
	if err := s.db.QueryRowContext(ctx, sel, name).Scan(&col.ID, &col.Name, &col.Model, &col.Dimensions, &col.CreatedAt); err != nil {
		return nil, fmt.Errorf("load collection %q: %w", name, err)
	}
	if col.Dimensions != dims {
		return nil, fmt.Errorf("collection %q holds %d-dim vectors, requested %d", name, col.Dimensions, dims)
	}

	create := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			document_id UUID NOT NULL,
			user_id     UUID NOT NULL,
			chunk_index INT NOT NULL,
			chunk_text  TEXT NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			source_type TEXT NOT NULL DEFAULT '',
			file_name   TEXT NOT NULL DEFAULT '',
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, tbl, dims)
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("create vector table for %q: %w", name, err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "vec_%s_doc_idx" ON %s (document_id)`, name, tbl)
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return nil, fmt.Errorf("index vector table for %q: %w", name, err)
	}
	userIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS "vec_%s_user_idx" ON %s (user_id)`, name, tbl)
	if _, err := s.db.ExecContext(ctx, userIdx); err != nil {
		return nil, fmt.Errorf("index vector table for %q: %w", name, err)
	}

	return &col, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]models.Collection, error) {
	const q = `SELECT id, name, model, dimensions, created_at FROM collections ORDER BY name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var out []models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.Model, &c.Dimensions, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountPoints(ctx context.Context, collection string) (int64, error) {
	tbl, err := tableName(collection)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, tbl)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count points in %q: %w", collection, err)
	}
	return n, nil
}

// Upsert writes points in one transaction; an existing id gets its vector
// and payload replaced.
func (s *Store) Upsert(ctx context.Context, collection string, points []models.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	tbl, err := tableName(collection)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
			(id, document_id, user_id, chunk_index, chunk_text, title, source_type, file_name, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			user_id     = EXCLUDED.user_id,
			chunk_index = EXCLUDED.chunk_index,
			chunk_text  = EXCLUDED.chunk_text,
			title       = EXCLUDED.title,
			source_type = EXCLUDED.source_type,
			file_name   = EXCLUDED.file_name,
			embedding   = EXCLUDED.embedding
	`, tbl)
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range points {
		p := &points[i]
		vec := pgvector.NewVector(p.Vector)
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.DocumentID, p.UserID, p.ChunkIndex, p.ChunkText, p.Title, p.SourceType, p.FileName, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert point %d into %q: %w", i, collection, err)
		}
	}
	return tx.Commit()
}

// Query returns the nearest points by cosine similarity, filtered by the
// minimum score threshold. A non-empty userID restricts results to that
// user's points.
func (s *Store) Query(ctx context.Context, collection, userID string, vector []float32, limit int, threshold float64) ([]models.ScoredPoint, error) {
	tbl, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	q := fmt.Sprintf(`
		SELECT id, document_id, user_id, chunk_index, chunk_text, title, source_type, file_name,
		       1 - (embedding <=> $1) AS score
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		  AND ($4 = '' OR user_id::text = $4)
		ORDER BY embedding <=> $1
		LIMIT $3
	`, tbl)
	rows, err := s.db.QueryContext(ctx, q, pgvector.NewVector(vector), threshold, limit, userID)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w: %w", collection, ErrCollectionUnavailable, err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// SearchText is the lexical side of hybrid search: a case-insensitive
// substring match over chunk text and title, scoped to userID like Query.
func (s *Store) SearchText(ctx context.Context, collection, userID, query string, limit int) ([]models.ScoredPoint, error) {
	tbl, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + escapeLike(query) + "%"
	q := fmt.Sprintf(`
		SELECT id, document_id, user_id, chunk_index, chunk_text, title, source_type, file_name,
		       1.0 AS score
		FROM %s
		WHERE (chunk_text ILIKE $1 OR title ILIKE $1)
		  AND ($3 = '' OR user_id::text = $3)
		ORDER BY chunk_index
		LIMIT $2
	`, tbl)
	rows, err := s.db.QueryContext(ctx, q, pattern, limit, userID)
	if err != nil {
		return nil, fmt.Errorf("lexical search %q: %w: %w", collection, ErrCollectionUnavailable, err)
	}
	defer rows.Close()
	return scanScored(rows)
}

// Scroll lists every point in a collection, payload only.
func (s *Store) Scroll(ctx context.Context, collection string) ([]models.VectorPoint, error) {
	tbl, err := tableName(collection)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`
		SELECT id, document_id, user_id, chunk_index, chunk_text, title, source_type, file_name
		FROM %s
		ORDER BY document_id, chunk_index
	`, tbl)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("scroll %q: %w", collection, err)
	}
	defer rows.Close()

	var out []models.VectorPoint
	for rows.Next() {
		var p models.VectorPoint
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.UserID, &p.ChunkIndex, &p.ChunkText, &p.Title, &p.SourceType, &p.FileName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteByDocument scans every registered collection for the document's
// points. Routing places a document in exactly one collection, but the
// scan covers routing changes between ingestion and deletion. Every
// collection is attempted; any failure is reported back alongside the
// count so the caller can retry later instead of losing track of the
// surviving points.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	cols, err := s.ListCollections(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	var errs []error
	for _, col := range cols {
		tbl, err := tableName(col.Name)
		if err != nil {
			continue
		}
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, tbl), documentID)
		if err != nil {
			s.log.Warn("delete points failed in one collection",
				zap.String("collection", col.Name),
				zap.String("document_id", documentID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("collection %q: %w", col.Name, err))
			continue
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if len(errs) > 0 {
		return total, fmt.Errorf("delete points for document %s: %w", documentID, errors.Join(errs...))
	}
	return total, nil
}

// Clear wipes a collection's points; clearing an unknown or empty
// collection is a no-op.
func (s *Store) Clear(ctx context.Context, collection string) error {
	tbl, err := tableName(collection)
	if err != nil {
		return err
	}
	if known, err := s.registered(ctx, collection); err != nil || !known {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, tbl)); err != nil {
		return fmt.Errorf("clear %q: %w", collection, err)
	}
	return nil
}

// DeleteCollection drops the vector table and its registry entry; both
// steps tolerate the collection already being gone.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	tbl, err := tableName(collection)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tbl)); err != nil {
		return fmt.Errorf("drop vector table %q: %w", collection, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = $1`, collection); err != nil {
		return fmt.Errorf("unregister collection %q: %w", collection, err)
	}
	return nil
}

func (s *Store) registered(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM collections WHERE name = $1)`, collection).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func scanScored(rows *sql.Rows) ([]models.ScoredPoint, error) {
	var out []models.ScoredPoint
	for rows.Next() {
		var p models.ScoredPoint
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.UserID, &p.ChunkIndex, &p.ChunkText, &p.Title, &p.SourceType, &p.FileName, &p.Score); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ core.VectorStore = (*Store)(nil)
