// Package index provides the persistent vector index: chunk storage with
// brute-force cosine nearest-neighbor search backed by SQLite.
package index

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"spacepedia/internal/document"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Error reports a failure of the persistent store. It is fatal: no fallback
// data source exists, so callers must propagate it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("index %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// TextEmbedder converts texts to vectors. Implemented by embedding.Batcher.
type TextEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Result is one nearest-neighbor match. Distance is cosine distance:
// smaller means more similar.
type Result struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float32
}

// Summary describes one unique stored document, aggregated from entry
// metadata.
type Summary struct {
	Title    string
	Source   string
	Category string
	Type     string
}

// Index stores (id, vector, text, metadata) entries in SQLite. Writes must
// go through a single Index instance; reads may run concurrently. Construct
// one per process and pass it by reference to every consumer.
type Index struct {
	db       *sql.DB
	embedder TextEmbedder
	logger   *slog.Logger
}

// Open opens (or creates) the index database in dataDir and runs pending
// migrations. Pass ":memory:" for an in-memory index (used by tests).
func Open(dataDir string, embedder TextEmbedder) (*Index, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, &Error{Op: "open", Err: fmt.Errorf("creating data directory: %w", err)}
		}
		dsn = filepath.Join(dataDir, "spacepedia.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}

	// Single connection avoids "database is locked" on concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}

	idx := &Index{db: db, embedder: embedder, logger: slog.Default()}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, &Error{Op: "migrate", Err: err}
	}
	return idx, nil
}

// Close closes the underlying database.
func (x *Index) Close() error { return x.db.Close() }

// migrate applies embedded SQL migrations that have not run yet.
func (x *Index) migrate() error {
	if _, err := x.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version := migrationVersion(entry.Name())

		var applied int
		if err := x.db.QueryRow(`SELECT COUNT(*) FROM schema_version WHERE version = ?`, version).Scan(&applied); err != nil {
			return err
		}
		if applied > 0 {
			continue
		}

		script, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return err
		}
		if _, err := x.db.Exec(string(script)); err != nil {
			return fmt.Errorf("applying %s: %w", entry.Name(), err)
		}
		if _, err := x.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
			return err
		}
	}
	return nil
}

// migrationVersion parses the numeric prefix of a migration filename.
func migrationVersion(name string) int {
	var v int
	fmt.Sscanf(name, "%d", &v)
	return v
}

// Add embeds the chunks' texts and persists them transactionally. Chunk IDs
// must be unique; no dedup is performed. Metadata is flattened to scalar
// strings before storage. All vectors in the index share one dimension,
// pinned by the first insert.
func (x *Index) Add(ctx context.Context, chunks []document.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := x.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return &Error{Op: "add", Err: fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))}
	}

	if err := x.checkDimension(len(vectors[0])); err != nil {
		return err
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "add", Err: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO entries (id, doc_id, title, source, category, text, vector, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return &Error{Op: "add", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, c := range chunks {
		meta := Flatten(c.Metadata)
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			tx.Rollback()
			return &Error{Op: "add", Err: fmt.Errorf("encoding metadata for %s: %w", c.ID, err)}
		}

		category := meta["category"]
		if category == "" {
			category = "General"
		}

		if _, err := stmt.Exec(
			c.ID, meta["doc_id"], meta["title"], meta["source"], category,
			c.Text, encodeVector(vectors[i]), string(metaJSON), now,
		); err != nil {
			tx.Rollback()
			return &Error{Op: "add", Err: fmt.Errorf("inserting entry %s: %w", c.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "add", Err: err}
	}

	x.logger.Info("indexed chunks", "count", len(chunks))
	return nil
}

// checkDimension compares the incoming vector dimension against the stored
// generation's dimension, if any entries exist.
func (x *Index) checkDimension(dim int) error {
	var blobLen sql.NullInt64
	err := x.db.QueryRow(`SELECT length(vector) FROM entries LIMIT 1`).Scan(&blobLen)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return &Error{Op: "add", Err: err}
	}
	if stored := int(blobLen.Int64) / 4; stored != dim {
		return &Error{Op: "add", Err: fmt.Errorf("vector dimension %d does not match index dimension %d", dim, stored)}
	}
	return nil
}

// Count returns the number of stored entries.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, &Error{Op: "count", Err: err}
	}
	return n, nil
}

// ListDocuments aggregates distinct (title, source) pairs into one summary
// per unique stored document, ordered by category then title for display.
func (x *Index) ListDocuments(ctx context.Context) ([]Summary, error) {
	rows, err := x.db.QueryContext(ctx, `
		SELECT DISTINCT title, source, category FROM entries
		ORDER BY category, title`)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		s := Summary{Type: "Article"}
		if err := rows.Scan(&s.Title, &s.Source, &s.Category); err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return out, nil
}

// SampleTexts returns a bounded, fixed-order slice of stored chunk texts for
// offline evaluation-set generation. Not a statistically random sample.
func (x *Index) SampleTexts(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := x.db.QueryContext(ctx, `SELECT text FROM entries ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, &Error{Op: "sample", Err: err}
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, &Error{Op: "sample", Err: err}
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}
