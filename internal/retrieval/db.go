package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// toolRecord is a tool row as stored in the catalog snapshot.
type toolRecord struct {
	Name        string
	Description string
	InputSchema string
	ContentHash string
	Position    int
}

// embeddingRecord is a stored vector and the content hash it was computed from.
type embeddingRecord struct {
	ContentHash string
	Vector      []float32
}

// DB persists the ingested catalog and its embeddings.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) the sqlite database at dbPath.
func NewDB(ctx context.Context, dbPath string) (*DB, error) {
	// WAL allows readers alongside the single writer
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db}
	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tools (
		name         TEXT PRIMARY KEY,
		description  TEXT NOT NULL,
		input_schema TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		position     INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		name         TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL,
		model        TEXT NOT NULL,
		dim          INTEGER NOT NULL,
		vector       BLOB NOT NULL
	);
	`
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// ReplaceTools makes the tools table hold exactly records. Embeddings of
// removed tools are dropped in the same transaction.
func (d *DB) ReplaceTools(ctx context.Context, records []toolRecord) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep (name TEXT PRIMARY KEY)`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep`); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tools (name, description, input_schema, content_hash, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				input_schema = excluded.input_schema,
				content_hash = excluded.content_hash,
				position = excluded.position,
				updated_at = excluded.updated_at
		`, r.Name, r.Description, r.InputSchema, r.ContentHash, r.Position, now)
		if err != nil {
			return fmt.Errorf("failed to upsert tool %s: %w", r.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO keep (name) VALUES (?)`, r.Name); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tools WHERE name NOT IN (SELECT name FROM keep)`); err != nil {
		return fmt.Errorf("failed to prune tools: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE name NOT IN (SELECT name FROM keep)`); err != nil {
		return fmt.Errorf("failed to prune embeddings: %w", err)
	}

	return tx.Commit()
}

// LoadTools returns the stored catalog in source order.
func (d *DB) LoadTools(ctx context.Context) ([]toolRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT name, description, input_schema, content_hash, position
		FROM tools ORDER BY position, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	var records []toolRecord
	for rows.Next() {
		var r toolRecord
		if err := rows.Scan(&r.Name, &r.Description, &r.InputSchema, &r.ContentHash, &r.Position); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertEmbedding stores the vector of one tool.
func (d *DB) UpsertEmbedding(ctx context.Context, name, contentHash, model string, vector []float32) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO embeddings (name, content_hash, model, dim, vector)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			content_hash = excluded.content_hash,
			model = excluded.model,
			dim = excluded.dim,
			vector = excluded.vector
	`, name, contentHash, model, len(vector), encodeVector(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for %s: %w", name, err)
	}
	return nil
}

// LoadEmbeddings returns the stored vectors computed with model, keyed by tool name.
// Rows with undecodable vectors are skipped.
func (d *DB) LoadEmbeddings(ctx context.Context, model string) (map[string]embeddingRecord, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT name, content_hash, vector FROM embeddings WHERE model = ?`, model)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]embeddingRecord)
	for rows.Next() {
		var (
			name, hash string
			blob       []byte
		)
		if err := rows.Scan(&name, &hash, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			continue
		}
		out[name] = embeddingRecord{ContentHash: hash, Vector: vec}
	}
	return out, rows.Err()
}
