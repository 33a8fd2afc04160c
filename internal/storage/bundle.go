package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// BundleFile is the SQLite database inside an index directory.
const BundleFile = "index.db"

const bundleSchema = `
CREATE TABLE manifest (
	embedding_model TEXT NOT NULL,
	dimension       INTEGER NOT NULL,
	document_count  INTEGER NOT NULL,
	chunk_count     INTEGER NOT NULL,
	built_at        TEXT NOT NULL,
	root_folder_id  TEXT NOT NULL
);
CREATE TABLE documents (
	seq       INTEGER PRIMARY KEY,
	id        TEXT NOT NULL,
	name      TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	text      TEXT NOT NULL
);
CREATE TABLE chunks (
	seq         INTEGER PRIMARY KEY,
	id          TEXT NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	header_path TEXT NOT NULL,
	text        TEXT NOT NULL,
	embedding   BLOB NOT NULL
);
CREATE INDEX idx_chunks_document ON chunks(document_id);
`

// SaveBundle persists idx as a directory at dir, replacing whatever was there.
// The new bundle is written to a sibling temp directory first, so a failed
// write leaves the previous bundle untouched.
func SaveBundle(ctx context.Context, dir string, idx *VectorIndex) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating index parent directory: %w", err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+"-build-*")
	if err != nil {
		return fmt.Errorf("creating temp bundle directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	if err := writeBundle(ctx, filepath.Join(tmp, BundleFile), idx); err != nil {
		return err
	}

	return replaceDir(tmp, dir)
}

func writeBundle(ctx context.Context, path string, idx *VectorIndex) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("opening bundle database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, bundleSchema); err != nil {
		return fmt.Errorf("creating bundle schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	m := idx.Manifest()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO manifest (embedding_model, dimension, document_count, chunk_count, built_at, root_folder_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.EmbeddingModel, m.Dimension, m.DocumentCount, m.ChunkCount,
		m.BuiltAt.UTC().Format(time.RFC3339Nano), m.RootFolderID,
	); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (seq, id, name, mime_type, text) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing document insert: %w", err)
	}
	defer docStmt.Close()
	for i, d := range idx.documents {
		if _, err := docStmt.ExecContext(ctx, i, d.ID, d.Name, d.MimeType, d.Text); err != nil {
			return fmt.Errorf("writing document %s: %w", d.ID, err)
		}
	}

	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (seq, id, document_id, chunk_index, header_path, text, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer chunkStmt.Close()
	for i, c := range idx.chunks {
		if _, err := chunkStmt.ExecContext(ctx, i, c.ID, c.DocumentID, c.Index, c.HeaderPath, c.Text,
			float32SliceToBytes(c.Embedding)); err != nil {
			return fmt.Errorf("writing chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing bundle: %w", err)
	}
	return nil
}

// replaceDir moves src to dst, swapping out any existing dst.
func replaceDir(src, dst string) error {
	old := ""
	if _, err := os.Stat(dst); err == nil {
		old = fmt.Sprintf("%s.old-%d", dst, time.Now().UnixNano())
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("moving previous bundle aside: %w", err)
		}
	}

	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			_ = os.Rename(old, dst)
		}
		return fmt.Errorf("installing bundle: %w", err)
	}

	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("removing previous bundle: %w", err)
		}
	}
	return nil
}

// LoadBundle reads the bundle at dir. A non-empty embeddingModel must match
// the model recorded at build time.
func LoadBundle(ctx context.Context, dir, embeddingModel string) (*VectorIndex, error) {
	db, err := openBundle(dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	manifest, err := readManifest(ctx, db)
	if err != nil {
		return nil, err
	}
	if embeddingModel != "" {
		if err := manifest.CheckModel(embeddingModel); err != nil {
			return nil, err
		}
	}

	documents, err := readDocuments(ctx, db)
	if err != nil {
		return nil, err
	}
	chunks, err := readChunks(ctx, db)
	if err != nil {
		return nil, err
	}

	return NewVectorIndex(manifest, documents, chunks)
}

// LoadManifest reads only the manifest of the bundle at dir.
func LoadManifest(ctx context.Context, dir string) (Manifest, error) {
	db, err := openBundle(dir)
	if err != nil {
		return Manifest{}, err
	}
	defer db.Close()
	return readManifest(ctx, db)
}

func openBundle(dir string) (*sql.DB, error) {
	path := filepath.Join(dir, BundleFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
		}
		return nil, fmt.Errorf("checking bundle: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("opening bundle database: %w", err)
	}
	return db, nil
}

func readManifest(ctx context.Context, db *sql.DB) (Manifest, error) {
	var (
		m       Manifest
		builtAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT embedding_model, dimension, document_count, chunk_count, built_at, root_folder_id FROM manifest LIMIT 1`,
	).Scan(&m.EmbeddingModel, &m.Dimension, &m.DocumentCount, &m.ChunkCount, &builtAt, &m.RootFolderID)
	if errors.Is(err, sql.ErrNoRows) {
		return Manifest{}, fmt.Errorf("%w: bundle has no manifest", ErrIndexNotFound)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}
	if m.BuiltAt, err = time.Parse(time.RFC3339Nano, builtAt); err != nil {
		return Manifest{}, fmt.Errorf("parsing built_at: %w", err)
	}
	return m, nil
}

func readDocuments(ctx context.Context, db *sql.DB) ([]Document, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, mime_type, text FROM documents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var documents []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Name, &d.MimeType, &d.Text); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		documents = append(documents, d)
	}
	return documents, rows.Err()
}

func readChunks(ctx context.Context, db *sql.DB) ([]Chunk, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, document_id, chunk_index, header_path, text, embedding FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c    Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.HeaderPath, &c.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// float32SliceToBytes encodes a vector as little-endian IEEE 754 floats.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// BundleStore persists indexes as SQLite bundles under Dir.
type BundleStore struct {
	Dir string
}

// Replace writes idx over the bundle at Dir.
func (b BundleStore) Replace(ctx context.Context, idx *VectorIndex) error {
	return SaveBundle(ctx, b.Dir, idx)
}
