package vecstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps vectors in a local SQLite file as little-endian float32 blobs.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("vecstore: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("vecstore: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("vecstore: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// initSQLiteSchema creates the embeddings table if it doesn't exist.
func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS embeddings (
		model      TEXT NOT NULL,
		text_key   TEXT NOT NULL,
		dims       INTEGER NOT NULL,
		vector     BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (model, text_key)
	)`)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, model string, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	for _, part := range chunk(keys, 500) {
		args := make([]any, 0, len(part)+1)
		args = append(args, model)
		for _, k := range part {
			args = append(args, k)
		}
		q := `SELECT text_key, dims, vector FROM embeddings WHERE model = ? AND text_key IN (?` +
			strings.Repeat(",?", len(part)-1) + `)`

		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("vecstore: load: %w", err)
		}
		for rows.Next() {
			var (
				key  string
				dims int
				blob []byte
			)
			if err := rows.Scan(&key, &dims, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("vecstore: scan: %w", err)
			}
			v, err := decodeVector(blob, dims)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[key] = v
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("vecstore: rows: %w", err)
		}
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, model string, vecs map[string][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vecstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO embeddings (model, text_key, dims, vector, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(model, text_key) DO UPDATE SET dims = excluded.dims, vector = excluded.vector, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("vecstore: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, v := range vecs {
		if _, err := stmt.ExecContext(ctx, model, key, len(v), encodeVector(v), now); err != nil {
			return fmt.Errorf("vecstore: save %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("vecstore: commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("vecstore: blob has %d bytes, want %d", len(blob), 4*dims)
	}
	v := make([]float32, dims)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4*i:]))
	}
	return v, nil
}
