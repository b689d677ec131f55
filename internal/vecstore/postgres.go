package vecstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// PostgresStore keeps vectors in a pgvector column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// ConnectPostgres runs schema migrations and opens a pgx pool with the vector
// type registered on every connection.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	// The vector extension must exist before pool connections can register its type.
	if err := runMigrations(ctx, config.ConnConfig); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.Info("vector postgres connected", slog.String("addr", config.ConnConfig.Host))
	return &PostgresStore{pool: pool}, nil
}

func runMigrations(ctx context.Context, cc *pgx.ConnConfig) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	conn, err := pgx.ConnectConfig(ctx, cc.Copy())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := conn.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, model string, keys []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT text_key, embedding FROM video_embedding WHERE model = $1 AND text_key = ANY($2)`,
		model, keys)
	if err != nil {
		return nil, fmt.Errorf("vecstore: load: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			vec pgvector.Vector
		)
		if err := rows.Scan(&key, &vec); err != nil {
			return nil, fmt.Errorf("vecstore: scan: %w", err)
		}
		out[key] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vecstore: rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Save(ctx context.Context, model string, vecs map[string][]float32) error {
	if len(vecs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for key, v := range vecs {
		batch.Queue(`INSERT INTO video_embedding (model, text_key, embedding, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (model, text_key) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`,
			model, key, pgvector.NewVector(v))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range vecs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vecstore: save: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
