package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createBlobsTableSQL = `CREATE TABLE IF NOT EXISTS blobs (
        key        TEXT PRIMARY KEY,
        content    BYTEA NOT NULL,
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertBlobSQL = `INSERT INTO blobs (key, content)
    VALUES ($1, $2)
    ON CONFLICT (key) DO UPDATE
    SET content    = EXCLUDED.content,
        updated_at = now();`

	insertBlobIfAbsentSQL = `INSERT INTO blobs (key, content)
    VALUES ($1, $2)
    ON CONFLICT (key) DO NOTHING;`

	getBlobSQL = `SELECT content FROM blobs WHERE key = $1;`

	headBlobSQL = `SELECT octet_length(content), updated_at FROM blobs WHERE key = $1;`

	listBlobsSQL = `SELECT key, octet_length(content), updated_at
    FROM blobs
    WHERE starts_with(key, $1)
      AND key > $2
    ORDER BY key
    LIMIT $3;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresBlobStore persists blobs in a single PostgreSQL table.
type PostgresBlobStore struct {
	pool    *pgxpool.Pool
	baseURL string
}

// NewPostgresBlobStore wires a pgx pool into a blob store.
func NewPostgresBlobStore(pool *pgxpool.Pool, baseURL string) *PostgresBlobStore {
	return &PostgresBlobStore{pool: pool, baseURL: baseURL}
}

// Close releases the underlying pool resources.
func (s *PostgresBlobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the blobs table when missing.
func (s *PostgresBlobStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createBlobsTableSQL); err != nil {
		return fmt.Errorf("create blobs table: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresBlobStore) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresBlobStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresBlobStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func (s *PostgresBlobStore) Put(ctx context.Context, key string, content []byte) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}
	if _, err := pool.Exec(ctx, upsertBlobSQL, key, content); err != nil {
		return "", fmt.Errorf("upsert blob %s: %w", key, err)
	}
	return publicURL(s.baseURL, key), nil
}

func (s *PostgresBlobStore) PutIfAbsent(ctx context.Context, key string, content []byte) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	tag, err := pool.Exec(ctx, insertBlobIfAbsentSQL, key, content)
	if err != nil {
		return "", false, fmt.Errorf("insert blob %s: %w", key, err)
	}
	return publicURL(s.baseURL, key), tag.RowsAffected() == 1, nil
}

func (s *PostgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var content []byte
	if err := pool.QueryRow(ctx, getBlobSQL, key).Scan(&content); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get blob %s: %w", key, err)
	}
	return content, nil
}

func (s *PostgresBlobStore) Head(ctx context.Context, key string) (Object, error) {
	pool, err := s.getPool()
	if err != nil {
		return Object{}, err
	}
	obj := Object{Key: key, URL: publicURL(s.baseURL, key)}
	if err := pool.QueryRow(ctx, headBlobSQL, key).Scan(&obj.Size, &obj.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("head blob %s: %w", key, err)
	}
	return obj, nil
}

func (s *PostgresBlobStore) List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error) {
	pool, err := s.getPool()
	if err != nil {
		return ListPage{}, err
	}
	if limit <= 0 {
		limit = 1000
	}

	// One extra row tells whether another page exists.
	rows, err := pool.Query(ctx, listBlobsSQL, prefix, cursor, limit+1)
	if err != nil {
		return ListPage{}, fmt.Errorf("list blobs: %w", err)
	}
	defer rows.Close()

	objects := make([]Object, 0, limit)
	for rows.Next() {
		var obj Object
		if err := rows.Scan(&obj.Key, &obj.Size, &obj.UpdatedAt); err != nil {
			return ListPage{}, err
		}
		obj.URL = publicURL(s.baseURL, obj.Key)
		objects = append(objects, obj)
	}
	if rows.Err() != nil {
		return ListPage{}, rows.Err()
	}

	page := ListPage{Objects: objects}
	if len(objects) > limit {
		page.Objects = objects[:limit]
		page.Cursor = objects[limit-1].Key
	}
	return page, nil
}

var _ BlobStore = (*PostgresBlobStore)(nil)
var _ AdvisoryLocker = (*PostgresBlobStore)(nil)
var _ Pinger = (*PostgresBlobStore)(nil)
