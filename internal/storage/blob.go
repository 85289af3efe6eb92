package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the requested key does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrNotConfigured indicates the backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// Object describes a stored blob without its content.
type Object struct {
	Key       string
	URL       string
	Size      int64
	UpdatedAt time.Time
}

// ListPage is one page of a prefix listing ordered by key.
type ListPage struct {
	Objects []Object
	// Cursor resumes the listing after the last returned key; empty when done.
	Cursor string
}

// BlobStore is a key-value store with prefix listing.
type BlobStore interface {
	Put(ctx context.Context, key string, content []byte) (string, error)
	// PutIfAbsent writes only when key does not exist yet. created reports
	// whether this call performed the write.
	PutIfAbsent(ctx context.Context, key string, content []byte) (url string, created bool, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Head(ctx context.Context, key string) (Object, error)
	List(ctx context.Context, prefix, cursor string, limit int) (ListPage, error)
}

// Pinger is implemented by backends that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AdvisoryLocker exposes cross-process lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

func publicURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + key
}
