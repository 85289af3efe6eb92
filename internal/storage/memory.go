package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

type memoryBlob struct {
	content   []byte
	updatedAt time.Time
}

// MemoryBlobStore keeps blobs in process memory. Content is lost on exit.
type MemoryBlobStore struct {
	baseURL string
	blobs   *xsync.Map[string, memoryBlob]
	now     func() time.Time
}

// NewMemoryBlobStore constructs an empty in-memory store.
func NewMemoryBlobStore(baseURL string) *MemoryBlobStore {
	return &MemoryBlobStore{
		baseURL: baseURL,
		blobs:   xsync.NewMap[string, memoryBlob](),
		now:     time.Now,
	}
}

func (m *MemoryBlobStore) Put(_ context.Context, key string, content []byte) (string, error) {
	m.blobs.Store(key, m.blob(content))
	return publicURL(m.baseURL, key), nil
}

func (m *MemoryBlobStore) PutIfAbsent(_ context.Context, key string, content []byte) (string, bool, error) {
	_, loaded := m.blobs.LoadOrStore(key, m.blob(content))
	return publicURL(m.baseURL, key), !loaded, nil
}

func (m *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	blob, ok := m.blobs.Load(key)
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(blob.content))
	copy(out, blob.content)
	return out, nil
}

func (m *MemoryBlobStore) Head(_ context.Context, key string) (Object, error) {
	blob, ok := m.blobs.Load(key)
	if !ok {
		return Object{}, ErrNotFound
	}
	return m.object(key, blob), nil
}

func (m *MemoryBlobStore) List(_ context.Context, prefix, cursor string, limit int) (ListPage, error) {
	keys := make([]string, 0)
	m.blobs.Range(func(key string, _ memoryBlob) bool {
		if strings.HasPrefix(key, prefix) && key > cursor {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)

	var page ListPage
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
		page.Cursor = keys[len(keys)-1]
	}
	for _, key := range keys {
		if blob, ok := m.blobs.Load(key); ok {
			page.Objects = append(page.Objects, m.object(key, blob))
		}
	}
	return page, nil
}

// Ping always succeeds.
func (m *MemoryBlobStore) Ping(context.Context) error { return nil }

func (m *MemoryBlobStore) blob(content []byte) memoryBlob {
	stored := make([]byte, len(content))
	copy(stored, content)
	return memoryBlob{content: stored, updatedAt: m.now().UTC()}
}

func (m *MemoryBlobStore) object(key string, blob memoryBlob) Object {
	return Object{
		Key:       key,
		URL:       publicURL(m.baseURL, key),
		Size:      int64(len(blob.content)),
		UpdatedAt: blob.updatedAt,
	}
}

var _ BlobStore = (*MemoryBlobStore)(nil)
var _ Pinger = (*MemoryBlobStore)(nil)
