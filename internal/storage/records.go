package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const recordKeySuffix = ".json"

// RecordStore maps DailyRecords onto blob keys of the form <prefix>-<date>.json.
type RecordStore struct {
	blobs    BlobStore
	prefix   string
	pageSize int
}

// NewRecordStore wraps a blob backend.
func NewRecordStore(blobs BlobStore, prefix string, pageSize int) *RecordStore {
	if prefix == "" {
		prefix = "tokenomics"
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &RecordStore{blobs: blobs, prefix: prefix, pageSize: pageSize}
}

// Blobs exposes the underlying backend.
func (s *RecordStore) Blobs() BlobStore {
	return s.blobs
}

// Key returns the blob key for a calendar day.
func (s *RecordStore) Key(date time.Time) string {
	return s.prefix + "-" + DateKey(date) + recordKeySuffix
}

// DateFromKey extracts the calendar day from a record key.
func (s *RecordStore) DateFromKey(key string) (time.Time, bool) {
	raw := strings.TrimPrefix(key, s.prefix+"-")
	if raw == key || !strings.HasSuffix(raw, recordKeySuffix) {
		return time.Time{}, false
	}
	date, err := ParseDate(strings.TrimSuffix(raw, recordKeySuffix))
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// Exists reports whether a record is stored for date.
func (s *RecordStore) Exists(ctx context.Context, date time.Time) (bool, error) {
	if _, err := s.blobs.Head(ctx, s.Key(date)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Load reads the record stored for date. Missing records yield ErrNotFound.
func (s *RecordStore) Load(ctx context.Context, date time.Time) (DailyRecord, error) {
	content, err := s.blobs.Get(ctx, s.Key(date))
	if err != nil {
		return DailyRecord{}, err
	}
	var rec DailyRecord
	if err := json.Unmarshal(content, &rec); err != nil {
		return DailyRecord{}, fmt.Errorf("decode record %s: %w", s.Key(date), err)
	}
	return rec, nil
}

// Save writes rec under its date key. With overwrite unset the write only
// happens when no record exists; created reports whether this call wrote it.
func (s *RecordStore) Save(ctx context.Context, rec DailyRecord, overwrite bool) (url string, created bool, err error) {
	date, err := ParseDate(rec.Date)
	if err != nil {
		return "", false, fmt.Errorf("record date %q: %w", rec.Date, err)
	}
	content, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", false, fmt.Errorf("encode record: %w", err)
	}

	key := s.Key(date)
	if overwrite {
		url, err = s.blobs.Put(ctx, key, content)
		return url, err == nil, err
	}
	return s.blobs.PutIfAbsent(ctx, key, content)
}

// ListDates returns every stored calendar day, newest first.
func (s *RecordStore) ListDates(ctx context.Context) ([]time.Time, error) {
	var (
		dates  []time.Time
		cursor string
	)
	for {
		page, err := s.blobs.List(ctx, s.prefix+"-", cursor, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if date, ok := s.DateFromKey(obj.Key); ok {
				dates = append(dates, date)
			}
		}
		if page.Cursor == "" || len(page.Objects) == 0 {
			break
		}
		cursor = page.Cursor
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// TryAdvisoryLock delegates to the backend when it supports locking. Backends
// without locking always grant the lock.
func (s *RecordStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	locker, ok := s.blobs.(AdvisoryLocker)
	if !ok {
		return func() {}, true, nil
	}
	return locker.TryAdvisoryLock(ctx, key)
}

// Ping delegates to the backend when it supports health checks.
func (s *RecordStore) Ping(ctx context.Context) error {
	if p, ok := s.blobs.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
