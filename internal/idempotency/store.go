// Package idempotency dedupes upload submissions keyed on X-File-ID, with a
// pluggable Backend and an in-memory fallback when none is configured.
package idempotency

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Record is the cached outcome of a previously accepted submission.
type Record struct {
	FileID    string
	Status    string
	Timestamp time.Time
}

// Backend is satisfied by *RedisBackend; a nil Backend falls back to
// the in-memory map.
type Backend interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type Store struct {
	backend Backend
	cache   sync.Map
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Get(ctx context.Context, fileID string) (Record, bool) {
	if s.backend != nil {
		val, err := s.backend.Get(ctx, fileID)
		if err != nil {
			log.Printf("idempotency: backend error getting %s: %v", fileID, err)
			return Record{}, false
		}
		if val == "" {
			return Record{}, false
		}
		var rec Record
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return Record{}, false
		}
		return rec, true
	}

	val, ok := s.cache.Load(fileID)
	if !ok {
		return Record{}, false
	}
	rec := val.(Record)
	if time.Since(rec.Timestamp) > 24*time.Hour {
		s.cache.Delete(fileID)
		return Record{}, false
	}
	return rec, true
}

func (s *Store) Put(ctx context.Context, rec Record) {
	rec.Timestamp = time.Now()

	if s.backend != nil {
		bytes, _ := json.Marshal(rec)
		if err := s.backend.Set(ctx, rec.FileID, string(bytes), 24*time.Hour); err != nil {
			log.Printf("idempotency: backend error setting %s: %v", rec.FileID, err)
		}
		return
	}

	s.cache.Store(rec.FileID, rec)
}
