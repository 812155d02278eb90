package idempotency

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPutThenGet(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	if _, ok := s.Get(ctx, "f1"); ok {
		t.Fatal("expected no record before Put")
	}

	s.Put(ctx, Record{FileID: "f1", Status: "queued"})

	rec, ok := s.Get(ctx, "f1")
	if !ok {
		t.Fatal("expected record after Put")
	}
	if rec.Status != "queued" {
		t.Errorf("expected status queued, got %s", rec.Status)
	}
}

type fakeBackend struct {
	data map[string]string
}

func (f *fakeBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	f.data[key] = value
	return nil
}

func (f *fakeBackend) Get(ctx context.Context, key string) (string, error) {
	return f.data[key], nil
}

func TestBackendGetPut(t *testing.T) {
	fb := &fakeBackend{data: make(map[string]string)}
	s := NewStore(fb)
	ctx := context.Background()

	s.Put(ctx, Record{FileID: "f2", Status: "queued"})
	rec, ok := s.Get(ctx, "f2")
	if !ok || rec.Status != "queued" {
		t.Fatalf("expected queued record via backend, got %+v ok=%v", rec, ok)
	}
}
