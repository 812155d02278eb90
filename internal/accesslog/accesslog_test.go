package accesslog

import (
	"context"
	"testing"
)

func TestNewReturnsNilStoreWhenUnconfigured(t *testing.T) {
	s, err := New(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatal("expected nil store when no DATABASE_URL is configured")
	}
}

func TestNilStoreMethodsAreNoOps(t *testing.T) {
	var s *Store
	s.Insert(context.Background(), Record{RequestID: "r1"})
	s.Close() // must not panic
}
