package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_Set_Get_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	if err := s.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "v1" {
		t.Errorf("Get: got %q", v)
	}
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Get(ctx, "k1", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Delete: err=%v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_Get_Miss(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	var v string
	if err := s.Get(ctx, "missing", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get missing: err=%v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	ok, err := s.Exists(ctx, "k")
	if err != nil || ok {
		t.Errorf("Exists missing: ok=%v err=%v", ok, err)
	}
	_ = s.Set(ctx, "k", "v", 0)
	ok, err = s.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists present: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	_ = s.Set(ctx, "k1", "v1", 0)
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	var v string
	if err := s.Get(ctx, "k1", &v); err == nil {
		t.Error("Get after Clear should error")
	}
}

func TestMemoryStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	_ = s.Set(ctx, "short", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	var v string
	if err := s.Get(ctx, "short", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get expired: err=%v, want ErrCacheMiss", err)
	}
}

func TestMemoryStore_StructRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	type slot struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	in := []slot{{Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}}
	if err := s.Set(ctx, "slots", in, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var out []slot
	if err := s.Get(ctx, "slots", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(out) != 1 || !out[0].Start.Equal(in[0].Start) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}
