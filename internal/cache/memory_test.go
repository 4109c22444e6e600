package cache

import (
	"context"
	"testing"
	"time"

	"qrstudio/internal/config"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatal("empty cache returned a value")
	}
	m.Set(ctx, "a", []byte("one"), 0)
	v, ok, err := m.Get(ctx, "a")
	if err != nil || !ok || string(v) != "one" {
		t.Fatalf("get = %q %v %v", v, ok, err)
	}

	v[0] = 'X'
	if v, _, _ := m.Get(ctx, "a"); string(v) != "one" {
		t.Errorf("cached value mutated through returned slice: %q", v)
	}

	m.Delete(ctx, "a")
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("deleted key still present")
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }

	m.Set(ctx, "short", []byte("x"), time.Minute)
	m.Set(ctx, "long", []byte("y"), time.Hour)
	m.Set(ctx, "forever", []byte("z"), 0)

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "short"); ok {
		t.Error("expired entry returned")
	}
	if _, ok, _ := m.Get(ctx, "long"); !ok {
		t.Error("live entry missing")
	}

	now = now.Add(2 * time.Hour)
	if n := m.Sweep(); n != 1 {
		t.Errorf("sweep dropped %d, want 1", n)
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestOpen_Backends(t *testing.T) {
	c, err := Open(config.CacheConf{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("memory backend = %T", c)
	}
	if _, err := Open(config.CacheConf{Backend: "etcd"}); err == nil {
		t.Error("unknown backend accepted")
	}
}
