package cache

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
)

func TestGoCache_BasicOps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewGoCache(0)
	key := mustKey(t, uuid.New(), entity.TypeArtifact)

	if e, err := b.Get(ctx, key); err != nil || e != nil {
		t.Fatalf("get vacío: %v %v", e, err)
	}
	_ = b.Put(ctx, key, NewEntry([]byte("v"), time.Now().UTC(), 2))
	got, _ := b.Get(ctx, key)
	if got == nil || got.Watermark != 2 {
		t.Fatalf("get: %+v", got)
	}
	_ = b.Delete(ctx, key)
	if e, _ := b.Get(ctx, key); e != nil {
		t.Fatal("delete no borró")
	}
}

func TestGoCache_TTLExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewGoCache(20 * time.Millisecond)
	key := mustKey(t, uuid.New(), entity.TypeNote)

	_ = b.Put(ctx, key, NewEntry([]byte("v"), time.Now().UTC(), 0))
	time.Sleep(40 * time.Millisecond)
	if e, _ := b.Get(ctx, key); e != nil {
		t.Fatal("la entrada debía expirar por TTL")
	}
}

func TestGoCache_InvalidatePrefixes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewGoCache(0)
	tenantA, tenantB := uuid.New(), uuid.New()

	kA1 := mustKey(t, tenantA, entity.TypeNote)
	kA2 := mustKey(t, tenantA, entity.TypeTurn)
	kB := mustKey(t, tenantB, entity.TypeNote)
	for _, k := range []Key{kA1, kA2, kB} {
		_ = b.Put(ctx, k, NewEntry([]byte("v"), time.Now().UTC(), 0))
	}

	n, err := b.InvalidateEntityType(ctx, tenantA, entity.TypeNote)
	if err != nil || n != 1 {
		t.Fatalf("invalidate type: %d %v", n, err)
	}
	n, err = b.InvalidateTenant(ctx, tenantA)
	if err != nil || n != 1 {
		t.Fatalf("invalidate tenant: %d %v", n, err)
	}
	if e, _ := b.Get(ctx, kB); e == nil {
		t.Fatal("tenant B afectado")
	}

	st, _ := b.Stats(ctx)
	if st.Driver != "gocache" || st.EntryCount != 1 {
		t.Fatalf("stats: %+v", st)
	}
}
