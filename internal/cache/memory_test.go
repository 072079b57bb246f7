package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
)

func mustKey(t *testing.T, tenant uuid.UUID, et entity.Type) Key {
	t.Helper()
	k, err := NewKey(tenant, et, uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestMemory_PutGetDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(4)
	key := mustKey(t, uuid.New(), entity.TypeNote)

	if e, err := b.Get(ctx, key); err != nil || e != nil {
		t.Fatalf("get vacío: %v %v", e, err)
	}

	entry := NewEntry([]byte(`{"a":1}`), time.Now().UTC(), 3)
	if err := b.Put(ctx, key, entry); err != nil {
		t.Fatal(err)
	}
	got, err := b.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || string(got.Value) != `{"a":1}` || got.Watermark != 3 {
		t.Fatalf("get: %+v", got)
	}

	if err := b.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if e, _ := b.Get(ctx, key); e != nil {
		t.Fatal("delete no borró")
	}
	// delete idempotente
	if err := b.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
}

func TestMemory_StoredEntryIsImmutable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(1)
	key := mustKey(t, uuid.New(), entity.TypeNote)

	entry := NewEntry([]byte("v1"), time.Now().UTC(), 1)
	_ = b.Put(ctx, key, entry)
	entry.Watermark = 99 // mutar el original no afecta lo guardado

	got, _ := b.Get(ctx, key)
	if got.Watermark != 1 {
		t.Fatalf("la entrada guardada se mutó: %d", got.Watermark)
	}
}

func TestMemory_InvalidateTenantIsolation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(8)
	tenantA, tenantB := uuid.New(), uuid.New()

	var keysA []Key
	for i := 0; i < 5; i++ {
		k := mustKey(t, tenantA, entity.TypeNote)
		keysA = append(keysA, k)
		_ = b.Put(ctx, k, NewEntry([]byte("a"), time.Now().UTC(), 0))
	}
	keyB := mustKey(t, tenantB, entity.TypeNote)
	_ = b.Put(ctx, keyB, NewEntry([]byte("b"), time.Now().UTC(), 0))

	n, err := b.InvalidateTenant(ctx, tenantA)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("invalidated: %d", n)
	}
	for _, k := range keysA {
		if e, _ := b.Get(ctx, k); e != nil {
			t.Fatal("entrada del tenant A sobrevivió")
		}
	}
	if e, _ := b.Get(ctx, keyB); e == nil {
		t.Fatal("la invalidación cruzó de tenant")
	}

	// idempotente: segunda pasada no encuentra nada
	n, err = b.InvalidateTenant(ctx, tenantA)
	if err != nil || n != 0 {
		t.Fatalf("segunda invalidación: %d %v", n, err)
	}
}

func TestMemory_InvalidateEntityType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(8)
	tenant := uuid.New()

	noteKey := mustKey(t, tenant, entity.TypeNote)
	turnKey := mustKey(t, tenant, entity.TypeTurn)
	_ = b.Put(ctx, noteKey, NewEntry([]byte("n"), time.Now().UTC(), 0))
	_ = b.Put(ctx, turnKey, NewEntry([]byte("t"), time.Now().UTC(), 0))

	n, err := b.InvalidateEntityType(ctx, tenant, entity.TypeNote)
	if err != nil || n != 1 {
		t.Fatalf("invalidate type: %d %v", n, err)
	}
	if e, _ := b.Get(ctx, noteKey); e != nil {
		t.Fatal("note sobrevivió")
	}
	if e, _ := b.Get(ctx, turnKey); e == nil {
		t.Fatal("turn no debía borrarse")
	}
}

func TestMemory_Stats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(2)
	key := mustKey(t, uuid.New(), entity.TypeNote)

	_, _ = b.Get(ctx, key) // miss
	_ = b.Put(ctx, key, NewEntry([]byte("xyz"), time.Now().UTC(), 0))
	_, _ = b.Get(ctx, key) // hit

	st, err := b.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Driver != "memory" || st.Hits != 1 || st.Misses != 1 || st.EntryCount != 1 {
		t.Fatalf("stats: %+v", st)
	}
	if st.MemoryBytes == 0 {
		t.Fatal("memory_bytes en cero con una entrada viva")
	}
	if hr := st.HitRate(); hr != 0.5 {
		t.Fatalf("hit rate: %f", hr)
	}
}

func TestMemory_ClosedReturnsUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(2)
	key := mustKey(t, uuid.New(), entity.TypeNote)
	_ = b.Close()

	if _, err := b.Get(ctx, key); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("get tras close: %v", err)
	}
	if err := b.Put(ctx, key, NewEntry([]byte("x"), time.Now().UTC(), 0)); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("put tras close: %v", err)
	}
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemory(16)
	tenant := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				k := mustKeyNamed(tenant, n, j)
				_ = b.Put(ctx, k, NewEntry([]byte("v"), time.Now().UTC(), uint64(j)))
				_, _ = b.Get(ctx, k)
				if j%3 == 0 {
					_ = b.Delete(ctx, k)
				}
			}
		}(i)
	}
	wg.Wait()

	if _, err := b.Stats(ctx); err != nil {
		t.Fatal(err)
	}
}

// mustKeyNamed deriva un uuid determinístico para el worker/iteración.
func mustKeyNamed(tenant uuid.UUID, worker, iter int) Key {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d-%d", worker, iter)))
	k, _ := NewKey(tenant, entity.TypeNote, id)
	return k
}
