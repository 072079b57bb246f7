package journal

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/entitycache/internal/entity"
	"github.com/google/uuid"
)

func TestMemory_WatermarksStrictlyIncrease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := NewMemory()
	tenant := uuid.New()

	var last uint64
	for i := 0; i < 10; i++ {
		wm, err := j.Record(ctx, TenantScope(tenant))
		if err != nil {
			t.Fatal(err)
		}
		if wm <= last {
			t.Fatalf("watermark no creció: %d <= %d", wm, last)
		}
		last = wm
	}
}

func TestMemory_CurrentWatermarkPerScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := NewMemory()
	tenant := uuid.New()
	id := uuid.New()

	keyScope := KeyScope(tenant, entity.TypeNote, id)
	typeScope := TypeScope(tenant, entity.TypeNote)

	// Sin marcas: cero en todos lados.
	if wm, _ := j.CurrentWatermark(ctx, keyScope); wm != 0 {
		t.Fatalf("scope virgen: %d", wm)
	}

	wmKey, _ := j.Record(ctx, keyScope)
	wmType, _ := j.Record(ctx, typeScope)

	if got, _ := j.CurrentWatermark(ctx, keyScope); got != wmKey {
		t.Fatalf("key scope: got %d want %d", got, wmKey)
	}
	if got, _ := j.CurrentWatermark(ctx, typeScope); got != wmType {
		t.Fatalf("type scope: got %d want %d", got, wmType)
	}
	// El scope tenant no se tocó: las marcas son por scope exacto, la
	// agregación max-de-scopes vive en el lector.
	if got, _ := j.CurrentWatermark(ctx, TenantScope(tenant)); got != 0 {
		t.Fatalf("tenant scope: %d", got)
	}
}

func TestMemory_EntriesSince(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := NewMemory()
	tenantA, tenantB := uuid.New(), uuid.New()

	wm1, _ := j.Record(ctx, TenantScope(tenantA))
	_, _ = j.Record(ctx, TenantScope(tenantB))
	wm3, _ := j.Record(ctx, TypeScope(tenantA, entity.TypeTurn))

	all, err := j.Entries(ctx, tenantA, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("entries: %d", len(all))
	}
	if all[0].Watermark != wm1 || all[1].Watermark != wm3 {
		t.Fatalf("orden: %+v", all)
	}

	tail, _ := j.Entries(ctx, tenantA, wm1)
	if len(tail) != 1 || tail[0].Watermark != wm3 {
		t.Fatalf("since exclusivo: %+v", tail)
	}
}

func TestMemory_PruneKeepsLatestMarkPerScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j := NewMemory()
	tenant := uuid.New()
	scope := TenantScope(tenant)

	_, _ = j.Record(ctx, scope)
	_, _ = j.Record(ctx, scope)
	wmLast, _ := j.Record(ctx, scope)

	removed, err := j.Prune(ctx, tenant, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("pruned: %d", removed)
	}
	// La marca vigente sobrevive al prune.
	if got, _ := j.CurrentWatermark(ctx, scope); got != wmLast {
		t.Fatalf("marca vigente: got %d want %d", got, wmLast)
	}
	left, _ := j.Entries(ctx, tenant, 0)
	if len(left) != 1 || left[0].Watermark != wmLast {
		t.Fatalf("entries tras prune: %+v", left)
	}
}

func TestScope_Strings(t *testing.T) {
	t.Parallel()
	tenant := uuid.New()
	id := uuid.New()

	ks := KeyScope(tenant, entity.TypeNote, id)
	ts := TypeScope(tenant, entity.TypeNote)
	tn := TenantScope(tenant)

	if ks.String() == ts.String() || ts.String() == tn.String() || ks.String() == tn.String() {
		t.Fatal("scopes distintos con misma forma textual")
	}
	if ks.Kind() != ScopeKey || ts.Kind() != ScopeEntityType || tn.Kind() != ScopeTenant {
		t.Fatal("kinds incorrectos")
	}
}
