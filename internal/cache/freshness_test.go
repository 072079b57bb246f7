package cache

import (
	"testing"
	"time"
)

func TestFreshness(t *testing.T) {
	t.Parallel()
	c := Consistent()
	if !c.IsConsistent() || c.MaxStaleness() != 0 {
		t.Fatalf("Consistent: %v / %v", c.IsConsistent(), c.MaxStaleness())
	}
	if c.String() != "consistent" {
		t.Fatalf("String: %q", c.String())
	}

	b := BestEffort(30 * time.Second)
	if b.IsConsistent() {
		t.Fatal("BestEffort no es consistent")
	}
	if b.MaxStaleness() != 30*time.Second {
		t.Fatalf("MaxStaleness: %v", b.MaxStaleness())
	}
}

func TestEntry_ChecksumVerify(t *testing.T) {
	t.Parallel()
	e := NewEntry([]byte(`{"x":1}`), time.Now().UTC(), 7)
	if !e.Verify() {
		t.Fatal("entrada recién sellada no verifica")
	}

	tampered := *e
	tampered.Value = []byte(`{"x":2}`)
	if tampered.Verify() {
		t.Fatal("valor pisado pasó la verificación")
	}
}

func TestRead_Staleness(t *testing.T) {
	t.Parallel()
	r := Read[int]{Value: 1, CachedAt: time.Now().Add(-time.Minute)}
	if s := r.Staleness(); s < 55*time.Second || s > 65*time.Second {
		t.Fatalf("staleness fuera de rango: %v", s)
	}
	future := Read[int]{CachedAt: time.Now().Add(time.Hour)}
	if future.Staleness() != 0 {
		t.Fatal("staleness negativa debe clampearse a 0")
	}
}
