package instance

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hostlink/hostlink/internal/domain"
	"github.com/hostlink/hostlink/internal/log"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join(t.TempDir(), RegistryFileName), log.New("error"))
}

func TestRegistryRoundTrip(t *testing.T) {
	t.Parallel()

	r := testRegistry(t)
	e := domain.RegistryEntry{
		InstanceID: "hostlink-1-2-abcd",
		Port:       9877,
		Project:    "Sandbox",
		TokenHash:  "deadbeef",
		PID:        42,
		Started:    1700000000.5,
	}
	if err := r.Upsert(e); err != nil {
		t.Fatal(err)
	}

	got := r.Load()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if got[e.InstanceID] != e {
		t.Fatalf("entry mismatch: %+v", got[e.InstanceID])
	}
}

func TestRegistryUpsertReplaces(t *testing.T) {
	t.Parallel()

	r := testRegistry(t)
	e := domain.RegistryEntry{InstanceID: "a", Port: 9877}
	if err := r.Upsert(e); err != nil {
		t.Fatal(err)
	}
	e.Port = 9878
	if err := r.Upsert(e); err != nil {
		t.Fatal(err)
	}
	if got := r.Load()["a"].Port; got != 9878 {
		t.Fatalf("expected replacement, got port %d", got)
	}
}

func TestRegistryRemove(t *testing.T) {
	t.Parallel()

	r := testRegistry(t)
	_ = r.Upsert(domain.RegistryEntry{InstanceID: "a", Port: 9877})
	_ = r.Upsert(domain.RegistryEntry{InstanceID: "b", Port: 9878})
	if err := r.Remove("a"); err != nil {
		t.Fatal(err)
	}
	got := r.Load()
	if _, ok := got["a"]; ok {
		t.Fatal("expected a removed")
	}
	if _, ok := got["b"]; !ok {
		t.Fatal("expected b kept")
	}
	// Removing again is a no-op.
	if err := r.Remove("a"); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryPrune(t *testing.T) {
	t.Parallel()

	r := testRegistry(t)
	_ = r.Upsert(domain.RegistryEntry{InstanceID: "keep", Port: 9877})
	_ = r.Upsert(domain.RegistryEntry{InstanceID: "drop", Port: 9878})

	dropped, err := r.Prune(func(e domain.RegistryEntry) bool { return e.InstanceID == "keep" })
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped, got %d", dropped)
	}
	if _, ok := r.Load()["drop"]; ok {
		t.Fatal("expected entry pruned")
	}
}

func TestRegistryToleratesMissingAndCorruptFiles(t *testing.T) {
	t.Parallel()

	r := testRegistry(t)
	if got := r.Load(); len(got) != 0 {
		t.Fatalf("expected empty registry for missing file, got %d entries", len(got))
	}

	if err := os.WriteFile(r.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := r.Load(); len(got) != 0 {
		t.Fatalf("expected empty registry for corrupt file, got %d entries", len(got))
	}

	// A corrupt file must not block new registrations.
	if err := r.Upsert(domain.RegistryEntry{InstanceID: "a", Port: 9877}); err != nil {
		t.Fatal(err)
	}
	if len(r.Load()) != 1 {
		t.Fatal("expected registry recovered after rewrite")
	}
}
