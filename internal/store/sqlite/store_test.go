package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hostlink/hostlink/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndRecentCommands(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	recs := []domain.AuditRecord{
		{Command: "ping", ClientIP: "127.0.0.1", OK: true, Duration: time.Millisecond},
		{Command: "execute_script", ClientIP: "127.0.0.1", OK: false, Error: "script failed", Duration: 120 * time.Millisecond},
		{Command: "get_server_info", ClientIP: "10.0.0.9", OK: true, Duration: 2 * time.Millisecond},
	}
	for _, rec := range recs {
		if err := s.RecordCommand(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentCommands(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// Most recent first.
	if got[0].Command != "get_server_info" || got[2].Command != "ping" {
		t.Fatalf("unexpected order: %q, %q, %q", got[0].Command, got[1].Command, got[2].Command)
	}
	if got[1].OK || got[1].Error != "script failed" {
		t.Fatalf("failure not recorded: %+v", got[1])
	}
	if got[1].Duration != 120*time.Millisecond {
		t.Fatalf("duration mismatch: %s", got[1].Duration)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at backfilled")
	}
}

func TestRecentCommandsLimit(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	for it := 0; it < 10; it++ {
		if err := s.RecordCommand(ctx, domain.AuditRecord{Command: "ping", ClientIP: "127.0.0.1", OK: true}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.RecentCommands(ctx, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
}

func TestCountAndPurge(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-48 * time.Hour)
	if err := s.RecordCommand(ctx, domain.AuditRecord{Command: "ping", ClientIP: "127.0.0.1", OK: true, CreatedAt: old}); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCommand(ctx, domain.AuditRecord{Command: "ping", ClientIP: "127.0.0.1", OK: true}); err != nil {
		t.Fatal(err)
	}

	purged, err := s.PurgeOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour), 0)
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged, got %d", purged)
	}
	count, err := s.CountCommands(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 remaining, got %d", count)
	}
}
