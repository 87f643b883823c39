package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

func TestStatusFileRepository_LoadMissing(t *testing.T) {
	r := NewStatusFileRepository(t.TempDir())
	st, err := r.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !st.IsEmpty() {
		t.Errorf("expected empty status, got %+v", st)
	}
}

func TestStatusFileRepository_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	r := NewStatusFileRepository(dir)
	ctx := context.Background()

	want := domain.Status{
		Server:     "rotate.aprs2.net:14580",
		Callsign:   "N0CALL",
		Connection: "Streaming",
		LastLineAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Counters:   domain.Counters{LinesReceived: 10, Persisted: 7, Duplicates: 2, DecodeFailures: 1},
		UpdatedAt:  time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC),
	}
	if err := r.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := r.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Server != want.Server || got.Counters != want.Counters || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("state dir has %d entries, want only %s", len(entries), StatusFileName)
	}
}

func TestStatusFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StatusFileName), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStatusFileRepository(dir).Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}
