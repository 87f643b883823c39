package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/aprsship/internal/domain"
)

func TestRows_ColumnOrder(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := domain.Frame{
		ID:          "id-1",
		Source:      "N0CALL",
		Destination: "APRS",
		Path:        []string{"WIDE1-1", "qAR", "W1AW"},
		Kind:        domain.KindPosition,
		Payload:     "!4903.50N/07201.75W-",
		ReceivedAt:  at,
		Fingerprint: "abc",
	}

	got := rows([]domain.Frame{f})
	if len(got) != 1 || len(got[0]) != len(frameColumns) {
		t.Fatalf("rows shape = %d x %d", len(got), len(got[0]))
	}
	want := []any{"id-1", "N0CALL", "APRS", "WIDE1-1,qAR,W1AW", "position", "!4903.50N/07201.75W-", at, "abc"}
	for i := range want {
		if got[0][i] != want[i] {
			t.Errorf("column %s = %v, want %v", frameColumns[i], got[0][i], want[i])
		}
	}
}

// TestStore_Integration runs against a live server when APRSSHIP_TEST_POSTGRES
// holds a DSN.
func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("APRSSHIP_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("APRSSHIP_TEST_POSTGRES not set")
	}
	ctx := context.Background()

	s, err := Open(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	old := time.Now().Add(-72 * time.Hour)
	frames := []domain.Frame{
		{ID: uuid.NewString(), Source: "N0CALL", Destination: "APRS", Kind: domain.KindStatus, Payload: ">a", ReceivedAt: old, Fingerprint: "x"},
		{ID: uuid.NewString(), Source: "N0CALL", Destination: "APRS", Kind: domain.KindStatus, Payload: ">b", ReceivedAt: old, Fingerprint: "y"},
	}
	if err := s.InsertBatch(ctx, frames); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	removed, err := s.PruneBefore(ctx, old.Add(time.Second))
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if removed < 2 {
		t.Errorf("removed = %d, want at least 2", removed)
	}
}
