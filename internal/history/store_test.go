package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kavachlabs/kavach/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Record{SessionID: "s1", Pipeline: "mel", Label: "Safe/Neutral", Code: "S", Safety: "safe"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("ephemeral store must keep nothing, got %d records", len(recs))
	}
}

func TestAppendAndRecent(t *testing.T) {
	cfg := config.HistoryConfig{
		Path:          filepath.Join(t.TempDir(), "history.db"),
		RetentionMode: "persistent",
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for i, label := range []string{"Safe/Neutral", "DANGER (Fear)", "Caution (Angry)"} {
		rec := Record{
			SessionID:  "session-1",
			Pipeline:   "mel",
			Label:      label,
			Confidence: 0.5 + float64(i)*0.1,
			Safety:     "safe",
			Code:       "S",
		}
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := s.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Label != "Caution (Angry)" {
		t.Fatalf("expected newest record first, got %q", recs[0].Label)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	cfg := config.HistoryConfig{
		Path:          filepath.Join(t.TempDir(), "history.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxRecords:    1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{SessionID: "old", Pipeline: "mel", Label: "Safe/Neutral", Safety: "safe", Code: "S"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{SessionID: "new", Pipeline: "mel", Label: "DANGER (Fear)", Safety: "danger", Code: "D"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record after prune, got %d", len(recs))
	}
	if recs[0].SessionID != "new" {
		t.Fatalf("expected newest record to survive, got %q", recs[0].SessionID)
	}
}
