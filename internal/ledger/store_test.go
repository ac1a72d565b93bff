package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"echowatch/internal/ledger"
)

func openTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "state", "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
	reopened, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened.Close()

	if _, err := ledger.Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenRejectsOtherSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	_ = db.Close()

	if _, err := ledger.Open(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestRecordDownloadedDeduplicates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	call, err := store.RecordDownloaded(ctx, ledger.Call{SourceID: "c-1", AudioFile: "c-1.mp3", Talkgroup: "Fire Dispatch"})
	if err != nil {
		t.Fatalf("RecordDownloaded: %v", err)
	}
	if call.ID == 0 || call.Status != ledger.StatusDownloaded {
		t.Fatalf("unexpected call %+v", call)
	}
	if _, err := store.RecordDownloaded(ctx, ledger.Call{SourceID: "c-1", AudioFile: "other.mp3"}); !errors.Is(err, ledger.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	seen, err := store.Seen(ctx, "c-1")
	if err != nil || !seen {
		t.Fatalf("Seen = %v, %v", seen, err)
	}
	if seen, _ := store.Seen(ctx, "c-2"); seen {
		t.Fatal("unexpected Seen for unknown call")
	}
}

func TestConvertAnalyzeLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		if _, err := store.RecordDownloaded(ctx, ledger.Call{
			SourceID: id, AudioFile: id + ".mp3", ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("RecordDownloaded %s: %v", id, err)
		}
	}
	for _, id := range []string{"b", "a"} {
		if err := store.MarkConverted(ctx, id+".mp3", "units respond to "+id); err != nil {
			t.Fatalf("MarkConverted: %v", err)
		}
	}

	pending, err := store.PendingTranscripts(ctx, 0)
	if err != nil {
		t.Fatalf("PendingTranscripts: %v", err)
	}
	if len(pending) != 2 || pending[0].SourceID != "a" || pending[1].SourceID != "b" {
		t.Fatalf("unexpected pending %+v", pending)
	}
	if limited, _ := store.PendingTranscripts(ctx, 1); len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}

	if _, ok, _ := store.LastBatchTime(ctx); ok {
		t.Fatal("expected no batches yet")
	}
	batch := ledger.Batch{ID: "batch-1", OverallSeverity: 8, Summary: "structure fire", Alerted: true}
	if err := store.RecordBatch(ctx, batch, []int64{pending[0].ID, pending[1].ID}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	if n, _ := store.CountByStatus(ctx, ledger.StatusConverted); n != 0 {
		t.Fatalf("expected no pending transcripts, got %d", n)
	}
	counts, err := store.StatusCounts(ctx)
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if counts[ledger.StatusAnalyzed] != 2 || counts[ledger.StatusDownloaded] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if _, ok, err := store.LastBatchTime(ctx); !ok || err != nil {
		t.Fatalf("LastBatchTime ok=%v err=%v", ok, err)
	}

	batches, err := store.ListBatches(ctx, 5)
	if err != nil || len(batches) != 1 {
		t.Fatalf("ListBatches = %v, %v", batches, err)
	}
	if got := batches[0]; got.CallCount != 2 || !got.Alerted || got.IncidentsJSON != "[]" {
		t.Fatalf("unexpected batch %+v", got)
	}

	calls, err := store.ListCalls(ctx, 10)
	if err != nil || len(calls) != 3 {
		t.Fatalf("ListCalls = %d, %v", len(calls), err)
	}
	if calls[0].SourceID != "c" {
		t.Fatalf("expected newest first, got %s", calls[0].SourceID)
	}
	if calls[2].BatchID != "batch-1" {
		t.Fatalf("expected batch id on analyzed call, got %q", calls[2].BatchID)
	}
}

func TestMarkConvertedRecordsUnknownFiles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.MarkConverted(ctx, "manual-drop.wav", "test transcript"); err != nil {
		t.Fatalf("MarkConverted: %v", err)
	}
	pending, err := store.PendingTranscripts(ctx, 0)
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, %v", pending, err)
	}
	if pending[0].SourceID != "file:manual-drop" {
		t.Fatalf("unexpected synthesized source id %q", pending[0].SourceID)
	}
}

func TestRecordFailureCountsAttempts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.RecordDownloaded(ctx, ledger.Call{SourceID: "x", AudioFile: "x.mp3"}); err != nil {
		t.Fatal(err)
	}
	for want := 1; want <= 2; want++ {
		attempts, err := store.RecordFailure(ctx, "x.mp3", "ffmpeg crashed", false)
		if err != nil || attempts != want {
			t.Fatalf("attempt %d: got %d, %v", want, attempts, err)
		}
	}
	if _, err := store.RecordFailure(ctx, "x.mp3", "gave up", true); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountByStatus(ctx, ledger.StatusFailed); n != 1 {
		t.Fatalf("expected failed call, got %d", n)
	}
}

func TestMarkFailed(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if _, err := store.RecordDownloaded(ctx, ledger.Call{SourceID: "y", AudioFile: "y.mp3"}); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailed(ctx, "y.mp3"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if n, _ := store.CountByStatus(ctx, ledger.StatusFailed); n != 1 {
		t.Fatalf("expected failed call, got %d", n)
	}
	if err := store.MarkFailed(ctx, "missing.mp3"); err == nil {
		t.Fatal("expected error for unknown file")
	}
}
