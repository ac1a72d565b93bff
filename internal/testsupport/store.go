package testsupport

import (
	"context"
	"testing"

	"echowatch/internal/config"
	"echowatch/internal/ledger"
)

// MustOpenLedger opens the ledger for cfg and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// ConvertedCall records a call and marks it converted with transcript.
func ConvertedCall(t testing.TB, store *ledger.Store, sourceID, transcript string) *ledger.Call {
	t.Helper()

	ctx := context.Background()
	call, err := store.RecordDownloaded(ctx, ledger.Call{SourceID: sourceID, AudioFile: sourceID + ".mp3"})
	if err != nil {
		t.Fatalf("RecordDownloaded: %v", err)
	}
	if err := store.MarkConverted(ctx, call.AudioFile, transcript); err != nil {
		t.Fatalf("MarkConverted: %v", err)
	}
	call.Status = ledger.StatusConverted
	call.Transcript = transcript
	return call
}
