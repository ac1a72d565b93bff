package audio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"echowatch/internal/audio"
	"echowatch/internal/ledger"
	"echowatch/internal/logging"
	"echowatch/internal/services"
	"echowatch/internal/services/whisperx"
	"echowatch/internal/staging"
	"echowatch/internal/testsupport"
)

type fakeTranscriber struct {
	mu         sync.Mutex
	convertErr map[string]error
	converted  []string
}

func (f *fakeTranscriber) ConvertToWAV(ctx context.Context, source, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.convertErr[filepath.Base(source)]; err != nil {
		return err
	}
	f.converted = append(f.converted, filepath.Base(source))
	return os.WriteFile(dest, []byte("wav"), 0o644)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, source, outputDir string) (whisperx.Transcript, error) {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return whisperx.Transcript{Text: "units responding " + stem}, nil
}

type harness struct {
	stage     *staging.Manager
	store     *ledger.Store
	converter *audio.Converter
	fake      *fakeTranscriber
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	stage := staging.NewManager(cfg.Paths.StagingDir, logging.NewNop())
	fake := &fakeTranscriber{convertErr: map[string]error{}}
	converter := audio.NewConverter(stage, fake, store, 0, logging.NewNop())
	if err := converter.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return &harness{stage: stage, store: store, converter: converter, fake: fake}
}

func (h *harness) stageCall(t *testing.T, name string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(h.stage.Dir(staging.Inbound), name), 64)
}

func (h *harness) files(t *testing.T, stage staging.Stage) []string {
	t.Helper()
	paths, err := h.stage.List(stage)
	if err != nil {
		t.Fatalf("List %s: %v", stage, err)
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

func TestConvertAllStagedSuccess(t *testing.T) {
	h := newHarness(t)
	h.stageCall(t, "a.mp3")
	h.stageCall(t, "b.m4a")
	ctx := context.Background()

	n, err := h.converter.ConvertAllStaged(ctx)
	if err != nil {
		t.Fatalf("ConvertAllStaged: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 converted, got %d", n)
	}
	if got := h.files(t, staging.Transcribing); len(got) != 2 || got[0] != "a.txt" && got[1] != "a.txt" {
		t.Fatalf("unexpected transcripts %v", got)
	}
	data, err := os.ReadFile(filepath.Join(h.stage.Dir(staging.Transcribing), "a.txt"))
	if err != nil || strings.TrimSpace(string(data)) != "units responding a" {
		t.Fatalf("unexpected transcript %q (%v)", data, err)
	}
	if got := h.files(t, staging.Processed); len(got) != 2 {
		t.Fatalf("expected audio archived, got %v", got)
	}
	if got := h.files(t, staging.InProgress); len(got) != 0 {
		t.Fatalf("expected empty inprogress, got %v", got)
	}
	pending, err := h.store.PendingTranscripts(ctx, 0)
	if err != nil || len(pending) != 2 {
		t.Fatalf("expected 2 pending transcripts, got %d (%v)", len(pending), err)
	}

	depths, err := h.converter.BacklogDepths(ctx)
	if err != nil {
		t.Fatalf("BacklogDepths: %v", err)
	}
	if depths != (staging.Depths{Staged: 0, InProgress: 0, AwaitingAnalysis: 2}) {
		t.Fatalf("unexpected depths %+v", depths)
	}
}

func TestRetryableFailureRequeuesUntilBudgetSpent(t *testing.T) {
	h := newHarness(t)
	h.stageCall(t, "bad.mp3")
	h.stageCall(t, "good.mp3")
	h.fake.convertErr["bad.mp3"] = errors.New("ffmpeg: exit status 1")
	ctx := context.Background()

	for pass := 1; pass < audio.DefaultMaxAttempts; pass++ {
		if _, err := h.converter.ConvertAllStaged(ctx); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if got := h.files(t, staging.Inbound); len(got) != 1 || got[0] != "bad.mp3" {
			t.Fatalf("pass %d: expected bad.mp3 requeued, got %v", pass, got)
		}
	}
	if _, err := h.converter.ConvertAllStaged(ctx); err != nil {
		t.Fatalf("final pass: %v", err)
	}
	if got := h.files(t, staging.Failed); len(got) != 1 || got[0] != "bad.mp3" {
		t.Fatalf("expected bad.mp3 parked in failed, got %v", got)
	}
	if n, _ := h.store.CountByStatus(ctx, ledger.StatusFailed); n != 1 {
		t.Fatalf("expected one failed call, got %d", n)
	}
	if n, _ := h.store.CountByStatus(ctx, ledger.StatusConverted); n != 1 {
		t.Fatalf("expected good call converted despite failures, got %d", n)
	}
}

func TestNonRetryableFailureGoesStraightToFailed(t *testing.T) {
	h := newHarness(t)
	h.stageCall(t, "corrupt.mp3")
	h.fake.convertErr["corrupt.mp3"] = services.Wrap(services.ErrValidation, "ffmpeg", "probe", "no audio stream", nil)

	n, err := h.converter.ConvertAllStaged(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected 0 converted without error, got %d, %v", n, err)
	}
	if got := h.files(t, staging.Failed); len(got) != 1 {
		t.Fatalf("expected file in failed, got %v", got)
	}
}

func TestPrepareRecoversInterruptedFiles(t *testing.T) {
	h := newHarness(t)
	testsupport.WriteFile(t, filepath.Join(h.stage.Dir(staging.InProgress), "stranded.mp3"), 8)
	if err := h.converter.Prepare(context.Background()); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if got := h.files(t, staging.Inbound); len(got) != 1 || got[0] != "stranded.mp3" {
		t.Fatalf("expected stranded file back in inbound, got %v", got)
	}
}

func TestConvertAllStagedMissingInbound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stage := staging.NewManager(filepath.Join(cfg.Paths.StagingDir, "absent"), logging.NewNop())
	converter := audio.NewConverter(stage, &fakeTranscriber{}, nil, 0, logging.NewNop())
	if _, err := converter.ConvertAllStaged(context.Background()); err == nil {
		t.Fatal("expected error when inbound cannot be listed")
	}
}
