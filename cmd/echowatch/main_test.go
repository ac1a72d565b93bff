package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"echowatch/internal/config"
	"echowatch/internal/ledger"
	"echowatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("NTFY_TOPIC", "")

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nstaging_dir = %q\nstate_dir = %q\nlog_dir = %q\n\n",
		cfg.Paths.StagingDir, cfg.Paths.StateDir, cfg.Paths.LogDir)
	fmt.Fprintf(&b, "[source]\ncalls_url = %q\n\n", cfg.Source.CallsURL)
	fmt.Fprintf(&b, "[llm]\napi_key = %q\nbase_url = %q\n\n", cfg.LLM.APIKey, cfg.LLM.BaseURL)
	if cfg.Notifications.NtfyTopic != "" {
		fmt.Fprintf(&b, "[notifications]\nntfy_topic = %q\n", cfg.Notifications.NtfyTopic)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigShowMasksCredentials(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, env.configPath)
	requireContains(t, out, "********")
	if key := env.cfg.LLM.APIKey; strings.Contains(out, `"`+key+`"`) || strings.Contains(out, "'"+key+"'") {
		t.Fatalf("api key leaked: %s", out)
	}
}

func TestCommandsRequireValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[source]\ncalls_url = \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HOME", t.TempDir())
	if _, _, err := runCLI(t, []string{"calls"}, path); err == nil {
		t.Fatal("expected missing calls_url to fail")
	}
}

func TestCallsAndBatchesCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	store := testsupport.MustOpenLedger(t, env.cfg)
	call := testsupport.ConvertedCall(t, store, "1700000000-42-tg100", "engine 4 responding to structure fire")
	if err := store.RecordBatch(context.Background(), ledger.Batch{
		ID:              "6f1c2d3e-aaaa-bbbb-cccc-000000000001",
		OverallSeverity: 8,
		Summary:         "Structure fire with multiple units",
		Alerted:         true,
	}, []int64{call.ID}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}
	testsupport.ConvertedCall(t, store, "1700000100-43-tg200", "traffic stop")

	out, _, err := runCLI(t, []string{"calls", "--limit", "10"}, env.configPath)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}
	requireContains(t, out, "1700000000-42-tg100")
	requireContains(t, out, "analyzed")
	requireContains(t, out, "traffic stop")

	out, _, err = runCLI(t, []string{"calls", "--limit", "1", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("calls --json: %v", err)
	}
	var callsPayload struct {
		Calls []callView `json:"calls"`
	}
	if err := json.Unmarshal([]byte(out), &callsPayload); err != nil {
		t.Fatalf("decode calls json: %v (%s)", err, out)
	}
	if len(callsPayload.Calls) != 1 {
		t.Fatalf("expected limit to apply, got %d calls", len(callsPayload.Calls))
	}

	out, _, err = runCLI(t, []string{"batches"}, env.configPath)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	requireContains(t, out, "6f1c2d3e")
	requireContains(t, out, "8.0")
	requireContains(t, out, "Structure fire")

	out, _, err = runCLI(t, []string{"batches", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("batches --json: %v", err)
	}
	var batchesPayload struct {
		Batches []batchView `json:"batches"`
	}
	if err := json.Unmarshal([]byte(out), &batchesPayload); err != nil {
		t.Fatalf("decode batches json: %v", err)
	}
	if len(batchesPayload.Batches) != 1 || !batchesPayload.Batches[0].Alerted || batchesPayload.Batches[0].CallCount != 1 {
		t.Fatalf("unexpected batches payload: %#v", batchesPayload.Batches)
	}
}

func TestEmptyLedgerMessages(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"calls"}, env.configPath)
	if err != nil {
		t.Fatalf("calls: %v", err)
	}
	requireContains(t, out, "No calls recorded")

	out, _, err = runCLI(t, []string{"batches"}, env.configPath)
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	requireContains(t, out, "No batches analyzed")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.StagingDir, "inbound", "a.mp3"), 16)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "not running")
	requireContains(t, out, "Last batch:      never")
	requireContains(t, out, "Inbound")
	requireContains(t, out, "Calls converted")
}

func TestCheckCommandFailsWhenFeedUnreachable(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, err := runCLI(t, []string{"check", "--json"}, env.configPath)
	if !errors.Is(err, errPreflightFailed) {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	var payload struct {
		Checks []struct {
			Name   string `json:"name"`
			Passed bool   `json:"passed"`
		} `json:"checks"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode check json: %v", err)
	}
	found := false
	for _, c := range payload.Checks {
		if c.Name == "Calls feed" {
			found = true
			if c.Passed {
				t.Fatal("expected unreachable feed to fail")
			}
		}
		if c.Name == "uvx" && !c.Passed {
			t.Fatal("expected stubbed uvx to pass")
		}
	}
	if !found {
		t.Fatal("expected feed check in output")
	}
}

func TestCheckCommandRendersTable(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, _ := runCLI(t, []string{"check"}, env.configPath)
	requireContains(t, out, "Check")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "ERROR")
}

func TestTestNotifyCommand(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, testsupport.WithNtfyTopic(srv.URL+"/echowatch"))
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if hits.Load() != 1 {
		t.Fatalf("expected one ntfy request, got %d", hits.Load())
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "not configured")
}

func TestTruncate(t *testing.T) {
	if got := truncate("  engine   4\nresponding ", 50); got != "engine 4 responding" {
		t.Fatalf("unexpected whitespace collapse: %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestSeverityKind(t *testing.T) {
	if severityKind(7, 7) != statusError {
		t.Fatal("threshold severity should be an error")
	}
	if severityKind(4, 7) != statusWarn {
		t.Fatal("mid severity should warn")
	}
	if severityKind(1, 7) != statusOK {
		t.Fatal("low severity should be ok")
	}
}

func TestLogsCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "one component=ingest\ntwo component=daemon\nthree component=ingest\n"
	if err := os.WriteFile(filepath.Join(env.cfg.Paths.LogDir, "echowatch.log"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"logs", "--lines", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two component=daemon\nthree component=ingest\n" {
		t.Fatalf("unexpected logs output %q", out)
	}

	out, _, err = runCLI(t, []string{"logs", "--match", "ingest"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --match: %v", err)
	}
	if strings.Contains(out, "daemon") || !strings.Contains(out, "three") {
		t.Fatalf("unexpected filtered output %q", out)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{context.Canceled, 0},
		{fmt.Errorf("run: %w", errPreflightFailed), 2},
		{errors.New("boom"), 1},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable(numeric(columns("Name", "Count"), "Count"), [][]string{{"inbound"}, {"failed", "3", "extra"}})
	requireContains(t, out, "inbound")
	requireContains(t, out, "3")
	if strings.Contains(out, "extra") {
		t.Fatalf("expected extra cell dropped: %s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Fatal("expected empty render without columns")
	}
}
