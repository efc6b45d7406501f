package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " None "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: want nil store", driver)
		}
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"unknown driver", Config{Driver: "redis", Path: "x"}, "unknown storage driver"},
		{"file without path", Config{Driver: "file"}, "storage.path is required"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Open(tt.cfg, logx.Nop())
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want %q error, got %v", tt.want, err)
			}
		})
	}
}

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st == nil {
		t.Fatal("open: nil store")
	}
	return st
}

func TestAuditAppendsJSONLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, dir)

	ctx := context.Background()
	entries := []AuditEntry{
		{Action: "cycle", Reason: "interval", Recipients: 3, Sent: 2, Failed: 1, TookMS: 1500},
		{Action: "settings", ActorID: 7, ChatID: 100, Reason: "interval 900s"},
	}
	for _, e := range entries {
		if err := st.AppendAudit(ctx, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "store.audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != len(entries) {
		t.Fatalf("want %d lines, got %d", len(entries), len(lines))
	}

	var got AuditEntry
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if got.Action != "cycle" || got.Sent != 2 || got.Failed != 1 {
		t.Fatalf("unexpected first entry: %+v", got)
	}
	if got.At.IsZero() {
		t.Fatal("At was not defaulted")
	}
}

func TestDedupRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	if err := st.PutDedup(ctx, "cycle|failed", future); err != nil {
		t.Fatalf("put: %v", err)
	}

	until, ok, err := st.GetDedup(ctx, "cycle|failed")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if until.UnixMilli() != future.UnixMilli() {
		t.Fatalf("until mismatch: got %v want %v", until, future)
	}

	if _, ok, _ := st.GetDedup(ctx, "missing"); ok {
		t.Fatal("missing key reported present")
	}
}

func TestDedupExpiresOnRead(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir())
	defer st.Close()

	ctx := context.Background()
	if err := st.PutDedup(ctx, "stale", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := st.GetDedup(ctx, "stale"); ok {
		t.Fatal("expired key reported present")
	}
}

func TestDedupSurvivesReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	until := time.Now().Add(time.Hour)

	st := openTestStore(t, dir)
	if err := st.PutDedup(ctx, "persist-me", until); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Close compacts, so the journal should be empty and the snapshot
	// authoritative.
	if fi, err := os.Stat(filepath.Join(dir, "store.dedup.journal.jsonl")); err != nil || fi.Size() != 0 {
		t.Fatalf("journal not truncated on close: %v size=%d", err, fi.Size())
	}

	st = openTestStore(t, dir)
	defer st.Close()
	got, ok, err := st.GetDedup(ctx, "persist-me")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if got.UnixMilli() != until.UnixMilli() {
		t.Fatalf("until mismatch after reopen: got %v want %v", got, until)
	}
}

func TestDedupJournalReplay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Simulate a crash: journal entries the snapshot never saw.
	live, _ := json.Marshal(journalRecord{Key: "live", Until: time.Now().Add(time.Hour).UnixMilli()})
	stale, _ := json.Marshal(journalRecord{Key: "stale", Until: time.Now().Add(-time.Hour).UnixMilli()})
	content := append(append(live, '\n'), append(stale, '\n')...)
	if err := os.WriteFile(filepath.Join(dir, "store.dedup.journal.jsonl"), content, 0o600); err != nil {
		t.Fatalf("seed journal: %v", err)
	}

	st := openTestStore(t, dir)
	defer st.Close()

	ctx := context.Background()
	if _, ok, err := st.GetDedup(ctx, "live"); err != nil || !ok {
		t.Fatalf("live key missing after replay: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := st.GetDedup(ctx, "stale"); ok {
		t.Fatal("expired key survived replay")
	}
}

func TestDedupCompactionTruncatesJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st := openTestStore(t, dir)
	defer st.Close()

	ctx := context.Background()
	until := time.Now().Add(time.Hour)
	for i := 0; i < compactEvery; i++ {
		if err := st.PutDedup(ctx, "key-"+strconv.Itoa(i), until); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	if fi, err := os.Stat(filepath.Join(dir, "store.dedup.journal.jsonl")); err != nil || fi.Size() != 0 {
		t.Fatalf("journal not truncated after compaction: %v size=%d", err, fi.Size())
	}

	raw, err := os.ReadFile(filepath.Join(dir, "store.dedup.snapshot.json"))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var snap map[string]int64
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap) != compactEvery {
		t.Fatalf("snapshot has %d keys, want %d", len(snap), compactEvery)
	}
}
