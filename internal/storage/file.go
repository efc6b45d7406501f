package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

const (
	// Cycle entries are small; 8 MiB holds months of history even on an
	// aggressive interval.
	auditMaxSizeMB  = 8
	auditMaxBackups = 2

	// compactEvery bounds journal growth between snapshot rewrites.
	compactEvery = 1000
)

// fileStore persists everything under a shared path prefix:
//
//   - <prefix>.audit.jsonl         (JSON Lines, size-rotated)
//   - <prefix>.dedup.snapshot.json (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl (append-only journal)
//
// Dedup writes go to the journal first; every compactEvery writes (and on
// Close) the in-memory map is snapshotted atomically and the journal
// truncated, so reopening replays only a short tail.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	audit *lumberjack.Logger

	snapshotPath string
	journal      *os.File
	dedup        map[string]int64 // unix milli deadline per key
	journalLen   int
}

type journalRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{
		log: log,
		audit: &lumberjack.Logger{
			Filename:   prefix + ".audit.jsonl",
			MaxSize:    auditMaxSizeMB,
			MaxBackups: auditMaxBackups,
		},
		snapshotPath: prefix + ".dedup.snapshot.json",
		dedup:        map[string]int64{},
	}

	journalPath := prefix + ".dedup.journal.jsonl"
	_ = loadSnapshot(st.snapshotPath, st.dedup)
	_ = replayJournal(journalPath, st.dedup)
	dropExpired(st.dedup, time.Now())

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	st.journal = jf
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.journal != nil {
		// Final snapshot so the next open replays nothing.
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		if err := s.journal.Close(); err != nil {
			errs = append(errs, err)
		}
		s.journal = nil
	}
	if s.audit != nil {
		if err := s.audit.Close(); err != nil {
			errs = append(errs, err)
		}
		s.audit = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		return errors.New("audit log closed")
	}
	return json.NewEncoder(s.audit).Encode(e)
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return errors.New("dedup journal closed")
	}
	ms := until.UnixMilli()
	s.dedup[key] = ms

	if err := json.NewEncoder(s.journal).Encode(journalRecord{Key: key, Until: ms}); err != nil {
		return err
	}
	s.journalLen++
	if s.journalLen >= compactEvery {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return time.Time{}, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	if ms < time.Now().UnixMilli() {
		delete(s.dedup, key)
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// compactLocked rewrites the snapshot atomically, then truncates the journal.
func (s *fileStore) compactLocked() error {
	dropExpired(s.dedup, time.Now())

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.dedup); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	if _, err := s.journal.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	s.journalLen = 0
	return nil
}

func loadSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		out[r.Key] = r.Until
	}
	return sc.Err()
}

func dropExpired(m map[string]int64, now time.Time) {
	cutoff := now.UnixMilli()
	for k, v := range m {
		if v < cutoff {
			delete(m, k)
		}
	}
}
