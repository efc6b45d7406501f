package settings

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// Store owns the settings document. All writes go through Mutate, which
// serializes mutations, persists via temp-file + rename, and only then
// commits and notifies subscribers. Snapshots handed out by Snapshot()
// and over subscription channels are committed documents and must not be
// mutated by callers.
type Store struct {
	path string
	log  logx.Logger

	mu  sync.RWMutex
	cur *Settings

	// mutMu serializes the clone-mutate-persist-commit sequence so two
	// concurrent Mutate calls can never interleave their writes.
	mutMu sync.Mutex

	subsMu sync.Mutex
	subs   []chan *Settings
}

func NewStore(path string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{path: path, log: log}
}

// Load reads the document from disk, applying defaults when the file is
// missing and sanitizing whatever it finds. A missing file is not an error;
// a present-but-unreadable file is.
func (st *Store) Load() (*Settings, error) {
	doc := Defaults()

	b, err := os.ReadFile(st.path)
	switch {
	case err == nil:
		if len(b) > 0 {
			if uerr := json.Unmarshal(b, doc); uerr != nil {
				return nil, uerr
			}
		}
	case errors.Is(err, os.ErrNotExist):
		// first run
	default:
		return nil, err
	}

	doc.sanitize()

	st.mu.Lock()
	st.cur = doc
	st.mu.Unlock()

	st.log.Debug("settings loaded",
		logx.String("path", st.path),
		logx.Bool("enabled", doc.Enabled),
		logx.Int("interval_s", doc.IntervalSeconds),
		logx.Int("recipients", len(doc.Recipients)),
	)
	return doc, nil
}

// Snapshot returns the committed document. Callers must treat it as
// immutable; use Mutate for changes.
func (st *Store) Snapshot() *Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.cur == nil {
		return Defaults()
	}
	return st.cur
}

// Mutate applies fn to a deep copy of the committed document, sanitizes the
// result, persists it, commits it, and notifies subscribers. When fn or the
// persist step fails, the committed document is left untouched.
func (st *Store) Mutate(fn func(*Settings) error) (*Settings, error) {
	st.mutMu.Lock()
	defer st.mutMu.Unlock()

	next := st.Snapshot().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.sanitize()

	if err := st.persist(next); err != nil {
		return nil, err
	}

	st.mu.Lock()
	st.cur = next
	st.mu.Unlock()

	st.publish(next)
	return next, nil
}

func (st *Store) persist(doc *Settings) error {
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return err
	}

	tmp := st.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, st.path)
}

func (st *Store) Subscribe(buffer int) chan *Settings {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan *Settings, buffer)
	st.subsMu.Lock()
	st.subs = append(st.subs, ch)
	st.subsMu.Unlock()
	return ch
}

func (st *Store) Unsubscribe(ch chan *Settings) {
	if ch == nil {
		return
	}
	st.subsMu.Lock()
	defer st.subsMu.Unlock()
	for i, s := range st.subs {
		if s == ch {
			last := len(st.subs) - 1
			st.subs[i] = st.subs[last]
			st.subs[last] = nil
			st.subs = st.subs[:last]
			close(ch)
			return
		}
	}
}

func (st *Store) publish(doc *Settings) {
	st.subsMu.Lock()
	defer st.subsMu.Unlock()
	for _, ch := range st.subs {
		if ch == nil {
			continue
		}
		select {
		case ch <- doc:
		default:
			// drop oldest, push newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- doc:
			default:
				st.log.Debug("settings update dropped (subscriber slow)",
					logx.Int("queue_cap", cap(ch)),
				)
			}
		}
	}
}
