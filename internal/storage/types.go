package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": file backend (audit jsonl + dedup snapshot/journal)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one broadcast cycle or one operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time
	ActorID    int64 // 0 when the scheduler fired the cycle
	ChatID     int64
	Action     string // "cycle", "settings", "template", ...
	Reason     string // cycle trigger ("interval", "manual") or a change note
	Recipients int
	Sent       int
	Failed     int
	Retried    int
	Dropped    int
	Error      string
	TookMS     int64
	MetaJSON   string
}
