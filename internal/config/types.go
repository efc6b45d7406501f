package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Poster controls the broadcast engine's deployment knobs. The
	// owner-editable broadcast settings (payload, recipients, interval)
	// live in their own JSON document at poster.settings_path.
	Poster PosterConfig `json:"poster"`

	Notifier  *NotifierConfig  `json:"notifier,omitempty"`
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Health    HealthConfig     `json:"health,omitempty"`
	Keepalive *KeepaliveConfig `json:"keepalive,omitempty"`
	Inline    InlineConfig     `json:"inline,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// RatePerSec caps outbound API calls (default 25).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// PosterConfig controls the broadcast engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - settings_path: "./broadcast_settings.json"
//   - send_gap: "500ms"
//   - retry_margin: "1s"
//   - transient_backoff: "1s"
//   - drop_on_permanent: false (skip-and-log, never shrink the recipient
//     set on ambiguous platform errors)
type PosterConfig struct {
	SettingsPath string `json:"settings_path,omitempty"`

	// SendGap is the pause between consecutive recipient sends within a cycle.
	SendGap string `json:"send_gap,omitempty"`

	// RetryMargin is added on top of the wait Telegram demands on flood
	// control before the single retry.
	RetryMargin string `json:"retry_margin,omitempty"`

	// TransientBackoff is the pause after a transient send failure before
	// moving on to the next recipient.
	TransientBackoff string `json:"transient_backoff,omitempty"`

	// DropOnPermanent removes a recipient from the recipient set when a
	// send fails permanently (blocked, kicked, chat gone). When false the
	// recipient is kept and the failure only logged.
	DropOnPermanent bool `json:"drop_on_permanent,omitempty"`
}

// NotifierConfig controls the async owner-notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, the notifier defaults to enabled=true.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the optional persistence layer (broadcast audit
// log + notifier dedup). Nil section means disabled.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./autopost_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HealthConfig controls the HTTP status server. Hosting platforms that
// require a bound port get their liveness endpoint here.
//
// Security note:
//   - Prefer binding pprof-enabled servers to localhost.
//   - If pprof is exposed on a non-loopback address, set a token or
//     explicitly allow_insecure.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080", $PORT wins when set

	// Pprof exposes /debug/pprof/* on the same server when enabled.
	Pprof         bool   `json:"pprof,omitempty"`
	Token         string `json:"token,omitempty"` // bearer token for pprof (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0
	// (disabled) so pprof profile captures (30s+) work reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// KeepaliveConfig pings a public URL so free-tier hosts don't idle the
// process. Nil section means disabled.
type KeepaliveConfig struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url,omitempty"` // default $PUBLIC_URL
	// Interval is a Go duration string (default "5m").
	Interval string `json:"interval,omitempty"`
}

// InlineConfig toggles answering inline queries with the stored post.
type InlineConfig struct {
	Enabled bool `json:"enabled"`
}
