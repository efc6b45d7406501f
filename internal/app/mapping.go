package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/keepalive"
	"github.com/amirpoya/Telegram-auto/internal/notifier"
	"github.com/amirpoya/Telegram-auto/internal/observability/health"
	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/storage"
)

const defaultSettingsPath = "./broadcast_settings.json"

// settingsPath resolves where the owner-edited broadcast document lives.
func settingsPath(cfg *Config) string {
	if cfg == nil {
		return defaultSettingsPath
	}
	if p := strings.TrimSpace(cfg.Poster.SettingsPath); p != "" {
		return p
	}
	return defaultSettingsPath
}

func mapPosterConfig(cfg *Config) (poster.Config, error) {
	if cfg == nil {
		return poster.Config{}, nil
	}
	sendGap, err := parseDurationOrDefault("poster.send_gap", cfg.Poster.SendGap, 500*time.Millisecond)
	if err != nil {
		return poster.Config{}, err
	}
	retryMargin, err := parseDurationOrDefault("poster.retry_margin", cfg.Poster.RetryMargin, time.Second)
	if err != nil {
		return poster.Config{}, err
	}
	backoff, err := parseDurationOrDefault("poster.transient_backoff", cfg.Poster.TransientBackoff, time.Second)
	if err != nil {
		return poster.Config{}, err
	}
	return poster.Config{
		SendGap:          sendGap,
		RetryMargin:      retryMargin,
		TransientBackoff: backoff,
		DropOnPermanent:  cfg.Poster.DropOnPermanent,
	}, nil
}

// mapNotifierConfig translates the optional notifier section. An omitted
// section means "enabled with defaults" so cycle failures still reach the
// owners.
func mapNotifierConfig(cfg *Config) (notifier.Config, error) {
	if cfg == nil {
		return notifier.Config{}, nil
	}
	if cfg.Notifier == nil {
		return notifier.Config{
			Enabled:     true,
			Owners:      cfg.Telegram.OwnerUserIDs,
			RetryMax:    3,
			DedupWindow: time.Minute,
		}, nil
	}

	nc := cfg.Notifier
	retryBase, err := parseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := parseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	// A present-but-empty window falls back to the default; an explicit "0s"
	// disables dedup.
	dedupWindow := time.Minute
	if strings.TrimSpace(nc.DedupWindow) != "" {
		dedupWindow, err = parseDurationField("notifier.dedup_window", nc.DedupWindow)
		if err != nil {
			return notifier.Config{}, err
		}
	}
	retryMax := nc.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}

	return notifier.Config{
		Enabled:         nc.Enabled,
		Owners:          cfg.Telegram.OwnerUserIDs,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        retryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}, nil
}

func mapStorageConfig(cfg *Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./autopost_store"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapHealthConfig(cfg *Config) (health.Config, error) {
	if cfg == nil {
		return health.Config{}, nil
	}
	hc := cfg.Health
	readTO, err := parseDurationField("health.read_timeout", hc.ReadTimeout)
	if err != nil {
		return health.Config{}, err
	}
	writeTO, err := parseDurationField("health.write_timeout", hc.WriteTimeout)
	if err != nil {
		return health.Config{}, err
	}
	idleTO, err := parseDurationField("health.idle_timeout", hc.IdleTimeout)
	if err != nil {
		return health.Config{}, err
	}
	return health.Config{
		Enabled:       hc.Enabled,
		Addr:          strings.TrimSpace(hc.Addr),
		Pprof:         hc.Pprof,
		Token:         strings.TrimSpace(hc.Token),
		AllowInsecure: hc.AllowInsecure,
		ReadTimeout:   readTO,
		WriteTimeout:  writeTO,
		IdleTimeout:   idleTO,
	}, nil
}

func mapKeepaliveConfig(cfg *Config) (keepalive.Config, error) {
	if cfg == nil || cfg.Keepalive == nil {
		return keepalive.Config{}, nil
	}
	kc := cfg.Keepalive
	ivl, err := parseDurationField("keepalive.interval", kc.Interval)
	if err != nil {
		return keepalive.Config{}, err
	}
	return keepalive.Config{
		Enabled:  kc.Enabled,
		URL:      strings.TrimSpace(kc.URL),
		Interval: ivl,
	}, nil
}
