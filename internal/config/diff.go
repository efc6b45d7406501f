package config

import (
	"reflect"
	"sort"
	"strings"

	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Telegram.Enabled != newCfg.Logging.Telegram.Enabled ||
		oldCfg.Logging.Telegram.ThreadID != newCfg.Logging.Telegram.ThreadID ||
		oldCfg.Logging.Telegram.MinLevel != newCfg.Logging.Telegram.MinLevel ||
		oldCfg.Logging.Telegram.RatePerSec != newCfg.Logging.Telegram.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Poster (broadcast engine pacing)
	if strings.TrimSpace(oldCfg.Poster.SettingsPath) != strings.TrimSpace(newCfg.Poster.SettingsPath) ||
		strings.TrimSpace(oldCfg.Poster.SendGap) != strings.TrimSpace(newCfg.Poster.SendGap) ||
		strings.TrimSpace(oldCfg.Poster.RetryMargin) != strings.TrimSpace(newCfg.Poster.RetryMargin) ||
		strings.TrimSpace(oldCfg.Poster.TransientBackoff) != strings.TrimSpace(newCfg.Poster.TransientBackoff) ||
		oldCfg.Poster.DropOnPermanent != newCfg.Poster.DropOnPermanent {
		changed = append(changed, "poster")
		attrs = append(attrs,
			logx.Bool("poster.settings_path_set", strings.TrimSpace(newCfg.Poster.SettingsPath) != ""),
			logx.String("poster.send_gap", strings.TrimSpace(newCfg.Poster.SendGap)),
			logx.String("poster.retry_margin", strings.TrimSpace(newCfg.Poster.RetryMargin)),
			logx.String("poster.transient_backoff", strings.TrimSpace(newCfg.Poster.TransientBackoff)),
			logx.Bool("poster.drop_on_permanent", newCfg.Poster.DropOnPermanent),
		)
	}

	// Notifier (async pipeline)
	// Note: section may be nil (omitted). Treat nil as runtime defaults for a more accurate summary.
	defN := &NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
		PersistDedup:    false,
	}
	oldN := oldCfg.Notifier
	newN := newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.Bool("notifier.persist_dedup", newN.PersistDedup),
		)
	}

	// Storage (persistence)
	oldS := oldCfg.Storage
	newS := newCfg.Storage
	// Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nPathSet = strings.TrimSpace(newS.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Health server (never log token)
	if oldCfg.Health.Enabled != newCfg.Health.Enabled ||
		strings.TrimSpace(oldCfg.Health.Addr) != strings.TrimSpace(newCfg.Health.Addr) ||
		oldCfg.Health.Pprof != newCfg.Health.Pprof ||
		oldCfg.Health.AllowInsecure != newCfg.Health.AllowInsecure ||
		strings.TrimSpace(oldCfg.Health.ReadTimeout) != strings.TrimSpace(newCfg.Health.ReadTimeout) ||
		strings.TrimSpace(oldCfg.Health.WriteTimeout) != strings.TrimSpace(newCfg.Health.WriteTimeout) ||
		strings.TrimSpace(oldCfg.Health.IdleTimeout) != strings.TrimSpace(newCfg.Health.IdleTimeout) ||
		(strings.TrimSpace(oldCfg.Health.Token) != "") != (strings.TrimSpace(newCfg.Health.Token) != "") {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", strings.TrimSpace(newCfg.Health.Addr)),
			logx.Bool("health.pprof", newCfg.Health.Pprof),
			logx.Bool("health.token_set", strings.TrimSpace(newCfg.Health.Token) != ""),
			logx.Bool("health.allow_insecure", newCfg.Health.AllowInsecure),
		)
	}

	// Keepalive (section may be nil = disabled)
	oldK := oldCfg.Keepalive
	newK := newCfg.Keepalive
	var oKEnabled, nKEnabled bool
	var oKURL, nKURL, oKInt, nKInt string
	if oldK != nil {
		oKEnabled = oldK.Enabled
		oKURL = strings.TrimSpace(oldK.URL)
		oKInt = strings.TrimSpace(oldK.Interval)
	}
	if newK != nil {
		nKEnabled = newK.Enabled
		nKURL = strings.TrimSpace(newK.URL)
		nKInt = strings.TrimSpace(newK.Interval)
	}
	if oKEnabled != nKEnabled || oKURL != nKURL || oKInt != nKInt {
		changed = append(changed, "keepalive")
		attrs = append(attrs,
			logx.Bool("keepalive.enabled", nKEnabled),
			logx.Bool("keepalive.url_set", nKURL != ""),
			logx.String("keepalive.interval", nKInt),
		)
	}

	// Inline query surface
	if oldCfg.Inline.Enabled != newCfg.Inline.Enabled {
		changed = append(changed, "inline")
		attrs = append(attrs,
			logx.Bool("inline.enabled", newCfg.Inline.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
