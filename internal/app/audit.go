package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/eventbus"
	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	"github.com/amirpoya/Telegram-auto/internal/storage"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// runAuditBridge persists one audit row per finished broadcast cycle and one
// per committed settings change. Appends are best-effort: a failed write is
// logged and dropped, never blocking the engine or the menu.
func (a *App) runAuditBridge(ctx context.Context, events <-chan eventbus.Event, docs <-chan *settings.Settings) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != poster.EventCycleDone {
				continue
			}
			rep, ok := ev.Data.(*poster.CycleReport)
			if !ok || rep == nil {
				continue
			}
			a.appendAudit(ctx, cycleAuditEntry(ev.Time, rep))
		case doc, ok := <-docs:
			if !ok {
				return
			}
			if doc == nil {
				continue
			}
			a.appendAudit(ctx, settingsAuditEntry(doc))
		}
	}
}

func (a *App) appendAudit(ctx context.Context, e storage.AuditEntry) {
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.store.AppendAudit(wctx, e); err != nil {
		a.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func cycleAuditEntry(at time.Time, rep *poster.CycleReport) storage.AuditEntry {
	e := storage.AuditEntry{
		At:         at,
		Action:     "cycle",
		Reason:     rep.Reason,
		Recipients: rep.Recipients,
		Sent:       rep.Sent,
		Failed:     rep.Failed,
		Retried:    rep.Retried,
		Dropped:    len(rep.Dropped),
		TookMS:     rep.DurationMS,
	}
	if len(rep.Failures) > 0 {
		e.Error = rep.Failures[0].Kind + ": " + rep.Failures[0].Reason
		if b, err := json.Marshal(rep.Failures); err == nil {
			e.MetaJSON = string(b)
		}
	}
	return e
}

func settingsAuditEntry(doc *settings.Settings) storage.AuditEntry {
	return storage.AuditEntry{
		At:     time.Now(),
		Action: "settings",
		Reason: fmt.Sprintf("enabled=%t interval=%ds mode=%s recipients=%d",
			doc.Enabled, doc.IntervalSeconds, doc.Mode, len(doc.Recipients)),
		Recipients: len(doc.Recipients),
	}
}
