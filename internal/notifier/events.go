package notifier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/amirpoya/Telegram-auto/internal/eventbus"
	"github.com/amirpoya/Telegram-auto/internal/poster"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
	"github.com/amirpoya/Telegram-auto/pkg/tgui"
)

// maxFailureLines bounds per-recipient detail in an owner summary.
const maxFailureLines = 6

// eventLoop turns bus events into owner notifications. It exits when the
// subscription closes (Stop) or the supervisor context ends.
func (s *Service) eventLoop(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *Service) handleEvent(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case poster.EventCycleDone:
		if rep, ok := ev.Data.(*poster.CycleReport); ok && rep != nil {
			s.notifyCycle(ctx, rep)
		}
	}
}

// notifyCycle fans a cycle summary out to every owner. Clean cycles stay
// quiet; the menu already confirms manual runs.
func (s *Service) notifyCycle(ctx context.Context, rep *poster.CycleReport) {
	if rep.Skipped != "" || (rep.Failed == 0 && len(rep.Dropped) == 0) {
		return
	}

	s.mu.Lock()
	owners := append([]int64(nil), s.cfg.Owners...)
	s.mu.Unlock()
	if len(owners) == 0 {
		return
	}

	msg := cycleSummary(rep)
	pri := 7
	if len(rep.Dropped) > 0 {
		pri = 9
	}
	for _, owner := range owners {
		n := kit.Notification{
			Channel:  "telegram",
			Priority: pri,
			Target:   kit.ChatTarget{ChatID: owner},
			Text:     msg.Text,
			Options:  msg.Opt,
		}
		if err := s.Notify(ctx, n); err != nil {
			s.log.Debug("cycle report rejected", logx.Int64("owner", owner), logx.Err(err))
		}
	}
}

// cycleSummary renders a delivery report as HTML. Repeats of the same
// counts collapse into one dedup key, so a recipient that keeps failing
// every cycle alerts once per window.
func cycleSummary(rep *poster.CycleReport) tgui.Message {
	b := tgui.New().
		Title("📣", "Broadcast report").
		KV("Trigger", rep.Reason).
		KV("Delivered", fmt.Sprintf("%d of %d", rep.Sent, rep.Recipients))
	if rep.Retried > 0 {
		b.KV("Flood retries", strconv.Itoa(rep.Retried))
	}
	if rep.Failed > 0 {
		b.KV("Failed", strconv.Itoa(rep.Failed))
	}
	if len(rep.Dropped) > 0 {
		b.KV("Dropped recipients", strconv.Itoa(len(rep.Dropped)))
	}
	if len(rep.Failures) > 0 {
		items := make([]string, 0, maxFailureLines+1)
		for i, f := range rep.Failures {
			if i == maxFailureLines {
				items = append(items, fmt.Sprintf("and %d more", len(rep.Failures)-maxFailureLines))
				break
			}
			items = append(items, fmt.Sprintf("%d: %s (%s)", f.ChatID, tgui.TruncRunes(f.Reason, 80), f.Kind))
		}
		b.Blank().Section("Failures").Bullets(items...)
	}
	return b.Build()
}
