package notifier

import (
	"context"
	"strings"
	"testing"

	"github.com/amirpoya/Telegram-auto/internal/eventbus"
	"github.com/amirpoya/Telegram-auto/internal/poster"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

func TestCycleEventNotifiesOwners(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	f := &fakeSender{delivered: make(chan string, 8)}
	cfg := fastConfig()
	cfg.Owners = []int64{7, 8}
	s := New(cfg, f, logx.Nop(), bus, nil)
	s.Start(context.Background())

	bus.Publish(eventbus.Event{Type: poster.EventCycleDone, Data: &poster.CycleReport{
		Reason:     "interval",
		Recipients: 3,
		Sent:       1,
		Failed:     2,
		Failures: []poster.RecipientFailure{
			{ChatID: -1001234, Kind: "permanent", Reason: "chat not found"},
			{ChatID: -1005678, Kind: "transient", Reason: "gateway timeout"},
		},
	}})

	for i := 0; i < 2; i++ {
		got := waitText(t, f.delivered)
		if !strings.HasPrefix(got, "⚠️ ") {
			t.Fatalf("report %d not tagged as warning: %q", i, got)
		}
		if !strings.Contains(got, "Broadcast report") || !strings.Contains(got, "1 of 3") {
			t.Fatalf("report %d missing summary: %q", i, got)
		}
		if !strings.Contains(got, "chat not found") {
			t.Fatalf("report %d missing failure detail: %q", i, got)
		}
	}

	// A clean cycle stays quiet.
	bus.Publish(eventbus.Event{Type: poster.EventCycleDone, Data: &poster.CycleReport{
		Reason:     "interval",
		Recipients: 2,
		Sent:       2,
	}})
	s.Stop(context.Background())

	sent := f.texts()
	if len(sent) != 2 {
		t.Fatalf("clean cycle should not notify; sends: %v", sent)
	}

	seen := map[int64]bool{}
	f.mu.Lock()
	for _, m := range f.sent {
		seen[m.to.ChatID] = true
	}
	f.mu.Unlock()
	if !seen[7] || !seen[8] {
		t.Fatalf("both owners should be notified, got %v", seen)
	}
}

func TestCycleEventDropsEscalatePriority(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	f := &fakeSender{delivered: make(chan string, 8)}
	cfg := fastConfig()
	cfg.Owners = []int64{7}
	s := New(cfg, f, logx.Nop(), bus, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	bus.Publish(eventbus.Event{Type: poster.EventCycleDone, Data: &poster.CycleReport{
		Reason:     "interval",
		Recipients: 2,
		Sent:       1,
		Failed:     1,
		Dropped:    []int64{-1001234},
		Failures:   []poster.RecipientFailure{{ChatID: -1001234, Kind: "permanent", Reason: "bot was kicked"}},
	}})

	got := waitText(t, f.delivered)
	if !strings.HasPrefix(got, "🚨 ") {
		t.Fatalf("drop report should be critical: %q", got)
	}
	if !strings.Contains(got, "Dropped recipients") {
		t.Fatalf("missing dropped line: %q", got)
	}
}

func TestSkippedCycleStaysQuiet(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	f := &fakeSender{}
	cfg := fastConfig()
	cfg.Owners = []int64{7}
	s := New(cfg, f, logx.Nop(), bus, nil)
	s.Start(context.Background())

	bus.Publish(eventbus.Event{Type: poster.EventCycleDone, Data: &poster.CycleReport{
		Reason:  "interval",
		Skipped: "disabled",
	}})
	s.Stop(context.Background())

	if got := f.texts(); len(got) != 0 {
		t.Fatalf("skipped cycle should not notify: %v", got)
	}
}

func TestCycleSummaryTruncatesFailureList(t *testing.T) {
	t.Parallel()
	rep := &poster.CycleReport{Reason: "manual", Recipients: 12, Sent: 2, Failed: 10}
	for i := 0; i < 10; i++ {
		rep.Failures = append(rep.Failures, poster.RecipientFailure{
			ChatID: int64(-1000 - i), Kind: "transient", Reason: "timeout",
		})
	}
	msg := cycleSummary(rep)
	if strings.Count(msg.Text, "timeout") != maxFailureLines {
		t.Fatalf("want %d failure lines, got:\n%s", maxFailureLines, msg.Text)
	}
	if !strings.Contains(msg.Text, "and 4 more") {
		t.Fatalf("missing overflow marker:\n%s", msg.Text)
	}
	if msg.Opt == nil || msg.Opt.ParseMode != "HTML" {
		t.Fatalf("summary should render as HTML: %+v", msg.Opt)
	}
}
