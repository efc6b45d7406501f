package poster

import (
	"context"
	"testing"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/settings"
)

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startTestEngine(t *testing.T, mut func(*settings.Settings)) (*Service, *fakeSender, *settings.Store) {
	t.Helper()
	svc, sender, _, store := newTestEngine(t, Config{}, mut)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		svc.Stop(ctx)
	})
	return svc, sender, store
}

func TestStartFiresImmediatelyWhenEnabled(t *testing.T) {
	svc, sender, _ := startTestEngine(t, func(s *settings.Settings) {
		s.Enabled = true
		s.Text = "x"
		s.Recipients = []int64{1}
	})

	waitUntil(t, 2*time.Second, func() bool {
		return len(sender.snapshot()) >= 1
	}, "the immediate first fire")

	st := svc.Status()
	if st.State != "scheduled" {
		t.Fatalf("State = %q, want scheduled", st.State)
	}
	if st.IntervalSecs != settings.DefaultIntervalSeconds {
		t.Fatalf("IntervalSecs = %d, want %d", st.IntervalSecs, settings.DefaultIntervalSeconds)
	}
	if st.NextFire.IsZero() {
		t.Fatal("NextFire must be set while scheduled")
	}
}

func TestStartDisabledRegistersNothing(t *testing.T) {
	svc, sender, _ := startTestEngine(t, func(s *settings.Settings) {
		s.Enabled = false
		s.Text = "x"
		s.Recipients = []int64{1}
	})

	time.Sleep(100 * time.Millisecond)
	if calls := sender.snapshot(); len(calls) != 0 {
		t.Fatalf("expected no sends while disabled, got %v", opsOf(calls))
	}
	if st := svc.Status(); st.State != "disabled" {
		t.Fatalf("State = %q, want disabled", st.State)
	}
}

func TestEnableThroughStoreFiresImmediately(t *testing.T) {
	svc, sender, store := startTestEngine(t, func(s *settings.Settings) {
		s.Enabled = false
		s.Text = "x"
		s.Recipients = []int64{1}
	})

	if _, err := store.Mutate(func(s *settings.Settings) error {
		s.Enabled = true
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return len(sender.snapshot()) >= 1
	}, "the enable-triggered fire")
	waitUntil(t, 2*time.Second, func() bool {
		return svc.Status().State == "scheduled"
	}, "the schedule to register")
}

func TestDisableThroughStoreCancelsSchedule(t *testing.T) {
	svc, sender, store := startTestEngine(t, func(s *settings.Settings) {
		s.Enabled = true
		s.Text = "x"
		s.Recipients = []int64{1}
	})
	waitUntil(t, 2*time.Second, func() bool {
		return len(sender.snapshot()) >= 1
	}, "the first fire")

	if _, err := store.Mutate(func(s *settings.Settings) error {
		s.Enabled = false
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return svc.Status().State == "disabled"
	}, "the schedule to cancel")

	// A manual cycle after disable must deliver nothing.
	rep, err := svc.RunCycle(context.Background(), "manual")
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rep.Skipped != "disabled" {
		t.Fatalf("Skipped = %q, want disabled", rep.Skipped)
	}
}

func TestIntervalChangeReschedulesAndFires(t *testing.T) {
	svc, sender, store := startTestEngine(t, func(s *settings.Settings) {
		s.Enabled = true
		s.Text = "x"
		s.Recipients = []int64{1}
	})
	waitUntil(t, 2*time.Second, func() bool {
		return len(sender.snapshot()) >= 1
	}, "the first fire")
	before := len(sender.snapshot())

	if _, err := store.Mutate(func(s *settings.Settings) error {
		s.IntervalSeconds = 120
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return svc.Status().IntervalSecs == 120
	}, "the new interval to apply")
	waitUntil(t, 2*time.Second, func() bool {
		return len(sender.snapshot()) > before
	}, "the re-registration fire")
}

func TestPayloadEditDoesNotReschedule(t *testing.T) {
	svc, sender, store := startTestEngine(t, func(s *settings.Settings) {
		s.Enabled = true
		s.Text = "x"
		s.Recipients = []int64{1}
	})
	waitUntil(t, 2*time.Second, func() bool {
		return len(sender.snapshot()) >= 1
	}, "the first fire")
	before := len(sender.snapshot())
	next := svc.Status().NextFire

	if _, err := store.Mutate(func(s *settings.Settings) error {
		s.Text = "edited"
		return nil
	}); err != nil {
		t.Fatalf("mutate: %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	if got := len(sender.snapshot()); got != before {
		t.Fatalf("payload edit caused %d extra sends", got-before)
	}
	if got := svc.Status().NextFire; !got.Equal(next) {
		t.Fatalf("payload edit moved the next fire from %v to %v", next, got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	svc, _, _ := newTestEngineStarted(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)
	svc.Stop(ctx)
	if st := svc.Status(); st.State != "disabled" {
		t.Fatalf("State after stop = %q, want disabled", st.State)
	}
}

func newTestEngineStarted(t *testing.T) (*Service, *fakeSender, *settings.Store) {
	t.Helper()
	svc, sender, _, store := newTestEngine(t, Config{}, func(s *settings.Settings) {
		s.Enabled = true
		s.Text = "x"
		s.Recipients = []int64{1}
	})
	svc.Start(context.Background())
	return svc, sender, store
}
