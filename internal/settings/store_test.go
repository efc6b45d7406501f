package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	logx "github.com/amirpoya/Telegram-auto/pkg/logx"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broadcast_settings.json")
	return NewStore(path, logx.Nop())
}

func TestLoadMissingFileDefaults(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	doc, err := st.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if doc.Enabled {
		t.Fatal("fresh document must start disabled")
	}
	if doc.IntervalSeconds != DefaultIntervalSeconds {
		t.Fatalf("IntervalSeconds = %d, want %d", doc.IntervalSeconds, DefaultIntervalSeconds)
	}
	if doc.Mode != ModeCopy {
		t.Fatalf("Mode = %q, want copy", doc.Mode)
	}
}

func TestLoadSanitizes(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := `{
		"enabled": true,
		"interval_seconds": 5,
		"mode": "bogus",
		"recipients": [1, 2, 2, 1, 3, 0],
		"template": {"chat_id": 0, "message_id": 9}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st := NewStore(path, logx.Nop())
	doc, err := st.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if doc.IntervalSeconds != MinIntervalSeconds {
		t.Fatalf("IntervalSeconds = %d, want clamped to %d", doc.IntervalSeconds, MinIntervalSeconds)
	}
	if doc.Mode != ModeCopy {
		t.Fatalf("Mode = %q, want copy fallback", doc.Mode)
	}
	if len(doc.Recipients) != 3 || doc.Recipients[0] != 1 || doc.Recipients[1] != 2 || doc.Recipients[2] != 3 {
		t.Fatalf("Recipients = %v, want deduped [1 2 3]", doc.Recipients)
	}
	if doc.Template != nil {
		t.Fatal("template with zero chat_id must be dropped")
	}
}

func TestLoadToleratesUnknownFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "settings.json")
	raw := `{"enabled": false, "future_field": {"x": 1}, "interval_seconds": 120}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	st := NewStore(path, logx.Nop())
	doc, err := st.Load()
	if err != nil {
		t.Fatalf("Load must tolerate unknown fields: %v", err)
	}
	if doc.IntervalSeconds != 120 {
		t.Fatalf("IntervalSeconds = %d, want 120", doc.IntervalSeconds)
	}
}

func TestMutatePersistsAndReloads(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if _, err := st.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := st.Mutate(func(s *Settings) error {
		s.Enabled = true
		s.IntervalSeconds = 300
		s.Text = "hello"
		s.Spans = []kit.Span{{Type: "bold", Offset: 0, Length: 5}}
		s.AddRecipient(-100123)
		s.Template = &TemplateRef{ChatID: -100555, MessageID: 7, HasKeyboard: true}
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	st2 := NewStore(st.path, logx.Nop())
	doc, err := st2.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !doc.Enabled || doc.IntervalSeconds != 300 || doc.Text != "hello" {
		t.Fatalf("reloaded doc = %+v", doc)
	}
	if len(doc.Spans) != 1 || doc.Spans[0].Type != "bold" {
		t.Fatalf("Spans = %+v", doc.Spans)
	}
	if !doc.HasRecipient(-100123) {
		t.Fatal("recipient lost on reload")
	}
	if !doc.Template.Valid() || !doc.Template.HasKeyboard {
		t.Fatalf("Template = %+v", doc.Template)
	}
}

func TestMutateErrorLeavesCommittedUntouched(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if _, err := st.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := st.Snapshot()

	boom := errors.New("boom")
	if _, err := st.Mutate(func(s *Settings) error {
		s.Enabled = true
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("Mutate error = %v, want boom", err)
	}

	if st.Snapshot() != before {
		t.Fatal("failed mutation replaced the committed snapshot")
	}
	if st.Snapshot().Enabled {
		t.Fatal("failed mutation leaked into the committed snapshot")
	}
}

func TestMutateNotifiesSubscribers(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	if _, err := st.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := st.Subscribe(1)
	defer st.Unsubscribe(ch)

	want, err := st.Mutate(func(s *Settings) error {
		s.IntervalSeconds = 600
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	got := <-ch
	if got != want {
		t.Fatal("subscriber got a different snapshot than Mutate returned")
	}
	if got.IntervalSeconds != 600 {
		t.Fatalf("IntervalSeconds = %d, want 600", got.IntervalSeconds)
	}
}

func TestAddRemoveRecipientIdempotent(t *testing.T) {
	t.Parallel()
	s := Defaults()
	if !s.AddRecipient(5) {
		t.Fatal("first add must report change")
	}
	if s.AddRecipient(5) {
		t.Fatal("second add must be a no-op")
	}
	if !s.RemoveRecipient(5) {
		t.Fatal("remove must report change")
	}
	if s.RemoveRecipient(5) {
		t.Fatal("second remove must be a no-op")
	}
}

func TestHasPayload(t *testing.T) {
	t.Parallel()
	s := &Settings{}
	if s.HasPayload() {
		t.Fatal("empty settings must have no payload")
	}
	s.Text = "x"
	if !s.HasPayload() {
		t.Fatal("text payload not detected")
	}
	s = &Settings{PhotoID: "file123"}
	if !s.HasPayload() {
		t.Fatal("photo payload not detected")
	}
	s = &Settings{Template: &TemplateRef{ChatID: 1, MessageID: 2}}
	if !s.HasPayload() {
		t.Fatal("template payload not detected")
	}
}
