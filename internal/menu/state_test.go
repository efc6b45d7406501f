package menu

import (
	"testing"
	"time"
)

func TestPromptStateExpires(t *testing.T) {
	now := time.Now()
	s := newStateStore()
	s.now = func() time.Time { return now }

	s.set(7, ModeAwaitInterval, 100)
	st, ok := s.get(7)
	if !ok || st.Mode != ModeAwaitInterval || st.ChatID != 100 {
		t.Fatalf("expected armed prompt in chat 100, got %+v ok=%v", st, ok)
	}

	now = now.Add(promptTTL + time.Second)
	if _, ok := s.get(7); ok {
		t.Fatal("prompt should have expired")
	}
	if _, ok := s.m[7]; ok {
		t.Fatal("expired entry should have been dropped")
	}
}

func TestPromptStateIdleClears(t *testing.T) {
	s := newStateStore()
	s.set(7, ModeAwaitButtons, 100)
	s.set(7, ModeIdle, 100)
	if _, ok := s.get(7); ok {
		t.Fatal("setting ModeIdle should clear the entry")
	}
}

func TestPromptStatePerOwner(t *testing.T) {
	s := newStateStore()
	s.set(1, ModeAwaitPhoto, 100)
	s.set(2, ModeAwaitButtons, 200)

	s.clear(1)
	if _, ok := s.get(1); ok {
		t.Fatal("owner 1 should be idle after clear")
	}
	if st, ok := s.get(2); !ok || st.Mode != ModeAwaitButtons {
		t.Fatalf("owner 2 prompt lost: %+v ok=%v", st, ok)
	}
}
