package menu

import (
	"sync"
	"time"
)

// InputMode says what the next non-command message from an owner means.
type InputMode int

const (
	ModeIdle InputMode = iota
	ModeAwaitInterval
	ModeAwaitMessage
	ModeAwaitPhoto
	ModeAwaitButtons
	ModeAwaitRecipients
	ModeAwaitSpansJSON
)

func (m InputMode) String() string {
	switch m {
	case ModeAwaitInterval:
		return "await_interval"
	case ModeAwaitMessage:
		return "await_message"
	case ModeAwaitPhoto:
		return "await_photo"
	case ModeAwaitButtons:
		return "await_buttons"
	case ModeAwaitRecipients:
		return "await_recipients"
	case ModeAwaitSpansJSON:
		return "await_spans"
	default:
		return "idle"
	}
}

// promptTTL bounds how long a pending prompt stays armed. An owner who
// walks away mid-prompt should not have next week's chatter swallowed.
const promptTTL = 10 * time.Minute

type ownerState struct {
	Mode    InputMode
	ChatID  int64 // chat the prompt was issued in; input elsewhere is ignored
	Expires time.Time
}

// stateStore tracks the pending input mode per owner user ID.
type stateStore struct {
	mu  sync.Mutex
	m   map[int64]ownerState
	now func() time.Time
}

func newStateStore() *stateStore {
	return &stateStore{m: map[int64]ownerState{}, now: time.Now}
}

func (s *stateStore) set(owner int64, mode InputMode, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == ModeIdle {
		delete(s.m, owner)
		return
	}
	s.m[owner] = ownerState{Mode: mode, ChatID: chatID, Expires: s.now().Add(promptTTL)}
}

func (s *stateStore) get(owner int64) (ownerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[owner]
	if !ok {
		return ownerState{}, false
	}
	if s.now().After(st.Expires) {
		delete(s.m, owner)
		return ownerState{}, false
	}
	return st, true
}

func (s *stateStore) clear(owner int64) {
	s.mu.Lock()
	delete(s.m, owner)
	s.mu.Unlock()
}
