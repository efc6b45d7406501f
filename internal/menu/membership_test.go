package menu

import (
	"context"
	"strings"
	"testing"

	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

type fakeNotifier struct {
	notes []kit.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n kit.Notification) error {
	f.notes = append(f.notes, n)
	return nil
}

func ownersFn(ids ...int64) func() []int64 {
	return func() []int64 { return ids }
}

func TestMembershipJoinAttachesGroup(t *testing.T) {
	m, st, _, _ := newTestMenu(t)
	np := &fakeNotifier{}

	h := m.MembershipHandler(np, ownersFn(testOwner, 8))
	h(context.Background(), &kit.Membership{
		ChatID: -1001, ChatTitle: "Deals", IsGroup: true,
		OldStatus: "left", NewStatus: "member",
	})

	if !st.Snapshot().HasRecipient(-1001) {
		t.Fatalf("group not attached: %v", st.Snapshot().Recipients)
	}
	if len(np.notes) != 2 {
		t.Fatalf("expected a notice per owner, got %d", len(np.notes))
	}
	if !strings.Contains(np.notes[0].Text, "Deals") {
		t.Fatalf("notice should name the chat: %q", np.notes[0].Text)
	}
	if np.notes[0].Target.ChatID != testOwner || np.notes[1].Target.ChatID != 8 {
		t.Fatalf("notices targeted wrong chats: %+v", np.notes)
	}
}

func TestMembershipJoinIsIdempotent(t *testing.T) {
	m, st, _, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.AddRecipient(-1001)
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	np := &fakeNotifier{}

	// A promotion fires another membership update for a known chat.
	h := m.MembershipHandler(np, ownersFn(testOwner))
	h(context.Background(), &kit.Membership{
		ChatID: -1001, IsGroup: true,
		OldStatus: "member", NewStatus: "administrator",
	})

	if got := len(st.Snapshot().Recipients); got != 1 {
		t.Fatalf("recipients = %d, want 1", got)
	}
	if len(np.notes) != 0 {
		t.Fatalf("no notice expected for an already-known chat: %+v", np.notes)
	}
}

func TestMembershipKickDetaches(t *testing.T) {
	m, st, _, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.AddRecipient(-1001)
		s.AddRecipient(-1002)
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	np := &fakeNotifier{}

	h := m.MembershipHandler(np, ownersFn(testOwner))
	h(context.Background(), &kit.Membership{
		ChatID: -1001, ChatTitle: "Deals", IsGroup: true,
		OldStatus: "member", NewStatus: "kicked",
	})

	doc := st.Snapshot()
	if doc.HasRecipient(-1001) {
		t.Fatal("kicked chat should be detached")
	}
	if !doc.HasRecipient(-1002) {
		t.Fatal("other recipients must survive")
	}
	if len(np.notes) != 1 || !strings.Contains(np.notes[0].Text, "Removed") {
		t.Fatalf("unexpected notices: %+v", np.notes)
	}
}

func TestMembershipLeaveUnknownChatStaysQuiet(t *testing.T) {
	m, st, _, _ := newTestMenu(t)
	np := &fakeNotifier{}

	h := m.MembershipHandler(np, ownersFn(testOwner))
	h(context.Background(), &kit.Membership{
		ChatID: -1009, IsGroup: true,
		OldStatus: "member", NewStatus: "left",
	})

	if len(st.Snapshot().Recipients) != 0 {
		t.Fatalf("recipients = %v", st.Snapshot().Recipients)
	}
	if len(np.notes) != 0 {
		t.Fatalf("no notice expected: %+v", np.notes)
	}
}

func TestMembershipPrivateChatNeverAttached(t *testing.T) {
	m, st, _, _ := newTestMenu(t)
	np := &fakeNotifier{}

	h := m.MembershipHandler(np, ownersFn(testOwner))
	h(context.Background(), &kit.Membership{
		ChatID: 555, IsGroup: false,
		OldStatus: "left", NewStatus: "member",
	})

	if len(st.Snapshot().Recipients) != 0 {
		t.Fatalf("private chats must not become recipients: %v", st.Snapshot().Recipients)
	}
}

func TestMembershipRestrictedDoesNotAttach(t *testing.T) {
	m, st, _, _ := newTestMenu(t)
	np := &fakeNotifier{}

	h := m.MembershipHandler(np, ownersFn(testOwner))
	h(context.Background(), &kit.Membership{
		ChatID: -1001, IsGroup: true,
		OldStatus: "left", NewStatus: "restricted",
	})

	if len(st.Snapshot().Recipients) != 0 {
		t.Fatalf("restricted membership must not attach: %v", st.Snapshot().Recipients)
	}
}
