package router

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/amirpoya/Telegram-auto/internal/config"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// stubAdapter records outbound traffic; everything else is a no-op.
type stubAdapter struct {
	mu      sync.Mutex
	sends   []string
	answers []string
}

func (s *stubAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (s *stubAdapter) Stop(ctx context.Context) error                        { return nil }

func (s *stubAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(s.sends)}, nil
}

func (s *stubAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoID, caption string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (s *stubAdapter) CopyMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (s *stubAdapter) ForwardMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (s *stubAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (s *stubAdapter) EditReplyMarkup(ctx context.Context, ref kit.MessageRef, layout kit.ButtonLayout) error {
	return nil
}

func (s *stubAdapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error { return nil }

func (s *stubAdapter) ResolveChat(ctx context.Context, username string) (int64, error) {
	return 0, nil
}

func (s *stubAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, text)
	return nil
}

func (s *stubAdapter) AnswerInlineQuery(ctx context.Context, queryID string, results []kit.InlineResult) error {
	return nil
}

const ownerID int64 = 7

func newTestManager(t *testing.T) (*CommandManager, *stubAdapter) {
	t.Helper()
	ad := &stubAdapter{}
	m := NewCommandManager(logx.Nop(), ad, config.NewConfigManager(""), nil, []int64{ownerID})
	return m, ad
}

// drainJobs runs everything queued by the route* methods synchronously.
func drainJobs(m *CommandManager) int {
	n := 0
	for {
		select {
		case job := <-m.jobs:
			if job != nil {
				job()
			}
			n++
		default:
			return n
		}
	}
}

func messageUpdate(chatID, fromID int64, text string, group bool) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID:      1,
		ChatID:  chatID,
		FromID:  fromID,
		Text:    text,
		IsGroup: group,
	}}
}

func TestDispatchOwnerCommandWithArgs(t *testing.T) {
	m, _ := newTestManager(t)

	var got *Request
	m.SetRegistry([]Command{{
		Route:  "mode",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			got = req
			return nil
		},
	}}, nil)

	m.routeMessage(context.Background(), messageUpdate(100, ownerID, "/mode forward", false))
	if n := drainJobs(m); n != 1 {
		t.Fatalf("jobs run = %d, want 1", n)
	}
	if got == nil {
		t.Fatal("handler not invoked")
	}
	if len(got.Args) != 1 || got.Args[0] != "forward" {
		t.Fatalf("args = %#v", got.Args)
	}
	if got.Command != "mode" || got.FromID != ownerID {
		t.Fatalf("unexpected request: cmd=%q from=%d", got.Command, got.FromID)
	}
}

func TestDispatchSubcommandVsArguments(t *testing.T) {
	m, _ := newTestManager(t)

	var calls []string
	record := func(name string) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			call := name
			if len(req.RawArgs) > 0 {
				call += " " + strings.Join(req.RawArgs, " ")
			}
			calls = append(calls, call)
			return nil
		}
	}
	m.SetRegistry([]Command{
		{Route: "attach", Access: AccessOwnerOnly, Handle: record("attach")},
		{Route: "attach buttons", Access: AccessOwnerOnly, Handle: record("buttons")},
	}, nil)

	ctx := context.Background()
	m.routeMessage(ctx, messageUpdate(100, ownerID, "/attach buttons", false))
	m.routeMessage(ctx, messageUpdate(100, ownerID, "/attach -1001234567", false))
	m.routeMessage(ctx, messageUpdate(100, ownerID, "/attach @somechat", false))
	drainJobs(m)

	want := []string{"buttons", "attach -1001234567", "attach @somechat"}
	if strings.Join(calls, "|") != strings.Join(want, "|") {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestDispatchAliasReachesRoute(t *testing.T) {
	m, _ := newTestManager(t)

	ran := false
	m.SetRegistry([]Command{{
		Route:  "clear template",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			ran = true
			return nil
		},
	}}, nil)

	m.routeMessage(context.Background(), messageUpdate(100, ownerID, "/clear_template", false))
	drainJobs(m)
	if !ran {
		t.Fatal("auto alias /clear_template should reach the spaced route")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	m, ad := newTestManager(t)
	m.SetRegistry(nil, nil)

	// Group chats stay silent.
	m.routeMessage(context.Background(), messageUpdate(-100200, 999, "/wat", true))
	drainJobs(m)
	if len(ad.sends) != 0 {
		t.Fatalf("group must stay quiet, sends=%v", ad.sends)
	}

	// Owners in private get a hint.
	m.routeMessage(context.Background(), messageUpdate(100, ownerID, "/wat", false))
	drainJobs(m)
	if len(ad.sends) != 1 || !strings.Contains(ad.sends[0], "/help") {
		t.Fatalf("expected a help hint, sends=%v", ad.sends)
	}
}

func TestDispatchOwnerGate(t *testing.T) {
	m, ad := newTestManager(t)

	ran := false
	m.SetRegistry([]Command{{
		Route:  "broadcast",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			ran = true
			return nil
		},
	}}, nil)

	// Non-owner in a group: drop silently.
	m.routeMessage(context.Background(), messageUpdate(-100200, 999, "/broadcast", true))
	drainJobs(m)
	if ran || len(ad.sends) != 0 {
		t.Fatalf("group gate failed: ran=%v sends=%v", ran, ad.sends)
	}

	// Non-owner in private: explicit refusal.
	m.routeMessage(context.Background(), messageUpdate(100, 999, "/broadcast", false))
	drainJobs(m)
	if ran {
		t.Fatal("handler must not run for non-owners")
	}
	if len(ad.sends) != 1 || ad.sends[0] != "unauthorized" {
		t.Fatalf("sends=%v", ad.sends)
	}
}

func TestDispatchCallbackOwnerGate(t *testing.T) {
	m, ad := newTestManager(t)

	ran := false
	m.SetRegistry(nil, []CallbackRoute{{
		Group:  "m",
		Action: "toggle",
		Handle: func(ctx context.Context, req *Request, payload string) error {
			ran = true
			return nil
		},
	}})

	cb := func(from int64) kit.Update {
		return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
			ID: "cb1", FromID: from, ChatID: 100, MessageID: 5, Data: "m:toggle",
		}}
	}

	m.routeCallback(context.Background(), cb(999))
	drainJobs(m)
	if ran {
		t.Fatal("non-owner callback must not run")
	}
	if len(ad.answers) != 1 || ad.answers[0] != "forbidden" {
		t.Fatalf("answers=%v", ad.answers)
	}

	m.routeCallback(context.Background(), cb(ownerID))
	drainJobs(m)
	if !ran {
		t.Fatal("owner callback should run")
	}
	// The job answers the callback to stop the loading UI.
	if len(ad.answers) != 2 || ad.answers[1] != "" {
		t.Fatalf("answers=%v", ad.answers)
	}
}

func TestDispatchCallbackPayload(t *testing.T) {
	m, _ := newTestManager(t)

	var gotPayload string
	m.SetRegistry(nil, []CallbackRoute{{
		Group:  "m",
		Action: "pick",
		Handle: func(ctx context.Context, req *Request, payload string) error {
			gotPayload = payload
			return nil
		},
	}})

	m.routeCallback(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb2", FromID: ownerID, ChatID: 100, MessageID: 5, Data: "m:pick:a:b",
	}})
	drainJobs(m)

	// Only the first two colons split; the payload keeps its own.
	if gotPayload != "a:b" {
		t.Fatalf("payload = %q, want %q", gotPayload, "a:b")
	}
}

func TestDispatchInputForwarding(t *testing.T) {
	m, _ := newTestManager(t)
	m.SetRegistry(nil, nil)

	var got []string
	m.SetInputHandler(func(ctx context.Context, req *Request) error {
		got = append(got, req.Update.Message.Text)
		return nil
	})

	ctx := context.Background()
	m.routeMessage(ctx, messageUpdate(100, ownerID, "15m", false))
	m.routeMessage(ctx, messageUpdate(100, 999, "noise from others", false))
	drainJobs(m)

	if len(got) != 1 || got[0] != "15m" {
		t.Fatalf("input handler saw %v, want only the owner's message", got)
	}
}

func TestDispatchMembershipRouting(t *testing.T) {
	m, _ := newTestManager(t)

	var got *kit.Membership
	m.SetMembershipHandler(func(ctx context.Context, mb *kit.Membership) {
		got = mb
	})

	m.routeMembership(context.Background(), kit.Update{Kind: kit.UpdateMembership, Membership: &kit.Membership{
		ChatID: -100200, NewStatus: "member", OldStatus: "left", IsGroup: true,
	}})
	drainJobs(m)

	if got == nil || got.ChatID != -100200 || got.NewStatus != "member" {
		t.Fatalf("membership not routed: %+v", got)
	}
}
