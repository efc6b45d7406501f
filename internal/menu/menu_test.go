package menu

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	"github.com/amirpoya/Telegram-auto/internal/transport/telegram/router"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
	opt  *kit.SendOptions
}

type editRec struct {
	ref  kit.MessageRef
	text string
	opt  *kit.SendOptions
}

type markupRec struct {
	ref    kit.MessageRef
	layout kit.ButtonLayout
}

type inlineRec struct {
	queryID string
	results []kit.InlineResult
}

// fakeAdapter records outbound calls and answers ResolveChat from a map.
type fakeAdapter struct {
	mu        sync.Mutex
	sends     []sentMsg
	edits     []editRec
	markups   []markupRec
	deletes   []kit.MessageRef
	inline    []inlineRec
	deleteErr error
	resolve   map[string]int64
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{resolve: map[string]int64{}}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                        { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentMsg{to: to, text: text, opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 1000 + len(f.sends)}, nil
}

func (f *fakeAdapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoID, caption string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) CopyMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) ForwardMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef) (kit.MessageRef, error) {
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editRec{ref: ref, text: text, opt: opt})
	return nil
}

func (f *fakeAdapter) EditReplyMarkup(ctx context.Context, ref kit.MessageRef, layout kit.ButtonLayout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markups = append(f.markups, markupRec{ref: ref, layout: layout})
	return nil
}

func (f *fakeAdapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return f.deleteErr
}

func (f *fakeAdapter) ResolveChat(ctx context.Context, username string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.resolve[username]
	if !ok {
		return 0, fmt.Errorf("chat @%s not found", username)
	}
	return id, nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) AnswerInlineQuery(ctx context.Context, queryID string, results []kit.InlineResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inline = append(f.inline, inlineRec{queryID: queryID, results: results})
	return nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	for i, s := range f.sends {
		out[i] = s.text
	}
	return out
}

// stubEngine satisfies router.PosterPort without scheduling anything.
type stubEngine struct {
	status  poster.Status
	runRep  *poster.CycleReport
	runErr  error
	fwdRep  *poster.CycleReport
	fwdErr  error
	prevErr error

	runCalls int
	fwdSrcs  []kit.MessageRef
	prevTos  []kit.ChatTarget
}

func (s *stubEngine) RunCycle(ctx context.Context, reason string) (*poster.CycleReport, error) {
	s.runCalls++
	return s.runRep, s.runErr
}

func (s *stubEngine) ForwardToAll(ctx context.Context, src kit.MessageRef) (*poster.CycleReport, error) {
	s.fwdSrcs = append(s.fwdSrcs, src)
	return s.fwdRep, s.fwdErr
}

func (s *stubEngine) Preview(ctx context.Context, to kit.ChatTarget) error {
	s.prevTos = append(s.prevTos, to)
	return s.prevErr
}

func (s *stubEngine) Status() poster.Status { return s.status }

const testOwner int64 = 7

func newTestMenu(t *testing.T) (*Menu, *settings.Store, *fakeAdapter, *stubEngine) {
	t.Helper()
	st := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), logx.Nop())
	if _, err := st.Load(); err != nil {
		t.Fatalf("load settings: %v", err)
	}
	eng := &stubEngine{}
	return New(st, eng, logx.Nop()), st, newFakeAdapter(), eng
}

func msgReq(ad kit.Adapter, msg *kit.Message) *router.Request {
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateMessage, Message: msg},
		Chat:    kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func cbReq(ad kit.Adapter, cbk *kit.Callback) *router.Request {
	return &router.Request{
		Update:  kit.Update{Kind: kit.UpdateCallback, Callback: cbk},
		Chat:    kit.ChatTarget{ChatID: cbk.ChatID, ThreadID: cbk.ThreadID},
		FromID:  cbk.FromID,
		Adapter: ad,
		Logger:  logx.Nop(),
	}
}

func ownerMsg(chatID int64, text string) *kit.Message {
	return &kit.Message{ID: 1, ChatID: chatID, FromID: testOwner, Text: text}
}

func menuCallback(chatID int64) *kit.Callback {
	return &kit.Callback{ID: "cb1", FromID: testOwner, ChatID: chatID, MessageID: 42}
}

func callbackByAction(t *testing.T, m *Menu, action string) router.CallbackRoute {
	t.Helper()
	for _, r := range m.Callbacks() {
		if r.Action == action {
			return r
		}
	}
	t.Fatalf("callback action %q not registered", action)
	return router.CallbackRoute{}
}

func commandByRoute(t *testing.T, m *Menu, route string) router.Command {
	t.Helper()
	for _, c := range m.Commands() {
		if c.Route == route {
			return c
		}
	}
	t.Fatalf("command route %q not registered", route)
	return router.Command{}
}

func TestMenuCommandSendsKeyboard(t *testing.T) {
	m, _, ad, _ := newTestMenu(t)

	cmd := commandByRoute(t, m, "menu")
	if err := cmd.Handle(context.Background(), msgReq(ad, ownerMsg(100, "/menu"))); err != nil {
		t.Fatalf("menu command: %v", err)
	}

	if len(ad.sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ad.sends))
	}
	s := ad.sends[0]
	if s.opt == nil || s.opt.ParseMode != "HTML" || s.opt.ReplyMarkupAdapter == nil {
		t.Fatalf("menu must be HTML with an inline keyboard, opt=%+v", s.opt)
	}
	if !strings.Contains(s.text, "Auto Poster") {
		t.Fatalf("unexpected menu body: %q", s.text)
	}
}

func TestToggleCallbackFlipsEnabledAndRedraws(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)

	route := callbackByAction(t, m, "toggle")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	if !st.Snapshot().Enabled {
		t.Fatal("toggle should enable the schedule")
	}
	if len(ad.edits) != 1 {
		t.Fatalf("expected the menu message to be edited once, got %d edits", len(ad.edits))
	}
	e := ad.edits[0]
	if e.ref.MessageID != 42 || e.ref.ChatID != 100 {
		t.Fatalf("edited wrong message: %+v", e.ref)
	}
	if !strings.Contains(e.text, "enabled") {
		t.Fatalf("redrawn menu should show the new state: %q", e.text)
	}

	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if st.Snapshot().Enabled {
		t.Fatal("second toggle should disable again")
	}
}

func TestPromptCallbackArmsInput(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)

	route := callbackByAction(t, m, "interval")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("interval prompt: %v", err)
	}

	if len(ad.edits) != 1 || !strings.Contains(ad.edits[0].text, "interval") {
		t.Fatalf("expected the menu edited into an interval prompt, edits=%+v", ad.edits)
	}
	if ad.edits[0].opt == nil || ad.edits[0].opt.ReplyMarkupAdapter == nil {
		t.Fatal("prompt should carry a cancel keyboard")
	}

	h := m.InputHandler()
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "15m"))); err != nil {
		t.Fatalf("interval input: %v", err)
	}
	if got := st.Snapshot().IntervalSeconds; got != 900 {
		t.Fatalf("interval = %d, want 900", got)
	}

	texts := ad.sentTexts()
	if len(texts) != 2 {
		t.Fatalf("expected confirmation + fresh menu, got %d sends: %v", len(texts), texts)
	}
	if !strings.Contains(texts[0], "Interval set") {
		t.Fatalf("unexpected confirmation: %q", texts[0])
	}

	// Prompt is gone: the same text is ignored now.
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "30m"))); err != nil {
		t.Fatalf("idle input: %v", err)
	}
	if got := st.Snapshot().IntervalSeconds; got != 900 {
		t.Fatalf("idle input must not change anything, interval = %d", got)
	}
}

func TestIntervalInputRejectsBelowMinimum(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	m.states.set(testOwner, ModeAwaitInterval, 100)

	h := m.InputHandler()
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "30"))); err != nil {
		t.Fatalf("input: %v", err)
	}
	if got := st.Snapshot().IntervalSeconds; got != settings.DefaultIntervalSeconds {
		t.Fatalf("rejected input must not change the interval, got %d", got)
	}
	if len(ad.sends) != 1 || !strings.Contains(ad.sends[0].text, "Minimum") {
		t.Fatalf("expected a rejection reply, sends=%v", ad.sentTexts())
	}

	// The prompt stays armed, so a corrected value goes through.
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "90"))); err != nil {
		t.Fatalf("retry input: %v", err)
	}
	if got := st.Snapshot().IntervalSeconds; got != 90 {
		t.Fatalf("interval = %d, want 90", got)
	}
}

func TestInputScopedToPromptChat(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	m.states.set(testOwner, ModeAwaitMessage, 100)

	h := m.InputHandler()
	if err := h(context.Background(), msgReq(ad, ownerMsg(200, "new text"))); err != nil {
		t.Fatalf("input: %v", err)
	}
	if len(ad.sends) != 0 {
		t.Fatalf("input from another chat must be ignored, sends=%v", ad.sentTexts())
	}
	if got := st.Snapshot().Text; got != settings.DefaultText {
		t.Fatalf("text changed unexpectedly: %q", got)
	}

	// Still armed for the right chat.
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "new text"))); err != nil {
		t.Fatalf("input: %v", err)
	}
	if got := st.Snapshot().Text; got != "new text" {
		t.Fatalf("text = %q, want %q", got, "new text")
	}
}

func TestMessageInputKeepsTemplate(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.Template = &settings.TemplateRef{ChatID: -1001234567, MessageID: 9}
		return nil
	}); err != nil {
		t.Fatalf("seed template: %v", err)
	}
	m.states.set(testOwner, ModeAwaitMessage, 100)

	h := m.InputHandler()
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "fallback text"))); err != nil {
		t.Fatalf("input: %v", err)
	}

	doc := st.Snapshot()
	if doc.Text != "fallback text" {
		t.Fatalf("text = %q", doc.Text)
	}
	if !doc.Template.Valid() {
		t.Fatal("editing the text payload must not clear the template")
	}
}

func TestButtonsInputStoresRows(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	m.states.set(testOwner, ModeAwaitButtons, 100)

	h := m.InputHandler()
	input := "Open - https://a.example.com\nDocs -> b.example.com"
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, input))); err != nil {
		t.Fatalf("input: %v", err)
	}

	doc := st.Snapshot()
	if len(doc.Buttons) != 2 || len(doc.Buttons[0]) != 1 || len(doc.Buttons[1]) != 1 {
		t.Fatalf("unexpected layout: %+v", doc.Buttons)
	}
	if doc.Buttons[0][0].Label != "Open" || doc.Buttons[1][0].URL != "https://b.example.com" {
		t.Fatalf("unexpected buttons: %+v", doc.Buttons)
	}
}

func TestRecipientsInputAddsAndRemoves(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.AddRecipient(-1002222333)
		return nil
	}); err != nil {
		t.Fatalf("seed recipient: %v", err)
	}
	ad.resolve["newsfeed"] = -1003333444
	m.states.set(testOwner, ModeAwaitRecipients, 100)

	h := m.InputHandler()
	input := "-1001111222\n- -1002222333\n@newsfeed\n@missing"
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, input))); err != nil {
		t.Fatalf("input: %v", err)
	}

	doc := st.Snapshot()
	if !doc.HasRecipient(-1001111222) || !doc.HasRecipient(-1003333444) {
		t.Fatalf("additions missing: %v", doc.Recipients)
	}
	if doc.HasRecipient(-1002222333) {
		t.Fatalf("removal ignored: %v", doc.Recipients)
	}

	texts := ad.sentTexts()
	if len(texts) != 2 {
		t.Fatalf("expected summary + menu, got %v", texts)
	}
	if !strings.Contains(texts[0], "2 added") || !strings.Contains(texts[0], "1 removed") || !strings.Contains(texts[0], "missing") {
		t.Fatalf("unexpected summary: %q", texts[0])
	}
}

func TestImportCapturesReplyOrigin(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)

	src := &kit.Message{
		ID:          55,
		ChatID:      100,
		HasKeyboard: true,
		Origin:      &kit.MessageRef{ChatID: -1009999999, MessageID: 7},
	}
	msg := ownerMsg(100, "/import")
	msg.ReplyTo = src

	cmd := commandByRoute(t, m, "import")
	if err := cmd.Handle(context.Background(), msgReq(ad, msg)); err != nil {
		t.Fatalf("import: %v", err)
	}

	tpl := st.Snapshot().Template
	if !tpl.Valid() {
		t.Fatal("template not captured")
	}
	if tpl.ChatID != -1009999999 || tpl.MessageID != 7 {
		t.Fatalf("forward origin should win: %+v", tpl)
	}
	if !tpl.HasKeyboard {
		t.Fatal("source keyboard flag not captured")
	}
}

func TestImportWithoutReplyExplains(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)

	cmd := commandByRoute(t, m, "import")
	if err := cmd.Handle(context.Background(), msgReq(ad, ownerMsg(100, "/import"))); err != nil {
		t.Fatalf("import: %v", err)
	}
	if st.Snapshot().Template.Valid() {
		t.Fatal("no template should be captured")
	}
	if len(ad.sends) != 1 || !strings.Contains(ad.sends[0].text, "Reply") {
		t.Fatalf("expected usage hint, sends=%v", ad.sentTexts())
	}
}

func TestClearTemplateCommand(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.Template = &settings.TemplateRef{ChatID: -1001234567, MessageID: 9}
		return nil
	}); err != nil {
		t.Fatalf("seed template: %v", err)
	}

	cmd := commandByRoute(t, m, "clear template")
	if err := cmd.Handle(context.Background(), msgReq(ad, ownerMsg(100, "/clear_template"))); err != nil {
		t.Fatalf("clear template: %v", err)
	}
	if st.Snapshot().Template.Valid() {
		t.Fatal("template should be gone")
	}
}

func TestModeCommandSetsDeliveryMode(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)

	cmd := commandByRoute(t, m, "mode")
	req := msgReq(ad, ownerMsg(100, "/mode forward"))
	req.Args = []string{"forward"}
	if err := cmd.Handle(context.Background(), req); err != nil {
		t.Fatalf("mode: %v", err)
	}
	if got := st.Snapshot().Mode; got != settings.ModeForward {
		t.Fatalf("mode = %s, want forward", got)
	}

	req = msgReq(ad, ownerMsg(100, "/mode sideways"))
	req.Args = []string{"sideways"}
	if err := cmd.Handle(context.Background(), req); err != nil {
		t.Fatalf("mode: %v", err)
	}
	if got := st.Snapshot().Mode; got != settings.ModeForward {
		t.Fatalf("bad mode input must not change anything, got %s", got)
	}
}

func TestAttachDetachCurrentChat(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	group := ownerMsg(-1007770001, "/attach")
	group.IsGroup = true

	attach := commandByRoute(t, m, "attach")
	if err := attach.Handle(context.Background(), msgReq(ad, group)); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !st.Snapshot().HasRecipient(-1007770001) {
		t.Fatalf("chat not attached: %v", st.Snapshot().Recipients)
	}

	// Attaching twice reports instead of duplicating.
	if err := attach.Handle(context.Background(), msgReq(ad, group)); err != nil {
		t.Fatalf("attach again: %v", err)
	}
	if got := len(st.Snapshot().Recipients); got != 1 {
		t.Fatalf("recipients = %d, want 1", got)
	}

	detach := commandByRoute(t, m, "detach")
	group.Text = "/detach"
	if err := detach.Handle(context.Background(), msgReq(ad, group)); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if st.Snapshot().HasRecipient(-1007770001) {
		t.Fatal("chat should be detached")
	}
}

func TestAttachExplicitChatUsesRawArgs(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)

	attach := commandByRoute(t, m, "attach")
	req := msgReq(ad, ownerMsg(100, "/attach -1005550001"))
	req.RawArgs = []string{"-1005550001"}
	if err := attach.Handle(context.Background(), req); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !st.Snapshot().HasRecipient(-1005550001) {
		t.Fatalf("explicit chat id not attached: %v", st.Snapshot().Recipients)
	}
}

func TestAttachButtonsEditsRepliedPost(t *testing.T) {
	m, st, ad, _ := newTestMenu(t)
	layout := kit.ButtonLayout{{{Label: "Open", URL: "https://a.example.com"}}}
	if _, err := st.Mutate(func(s *settings.Settings) error {
		s.Buttons = layout
		s.Template = &settings.TemplateRef{ChatID: -1008880001, MessageID: 55}
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	msg := ownerMsg(-1008880001, "/attach_buttons")
	msg.ReplyTo = &kit.Message{ID: 55, ChatID: -1008880001}

	cmd := commandByRoute(t, m, "attach buttons")
	if err := cmd.Handle(context.Background(), msgReq(ad, msg)); err != nil {
		t.Fatalf("attach buttons: %v", err)
	}

	if len(ad.markups) != 1 {
		t.Fatalf("expected one markup edit, got %d", len(ad.markups))
	}
	mk := ad.markups[0]
	if mk.ref.MessageID != 55 || mk.layout.Empty() {
		t.Fatalf("unexpected markup edit: %+v", mk)
	}
	if !st.Snapshot().Template.HasKeyboard {
		t.Fatal("template keyboard flag should flip to true")
	}

	detach := commandByRoute(t, m, "detach buttons")
	msg.Text = "/detach_buttons"
	if err := detach.Handle(context.Background(), msgReq(ad, msg)); err != nil {
		t.Fatalf("detach buttons: %v", err)
	}
	if st.Snapshot().Template.HasKeyboard {
		t.Fatal("template keyboard flag should flip back to false")
	}
	if got := ad.markups[1].layout; !got.Empty() {
		t.Fatalf("detach should clear the keyboard, got %+v", got)
	}
}

func TestBroadcastCallbackReportsSummary(t *testing.T) {
	m, _, ad, eng := newTestMenu(t)
	eng.runRep = &poster.CycleReport{Recipients: 3, Sent: 2, Failed: 1,
		Failures: []poster.RecipientFailure{{ChatID: -1001, Kind: "permanent", Reason: "kicked"}}}

	route := callbackByAction(t, m, "broadcast")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if eng.runCalls != 1 {
		t.Fatalf("RunCycle calls = %d, want 1", eng.runCalls)
	}
	if len(ad.sends) != 1 || !strings.Contains(ad.sends[0].text, "sent 2 / failed 1") {
		t.Fatalf("unexpected summary: %v", ad.sentTexts())
	}
}

func TestBroadcastCallbackWhileCycleRuns(t *testing.T) {
	m, _, ad, eng := newTestMenu(t)
	eng.runErr = poster.ErrCycleInFlight

	route := callbackByAction(t, m, "broadcast")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(ad.sends) != 1 || !strings.Contains(ad.sends[0].text, "already running") {
		t.Fatalf("expected an in-flight notice, sends=%v", ad.sentTexts())
	}
}

func TestForwardCommandForwardsReply(t *testing.T) {
	m, _, ad, eng := newTestMenu(t)
	eng.fwdRep = &poster.CycleReport{Recipients: 2, Sent: 2}

	msg := ownerMsg(100, "/forward")
	msg.ReplyTo = &kit.Message{ID: 77, ChatID: 100}

	cmd := commandByRoute(t, m, "forward")
	if err := cmd.Handle(context.Background(), msgReq(ad, msg)); err != nil {
		t.Fatalf("forward: %v", err)
	}

	if len(eng.fwdSrcs) != 1 || eng.fwdSrcs[0].MessageID != 77 {
		t.Fatalf("unexpected forward source: %+v", eng.fwdSrcs)
	}
	if len(ad.sends) != 1 || !strings.Contains(ad.sends[0].text, "sent 2") {
		t.Fatalf("unexpected summary: %v", ad.sentTexts())
	}
}

func TestCancelRestoresMenu(t *testing.T) {
	m, _, ad, _ := newTestMenu(t)
	m.states.set(testOwner, ModeAwaitButtons, 100)

	route := callbackByAction(t, m, "cancel")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if len(ad.edits) != 1 || !strings.Contains(ad.edits[0].text, "Auto Poster") {
		t.Fatalf("cancel should redraw the menu, edits=%+v", ad.edits)
	}

	// The armed prompt is gone.
	h := m.InputHandler()
	if err := h(context.Background(), msgReq(ad, ownerMsg(100, "Open - https://a.example.com"))); err != nil {
		t.Fatalf("input: %v", err)
	}
	if len(ad.sends) != 0 {
		t.Fatalf("input after cancel must be ignored, sends=%v", ad.sentTexts())
	}
}

func TestCloseDeletesMenuMessage(t *testing.T) {
	m, _, ad, _ := newTestMenu(t)

	route := callbackByAction(t, m, "close")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(ad.deletes) != 1 || ad.deletes[0].MessageID != 42 {
		t.Fatalf("expected the menu message deleted, got %+v", ad.deletes)
	}
	if len(ad.edits) != 0 {
		t.Fatalf("no edit expected on successful delete, got %+v", ad.edits)
	}
}

func TestCloseFallsBackToEdit(t *testing.T) {
	m, _, ad, _ := newTestMenu(t)
	ad.deleteErr = errors.New("message can't be deleted")

	route := callbackByAction(t, m, "close")
	if err := route.Handle(context.Background(), cbReq(ad, menuCallback(100)), ""); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(ad.edits) != 1 || !strings.Contains(ad.edits[0].text, "Menu closed") {
		t.Fatalf("expected a fallback edit, got %+v", ad.edits)
	}
}

func TestHealthCommandReportsEngineState(t *testing.T) {
	m, _, ad, eng := newTestMenu(t)
	eng.status = poster.Status{State: "scheduled", IntervalSecs: 900, CyclesRun: 4}

	cmd := commandByRoute(t, m, "health")
	if err := cmd.Handle(context.Background(), msgReq(ad, ownerMsg(100, "/health"))); err != nil {
		t.Fatalf("health: %v", err)
	}

	if len(ad.sends) != 1 {
		t.Fatalf("expected 1 send, got %d", len(ad.sends))
	}
	body := ad.sends[0].text
	if !strings.Contains(body, "Health") || !strings.Contains(body, "scheduled every 15m") {
		t.Fatalf("unexpected health body: %q", body)
	}
}
