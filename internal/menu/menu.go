package menu

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	"github.com/amirpoya/Telegram-auto/internal/transport/telegram/router"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// Menu is the owner control surface: the inline settings menu, its
// callback handlers, the prompt state machine and the owner command set.
type Menu struct {
	store  *settings.Store
	engine router.PosterPort
	log    logx.Logger
	states *stateStore

	startedAt time.Time
}

func New(store *settings.Store, engine router.PosterPort, log logx.Logger) *Menu {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Menu{
		store:     store,
		engine:    engine,
		log:       log.With(logx.String("component", "menu")),
		states:    newStateStore(),
		startedAt: time.Now(),
	}
}

// sendMenu posts a fresh menu message into to.
func (m *Menu) sendMenu(ctx context.Context, ad kit.Adapter, to kit.ChatTarget) error {
	doc := m.store.Snapshot()
	_, err := ad.SendText(ctx, to, renderText(doc, m.engine.Status()), nil, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: renderKeyboard(doc),
	})
	return err
}

// editMenu redraws the menu in place. Telegram rejects edits that change
// nothing; that is not a failure here.
func (m *Menu) editMenu(ctx context.Context, ad kit.Adapter, ref kit.MessageRef) error {
	doc := m.store.Snapshot()
	err := ad.EditText(ctx, ref, renderText(doc, m.engine.Status()), &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: renderKeyboard(doc),
	})
	if isNotModified(err) {
		return nil
	}
	return err
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not modified")
}

// callbackRef locates the message the pressed button belongs to.
func callbackRef(req *router.Request) kit.MessageRef {
	cbk := req.Update.Callback
	return kit.MessageRef{ChatID: cbk.ChatID, ThreadID: cbk.ThreadID, MessageID: cbk.MessageID}
}

const (
	promptInterval = "⏱ <b>Set interval</b>\nSend the new interval: <code>900</code>, <code>15m</code>, <code>2h</code>, <code>1d</code>. Minimum is 60s."
	promptMessage  = "✏️ <b>Set message</b>\nSend the new message text. Formatting is kept as you type it."
	promptPhoto    = "🖼 <b>Set photo</b>\nSend a photo (the caption becomes the message text). Send <code>-</code> to remove the current photo."
	promptButtons  = "🔘 <b>Set buttons</b>\nOne button per line: <code>Label - https://example.com</code>. A JSON array of rows also works. Send <code>-</code> to remove all buttons."
	promptChats    = "👥 <b>Edit recipients</b>\nSend chat IDs, @usernames or t.me links, one per line. Start a line with <code>- </code> to remove an entry. Private invite links (t.me/+…) cannot be resolved."

	importHelp = "📌 <b>Capture a template</b>\nForward the source post into this chat (or find any message here), then reply to it with /import. Copy mode re-sends it without the forward header, forward mode keeps it. When the captured message already carries buttons the stored button layout stays off it."
)

// Callbacks returns the routes behind the menu's inline keyboard.
func (m *Menu) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		m.promptRoute("interval", ModeAwaitInterval, promptInterval),
		m.promptRoute("message", ModeAwaitMessage, promptMessage),
		m.promptRoute("photo", ModeAwaitPhoto, promptPhoto),
		m.promptRoute("buttons", ModeAwaitButtons, promptButtons),
		m.promptRoute("recipients", ModeAwaitRecipients, promptChats),
		{Group: cbGroup, Action: "toggle", Description: "Enable or disable the schedule", Handle: m.cbToggle},
		{Group: cbGroup, Action: "mode", Description: "Switch between copy and forward delivery", Handle: m.cbMode},
		{Group: cbGroup, Action: "clear", Description: "Drop the captured template", Handle: m.cbClear},
		{Group: cbGroup, Action: "import", Description: "Show how to capture a template", Handle: m.cbImport},
		{Group: cbGroup, Action: "preview", Description: "Post a preview into this chat", Handle: m.cbPreview},
		{Group: cbGroup, Action: "broadcast", Description: "Run one broadcast cycle now", Timeout: 5 * time.Minute, Handle: m.cbBroadcast},
		{Group: cbGroup, Action: "refresh", Description: "Redraw the menu", Handle: m.cbRefresh},
		{Group: cbGroup, Action: "cancel", Description: "Abort the pending prompt", Handle: m.cbCancel},
		{Group: cbGroup, Action: "close", Description: "Remove the menu message", Handle: m.cbClose},
	}
}

// promptRoute arms the owner's input mode and edits the menu into a prompt.
func (m *Menu) promptRoute(action string, mode InputMode, prompt string) router.CallbackRoute {
	return router.CallbackRoute{
		Group:       cbGroup,
		Action:      action,
		Description: "Prompt for " + action + " input",
		Handle: func(ctx context.Context, req *router.Request, _ string) error {
			m.states.set(req.FromID, mode, req.Chat.ChatID)
			err := req.Adapter.EditText(ctx, callbackRef(req), prompt, &kit.SendOptions{
				ParseMode:          "HTML",
				DisablePreview:     true,
				ReplyMarkupAdapter: cancelKeyboard(),
			})
			if isNotModified(err) {
				return nil
			}
			return err
		},
	}
}

func (m *Menu) cbToggle(ctx context.Context, req *router.Request, _ string) error {
	doc, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Enabled = !s.Enabled
		return nil
	})
	if err != nil {
		return err
	}
	m.log.Info("schedule toggled", logx.Bool("enabled", doc.Enabled), logx.Int64("owner", req.FromID))
	return m.editMenu(ctx, req.Adapter, callbackRef(req))
}

func (m *Menu) cbMode(ctx context.Context, req *router.Request, _ string) error {
	_, err := m.store.Mutate(func(s *settings.Settings) error {
		if s.Mode == settings.ModeForward {
			s.Mode = settings.ModeCopy
		} else {
			s.Mode = settings.ModeForward
		}
		return nil
	})
	if err != nil {
		return err
	}
	return m.editMenu(ctx, req.Adapter, callbackRef(req))
}

func (m *Menu) cbClear(ctx context.Context, req *router.Request, _ string) error {
	_, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Template = nil
		return nil
	})
	if err != nil {
		return err
	}
	return m.editMenu(ctx, req.Adapter, callbackRef(req))
}

func (m *Menu) cbImport(ctx context.Context, req *router.Request, _ string) error {
	err := req.Adapter.EditText(ctx, callbackRef(req), importHelp, &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: backKeyboard(),
	})
	if isNotModified(err) {
		return nil
	}
	return err
}

func (m *Menu) cbPreview(ctx context.Context, req *router.Request, _ string) error {
	if err := m.engine.Preview(ctx, req.Chat); err != nil {
		_, serr := req.Adapter.SendText(ctx, req.Chat, "⚠️ Preview failed: "+err.Error(), nil, nil)
		return serr
	}
	return nil
}

func (m *Menu) cbBroadcast(ctx context.Context, req *router.Request, _ string) error {
	rep, err := m.engine.RunCycle(ctx, "manual")
	if errors.Is(err, poster.ErrCycleInFlight) {
		_, serr := req.Adapter.SendText(ctx, req.Chat, "⏳ A cycle is already running.", nil, nil)
		return serr
	}
	if err != nil {
		return err
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, summarize(rep), nil, nil)
	return err
}

func (m *Menu) cbRefresh(ctx context.Context, req *router.Request, _ string) error {
	m.states.clear(req.FromID)
	return m.editMenu(ctx, req.Adapter, callbackRef(req))
}

func (m *Menu) cbCancel(ctx context.Context, req *router.Request, _ string) error {
	m.states.clear(req.FromID)
	return m.editMenu(ctx, req.Adapter, callbackRef(req))
}

func (m *Menu) cbClose(ctx context.Context, req *router.Request, _ string) error {
	m.states.clear(req.FromID)
	ref := callbackRef(req)
	if err := req.Adapter.DeleteMessage(ctx, ref); err != nil {
		// Bots cannot delete messages older than 48h; degrade to an edit.
		return req.Adapter.EditText(ctx, ref, "Menu closed.", &kit.SendOptions{})
	}
	return nil
}
