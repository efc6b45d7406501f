package menu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	"github.com/amirpoya/Telegram-auto/internal/transport/telegram/router"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
	"github.com/amirpoya/Telegram-auto/pkg/tgui"
)

// Commands returns the owner command set. Every route is owner-only; the
// router keeps group chats quiet for everyone else.
func (m *Menu) Commands() []router.Command {
	owner := router.AccessOwnerOnly
	return []router.Command{
		{Route: "start", Description: "Open the settings menu", Access: owner, Handle: m.cmdMenu},
		{Route: "menu", Description: "Open the settings menu", Access: owner, Handle: m.cmdMenu},
		{Route: "status", Description: "Show the broadcast status", Access: owner, Handle: m.cmdStatus},
		{Route: "import", Usage: "/import (as a reply)", Description: "Capture the replied-to message as the template", Access: owner, Handle: m.cmdImport},
		{Route: "clear template", Description: "Drop the captured template", Access: owner, Handle: m.cmdClearTemplate},
		{Route: "preview", Description: "Post the current payload into this chat", Access: owner, Handle: m.cmdPreview},
		{Route: "broadcast", Description: "Run one broadcast cycle now", Access: owner, Timeout: 5 * time.Minute, Handle: m.cmdBroadcast},
		{Route: "forward", Usage: "/forward (as a reply)", Description: "Forward the replied-to message to every recipient", Access: owner, Timeout: 5 * time.Minute, Handle: m.cmdForward},
		{Route: "mode", Usage: "/mode [copy|forward]", Description: "Show or set the delivery mode", Access: owner, Handle: m.cmdMode},
		{Route: "attach", Usage: "/attach [chat]", Description: "Add this (or the given) chat to the recipients", Access: owner, Handle: m.cmdAttach},
		{Route: "detach", Usage: "/detach [chat]", Description: "Remove this (or the given) chat from the recipients", Access: owner, Handle: m.cmdDetach},
		{Route: "attach buttons", Usage: "/attach_buttons (as a reply)", Description: "Put the stored buttons on the replied-to post", Access: owner, Handle: m.cmdAttachButtons},
		{Route: "detach buttons", Usage: "/detach_buttons (as a reply)", Description: "Strip the keyboard off the replied-to post", Access: owner, Handle: m.cmdDetachButtons},
		{Route: "recipients", Description: "List the recipients", Access: owner, Handle: m.cmdRecipients},
		{Route: "entities", Usage: "/entities [edit]", Description: "Dump the stored text and formatting as JSON", Access: owner, Handle: m.cmdEntities},
		{Route: "health", Description: "Show runtime health", Access: owner, Handle: m.cmdHealth},
	}
}

func (m *Menu) reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, nil, nil)
	return err
}

func (m *Menu) cmdMenu(ctx context.Context, req *router.Request) error {
	return m.sendMenu(ctx, req.Adapter, req.Chat)
}

func (m *Menu) cmdStatus(ctx context.Context, req *router.Request) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, renderText(m.store.Snapshot(), m.engine.Status()), nil, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	return err
}

func (m *Menu) cmdImport(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil || msg.ReplyTo == nil {
		return m.reply(ctx, req, "Reply to the message you want to capture, then send /import again.")
	}

	src := msg.ReplyTo
	tpl := settings.TemplateRef{ChatID: src.ChatID, MessageID: src.ID, HasKeyboard: src.HasKeyboard}
	// A forwarded source points back at its origin, so both delivery modes
	// work from the original post instead of the copy in this chat.
	if src.Origin != nil && src.Origin.ChatID != 0 && src.Origin.MessageID != 0 {
		tpl.ChatID = src.Origin.ChatID
		tpl.MessageID = src.Origin.MessageID
	}

	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Template = &tpl
		return nil
	}); err != nil {
		return err
	}

	m.log.Info("template captured",
		logx.Int64("chat_id", tpl.ChatID),
		logx.Int("message_id", tpl.MessageID),
		logx.Bool("has_keyboard", tpl.HasKeyboard))

	note := ""
	if tpl.HasKeyboard {
		note = " It already carries buttons, so the stored layout stays off it."
	}
	return m.reply(ctx, req, fmt.Sprintf("📌 Template captured (chat %d, message %d).%s", tpl.ChatID, tpl.MessageID, note))
}

func (m *Menu) cmdClearTemplate(ctx context.Context, req *router.Request) error {
	if !m.store.Snapshot().Template.Valid() {
		return m.reply(ctx, req, "No template is set.")
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Template = nil
		return nil
	}); err != nil {
		return err
	}
	return m.reply(ctx, req, "🧹 Template cleared. The stored text/photo payload is active again.")
}

func (m *Menu) cmdPreview(ctx context.Context, req *router.Request) error {
	if err := m.engine.Preview(ctx, req.Chat); err != nil {
		return m.reply(ctx, req, "⚠️ Preview failed: "+err.Error())
	}
	return nil
}

func (m *Menu) cmdBroadcast(ctx context.Context, req *router.Request) error {
	rep, err := m.engine.RunCycle(ctx, "manual")
	if errors.Is(err, poster.ErrCycleInFlight) {
		return m.reply(ctx, req, "⏳ A cycle is already running.")
	}
	if err != nil {
		return err
	}
	return m.reply(ctx, req, summarize(rep))
}

func (m *Menu) cmdForward(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil || msg.ReplyTo == nil {
		return m.reply(ctx, req, "Reply to the message you want to send out, then use /forward.")
	}
	// Forwarding the local copy keeps the original "forwarded from" header.
	src := kit.MessageRef{ChatID: msg.ReplyTo.ChatID, MessageID: msg.ReplyTo.ID}
	rep, err := m.engine.ForwardToAll(ctx, src)
	if errors.Is(err, poster.ErrCycleInFlight) {
		return m.reply(ctx, req, "⏳ A cycle is already running.")
	}
	if err != nil {
		return err
	}
	return m.reply(ctx, req, summarize(rep))
}

func (m *Menu) cmdMode(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		doc := m.store.Snapshot()
		return m.reply(ctx, req, fmt.Sprintf("Delivery mode is %s. Use /mode copy or /mode forward to change it.", doc.Mode))
	}
	want := settings.DeliveryMode(strings.ToLower(req.Args[0]))
	if want != settings.ModeCopy && want != settings.ModeForward {
		return m.reply(ctx, req, "Usage: /mode copy|forward")
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Mode = want
		return nil
	}); err != nil {
		return err
	}
	return m.reply(ctx, req, "✅ Delivery mode set to "+string(want)+".")
}

// targetChat resolves the optional chat argument. No argument means the
// current chat. RawArgs is used because negative chat IDs look like flags.
func (m *Menu) targetChat(ctx context.Context, req *router.Request) (int64, error) {
	if len(req.RawArgs) == 0 {
		return req.Chat.ChatID, nil
	}
	ref, err := settings.NormalizeChatRef(req.RawArgs[0])
	if err != nil {
		return 0, err
	}
	if ref.ID != 0 {
		return ref.ID, nil
	}
	return req.Adapter.ResolveChat(ctx, ref.Username)
}

func (m *Menu) cmdAttach(ctx context.Context, req *router.Request) error {
	id, err := m.targetChat(ctx, req)
	if err != nil {
		return m.reply(ctx, req, "⚠️ "+err.Error())
	}
	if m.store.Snapshot().HasRecipient(id) {
		return m.reply(ctx, req, fmt.Sprintf("Chat %d is already a recipient.", id))
	}
	doc, err := m.store.Mutate(func(s *settings.Settings) error {
		s.AddRecipient(id)
		return nil
	})
	if err != nil {
		return err
	}
	return m.reply(ctx, req, fmt.Sprintf("➕ Chat %d attached (%d recipients).", id, len(doc.Recipients)))
}

func (m *Menu) cmdDetach(ctx context.Context, req *router.Request) error {
	id, err := m.targetChat(ctx, req)
	if err != nil {
		return m.reply(ctx, req, "⚠️ "+err.Error())
	}
	if !m.store.Snapshot().HasRecipient(id) {
		return m.reply(ctx, req, fmt.Sprintf("Chat %d is not a recipient.", id))
	}
	doc, err := m.store.Mutate(func(s *settings.Settings) error {
		s.RemoveRecipient(id)
		return nil
	})
	if err != nil {
		return err
	}
	return m.reply(ctx, req, fmt.Sprintf("➖ Chat %d detached (%d recipients left).", id, len(doc.Recipients)))
}

func (m *Menu) cmdAttachButtons(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil || msg.ReplyTo == nil {
		return m.reply(ctx, req, "Reply to the post you want to put buttons on.")
	}
	doc := m.store.Snapshot()
	if doc.Buttons.Empty() {
		return m.reply(ctx, req, "No stored buttons. Set them through the menu first.")
	}
	ref := kit.MessageRef{ChatID: msg.ReplyTo.ChatID, MessageID: msg.ReplyTo.ID}
	if err := req.Adapter.EditReplyMarkup(ctx, ref, doc.Buttons); err != nil {
		return m.reply(ctx, req, "⚠️ Edit failed: "+err.Error())
	}
	m.flipTemplateKeyboard(ref, true)
	return m.reply(ctx, req, "✅ Buttons attached.")
}

func (m *Menu) cmdDetachButtons(ctx context.Context, req *router.Request) error {
	msg := req.Update.Message
	if msg == nil || msg.ReplyTo == nil {
		return m.reply(ctx, req, "Reply to the post you want to strip the keyboard from.")
	}
	ref := kit.MessageRef{ChatID: msg.ReplyTo.ChatID, MessageID: msg.ReplyTo.ID}
	if err := req.Adapter.EditReplyMarkup(ctx, ref, nil); err != nil {
		return m.reply(ctx, req, "⚠️ Edit failed: "+err.Error())
	}
	m.flipTemplateKeyboard(ref, false)
	return m.reply(ctx, req, "🧹 Keyboard removed.")
}

// flipTemplateKeyboard records a keyboard change when the edited message is
// the captured template, so later cycles do not double-attach buttons.
func (m *Menu) flipTemplateKeyboard(ref kit.MessageRef, has bool) {
	doc := m.store.Snapshot()
	if !doc.Template.Valid() || doc.Template.ChatID != ref.ChatID || doc.Template.MessageID != ref.MessageID {
		return
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		if s.Template.Valid() && s.Template.ChatID == ref.ChatID && s.Template.MessageID == ref.MessageID {
			s.Template.HasKeyboard = has
		}
		return nil
	}); err != nil {
		m.log.Warn("template keyboard flag update failed", logx.Err(err))
	}
}

func (m *Menu) cmdRecipients(ctx context.Context, req *router.Request) error {
	doc := m.store.Snapshot()
	if len(doc.Recipients) == 0 {
		return m.reply(ctx, req, "No recipients yet. Add chats with /attach or through the menu.")
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "👥 %d recipient(s):", len(doc.Recipients))
	for _, id := range doc.Recipients {
		fmt.Fprintf(b, "\n• %d", id)
	}
	return m.reply(ctx, req, tgui.TruncRunes(b.String(), 3900))
}

func (m *Menu) cmdEntities(ctx context.Context, req *router.Request) error {
	if len(req.Args) > 0 && strings.EqualFold(req.Args[0], "edit") {
		m.states.set(req.FromID, ModeAwaitSpansJSON, req.Chat.ChatID)
		return m.reply(ctx, req, "Send the spans JSON array. Send - to drop all formatting.")
	}

	doc := m.store.Snapshot()
	dump := struct {
		Text  string     `json:"text"`
		Spans []kit.Span `json:"spans,omitempty"`
	}{Text: doc.Text, Spans: doc.Spans}
	raw, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return err
	}
	_, err = tgui.New().
		Title("🧬", "Stored entities").
		Pre(tgui.TruncRunes(string(raw), 3500)).
		Build().
		Send(ctx, req.Adapter, req.Chat)
	return err
}

func (m *Menu) cmdHealth(ctx context.Context, req *router.Request) error {
	st := m.engine.Status()

	engine := "disabled"
	if st.State == "scheduled" {
		engine = "scheduled every " + formatInterval(st.IntervalSecs)
		if !st.NextFire.IsZero() {
			engine += ", next " + st.NextFire.Format("15:04:05")
		}
	}

	b := tgui.New().
		Title("🩺", "Health").
		KV("Uptime", time.Since(m.startedAt).Round(time.Second).String()).
		KV("Goroutines", fmt.Sprintf("%d", runtime.NumGoroutine())).
		KV("Engine", engine).
		KV("Cycles", fmt.Sprintf("%d (coalesced %d)", st.CyclesRun, st.Coalesced))

	if rep := st.LastCycle; rep != nil {
		if rep.Skipped != "" {
			b.KV("Last cycle", "skipped: "+rep.Skipped)
		} else {
			b.KV("Last cycle", fmt.Sprintf("sent %d / failed %d at %s", rep.Sent, rep.Failed, rep.StartedAt.Format("15:04:05")))
		}
	}

	if req.Services != nil && req.Services.Notifier != nil {
		if q, ok := req.Services.Notifier.(interface{ QueueDepth() int }); ok {
			b.KV("Notify queue", fmt.Sprintf("%d pending", q.QueueDepth()))
		}
	}

	if req.Services != nil && req.Services.RuntimeSupervisors != nil {
		sups := req.Services.RuntimeSupervisors.Snapshot()
		if len(sups) > 0 {
			names := make([]string, 0, len(sups))
			for name := range sups {
				names = append(names, name)
			}
			sort.Strings(names)
			b.Section("Supervisors")
			for _, name := range names {
				sup := sups[name]
				if sup == nil {
					continue
				}
				c := sup.Counters()
				b.KV(name, fmt.Sprintf("active %d, started %d", c.Active, c.Started))
			}
		}
	}

	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}
