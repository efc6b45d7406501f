package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	"github.com/amirpoya/Telegram-auto/internal/transport/telegram/router"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// InputHandler returns the handler the router feeds owners' non-command
// messages into. A message is consumed only when its author has an armed
// prompt in the same chat; everything else passes through untouched.
//
// A failed parse keeps the prompt armed so the owner can just try again.
func (m *Menu) InputHandler() router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		msg := req.Update.Message
		if msg == nil {
			return nil
		}
		st, ok := m.states.get(req.FromID)
		if !ok || st.ChatID != msg.ChatID {
			return nil
		}

		m.log.Debug("prompt input", logx.String("mode", st.Mode.String()), logx.Int64("owner", req.FromID))

		switch st.Mode {
		case ModeAwaitInterval:
			return m.inputInterval(ctx, req, msg)
		case ModeAwaitMessage:
			return m.inputMessage(ctx, req, msg)
		case ModeAwaitPhoto:
			return m.inputPhoto(ctx, req, msg)
		case ModeAwaitButtons:
			return m.inputButtons(ctx, req, msg)
		case ModeAwaitRecipients:
			return m.inputRecipients(ctx, req, msg)
		case ModeAwaitSpansJSON:
			return m.inputSpans(ctx, req, msg)
		}
		return nil
	}
}

// done clears the prompt, confirms, and posts a fresh menu.
func (m *Menu) done(ctx context.Context, req *router.Request, confirmation string) error {
	m.states.clear(req.FromID)
	if err := m.reply(ctx, req, confirmation); err != nil {
		return err
	}
	return m.sendMenu(ctx, req.Adapter, req.Chat)
}

func (m *Menu) inputInterval(ctx context.Context, req *router.Request, msg *kit.Message) error {
	secs, err := settings.ParseInterval(msg.Text)
	if err != nil {
		return m.reply(ctx, req, "⚠️ "+err.Error())
	}
	if secs < settings.MinIntervalSeconds {
		return m.reply(ctx, req, fmt.Sprintf("⚠️ Minimum interval is %ds.", settings.MinIntervalSeconds))
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.IntervalSeconds = secs
		return nil
	}); err != nil {
		return err
	}
	return m.done(ctx, req, "✅ Interval set to "+formatInterval(secs)+".")
}

func (m *Menu) inputMessage(ctx context.Context, req *router.Request, msg *kit.Message) error {
	if msg.PhotoID != "" || strings.TrimSpace(msg.Text) == "" {
		return m.reply(ctx, req, "Send plain text for the message. Use the photo prompt for images.")
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Text = msg.Text
		s.Spans = msg.Spans
		return nil
	}); err != nil {
		return err
	}
	return m.done(ctx, req, "✅ Message updated.")
}

func (m *Menu) inputPhoto(ctx context.Context, req *router.Request, msg *kit.Message) error {
	if msg.PhotoID == "" {
		if strings.TrimSpace(msg.Text) == "-" {
			if _, err := m.store.Mutate(func(s *settings.Settings) error {
				s.PhotoID = ""
				return nil
			}); err != nil {
				return err
			}
			return m.done(ctx, req, "🧹 Photo removed.")
		}
		return m.reply(ctx, req, "Send a photo, or - to remove the current one.")
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.PhotoID = msg.PhotoID
		// A caption replaces the stored text; a bare photo keeps it.
		if strings.TrimSpace(msg.Text) != "" {
			s.Text = msg.Text
			s.Spans = msg.Spans
		}
		return nil
	}); err != nil {
		return err
	}
	return m.done(ctx, req, "✅ Photo updated.")
}

func (m *Menu) inputButtons(ctx context.Context, req *router.Request, msg *kit.Message) error {
	raw := strings.TrimSpace(msg.Text)
	if raw == "-" {
		if _, err := m.store.Mutate(func(s *settings.Settings) error {
			s.Buttons = nil
			return nil
		}); err != nil {
			return err
		}
		return m.done(ctx, req, "🧹 Buttons removed.")
	}
	layout, err := settings.ParseButtons(raw)
	if err != nil {
		return m.reply(ctx, req, "⚠️ "+err.Error())
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Buttons = layout
		return nil
	}); err != nil {
		return err
	}
	n := 0
	for _, row := range layout {
		n += len(row)
	}
	return m.done(ctx, req, fmt.Sprintf("✅ Stored %d button(s) in %d row(s).", n, len(layout)))
}

func (m *Menu) inputRecipients(ctx context.Context, req *router.Request, msg *kit.Message) error {
	type change struct {
		id     int64
		remove bool
	}
	var (
		changes []change
		errs    []string
	)
	for _, line := range strings.Split(msg.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// "- <ref>" removes; a bare "-100..." id is an addition.
		remove := false
		if strings.HasPrefix(line, "- ") {
			remove = true
			line = strings.TrimSpace(strings.TrimPrefix(line, "- "))
		}
		ref, err := settings.NormalizeChatRef(line)
		if err != nil {
			errs = append(errs, line+": "+err.Error())
			continue
		}
		id := ref.ID
		if id == 0 {
			id, err = req.Adapter.ResolveChat(ctx, ref.Username)
			if err != nil {
				errs = append(errs, line+": "+err.Error())
				continue
			}
		}
		changes = append(changes, change{id: id, remove: remove})
	}

	if len(changes) == 0 && len(errs) == 0 {
		return m.reply(ctx, req, "Send at least one chat ID, @username or t.me link.")
	}

	added, removed := 0, 0
	if len(changes) > 0 {
		if _, err := m.store.Mutate(func(s *settings.Settings) error {
			for _, c := range changes {
				switch {
				case c.remove && s.RemoveRecipient(c.id):
					removed++
				case !c.remove && s.AddRecipient(c.id):
					added++
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}

	b := &strings.Builder{}
	fmt.Fprintf(b, "➕ %d added, ➖ %d removed.", added, removed)
	for _, e := range errs {
		b.WriteString("\n⚠️ " + e)
	}
	if len(changes) == 0 {
		// Nothing applied: keep the prompt armed for a corrected list.
		return m.reply(ctx, req, b.String())
	}
	return m.done(ctx, req, b.String())
}

func (m *Menu) inputSpans(ctx context.Context, req *router.Request, msg *kit.Message) error {
	raw := strings.TrimSpace(msg.Text)
	if raw == "-" {
		if _, err := m.store.Mutate(func(s *settings.Settings) error {
			s.Spans = nil
			return nil
		}); err != nil {
			return err
		}
		return m.done(ctx, req, "🧹 Formatting dropped.")
	}
	spans, err := settings.ParseSpans(raw)
	if err != nil {
		return m.reply(ctx, req, "⚠️ "+err.Error())
	}
	if _, err := m.store.Mutate(func(s *settings.Settings) error {
		s.Spans = spans
		return nil
	}); err != nil {
		return err
	}
	return m.done(ctx, req, fmt.Sprintf("✅ Stored %d span(s).", len(spans)))
}
