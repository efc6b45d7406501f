package adapter

import (
	tele "gopkg.in/telebot.v4"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	onMessage := func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: messageToKit(m)})
		return nil
	}
	a.bot.Handle(tele.OnText, onMessage)
	a.bot.Handle(tele.OnPhoto, onMessage)
	// Catch-all for media kinds without a dedicated handler, so owners can
	// capture any forwarded message as a template.
	a.bot.Handle(tele.OnMedia, onMessage)

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		up := kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		}
		a.sendUpdate(up)
		return nil
	})

	a.bot.Handle(tele.OnMyChatMember, func(c tele.Context) error {
		cu := c.ChatMember()
		if cu == nil || cu.Chat == nil || cu.NewChatMember == nil {
			return nil
		}
		up := kit.Update{
			Kind: kit.UpdateMembership,
			Membership: &kit.Membership{
				ChatID:    cu.Chat.ID,
				ChatTitle: cu.Chat.Title,
				IsGroup:   isGroupChat(cu.Chat),
				NewStatus: string(cu.NewChatMember.Role),
			},
		}
		if cu.OldChatMember != nil {
			up.Membership.OldStatus = string(cu.OldChatMember.Role)
		}
		a.sendUpdate(up)
		return nil
	})

	a.bot.Handle(tele.OnQuery, func(c tele.Context) error {
		q := c.Query()
		if q == nil || q.Sender == nil {
			return nil
		}
		up := kit.Update{
			Kind: kit.UpdateInlineQuery,
			InlineQuery: &kit.InlineQuery{
				ID:     q.ID,
				FromID: q.Sender.ID,
				Query:  q.Text,
			},
		}
		a.sendUpdate(up)
		return nil
	})
}

func messageToKit(m *tele.Message) *kit.Message {
	if m == nil {
		return nil
	}
	km := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		IsGroup:  isGroupChat(m.Chat),
	}
	if m.Sender != nil {
		km.FromID = m.Sender.ID
		km.FromUsername = m.Sender.Username
	}
	if m.Photo != nil {
		km.PhotoID = m.Photo.FileID
		km.Text = m.Caption
		km.Spans = entitiesToSpans(m.CaptionEntities)
	} else {
		km.Text = m.Text
		km.Spans = entitiesToSpans(m.Entities)
	}
	if m.ReplyMarkup != nil && len(m.ReplyMarkup.InlineKeyboard) > 0 {
		km.HasKeyboard = true
	}
	if m.ReplyTo != nil {
		km.ReplyTo = messageToKit(m.ReplyTo)
	}
	// Only channel/group origins are usable for re-forwarding; origins
	// hidden by privacy settings carry no chat reference.
	if m.Origin != nil && m.Origin.Chat != nil && m.Origin.MessageID != 0 {
		km.Origin = &kit.MessageRef{ChatID: m.Origin.Chat.ID, MessageID: m.Origin.MessageID}
	}
	return km
}

func isGroupChat(c *tele.Chat) bool {
	if c == nil {
		return false
	}
	return c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup || c.Type == tele.ChatChannel
}

func entitiesToSpans(ents tele.Entities) []kit.Span {
	if len(ents) == 0 {
		return nil
	}
	spans := make([]kit.Span, 0, len(ents))
	for _, e := range ents {
		spans = append(spans, kit.Span{
			Type:          string(e.Type),
			Offset:        e.Offset,
			Length:        e.Length,
			URL:           e.URL,
			Language:      e.Language,
			CustomEmojiID: e.CustomEmoji,
		})
	}
	return spans
}

func spansToEntities(spans []kit.Span) tele.Entities {
	if len(spans) == 0 {
		return nil
	}
	ents := make(tele.Entities, 0, len(spans))
	for _, s := range spans {
		ents = append(ents, tele.MessageEntity{
			Type:        tele.EntityType(s.Type),
			Offset:      s.Offset,
			Length:      s.Length,
			URL:         s.URL,
			Language:    s.Language,
			CustomEmoji: s.CustomEmojiID,
		})
	}
	return ents
}

func markupFromLayout(l kit.ButtonLayout) *tele.ReplyMarkup {
	if l.Empty() {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(l))
	for _, r := range l {
		if len(r) == 0 {
			continue
		}
		row := make([]tele.InlineButton, 0, len(r))
		for _, b := range r {
			row = append(row, tele.InlineButton{Text: b.Label, URL: b.URL})
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
