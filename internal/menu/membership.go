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

// MembershipHandler keeps the recipient set in sync with the bot's own
// membership: being added to a group attaches the chat, losing access
// detaches it. Both paths run through the settings store like any owner
// edit, so they persist and show up in the menu immediately.
func (m *Menu) MembershipHandler(np router.NotifierPort, owners func() []int64) func(ctx context.Context, mb *kit.Membership) {
	return func(ctx context.Context, mb *kit.Membership) {
		if mb == nil || mb.ChatID == 0 {
			return
		}
		switch {
		case joinedStatus(mb.NewStatus) && mb.IsGroup:
			if m.store.Snapshot().HasRecipient(mb.ChatID) {
				return
			}
			doc, err := m.store.Mutate(func(s *settings.Settings) error {
				s.AddRecipient(mb.ChatID)
				return nil
			})
			if err != nil {
				m.log.Warn("recipient auto-attach failed",
					logx.Int64("chat_id", mb.ChatID), logx.Err(err))
				return
			}
			m.log.Info("recipient attached on join",
				logx.Int64("chat_id", mb.ChatID),
				logx.String("title", mb.ChatTitle),
				logx.Int("recipients", len(doc.Recipients)))
			m.tellOwners(ctx, np, owners(),
				fmt.Sprintf("➕ Joined %s (%d), added to the recipients (%d total).",
					chatName(mb), mb.ChatID, len(doc.Recipients)))

		case goneStatus(mb.NewStatus):
			if !m.store.Snapshot().HasRecipient(mb.ChatID) {
				return
			}
			doc, err := m.store.Mutate(func(s *settings.Settings) error {
				s.RemoveRecipient(mb.ChatID)
				return nil
			})
			if err != nil {
				m.log.Warn("recipient auto-detach failed",
					logx.Int64("chat_id", mb.ChatID), logx.Err(err))
				return
			}
			m.log.Info("recipient detached on leave",
				logx.Int64("chat_id", mb.ChatID),
				logx.String("title", mb.ChatTitle),
				logx.String("status", mb.NewStatus),
				logx.Int("recipients", len(doc.Recipients)))
			m.tellOwners(ctx, np, owners(),
				fmt.Sprintf("➖ Removed from %s (%d), dropped from the recipients (%d left).",
					chatName(mb), mb.ChatID, len(doc.Recipients)))
		}
	}
}

func (m *Menu) tellOwners(ctx context.Context, np router.NotifierPort, owners []int64, text string) {
	if np == nil {
		return
	}
	for _, id := range owners {
		err := np.Notify(ctx, kit.Notification{
			Channel:  "telegram",
			Priority: 5,
			Target:   kit.ChatTarget{ChatID: id},
			Text:     text,
		})
		if err != nil {
			m.log.Debug("membership notice rejected",
				logx.Int64("owner", id), logx.Err(err))
		}
	}
}

func chatName(mb *kit.Membership) string {
	name := strings.TrimSpace(mb.ChatTitle)
	if name == "" {
		return "a chat"
	}
	return name
}

// joinedStatus covers every status that lets the bot post. Restricted
// membership is excluded: sends would fail and pollute cycle reports.
func joinedStatus(s string) bool {
	switch s {
	case "member", "administrator", "creator":
		return true
	}
	return false
}

func goneStatus(s string) bool {
	return s == "left" || s == "kicked"
}
