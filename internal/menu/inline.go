package menu

import (
	"context"
	"strings"

	"github.com/google/uuid"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// InlineHandler answers inline queries with a single article that posts
// the stored message. Only owners get the result; everyone else receives
// an empty answer so the bot reveals nothing about its payload. Template
// captures cannot be posted inline, so the article always carries the
// stored text payload.
func (m *Menu) InlineHandler(ad kit.Adapter, enabled func() bool, owners func() []int64) func(ctx context.Context, q *kit.InlineQuery) {
	return func(ctx context.Context, q *kit.InlineQuery) {
		if q == nil || !enabled() {
			return
		}
		if !containsID(owners(), q.FromID) {
			_ = ad.AnswerInlineQuery(ctx, q.ID, nil)
			return
		}

		doc := m.store.Snapshot()
		if strings.TrimSpace(doc.Text) == "" {
			_ = ad.AnswerInlineQuery(ctx, q.ID, nil)
			return
		}

		res := kit.InlineResult{
			ID:      uuid.NewString(),
			Title:   "Post the stored message",
			Text:    doc.Text,
			Spans:   doc.Spans,
			Buttons: doc.Buttons,
		}
		if err := ad.AnswerInlineQuery(ctx, q.ID, []kit.InlineResult{res}); err != nil {
			m.log.Debug("inline answer failed",
				logx.Int64("from_id", q.FromID), logx.Err(err))
		}
	}
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
