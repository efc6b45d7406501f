package adapter

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

const telegramTextLimit = 4000

func (a *Adapter) buildSendOptions(to kit.ChatTarget, opt *kit.SendOptions, spans []kit.Span) *tele.SendOptions {
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	if len(spans) > 0 {
		sendOpt.Entities = spansToEntities(spans)
	}
	if opt.ReplyMarkupAdapter != nil {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			sendOpt.ReplyMarkup = rm
		}
	} else if rm := markupFromLayout(opt.Buttons); rm != nil {
		sendOpt.ReplyMarkup = rm
	}
	if opt.ReplyTo != 0 {
		sendOpt.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: &tele.Chat{ID: to.ChatID}}
	}
	return sendOpt
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	// Spans address offsets in the original text; chunking would shift them.
	// Span-carrying payloads are length-checked upstream, so send as-is.
	chunks := []string{text}
	if len(spans) == 0 {
		chunks = splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	}
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := a.wait(ctx); err != nil {
			if first.ChatID != 0 {
				return first, err
			}
			return kit.MessageRef{}, err
		}

		sendOpt := a.buildSendOptions(to, opt, spans)

		// Attach markup only to the first message.
		if i != 0 {
			sendOpt.ReplyMarkup = nil
			sendOpt.ReplyTo = nil
		}

		msg, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			err = classify(err)
			if first.ChatID != 0 {
				return first, err
			}
			return kit.MessageRef{}, err
		}

		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}

	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, photoID string, caption string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}

	photo := &tele.Photo{File: tele.File{FileID: photoID}, Caption: caption}
	sendOpt := a.buildSendOptions(to, opt, spans)

	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, sendOpt)
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) CopyMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}

	stored := tele.StoredMessage{MessageID: strconv.Itoa(src.MessageID), ChatID: src.ChatID}
	sendOpt := a.buildSendOptions(to, opt, nil)

	msg, err := a.bot.Copy(&tele.Chat{ID: to.ChatID}, stored, sendOpt)
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) ForwardMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef) (kit.MessageRef, error) {
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}

	stored := tele.StoredMessage{MessageID: strconv.Itoa(src.MessageID), ChatID: src.ChatID}
	sendOpt := &tele.SendOptions{ThreadID: to.ThreadID}

	msg, err := a.bot.Forward(&tele.Chat{ID: to.ChatID}, stored, sendOpt)
	if err != nil {
		return kit.MessageRef{}, classify(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}

	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	if err := a.wait(ctx); err != nil {
		return err
	}

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	sendOpt := &tele.SendOptions{ParseMode: opt.ParseMode, DisableWebPagePreview: opt.DisablePreview}
	if opt.ReplyMarkupAdapter != nil {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			sendOpt.ReplyMarkup = rm
		}
	} else if rm := markupFromLayout(opt.Buttons); rm != nil {
		sendOpt.ReplyMarkup = rm
	}

	if _, err := a.bot.Edit(m, chunks[0], sendOpt); err != nil {
		return err
	}

	// If the text is too long to fit in a single edited message, send the remaining parts as new messages.
	if len(chunks) > 1 {
		to := kit.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}
		chat := &tele.Chat{ID: to.ChatID}
		for _, chunk := range chunks[1:] {
			if err := a.wait(ctx); err != nil {
				return err
			}
			sendOpt2 := &tele.SendOptions{
				ParseMode:             opt.ParseMode,
				DisableWebPagePreview: opt.DisablePreview,
				ThreadID:              to.ThreadID,
			}
			if _, e := a.bot.Send(chat, chunk, sendOpt2); e != nil {
				return e
			}
		}
	}

	return nil
}

func (a *Adapter) EditReplyMarkup(ctx context.Context, ref kit.MessageRef, layout kit.ButtonLayout) error {
	if err := a.wait(ctx); err != nil {
		return err
	}

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	rm := markupFromLayout(layout)
	if rm == nil {
		// telebot sends an empty keyboard, which Telegram treats as removal.
		rm = &tele.ReplyMarkup{}
	}

	if _, err := a.bot.EditReplyMarkup(m, rm); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if err := a.bot.Delete(m); err != nil {
		return classify(err)
	}
	return nil
}

func (a *Adapter) ResolveChat(ctx context.Context, username string) (int64, error) {
	if err := a.wait(ctx); err != nil {
		return 0, err
	}
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}
	chat, err := a.bot.ChatByUsername(username)
	if err != nil {
		return 0, classify(err)
	}
	return chat.ID, nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// splitTelegramText splits long messages into chunks that are safe to send to Telegram.
// It prefers newline boundaries and (best-effort) avoids splitting inside HTML tags when ParseMode is HTML.
func splitTelegramText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = telegramTextLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		// Prefer splitting on a newline near the end of the window.
		if end < len(rs) {
			cut := -1
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' {
					// Avoid extremely small chunks.
					if i-start >= limit/3 {
						cut = i + 1
						break
					}
				}
			}
			if cut != -1 {
				end = cut
			}
		}

		// Best-effort: don't split inside a tag for HTML parse mode.
		if strings.EqualFold(parseMode, "HTML") && end < len(rs) {
			lastOpen := -1
			lastClose := -1
			for i := start; i < end; i++ {
				if rs[i] == '<' {
					lastOpen = i
				} else if rs[i] == '>' {
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				// Move end to the start of the dangling tag.
				end = lastOpen
				if end <= start {
					end = start + limit
					if end > len(rs) {
						end = len(rs)
					}
				}
			}
		}

		chunk := string(rs[start:end])
		chunk = strings.TrimRight(chunk, "\n")
		out = append(out, chunk)

		start = end
		// Skip leading newlines to avoid empty chunks.
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
