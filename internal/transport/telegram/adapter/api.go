package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// Raw Bot API calls for the few endpoints telebot does not cover well.

func (a *Adapter) callAPI(ctx context.Context, method string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := "https://api.telegram.org/bot" + strings.TrimSpace(a.cfg.Token) + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := a.http
	if client == nil {
		client = &http.Client{Timeout: 8 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram %s failed: %s (code=%d http=%d)", method, out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram %s failed: http=%d", method, resp.StatusCode)
	}
	return nil
}

// UpdateMenuCommands updates Telegram's global /menu command list (setMyCommands).
// Best-effort: it only performs a network call when the command list changes.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	sum := h.Sum64()
	if sum == a.menuHash {
		return nil
	}

	type cmd struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	payload := struct {
		Commands []cmd `json:"commands"`
	}{Commands: make([]cmd, 0, len(cmds))}

	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > 256 {
			d = d[:256]
		}
		payload.Commands = append(payload.Commands, cmd{Command: c.Command, Description: d})
		if len(payload.Commands) >= 100 {
			break
		}
	}

	if err := a.callAPI(ctx, "setMyCommands", payload); err != nil {
		return err
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}

// AnswerInlineQuery answers an inline query with article results. It goes
// through the raw API because telebot's inline content types cannot carry
// formatting entities.
func (a *Adapter) AnswerInlineQuery(ctx context.Context, queryID string, results []kit.InlineResult) error {
	type inlineButton struct {
		Text string `json:"text"`
		URL  string `json:"url"`
	}
	type inlineMarkup struct {
		InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
	}
	type inlineContent struct {
		MessageText string     `json:"message_text"`
		Entities    []kit.Span `json:"entities,omitempty"`
	}
	type article struct {
		Type        string        `json:"type"`
		ID          string        `json:"id"`
		Title       string        `json:"title"`
		Content     inlineContent `json:"input_message_content"`
		ReplyMarkup *inlineMarkup `json:"reply_markup,omitempty"`
	}

	arts := make([]article, 0, len(results))
	for _, r := range results {
		art := article{
			Type:    "article",
			ID:      r.ID,
			Title:   r.Title,
			Content: inlineContent{MessageText: r.Text, Entities: r.Spans},
		}
		if !r.Buttons.Empty() {
			m := &inlineMarkup{}
			for _, row := range r.Buttons {
				if len(row) == 0 {
					continue
				}
				btns := make([]inlineButton, 0, len(row))
				for _, b := range row {
					btns = append(btns, inlineButton{Text: b.Label, URL: b.URL})
				}
				m.InlineKeyboard = append(m.InlineKeyboard, btns)
			}
			art.ReplyMarkup = m
		}
		arts = append(arts, art)
	}

	payload := struct {
		InlineQueryID string    `json:"inline_query_id"`
		Results       []article `json:"results"`
		CacheTime     int       `json:"cache_time"`
		IsPersonal    bool      `json:"is_personal"`
	}{
		InlineQueryID: queryID,
		Results:       arts,
		CacheTime:     0,
		IsPersonal:    true,
	}

	return a.callAPI(ctx, "answerInlineQuery", payload)
}
