package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

// ParseInterval parses owner interval input into seconds. Accepted forms:
// bare seconds ("900"), minutes ("15m"), hours ("2h"), days ("1d").
// Fractional prefixes are allowed ("1.5h"). The minimum cadence is enforced
// by the caller, not here.
func ParseInterval(raw string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return 0, errors.New("invalid interval (examples: 900 | 15m | 2h | 1d)")
	}

	mult := 0
	switch s[len(s)-1] {
	case 'm':
		mult = 60
	case 'h':
		mult = 3600
	case 'd':
		mult = 86400
	}
	if mult != 0 {
		f, err := strconv.ParseFloat(strings.TrimSpace(s[:len(s)-1]), 64)
		if err != nil || f <= 0 {
			return 0, errors.New("invalid interval (examples: 900 | 15m | 2h | 1d)")
		}
		return int(f * float64(mult)), nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid interval (examples: 900 | 15m | 2h | 1d)")
	}
	return n, nil
}

// ChatRef is a parsed recipient reference: either a numeric chat ID or a
// public username that still needs resolution through the API.
type ChatRef struct {
	ID       int64
	Username string
}

var numericChatRe = regexp.MustCompile(`^-?\d{6,}$`)

// NormalizeChatRef parses one owner-entered recipient reference. Accepted
// forms: numeric chat IDs, @username, t.me/username, and t.me/c/<internal>
// links (normalized to -100<internal>). Private invite links (t.me/+hash)
// cannot be resolved by a bot and are rejected.
func NormalizeChatRef(raw string) (ChatRef, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatRef{}, errors.New("empty chat reference")
	}

	if numericChatRe.MatchString(s) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return ChatRef{}, fmt.Errorf("bad chat id %q", s)
		}
		return ChatRef{ID: id}, nil
	}

	if strings.HasPrefix(s, "@") {
		name := strings.TrimPrefix(s, "@")
		if name == "" {
			return ChatRef{}, errors.New("empty username")
		}
		return ChatRef{Username: name}, nil
	}

	if strings.HasPrefix(s, "t.me/") {
		s = "https://" + s
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err != nil {
			return ChatRef{}, fmt.Errorf("bad link %q", raw)
		}
		if !strings.EqualFold(u.Host, "t.me") {
			return ChatRef{}, errors.New("only t.me links are supported")
		}
		parts := splitPath(u.Path)
		if len(parts) == 0 {
			return ChatRef{}, errors.New("bad t.me link")
		}
		if parts[0] == "c" {
			if len(parts) < 2 {
				return ChatRef{}, errors.New("bad t.me/c link")
			}
			internal, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil || internal <= 0 {
				return ChatRef{}, errors.New("bad t.me/c link")
			}
			id, err := strconv.ParseInt("-100"+parts[1], 10, 64)
			if err != nil {
				return ChatRef{}, errors.New("bad t.me/c link")
			}
			return ChatRef{ID: id}, nil
		}
		if strings.HasPrefix(parts[0], "+") {
			return ChatRef{}, errors.New("private invite links (+) can't be resolved by a bot")
		}
		return ChatRef{Username: parts[0]}, nil
	}

	// bare public name
	return ChatRef{Username: s}, nil
}

func splitPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	buttonSplitRe = regexp.MustCompile(`\s*(?:\||->|—>|—|-|→|:)\s+`)
	urlSchemeRe   = regexp.MustCompile(`(?i)^(?:https?://|tg://|mailto:|ftp://|\w+://)`)
)

// NormalizeURL repairs common owner shorthand: @user becomes a t.me link,
// bare t.me/ paths get a scheme, and anything without a scheme defaults
// to https.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return u
	}
	if strings.HasPrefix(u, "@") {
		return "https://t.me/" + u[1:]
	}
	if strings.HasPrefix(u, "t.me/") {
		return "https://" + u
	}
	if urlSchemeRe.MatchString(u) {
		return u
	}
	return "https://" + u
}

// ParseButtons parses owner button input. Two forms are accepted:
//
// JSON, a list of ["Label", "url"] pairs (one button per row) or a list of
// rows of pairs:
//
//	[["Open","https://a.com"], [["Docs","b.com"],["Chat","@user"]]]
//
// Plain lines, one button per line (its own row), label and url separated
// by "|", "-", "->", "→", ":" or similar. The separator must be followed
// by whitespace so URLs containing those characters survive. A line that is
// just a URL becomes a button labeled with the URL. Lines starting with #
// are skipped. Multi-button rows need the JSON form.
func ParseButtons(raw string) (kit.ButtonLayout, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty button definition")
	}

	if layout, ok := parseButtonsJSON(raw); ok {
		return layout, nil
	}

	var layout kit.ButtonLayout
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		toks := buttonSplitRe.Split(line, 2)
		var label, target string
		if len(toks) == 1 {
			target = NormalizeURL(toks[0])
			label = strings.TrimPrefix(strings.TrimPrefix(target, "https://"), "http://")
		} else {
			label = strings.TrimSpace(toks[0])
			target = NormalizeURL(toks[1])
		}
		if label == "" || target == "" {
			continue
		}
		layout = append(layout, kit.Row{{Label: label, URL: target}})
	}
	if len(layout) == 0 {
		return nil, errors.New("couldn't parse buttons (example: Open - example.com)")
	}
	return layout, nil
}

func parseButtonsJSON(raw string) (kit.ButtonLayout, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false
	}

	layout := make(kit.ButtonLayout, 0, len(items))
	for _, item := range items {
		var pair []string
		if err := json.Unmarshal(item, &pair); err == nil {
			if len(pair) == 2 && pair[0] != "" && pair[1] != "" {
				layout = append(layout, kit.Row{{Label: pair[0], URL: NormalizeURL(pair[1])}})
			}
			continue
		}
		var rowPairs [][]string
		if err := json.Unmarshal(item, &rowPairs); err == nil {
			var row kit.Row
			for _, p := range rowPairs {
				if len(p) == 2 && p[0] != "" && p[1] != "" {
					row = append(row, kit.Button{Label: p[0], URL: NormalizeURL(p[1])})
				}
			}
			if len(row) > 0 {
				layout = append(layout, row)
			}
		}
	}
	if len(layout) == 0 {
		return nil, false
	}
	return layout, true
}

// ParseSpans decodes a JSON list of formatting spans in the Telegram entity
// shape: {"type","offset","length","url","language","custom_emoji_id"}.
func ParseSpans(raw string) ([]kit.Span, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty span list")
	}
	var spans []kit.Span
	if err := json.Unmarshal([]byte(raw), &spans); err != nil {
		return nil, fmt.Errorf("spans must be a JSON list of entity objects: %w", err)
	}
	for i, sp := range spans {
		if sp.Type == "" {
			return nil, fmt.Errorf("span %d: missing type", i)
		}
		if sp.Length <= 0 || sp.Offset < 0 {
			return nil, fmt.Errorf("span %d: bad offset/length", i)
		}
	}
	return spans, nil
}
