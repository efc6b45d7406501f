// Package settings persists the broadcast configuration: the payload
// (inline text, spans, photo, buttons, or a captured template reference),
// the recipient set, the cadence, the enabled flag, and the delivery mode.
// Everything lives in one JSON document rewritten wholesale through a
// serialized mutation entry point; readers get committed snapshots that
// must be treated as immutable.
package settings

import (
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
)

type DeliveryMode string

const (
	ModeCopy    DeliveryMode = "copy"
	ModeForward DeliveryMode = "forward"
)

const (
	// MinIntervalSeconds is the floor for the broadcast cadence. Shorter
	// intervals hammer the API for no practical gain.
	MinIntervalSeconds = 60

	DefaultIntervalSeconds = 900
)

// DefaultText seeds a fresh settings document so /preview works before
// the owner has configured anything.
const DefaultText = "Hello! Scheduled message 🌟"

// TemplateRef points at a captured source message that is re-emitted each
// cycle by copy or forward. HasKeyboard records, at capture time, whether
// the origin message already carries its own inline keyboard; when it does
// the engine never attaches the stored button layout on top of it.
type TemplateRef struct {
	ChatID      int64 `json:"chat_id"`
	MessageID   int   `json:"message_id"`
	HasKeyboard bool  `json:"has_keyboard,omitempty"`
}

func (t *TemplateRef) Valid() bool {
	return t != nil && t.ChatID != 0 && t.MessageID != 0
}

// Settings is the persisted broadcast document. Loosely versioned: missing
// fields default on load, unknown fields are dropped on the next write.
type Settings struct {
	Enabled         bool         `json:"enabled"`
	IntervalSeconds int          `json:"interval_seconds"`
	Mode            DeliveryMode `json:"mode"`

	Text    string           `json:"text"`
	Spans   []kit.Span       `json:"spans,omitempty"`
	PhotoID string           `json:"photo_id,omitempty"`
	Buttons kit.ButtonLayout `json:"buttons,omitempty"`

	Template *TemplateRef `json:"template,omitempty"`

	Recipients []int64 `json:"recipients"`
}

func Defaults() *Settings {
	return &Settings{
		Enabled:         false,
		IntervalSeconds: DefaultIntervalSeconds,
		Mode:            ModeCopy,
		Text:            DefaultText,
		Recipients:      []int64{},
	}
}

// Clone returns a deep copy safe to mutate.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return Defaults()
	}
	out := *s
	if s.Spans != nil {
		out.Spans = append([]kit.Span(nil), s.Spans...)
	}
	if s.Buttons != nil {
		out.Buttons = make(kit.ButtonLayout, 0, len(s.Buttons))
		for _, row := range s.Buttons {
			out.Buttons = append(out.Buttons, append(kit.Row(nil), row...))
		}
	}
	if s.Template != nil {
		tpl := *s.Template
		out.Template = &tpl
	}
	out.Recipients = append([]int64(nil), s.Recipients...)
	return &out
}

// sanitize repairs a document loaded from disk or returned by a mutation:
// clamps the interval, drops an unusable template reference, normalizes the
// delivery mode, and dedupes recipients preserving first-seen order.
func (s *Settings) sanitize() {
	if s.IntervalSeconds < MinIntervalSeconds {
		s.IntervalSeconds = MinIntervalSeconds
	}
	if s.Mode != ModeForward {
		s.Mode = ModeCopy
	}
	if s.Template != nil && !s.Template.Valid() {
		s.Template = nil
	}
	if s.Recipients == nil {
		s.Recipients = []int64{}
	} else {
		s.Recipients = dedupeIDs(s.Recipients)
	}

	spans := s.Spans[:0]
	for _, sp := range s.Spans {
		if sp.Type == "" || sp.Length <= 0 || sp.Offset < 0 {
			continue
		}
		spans = append(spans, sp)
	}
	s.Spans = spans

	rows := s.Buttons[:0]
	for _, row := range s.Buttons {
		keep := row[:0]
		for _, b := range row {
			if b.Label == "" || b.URL == "" {
				continue
			}
			keep = append(keep, b)
		}
		if len(keep) > 0 {
			rows = append(rows, keep)
		}
	}
	if len(rows) == 0 {
		s.Buttons = nil
	} else {
		s.Buttons = rows
	}
}

// HasPayload reports whether a broadcast cycle would have anything to send.
func (s *Settings) HasPayload() bool {
	if s == nil {
		return false
	}
	return s.Template.Valid() || s.Text != "" || s.PhotoID != ""
}

func (s *Settings) HasRecipient(id int64) bool {
	for _, r := range s.Recipients {
		if r == id {
			return true
		}
	}
	return false
}

// AddRecipient appends id unless present. Reports whether the set changed.
func (s *Settings) AddRecipient(id int64) bool {
	if id == 0 || s.HasRecipient(id) {
		return false
	}
	s.Recipients = append(s.Recipients, id)
	return true
}

// RemoveRecipient deletes id preserving the order of the remainder.
// Reports whether the set changed.
func (s *Settings) RemoveRecipient(id int64) bool {
	for i, r := range s.Recipients {
		if r == id {
			s.Recipients = append(s.Recipients[:i], s.Recipients[i+1:]...)
			return true
		}
	}
	return false
}

func dedupeIDs(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	out := in[:0]
	for _, id := range in {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
