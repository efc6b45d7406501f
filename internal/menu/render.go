package menu

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	"github.com/amirpoya/Telegram-auto/pkg/tgui"
)

// cbGroup prefixes every callback this package registers ("m:action").
const cbGroup = "m"

func cb(action string) string { return tgui.Data(cbGroup, action, "") }

// renderText builds the menu body (ParseMode=HTML).
func renderText(doc *settings.Settings, st poster.Status) string {
	status := "🚫 disabled"
	if doc.Enabled {
		status = "✅ enabled"
	}

	lines := []tgui.H{
		"📮 " + tgui.B("Auto Poster"),
		"",
		tgui.B("Status: ") + tgui.Esc(status),
		tgui.B("Interval: ") + tgui.Esc(formatInterval(doc.IntervalSeconds)),
		tgui.B("Mode: ") + tgui.Code(string(doc.Mode)),
		tgui.B("Payload: ") + tgui.Esc(describePayload(doc)),
		tgui.B("Buttons: ") + tgui.Esc(describeButtons(doc)),
		tgui.B("Recipients: ") + tgui.Esc(fmt.Sprintf("%d", len(doc.Recipients))),
	}

	if st.State == "scheduled" && !st.NextFire.IsZero() {
		lines = append(lines, tgui.B("Next fire: ")+tgui.Esc(st.NextFire.Format("15:04:05")))
	}
	if st.CyclesRun > 0 {
		lines = append(lines, tgui.B("Cycles: ")+tgui.Esc(fmt.Sprintf("%d (coalesced %d)", st.CyclesRun, st.Coalesced)))
	}
	if rep := st.LastCycle; rep != nil && rep.Skipped == "" {
		lines = append(lines, tgui.B("Last: ")+tgui.Esc(fmt.Sprintf(
			"sent %d / failed %d (%s, %s)",
			rep.Sent, rep.Failed, rep.Reason, rep.StartedAt.Format("15:04:05"),
		)))
	}

	out := make([]string, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.String())
	}
	return strings.Join(out, "\n")
}

// renderKeyboard builds the menu's inline keyboard.
func renderKeyboard(doc *settings.Settings) *tele.ReplyMarkup {
	toggle := "▶️ Enable"
	if doc.Enabled {
		toggle = "⏸ Disable"
	}
	mode := "📦 Mode: copy"
	if doc.Mode == settings.ModeForward {
		mode = "📦 Mode: forward"
	}

	return tgui.NewInline().
		Row(tgui.Btn(toggle, cb("toggle")), tgui.Btn("⏱ Interval", cb("interval"))).
		Row(tgui.Btn("✏️ Message", cb("message")), tgui.Btn("🖼 Photo", cb("photo"))).
		Row(tgui.Btn("🔘 Buttons", cb("buttons")), tgui.Btn("👥 Recipients", cb("recipients"))).
		Row(tgui.Btn(mode, cb("mode")), tgui.Btn("📤 Broadcast now", cb("broadcast"))).
		Row(tgui.Btn("📌 Import", cb("import")), tgui.Btn("🧹 Clear template", cb("clear"))).
		Row(tgui.Btn("👁 Preview", cb("preview")), tgui.Btn("🔄 Refresh", cb("refresh"))).
		Row(tgui.Btn("✖️ Close", cb("close"))).
		Markup()
}

func cancelKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().Row(tgui.Btn("✖️ Cancel", cb("cancel"))).Markup()
}

func backKeyboard() *tele.ReplyMarkup {
	return tgui.NewInline().Row(tgui.Btn("🔙 Back", cb("refresh"))).Markup()
}

func describePayload(doc *settings.Settings) string {
	if doc.Template.Valid() {
		kb := "no"
		if doc.Template.HasKeyboard {
			kb = "yes"
		}
		return fmt.Sprintf("template (origin %d, msg %d, keyboard %s)", doc.Template.ChatID, doc.Template.MessageID, kb)
	}
	if doc.PhotoID != "" {
		return fmt.Sprintf("photo + caption (%d chars)", len([]rune(doc.Text)))
	}
	return fmt.Sprintf("text (%d chars)", len([]rune(doc.Text)))
}

func describeButtons(doc *settings.Settings) string {
	if doc.Buttons.Empty() {
		return "none"
	}
	n := 0
	for _, row := range doc.Buttons {
		n += len(row)
	}
	return fmt.Sprintf("%d in %d row(s)", n, len(doc.Buttons))
}

// formatInterval prefers the largest unit that divides evenly.
func formatInterval(secs int) string {
	switch {
	case secs%86400 == 0:
		return fmt.Sprintf("%dd (%ds)", secs/86400, secs)
	case secs%3600 == 0:
		return fmt.Sprintf("%dh (%ds)", secs/3600, secs)
	case secs%60 == 0:
		return fmt.Sprintf("%dm (%ds)", secs/60, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// summarize renders a cycle report for owner-facing replies.
func summarize(rep *poster.CycleReport) string {
	if rep == nil {
		return "no report"
	}
	if rep.Skipped != "" {
		return "⏭ skipped: " + rep.Skipped
	}
	b := &strings.Builder{}
	fmt.Fprintf(b, "📤 sent %d / failed %d", rep.Sent, rep.Failed)
	if rep.Retried > 0 {
		fmt.Fprintf(b, ", retried %d", rep.Retried)
	}
	fmt.Fprintf(b, " (%d recipients, %dms)", rep.Recipients, rep.DurationMS)
	if len(rep.Dropped) > 0 {
		fmt.Fprintf(b, "\n🗑 dropped %d recipient(s) after permanent failures", len(rep.Dropped))
	}
	max := 8
	for i, f := range rep.Failures {
		if i >= max {
			fmt.Fprintf(b, "\n… and %d more", len(rep.Failures)-max)
			break
		}
		fmt.Fprintf(b, "\n• %d: %s", f.ChatID, tgui.TruncRunes(f.Reason, 80))
	}
	return b.String()
}
