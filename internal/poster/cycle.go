package poster

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// EventCycleDone is published on the event bus after every completed
// (non-skipped) cycle, carrying a *CycleReport.
const EventCycleDone = "poster.cycle_done"

// ErrCycleInFlight reports that a cycle was coalesced because another one
// already holds the single-flight gate.
var ErrCycleInFlight = errors.New("broadcast cycle already in flight")

// invisibleText is a single word joiner. In forward mode, buttons cannot
// ride on the forwarded message itself, so they are carried by a followup
// reply whose visible body is just this character.
const invisibleText = "⁠"

// CycleReport summarizes one delivery pass.
type CycleReport struct {
	Reason     string    `json:"reason"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`

	Recipients int `json:"recipients"` // unique recipients attempted
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Retried    int `json:"retried"` // rate-limit retries performed

	Dropped  []int64            `json:"dropped,omitempty"` // removed after permanent failures
	Failures []RecipientFailure `json:"failures,omitempty"`

	// Skipped is non-empty when the cycle did not deliver anything:
	// "disabled" or "no recipients".
	Skipped string `json:"skipped,omitempty"`
}

type RecipientFailure struct {
	ChatID int64  `json:"chat_id"`
	Kind   string `json:"kind"` // rate_limited | transient | permanent | canceled
	Reason string `json:"reason"`
}

// RunCycle runs one broadcast cycle through the single-flight gate.
// A disabled document yields a skipped report and zero send calls.
// Returns ErrCycleInFlight when another cycle holds the gate.
func (s *Service) RunCycle(ctx context.Context, reason string) (*CycleReport, error) {
	select {
	case s.gate <- struct{}{}:
	default:
		atomic.AddUint64(&s.coalesced, 1)
		return nil, ErrCycleInFlight
	}
	defer func() { <-s.gate }()

	doc := s.store.Snapshot()
	rep := &CycleReport{Reason: reason, StartedAt: time.Now()}

	switch {
	case !doc.Enabled:
		rep.Skipped = "disabled"
	case len(doc.Recipients) == 0:
		rep.Skipped = "no recipients"
	}
	if rep.Skipped != "" {
		s.noteReport(rep)
		return rep, nil
	}

	err := s.deliverAll(ctx, rep, doc.Recipients, s.payloadDeliverer(doc), true)

	rep.DurationMS = time.Since(rep.StartedAt).Milliseconds()
	s.noteReport(rep)
	s.log.Info("broadcast cycle done",
		logx.String("reason", reason),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Int("retried", rep.Retried),
		logx.Int64("took_ms", rep.DurationMS),
	)
	return rep, err
}

// ForwardToAll forwards an arbitrary source message to every recipient,
// with the stored buttons as a followup reply. Used by the manual
// broadcast command when it replies to a message. Runs through the same
// gate as timer cycles but ignores the enabled flag: it is an explicit
// owner action.
func (s *Service) ForwardToAll(ctx context.Context, src kit.MessageRef) (*CycleReport, error) {
	select {
	case s.gate <- struct{}{}:
	default:
		atomic.AddUint64(&s.coalesced, 1)
		return nil, ErrCycleInFlight
	}
	defer func() { <-s.gate }()

	doc := s.store.Snapshot()
	rep := &CycleReport{Reason: "forward", StartedAt: time.Now()}
	if len(doc.Recipients) == 0 {
		rep.Skipped = "no recipients"
		s.noteReport(rep)
		return rep, nil
	}

	deliver := func(ctx context.Context, to kit.ChatTarget) error {
		return s.forwardWithButtons(ctx, to, src, doc.Buttons)
	}
	err := s.deliverAll(ctx, rep, doc.Recipients, deliver, false)

	rep.DurationMS = time.Since(rep.StartedAt).Milliseconds()
	s.noteReport(rep)
	return rep, err
}

// Preview delivers the resolved payload to a single target, regardless of
// the enabled flag. Errors come back raw for display to the owner.
func (s *Service) Preview(ctx context.Context, to kit.ChatTarget) error {
	doc := s.store.Snapshot()
	if !doc.HasPayload() {
		return errors.New("nothing to send: no template, text, or photo configured")
	}
	return s.payloadDeliverer(doc)(ctx, to)
}

// deliverAll iterates unique recipients in stable order, isolating each
// recipient's failure: rate limits wait and retry exactly once, transient
// failures back off and skip, permanent failures skip (or mark for drop
// when the policy allows it). Only context cancellation aborts the loop.
func (s *Service) deliverAll(
	ctx context.Context,
	rep *CycleReport,
	recipients []int64,
	deliver func(ctx context.Context, to kit.ChatTarget) error,
	allowDrop bool,
) error {
	cfg := s.config()
	targets := uniqueIDs(recipients)
	rep.Recipients = len(targets)

	var drop []int64
	for i, gid := range targets {
		if i > 0 {
			if err := s.sleep(ctx, cfg.SendGap); err != nil {
				return s.abort(rep, err)
			}
		}

		to := kit.ChatTarget{ChatID: gid}
		err := deliver(ctx, to)
		if err == nil {
			rep.Sent++
			continue
		}
		if ctx.Err() != nil {
			rep.fail(gid, "canceled", err)
			return s.abort(rep, ctx.Err())
		}

		if wait, ok := kit.AsRateLimited(err); ok {
			s.log.Warn("rate limited, retrying once",
				logx.Int64("chat_id", gid),
				logx.Duration("wait", wait+cfg.RetryMargin),
			)
			if serr := s.sleep(ctx, wait+cfg.RetryMargin); serr != nil {
				rep.fail(gid, "rate_limited", err)
				return s.abort(rep, serr)
			}
			rep.Retried++
			if rerr := deliver(ctx, to); rerr == nil {
				rep.Sent++
			} else {
				rep.fail(gid, "rate_limited", rerr)
				s.log.Warn("retry failed, skipping recipient",
					logx.Int64("chat_id", gid), logx.Err(rerr))
			}
			continue
		}

		if kit.IsPermanent(err) {
			rep.fail(gid, "permanent", err)
			if allowDrop && cfg.DropOnPermanent {
				drop = append(drop, gid)
				s.log.Warn("permanent failure, dropping recipient",
					logx.Int64("chat_id", gid), logx.Err(err))
			} else {
				s.log.Warn("permanent failure, skipping recipient",
					logx.Int64("chat_id", gid), logx.Err(err))
			}
			continue
		}

		// transient: short fixed backoff, then move on
		rep.fail(gid, "transient", err)
		s.log.Warn("transient failure, skipping recipient",
			logx.Int64("chat_id", gid), logx.Err(err))
		if serr := s.sleep(ctx, cfg.TransientBackoff); serr != nil {
			return s.abort(rep, serr)
		}
	}

	if len(drop) > 0 {
		s.dropRecipients(drop)
		rep.Dropped = drop
	}
	return nil
}

func (rep *CycleReport) fail(gid int64, kind string, err error) {
	rep.Failed++
	rep.Failures = append(rep.Failures, RecipientFailure{ChatID: gid, Kind: kind, Reason: err.Error()})
}

func (s *Service) abort(rep *CycleReport, err error) error {
	rep.DurationMS = time.Since(rep.StartedAt).Milliseconds()
	return err
}

func (s *Service) dropRecipients(ids []int64) {
	_, err := s.store.Mutate(func(doc *settings.Settings) error {
		for _, id := range ids {
			doc.RemoveRecipient(id)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to persist recipient drops", logx.Err(err))
	}
}

// payloadDeliverer resolves the document into a per-recipient delivery
// function. Template references win over reconstructed payloads; a
// template that carries its own keyboard suppresses the stored buttons in
// both modes.
func (s *Service) payloadDeliverer(doc *settings.Settings) func(ctx context.Context, to kit.ChatTarget) error {
	if doc.Template.Valid() {
		src := kit.MessageRef{ChatID: doc.Template.ChatID, MessageID: doc.Template.MessageID}
		buttons := doc.Buttons
		if doc.Template.HasKeyboard {
			buttons = nil
		}
		if doc.Mode == settings.ModeForward {
			return func(ctx context.Context, to kit.ChatTarget) error {
				return s.forwardWithButtons(ctx, to, src, buttons)
			}
		}
		return func(ctx context.Context, to kit.ChatTarget) error {
			var opt *kit.SendOptions
			if !buttons.Empty() {
				opt = &kit.SendOptions{Buttons: buttons}
			}
			_, err := s.sender.CopyMessage(ctx, to, src, opt)
			return err
		}
	}

	text := doc.Text
	spans := doc.Spans
	photo := doc.PhotoID
	opt := &kit.SendOptions{Buttons: doc.Buttons}
	if photo != "" {
		return func(ctx context.Context, to kit.ChatTarget) error {
			_, err := s.sender.SendPhoto(ctx, to, photo, text, spans, opt)
			return err
		}
	}
	return func(ctx context.Context, to kit.ChatTarget) error {
		_, err := s.sender.SendText(ctx, to, text, spans, opt)
		return err
	}
}

// forwardWithButtons forwards src and, when buttons exist, anchors them
// under the forwarded message as a nearly invisible reply. A failed
// followup is logged but does not fail the recipient: the forward itself
// already landed.
func (s *Service) forwardWithButtons(ctx context.Context, to kit.ChatTarget, src kit.MessageRef, buttons kit.ButtonLayout) error {
	fwd, err := s.sender.ForwardMessage(ctx, to, src)
	if err != nil {
		return err
	}
	if buttons.Empty() {
		return nil
	}
	_, err = s.sender.SendText(ctx, to, invisibleText, nil, &kit.SendOptions{
		Buttons:        buttons,
		ReplyTo:        fwd.MessageID,
		DisablePreview: true,
	})
	if err != nil {
		s.log.Warn("button followup failed",
			logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
	return nil
}

func uniqueIDs(in []int64) []int64 {
	seen := make(map[int64]struct{}, len(in))
	out := make([]int64, 0, len(in))
	for _, id := range in {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
