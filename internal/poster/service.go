package poster

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/amirpoya/Telegram-auto/internal/eventbus"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

// Sender is the outbound capability the engine drives. The Telegram
// adapter satisfies it; tests supply fakes.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error)
	SendPhoto(ctx context.Context, to kit.ChatTarget, photoID string, caption string, spans []kit.Span, opt *kit.SendOptions) (kit.MessageRef, error)
	CopyMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef, opt *kit.SendOptions) (kit.MessageRef, error)
	ForwardMessage(ctx context.Context, to kit.ChatTarget, src kit.MessageRef) (kit.MessageRef, error)
}

// Config carries the engine pacing knobs. Zero values resolve to the
// defaults below.
type Config struct {
	SendGap          time.Duration // delay between consecutive recipient sends
	RetryMargin      time.Duration // added on top of rate-limit waits before the retry
	TransientBackoff time.Duration // pause after a transient failure before moving on
	DropOnPermanent  bool          // remove recipients that fail permanently
}

const (
	defaultSendGap          = 500 * time.Millisecond
	defaultRetryMargin      = time.Second
	defaultTransientBackoff = time.Second
)

func (c Config) withDefaults() Config {
	if c.SendGap <= 0 {
		c.SendGap = defaultSendGap
	}
	if c.RetryMargin <= 0 {
		c.RetryMargin = defaultRetryMargin
	}
	if c.TransientBackoff <= 0 {
		c.TransientBackoff = defaultTransientBackoff
	}
	return c
}

// Service schedules and runs broadcast cycles. Scheduling follows the
// settings document: enabled with interval N registers an "@every Ns"
// cron entry and fires once immediately; disable cancels it; an interval
// change cancels and re-registers so the new cadence applies at once.
type Service struct {
	log logx.Logger

	cfgMu sync.RWMutex
	cfg   Config

	store  *settings.Store
	sender Sender
	bus    eventbus.Bus

	mu        sync.Mutex // guards scheduling state
	c         *cron.Cron
	entryID   cron.EntryID
	hasEntry  bool
	schedOn   bool
	schedSecs int
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	subCh     chan *settings.Settings
	wg        sync.WaitGroup

	// gate holds the single-flight token: a cycle runs only while it
	// holds the token, so overlapping fires coalesce instead of queueing.
	gate chan struct{}

	cyclesRun uint64
	coalesced uint64

	lastMu     sync.Mutex
	lastReport *CycleReport

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, store *settings.Store, sender Sender, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		cfg:    cfg.withDefaults(),
		store:  store,
		sender: sender,
		bus:    bus,
		gate:   make(chan struct{}, 1),
		sleep:  ctxSleep,
	}
}

// Apply updates the pacing knobs. Scheduling is driven by the settings
// document, not by this config.
func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.withDefaults()
	s.cfgMu.Unlock()
}

func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New()
	s.c.Start()
	s.subCh = s.store.Subscribe(4)

	stopCh := s.stopCh
	subCh := s.subCh
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watchSettings(stopCh, subCh)
	}()

	doc := s.store.Snapshot()
	s.reschedule(doc, true)

	s.log.Info("poster started",
		logx.Bool("enabled", doc.Enabled),
		logx.Int("interval_s", doc.IntervalSeconds),
		logx.Int("recipients", len(doc.Recipients)),
	)
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.runCancel
	c := s.c
	subCh := s.subCh
	s.stopCh = nil
	s.runCancel = nil
	s.runCtx = nil
	s.c = nil
	s.hasEntry = false
	s.schedOn = false
	s.subCh = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if subCh != nil {
		s.store.Unsubscribe(subCh)
	}
	if c != nil {
		// waits for in-flight cron-spawned jobs to return
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("poster stopped")
}

// watchSettings reacts to committed settings documents. Only changes to
// the enabled flag or the interval touch the schedule; payload and
// recipient edits are picked up by the next cycle's snapshot.
func (s *Service) watchSettings(stopCh chan struct{}, subCh chan *settings.Settings) {
	for {
		select {
		case <-stopCh:
			return
		case doc, ok := <-subCh:
			if !ok {
				return
			}
			s.mu.Lock()
			changed := doc.Enabled != s.schedOn || (doc.Enabled && doc.IntervalSeconds != s.schedSecs)
			s.mu.Unlock()
			if changed {
				s.reschedule(doc, true)
			}
		}
	}
}

// reschedule applies the scheduling state machine. fireNow requests the
// immediate first fire on (re)registration; it goes through the same
// single-flight gate as timer fires.
func (s *Service) reschedule(doc *settings.Settings, fireNow bool) {
	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	if s.hasEntry {
		s.c.Remove(s.entryID)
		s.hasEntry = false
	}
	s.schedOn = doc.Enabled
	s.schedSecs = doc.IntervalSeconds

	if !doc.Enabled {
		s.mu.Unlock()
		s.log.Info("broadcast schedule disabled")
		return
	}

	spec := fmt.Sprintf("@every %ds", doc.IntervalSeconds)
	id, err := s.c.AddFunc(spec, func() { s.fire("timer") })
	if err != nil {
		s.mu.Unlock()
		s.log.Error("broadcast schedule failed", logx.String("spec", spec), logx.Err(err))
		return
	}
	s.entryID = id
	s.hasEntry = true
	s.mu.Unlock()

	s.log.Info("broadcast scheduled", logx.Int("interval_s", doc.IntervalSeconds))
	if fireNow {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire("enable")
		}()
	}
}

// fire runs one cycle on behalf of the scheduler. Overlapping fires are
// coalesced by RunCycle; panics must not kill the cron goroutine.
func (s *Service) fire(reason string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in broadcast cycle",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.RunCycle(ctx, reason); err != nil && err != ErrCycleInFlight {
		s.log.Warn("broadcast cycle aborted", logx.String("reason", reason), logx.Err(err))
	}
}

func (s *Service) noteReport(rep *CycleReport) {
	atomic.AddUint64(&s.cyclesRun, 1)
	s.lastMu.Lock()
	s.lastReport = rep
	s.lastMu.Unlock()
	if s.bus != nil && rep.Skipped == "" {
		s.bus.Publish(eventbus.Event{Type: EventCycleDone, Data: rep})
	}
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
