// Package keepalive periodically fetches the bot's own public URL so
// free hosting tiers do not idle the process out between broadcasts.
package keepalive

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	rtsup "github.com/amirpoya/Telegram-auto/internal/runtime/supervisor"
	"github.com/amirpoya/Telegram-auto/pkg/logx"
)

const (
	defaultInterval = 5 * time.Minute
	requestTimeout  = 8 * time.Second
	maxStartJitter  = 30 * time.Second
)

// Config controls the ping loop. An empty URL disables pinging even when
// Enabled is set; the loop then just sleeps.
type Config struct {
	Enabled  bool
	URL      string
	Interval time.Duration
}

// Service runs the supervised ping loop.
type Service struct {
	log    logx.Logger
	client *http.Client

	mu       sync.Mutex
	cfg      Config
	running  bool
	stopDone chan struct{}
	sup      *rtsup.Supervisor
	wake     chan struct{}
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log.With(logx.String("comp", "keepalive")),
		client: &http.Client{Timeout: requestTimeout},
		cfg:    cfg,
	}
}

// Start brings the loop up. No-op when disabled or already running.
func (s *Service) Start(ctx context.Context) error {
	for {
		s.mu.Lock()
		if !s.cfg.Enabled {
			s.mu.Unlock()
			return nil
		}
		if s.running {
			s.mu.Unlock()
			return nil
		}
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		break
	}

	s.running = true
	s.wake = make(chan struct{}, 1)
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("ping", s.loop,
		rtsup.WithRestartBackoff(time.Second, time.Minute))
	url := s.cfg.URL
	ivl := s.cfg.Interval
	s.mu.Unlock()

	if ivl <= 0 {
		ivl = defaultInterval
	}
	s.log.Info("keepalive started",
		logx.String("url", url),
		logx.Duration("interval", ivl))
	return nil
}

// Stop tears the loop down, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	done := make(chan struct{})
	s.stopDone = done
	sup := s.sup
	s.sup = nil
	s.wake = nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		if sup != nil {
			sup.Cancel()
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor returns the loop's supervisor (nil while stopped).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Reconfigure swaps the config in place. Toggling Enabled starts or stops
// the loop; URL and interval changes apply on the next tick.
func (s *Service) Reconfigure(ctx context.Context, next Config) error {
	s.mu.Lock()
	s.cfg = next
	running := s.running
	wake := s.wake
	s.mu.Unlock()

	switch {
	case !next.Enabled && running:
		return s.Stop(ctx)
	case next.Enabled && !running:
		return s.Start(ctx)
	case running && wake != nil:
		select {
		case wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *Service) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Interval > 0 {
		return s.cfg.Interval
	}
	return defaultInterval
}

// startJitter spreads first pings out so a redeployed fleet does not hit
// the host in lockstep. Never longer than one interval.
func (s *Service) startJitter() time.Duration {
	limit := s.interval()
	if limit > maxStartJitter {
		limit = maxStartJitter
	}
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit)))
}

func (s *Service) loop(ctx context.Context) error {
	s.mu.Lock()
	wake := s.wake
	s.mu.Unlock()

	timer := time.NewTimer(s.startJitter())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			s.ping(ctx)
		}
		timer.Reset(s.interval())
	}
}

// ping fetches the public URL once. Failures are routine on flaky free
// tiers, so they log at debug and never bubble up.
func (s *Service) ping(ctx context.Context) {
	s.mu.Lock()
	url := strings.TrimSpace(s.cfg.URL)
	s.mu.Unlock()
	if url == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.log.Debug("keepalive request rejected",
			logx.String("url", url), logx.Err(err))
		return
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Debug("keepalive ping failed", logx.Err(err))
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
	s.log.Debug("keepalive ping",
		logx.String("url", url), logx.Int("status", resp.StatusCode))
}
