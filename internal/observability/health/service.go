// Package health serves the HTTP operability surface: liveness, engine
// status, goroutine accounting and (optionally) the runtime profiler.
//
// The server is supervised and restartable. Reconfigure applies config
// changes at runtime and restarts the listener only when the binding or
// the route set actually changed.
package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amirpoya/Telegram-auto/internal/poster"
	rtsup "github.com/amirpoya/Telegram-auto/internal/runtime/supervisor"
	"github.com/amirpoya/Telegram-auto/pkg/logx"
)

// Config controls the HTTP server. Zero value means disabled.
type Config struct {
	Enabled bool
	// Addr is the listen address, for example ":8080" or "127.0.0.1:6060".
	Addr string
	// Pprof mounts net/http/pprof under /debug/pprof. On a non-loopback
	// bind it additionally requires Token or AllowInsecure.
	Pprof bool
	// Token, when set, protects /debug/pprof via ?token= or a Bearer header.
	// The health and status routes stay open; they carry no secrets.
	Token string
	// AllowInsecure permits tokenless pprof on non-loopback binds.
	AllowInsecure bool

	ReadTimeout time.Duration
	// WriteTimeout should stay 0 when Pprof is on: profile captures hold
	// the response open for their whole sample window.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Sources supplies the live values the status routes report. Every field
// is optional; nil funcs drop the matching section from the response.
type Sources struct {
	Poster      func() poster.Status
	Recipients  func() int
	QueueDepth  func() int
	Supervisors func() map[string]*rtsup.Supervisor
}

// Service owns the HTTP listener lifecycle.
type Service struct {
	log logx.Logger
	src Sources

	mu        sync.Mutex
	cfg       Config
	startedAt time.Time
	running   bool
	stopDone  chan struct{}

	sup      *rtsup.Supervisor
	srv      *http.Server
	lnAddr   string
	restartC chan struct{}
}

func New(cfg Config, src Sources, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:       log.With(logx.String("comp", "health")),
		src:       src,
		cfg:       withDefaults(cfg),
		startedAt: time.Now(),
	}
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	return cfg
}

// Enabled reports whether the current config wants the server up.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound listen address, or "" while the server is down.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lnAddr
}

// Supervisor returns the server's internal supervisor (nil while stopped).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

// Start brings the server up. It is a no-op when disabled or already
// running, and waits out a concurrent Stop before binding again.
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

	s.startedAt = time.Now()
	s.running = true
	s.restartC = make(chan struct{}, 1)
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", func(c context.Context) error {
		return s.serveOnce(c)
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true))
	s.mu.Unlock()
	return nil
}

// Stop shuts the listener down, bounded by ctx.
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
	srv := s.srv
	s.sup = nil
	s.srv = nil
	s.lnAddr = ""
	s.mu.Unlock()

	go func() {
		defer close(done)
		if srv != nil {
			shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = srv.Shutdown(shCtx)
			cancel()
		}
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
		if sup != nil {
			sup.Cancel()
		}
		return ctx.Err()
	}
}

// Reconfigure applies a new config. Toggling Enabled starts or stops the
// server; changes to the bind address or route policy restart it.
func (s *Service) Reconfigure(ctx context.Context, next Config) error {
	next = withDefaults(next)

	s.mu.Lock()
	prev := s.cfg
	s.cfg = next
	running := s.running
	s.mu.Unlock()

	switch {
	case !next.Enabled && running:
		return s.Stop(ctx)
	case next.Enabled && !running:
		return s.Start(ctx)
	case next.Enabled && running && needsRestart(prev, next):
		if err := s.Stop(ctx); err != nil {
			return err
		}
		return s.Start(ctx)
	}
	return nil
}

func needsRestart(a, b Config) bool {
	return a.Addr != b.Addr ||
		a.Pprof != b.Pprof ||
		a.Token != b.Token ||
		a.AllowInsecure != b.AllowInsecure ||
		a.ReadTimeout != b.ReadTimeout ||
		a.WriteTimeout != b.WriteTimeout ||
		a.IdleTimeout != b.IdleTimeout
}

// serveOnce binds and serves until ctx is done or the listener fails.
// The supervisor restarts it with backoff on failure.
func (s *Service) serveOnce(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if !cfg.Enabled {
		return context.Canceled
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.buildEngine(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return context.Canceled
	}
	s.srv = srv
	s.lnAddr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info("health server listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", cfg.Pprof))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(shCtx)
		cancel()
		<-errCh
		return context.Canceled
	case err := <-errCh:
		s.mu.Lock()
		if s.srv == srv {
			s.srv = nil
			s.lnAddr = ""
		}
		stopped := !s.running
		s.mu.Unlock()
		if stopped || errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		s.log.Error("health server exited", logx.Err(err))
		return err
	}
}

// buildEngine assembles the route table for one server run. Split out so
// tests can drive it through httptest without a socket.
func (s *Service) buildEngine(cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	eng := gin.New()
	eng.Use(s.recovery())

	eng.GET("/healthz", s.handleHealthz)
	eng.GET("/status", s.handleStatus)
	eng.GET("/goroutines", s.handleGoroutines)

	if cfg.Pprof {
		if reason := pprofRefused(cfg); reason != "" {
			s.log.Error("pprof not mounted: "+reason,
				logx.String("addr", cfg.Addr))
		} else {
			if cfg.Token == "" && !isLoopbackAddr(cfg.Addr) {
				s.log.Warn("pprof exposed without token on non-loopback address",
					logx.String("addr", cfg.Addr))
			}
			pp := eng.Group("/debug/pprof", s.tokenGate(cfg.Token))
			pp.GET("/*rest", gin.WrapF(pprofDispatch))
			pp.POST("/*rest", gin.WrapF(pprofDispatch))
		}
	}
	return eng
}

// pprofRefused reports why the profiler cannot be mounted, or "" when the
// bind and auth combination is acceptable.
func pprofRefused(cfg Config) string {
	if isLoopbackAddr(cfg.Addr) || cfg.Token != "" || cfg.AllowInsecure {
		return ""
	}
	return "non-loopback bind needs a token or allow_insecure"
}

func (s *Service) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler panic",
					logx.String("path", c.Request.URL.Path),
					logx.Any("panic", r))
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func (s *Service) tokenGate(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		if c.Query("token") == token {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token {
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", `Bearer realm="pprof"`)
		c.AbortWithStatus(http.StatusUnauthorized)
	}
}

func (s *Service) handleHealthz(c *gin.Context) {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime_s": int64(time.Since(started).Seconds()),
	})
}

func (s *Service) handleStatus(c *gin.Context) {
	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()

	out := gin.H{"uptime_s": int64(time.Since(started).Seconds())}
	if s.src.Poster != nil {
		out["engine"] = s.src.Poster()
	}
	if s.src.Recipients != nil {
		out["recipients"] = s.src.Recipients()
	}
	if s.src.QueueDepth != nil {
		out["notify_queue"] = s.src.QueueDepth()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Service) handleGoroutines(c *gin.Context) {
	out := gin.H{"goroutines": runtime.NumGoroutine()}
	if s.src.Supervisors != nil {
		snaps := map[string]rtsup.Snapshot{}
		for name, sup := range s.src.Supervisors() {
			if sup != nil {
				snaps[name] = sup.Snapshot()
			}
		}
		out["supervisors"] = snaps
	}
	c.JSON(http.StatusOK, out)
}

// pprofDispatch routes /debug/pprof/* to the stdlib handlers. A single
// wildcard keeps gin away from per-profile route registration.
func pprofDispatch(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimPrefix(r.URL.Path, "/debug/pprof") {
	case "/cmdline":
		hpprof.Cmdline(w, r)
	case "/profile":
		hpprof.Profile(w, r)
	case "/symbol":
		hpprof.Symbol(w, r)
	case "/trace":
		hpprof.Trace(w, r)
	default:
		// Index serves the listing page and every named profile.
		hpprof.Index(w, r)
	}
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "" {
		// ":8080" binds every interface.
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
