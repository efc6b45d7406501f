package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirpoya/Telegram-auto/internal/eventbus"
	"github.com/amirpoya/Telegram-auto/internal/keepalive"
	"github.com/amirpoya/Telegram-auto/internal/menu"
	"github.com/amirpoya/Telegram-auto/internal/notifier"
	"github.com/amirpoya/Telegram-auto/internal/observability/health"
	"github.com/amirpoya/Telegram-auto/internal/poster"
	"github.com/amirpoya/Telegram-auto/internal/settings"
	"github.com/amirpoya/Telegram-auto/internal/storage"
	kit "github.com/amirpoya/Telegram-auto/internal/transport"
	telegram "github.com/amirpoya/Telegram-auto/internal/transport/telegram/adapter"
	logx "github.com/amirpoya/Telegram-auto/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	settings *settings.Store
	poster   *poster.Service
	notif    *notifier.Service
	health   *health.Service
	keep     *keepalive.Service
	menu     *menu.Menu

	cmdm *CommandManager
	serv *Services

	updates chan kit.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	// Fill gaps from the environment (token, owners, $PORT, $PUBLIC_URL).
	// Load committed this same pointer, so Get() sees the patched values.
	ApplyEnv(cfg)

	// Adapter config mapping
	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := parseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Logging service mapping
	// Important: logx.New() calls Apply() immediately. If Telegram logging is enabled but the target
	// chat/thread isn't configured yet, Apply() will emit a warning. To avoid a false-positive warning,
	// we bootstrap with Telegram logging disabled, set the target, then Apply() the final config.
	baseLogCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    false, // set target first, then enable via Apply()
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	logSvc, log := logx.New(baseLogCfg, ad)
	log = log.With(logx.String("comp", "app"))

	// Set Telegram log target (chat + thread)
	if strings.TrimSpace(cfg.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64); err == nil {
			logSvc.SetTelegramTarget(chatID, cfg.Logging.Telegram.ThreadID)
		}
	}

	// Apply final logging config (including Telegram enable flag).
	finalLogCfg := baseLogCfg
	finalLogCfg.Telegram.Enabled = cfg.Logging.Telegram.Enabled
	logSvc.Apply(finalLogCfg)

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	// Broadcast settings document (owner-edited through the menu).
	sstore := settings.NewStore(settingsPath(cfg), log.With(logx.String("comp", "settings")))
	if _, err := sstore.Load(); err != nil {
		return nil, fmt.Errorf("broadcast settings: %w", err)
	}

	// Services mapping
	pcfg, err := mapPosterConfig(cfg)
	if err != nil {
		return nil, err
	}
	post := poster.New(pcfg, sstore, ad, bus, log.With(logx.String("comp", "poster")))

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus, store)

	serv := &Services{
		Poster:             post,
		Notifier:           notif,
		RuntimeSupervisors: NewSupervisorRegistry(),
	}

	// Health server mapping (optional)
	hcfg, err := mapHealthConfig(cfg)
	if err != nil {
		return nil, err
	}
	healthSvc := health.New(hcfg, health.Sources{
		Poster:      post.Status,
		Recipients:  func() int { return len(sstore.Snapshot().Recipients) },
		QueueDepth:  notif.QueueDepth,
		Supervisors: serv.RuntimeSupervisors.Snapshot,
	}, log)

	kcfg, err := mapKeepaliveConfig(cfg)
	if err != nil {
		return nil, err
	}
	keep := keepalive.New(kcfg, log)

	mnu := menu.New(sstore, post, log.With(logx.String("comp", "menu")))

	cmdm := NewCommandManager(log.With(logx.String("comp", "commands")),
		ad, cfgm, serv, cfg.Telegram.OwnerUserIDs)

	owners := func() []int64 {
		if c := cfgm.Get(); c != nil {
			return c.Telegram.OwnerUserIDs
		}
		return nil
	}
	cmdm.SetInputHandler(mnu.InputHandler())
	cmdm.SetInlineHandler(mnu.InlineHandler(ad, func() bool {
		c := cfgm.Get()
		return c != nil && c.Inline.Enabled
	}, owners))
	cmdm.SetMembershipHandler(mnu.MembershipHandler(notif, owners))

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		settings: sstore,
		poster:   post,
		notif:    notif,
		health:   healthSvc,
		keep:     keep,
		menu:     mnu,
		cmdm:     cmdm,
		serv:     serv,
		updates:  make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	if a.serv != nil {
		a.serv.AppSupervisor = a.sup
		if a.serv.RuntimeSupervisors == nil {
			a.serv.RuntimeSupervisors = NewSupervisorRegistry()
		}
	}

	// transactional config reload: validate before commit/publish
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			// Env fills run before validation so a file edit cannot wipe an
			// env-provided token or owner list.
			ApplyEnv(cfg)

			if _, err := parseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
				return err
			}
			if _, err := mapPosterConfig(cfg); err != nil {
				return err
			}
			if _, err := mapNotifierConfig(cfg); err != nil {
				return err
			}
			if _, _, err := mapStorageConfig(cfg); err != nil {
				return err
			}
			if _, err := mapHealthConfig(cfg); err != nil {
				return err
			}
			if _, err := mapKeepaliveConfig(cfg); err != nil {
				return err
			}
			return nil
		})
	}

	// Register the owner menu now so the Telegram command sync runs under the
	// app supervisor and is canceled cleanly on shutdown.
	a.cmdm.SetRegistry(a.menu.Commands(), a.menu.Callbacks())

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// Expose adapter supervisor for operational visibility.
	if a.serv != nil {
		if sp, ok := a.adapter.(interface{ Supervisor() *Supervisor }); ok {
			if sup := sp.Supervisor(); sup != nil {
				a.serv.RuntimeSupervisors.Set("telegram.adapter", sup)
			}
		}
	}

	// The broadcast engine always runs; a disabled document just parks the
	// schedule until the owner flips it on.
	a.poster.Start(a.sup.Context())

	if a.notif != nil && a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
		if sup := a.notif.Supervisor(); sup != nil {
			a.serv.RuntimeSupervisors.Set("notifier", sup)
		}
	}
	if a.health != nil && a.health.Enabled() {
		if err := a.health.Start(a.sup.Context()); err != nil {
			a.log.Warn("health server start failed", logx.Err(err))
		}
		if sup := a.health.Supervisor(); sup != nil {
			a.serv.RuntimeSupervisors.Set("health", sup)
		}
	}
	if a.keep != nil {
		if err := a.keep.Start(a.sup.Context()); err != nil {
			a.log.Warn("keepalive start failed", logx.Err(err))
		}
		if sup := a.keep.Supervisor(); sup != nil {
			a.serv.RuntimeSupervisors.Set("keepalive", sup)
		}
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// Optional: log events for observability/debug (components can also subscribe themselves).
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					// Keep this debug-level to avoid noise on frequent cycles.
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	// Audit trail: persist cycle reports and settings commits.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(64)
		docs := a.settings.Subscribe(8)
		a.sup.Go0("audit.bridge", func(c context.Context) {
			defer unsub()
			defer a.settings.Unsubscribe(docs)
			a.runAuditBridge(c, events, docs)
		})
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary for logx.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				sections, attrs := SummarizeConfigChange(lastApplied, newCfg)
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Debug("config change summary", fields...)
				} else {
					a.log.Debug("config reload received, but no effective changes detected")
				}

				a.applyReload(c, lastApplied, newCfg)
				lastApplied = newCfg

				// Keep the final log line concise and human-friendly (details are in debug logs).
				if len(sections) > 0 {
					fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
					a.log.Info("config reloaded", fields...)
				} else {
					a.log.Info("config reloaded (no changes)")
				}
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// applyReload pushes a validated config into the running services.
func (a *App) applyReload(ctx context.Context, prev, next *Config) {
	// Settings path and storage are fixed at construction.
	if settingsPath(prev) != settingsPath(next) {
		a.log.Warn("poster.settings_path changed; restart required for changes to take effect")
	}
	prevSC, prevOn, _ := mapStorageConfig(prev)
	nextSC, nextOn, serr := mapStorageConfig(next)
	if serr == nil && (prevOn != nextOn || prevSC != nextSC) {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	// update log target first (so Apply() doesn't warn when Telegram logging is enabled)
	if strings.TrimSpace(next.Telegram.GroupLog) != "" {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(next.Telegram.GroupLog), 10, 64); err == nil {
			a.logs.SetTelegramTarget(chatID, next.Logging.Telegram.ThreadID)
		}
	} else {
		// allow clearing target via config hot-reload
		a.logs.SetTelegramTarget(0, 0)
	}

	// apply logging updates
	a.logs.Apply(logx.Config{
		Level:   next.Logging.Level,
		Console: next.Logging.Console,
		File: logx.FileConfig{
			Enabled:    next.Logging.File.Enabled,
			Path:       next.Logging.File.Path,
			MaxSizeMB:  next.Logging.File.MaxSizeMB,
			MaxBackups: next.Logging.File.MaxBackups,
			MaxAgeDays: next.Logging.File.MaxAgeDays,
			Compress:   next.Logging.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    next.Logging.Telegram.Enabled,
			ThreadID:   next.Logging.Telegram.ThreadID,
			MinLevel:   next.Logging.Telegram.MinLevel,
			RatePerSec: next.Logging.Telegram.RatePerSec,
		},
	})

	// Owner list drives command access, inline answers and join notices.
	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)

	// apply broadcast engine pacing (live)
	if pcfg, err := mapPosterConfig(next); err != nil {
		a.log.Warn("invalid poster config; keeping previous", logx.Err(err))
	} else {
		a.poster.Apply(pcfg)
	}

	// apply notifier updates (live)
	if a.notif != nil {
		prevEnabled := a.notif.Enabled()
		ncfg, err := mapNotifierConfig(next)
		if err != nil {
			a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
			if prevEnabled && !ncfg.Enabled {
				a.log.Info("notifier disabled via config")
				stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				a.notif.Stop(stopCtx)
				cancel()
				a.serv.RuntimeSupervisors.Delete("notifier")
			} else if !prevEnabled && ncfg.Enabled {
				a.log.Info("notifier enabled via config")
				a.notif.Start(ctx)
				a.serv.RuntimeSupervisors.Set("notifier", a.notif.Supervisor())
			}
		}
	}

	// apply health server updates (live)
	if a.health != nil {
		if hcfg, err := mapHealthConfig(next); err != nil {
			a.log.Warn("invalid health config; keeping previous", logx.Err(err))
		} else {
			if rerr := a.health.Reconfigure(ctx, hcfg); rerr != nil {
				a.log.Warn("health reconfigure failed", logx.Err(rerr))
			}
			a.serv.RuntimeSupervisors.Set("health", a.health.Supervisor())
		}
	}

	// apply keepalive updates (live)
	if a.keep != nil {
		if kcfg, err := mapKeepaliveConfig(next); err != nil {
			a.log.Warn("invalid keepalive config; keeping previous", logx.Err(err))
		} else {
			if rerr := a.keep.Reconfigure(ctx, kcfg); rerr != nil {
				a.log.Warn("keepalive reconfigure failed", logx.Err(rerr))
			}
			a.serv.RuntimeSupervisors.Set("keepalive", a.keep.Supervisor())
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.String("err", err.Error()))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// Contract: fn MUST honor stepCtx and return promptly. If it doesn't, log a leak signal.
			elapsed := time.Since(start)
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.String("err", stepCtx.Err().Error()),
				logx.Duration("elapsed", elapsed),
			)
			// Leak logging: observe when/if the step eventually finishes.
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.String("err", err.Error()), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Engine first so no new sends start, then the notification pipeline and
	// the transport, storage once writers are gone, the HTTP surface last.
	step("poster", 2*time.Second, func(c context.Context) error { a.poster.Stop(c); return nil })
	step("keepalive", 1*time.Second, func(c context.Context) error { return a.keep.Stop(c) })
	step("notifier", 1*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	step("health", 1*time.Second, func(c context.Context) error { return a.health.Stop(c) })

	// Finally, wait for supervised goroutines (config watch/reload, command dispatcher, audit bridge).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}
