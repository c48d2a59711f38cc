// Package app assembles the bot: config, logging, transport, persistence,
// the counting engine and the periodic maintenance job.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"tallybot/internal/config"
	"tallybot/internal/counter"
	"tallybot/internal/dedup"
	"tallybot/internal/engine"
	rtsup "tallybot/internal/runtime/supervisor"
	"tallybot/internal/storage"
	kit "tallybot/internal/transport"
	"tallybot/internal/transport/telegram"
	logx "tallybot/pkg/logx"
)

const defaultFlushSpec = "@every 10m"

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	store    storage.Store
	counters *counter.Store
	ledger   *dedup.Ledger
	eng      *engine.Engine
	sink     *replySink

	sup   *rtsup.Supervisor
	maint *cron.Cron

	msgs chan kit.Message
}

// New loads the config and wires every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", cfgPath, err)
	}

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return nil, err
	}
	quiet, err := config.ParseDurationOrDefault("counter.quiet_window", cfg.Counter.QuietWindow, 3*time.Second)
	if err != nil {
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}

	logSvc, log := logx.New(logConfig(cfg), adapter)
	if target := parseGroupLog(cfg.Telegram.GroupLog); target != 0 {
		logSvc.SetTelegramTarget(target)
	}

	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(validateConfig)

	a := &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log.With(logx.String("comp", "app")),
		adapter:  adapter,
		counters: counter.NewStore(),
	}

	// Persistence is best-effort: a broken store degrades to memory-only.
	if cfg.Storage != nil {
		busy, derr := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if derr != nil {
			return nil, derr
		}
		st, serr := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if serr != nil {
			a.log.Warn("storage disabled", logx.Err(serr))
		} else {
			a.store = st
		}
	}

	a.ledger = dedup.NewLedger(a.journal(), log.With(logx.String("comp", "dedup")))
	if a.store != nil {
		if keys, lerr := a.store.LoadDedup(context.Background()); lerr == nil {
			a.ledger.Seed(dedupKeys(keys))
			a.log.Info("dedup ledger restored", logx.Int("keys", len(keys)))
		} else {
			a.log.Warn("dedup ledger restore failed", logx.Err(lerr))
		}
	}

	a.sink = newReplySink(adapter, cfg.Counter.ReplyRatePerSec, log.With(logx.String("comp", "reply")))
	a.eng = engine.New(engine.Config{
		QuietWindow:      quiet,
		Style:            cfg.Counter.Style,
		MinReportMinutes: cfg.Counter.ReportMinMinutes,
		MaxReportMinutes: cfg.Counter.ReportMaxMinutes,
	}, a.counters, a.ledger, a.sink, log.With(logx.String("comp", "engine")))

	return a, nil
}

// Start brings the bot online. It returns once everything is running;
// failures of supervised goroutines cancel the supervisor context.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))
	runCtx := a.sup.Context()

	a.eng.Start(runCtx)
	a.restoreReportTasks(runCtx)

	a.msgs = make(chan kit.Message, 256)
	if err := a.adapter.Start(runCtx, a.msgs); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("telegram start: %w", err)
	}

	a.sup.Go0("dispatch", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case msg := <-a.msgs:
				a.handleMessage(c, msg)
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgMgr.Watch)

	updates := a.cfgMgr.Subscribe(1)
	a.sup.Go0("config.apply", func(c context.Context) {
		defer a.cfgMgr.Unsubscribe(updates)
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(next)
			}
		}
	})

	a.startMaintenance(cfg)
	a.notifySystemd()

	a.noteStatus("Bot started")
	a.log.Info("started")
	return nil
}

// Stop shuts components down in dependency order: transport first so no
// new events arrive, then the engine, then housekeeping and persistence.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	var errs []error
	if err := a.adapter.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	a.eng.Shutdown()

	if a.maint != nil {
		mctx := a.maint.Stop()
		select {
		case <-mctx.Done():
		case <-ctx.Done():
		}
	}

	if a.sup != nil {
		a.sup.Cancel()
		if err := a.sup.Wait(ctx); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
	}

	if a.store != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.store.SaveStatus(sctx, storage.Status{Running: false, LastMessage: "Bot stopped", At: time.Now()})
		cancel()
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	_ = a.logSvc.Close()
	return errors.Join(errs...)
}

// handleMessage routes one inbound delivery: commands are answered here,
// everything else is fed to the counting core.
func (a *App) handleMessage(ctx context.Context, msg kit.Message) {
	if msg.Text == "" {
		return
	}
	if a.handleCommand(ctx, msg) {
		return
	}
	a.eng.HandleMessage(ctx, msg.ChatID, int64(msg.ID), msg.Text, msg.IsEdit)
}

// restoreReportTasks re-arms auto-report tasks persisted by /time.
func (a *App) restoreReportTasks(ctx context.Context) {
	if a.store == nil {
		return
	}
	intervals, err := a.store.LoadReportIntervals(ctx)
	if err != nil {
		a.log.Warn("report intervals restore failed", logx.Err(err))
		return
	}
	for channel, minutes := range intervals {
		if err := a.eng.ConfigureReport(channel, minutes); err != nil {
			a.log.Warn("stale report interval dropped",
				logx.Int64("chat", channel), logx.Int("minutes", minutes), logx.Err(err))
			a.forgetReportInterval(ctx, channel)
			continue
		}
		a.log.Info("auto report restored", logx.Int64("chat", channel), logx.Int("minutes", minutes))
	}
}

// applyConfig applies a hot-reloaded config: log sinks, reply throttle and
// the engine's display/debounce knobs. Token and storage changes need a
// restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logSvc.Apply(logConfig(cfg))
	a.logSvc.SetTelegramTarget(parseGroupLog(cfg.Telegram.GroupLog))

	a.sink.setRate(cfg.Counter.ReplyRatePerSec)
	a.eng.SetStyle(cfg.Counter.Style)
	if quiet, err := config.ParseDurationField("counter.quiet_window", cfg.Counter.QuietWindow); err == nil && quiet > 0 {
		a.eng.SetQuietWindow(quiet)
	}

	a.log.Info("config applied")
}

// startMaintenance schedules the periodic status flush and store
// compaction (dedup journal / WAL).
func (a *App) startMaintenance(cfg *config.Config) {
	if a.store == nil || !cfg.Maintenance.Enabled {
		return
	}
	spec := strings.TrimSpace(cfg.Maintenance.FlushSpec)
	if spec == "" {
		spec = defaultFlushSpec
	}

	a.maint = cron.New()
	_, err := a.maint.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.store.SaveStatus(ctx, storage.Status{Running: true, LastMessage: "maintenance flush", At: time.Now()}); err != nil {
			a.log.Warn("status flush failed", logx.Err(err))
		}
		if err := a.store.Compact(ctx); err != nil {
			a.log.Warn("store compact failed", logx.Err(err))
		}
	})
	if err != nil {
		a.log.Warn("maintenance disabled (bad flush_spec)", logx.String("spec", spec), logx.Err(err))
		a.maint = nil
		return
	}
	a.maint.Start()
	a.log.Info("maintenance scheduled", logx.String("spec", spec))
}

// notifySystemd signals readiness and feeds the watchdog when running
// under a systemd unit with WatchdogSec set. No-op elsewhere.
func (a *App) notifySystemd() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

// noteStatus records a last-known status line; purely operational, loss
// on restart is fine.
func (a *App) noteStatus(msg string) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.store.SaveStatus(ctx, storage.Status{Running: true, LastMessage: msg, At: time.Now()}); err != nil {
		a.log.Debug("status save failed", logx.Err(err))
	}
}

func (a *App) saveReportInterval(ctx context.Context, channel int64, minutes int) {
	if a.store == nil {
		return
	}
	if err := a.store.SaveReportInterval(ctx, channel, minutes); err != nil {
		a.log.Warn("report interval save failed", logx.Int64("chat", channel), logx.Err(err))
	}
}

func (a *App) forgetReportInterval(ctx context.Context, channel int64) {
	if a.store == nil {
		return
	}
	if err := a.store.DeleteReportInterval(ctx, channel); err != nil {
		a.log.Warn("report interval delete failed", logx.Int64("chat", channel), logx.Err(err))
	}
}

// journal returns the ledger persistence hook, nil when storage is off.
func (a *App) journal() dedup.Journal {
	if a.store == nil {
		return nil
	}
	return &storageJournal{store: a.store}
}

// storageJournal adapts the storage.Store dedup tables to dedup.Journal.
type storageJournal struct {
	store storage.Store
}

func (j *storageJournal) AppendMark(channel, seq int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return j.store.AppendDedup(ctx, channel, seq)
}

func (j *storageJournal) PurgeChannel(channel int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return j.store.PurgeDedup(ctx, channel)
}

func dedupKeys(keys []storage.DedupKey) []dedup.Key {
	out := make([]dedup.Key, 0, len(keys))
	for _, k := range keys {
		out = append(out, dedup.Key{Channel: k.Channel, Seq: k.Seq})
	}
	return out
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func parseGroupLog(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// validateConfig is the hot-reload gate: a config that fails here is
// rejected and the running one stays in effect.
func validateConfig(ctx context.Context, cfg *config.Config) error {
	_ = ctx
	if cfg == nil {
		return errors.New("nil config")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("counter.quiet_window", cfg.Counter.QuietWindow); err != nil {
		return err
	}
	if cfg.Counter.Style < 0 || cfg.Counter.Style > 3 {
		return fmt.Errorf("counter.style must be 1..3, got %d", cfg.Counter.Style)
	}
	min, max := cfg.Counter.ReportMinMinutes, cfg.Counter.ReportMaxMinutes
	if min < 0 || max < 0 || (max != 0 && min > max) {
		return fmt.Errorf("counter report bounds invalid: min=%d max=%d", min, max)
	}
	if cfg.Telegram.GroupLog != "" && parseGroupLog(cfg.Telegram.GroupLog) == 0 {
		return fmt.Errorf("telegram.group_log must be a chat id, got %q", cfg.Telegram.GroupLog)
	}
	if cfg.Storage != nil {
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}
