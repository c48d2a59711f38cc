// Package engine is the counting core: it owns the dedup ledger, the edit
// debouncer, the per-channel auto-report tasks and the counter store, and
// serializes every state transition between them on a single mutex.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tallybot/internal/counter"
	"tallybot/internal/dedup"
	"tallybot/internal/extract"
	logx "tallybot/pkg/logx"
)

// Replier delivers a rendered reply to a channel. Delivery is best-effort;
// the engine logs failures and never rolls back state because of them.
type Replier interface {
	Reply(ctx context.Context, channel int64, text string) error
}

// Config carries the tunable knobs of the core.
type Config struct {
	// QuietWindow is the edit-debounce delay. Zero means 3s.
	QuietWindow time.Duration
	// Style selects the reply layout (counter.Render).
	Style int
	// MinReportMinutes/MaxReportMinutes bound ConfigureReport, inclusive.
	// Zero means 5 and 32.
	MinReportMinutes int
	MaxReportMinutes int
	// ReportUnit is what "one minute" of a report interval means. It exists
	// so tests can shrink cycles; zero means time.Minute.
	ReportUnit time.Duration
}

func (c *Config) fillDefaults() {
	if c.QuietWindow <= 0 {
		c.QuietWindow = 3 * time.Second
	}
	if c.MinReportMinutes <= 0 {
		c.MinReportMinutes = 5
	}
	if c.MaxReportMinutes <= 0 {
		c.MaxReportMinutes = 32
	}
	if c.ReportUnit <= 0 {
		c.ReportUnit = time.Minute
	}
}

// reportZone is the fixed offset used for report timestamps.
var reportZone = time.FixedZone("UTC+1", 3600)

type editKey struct {
	Channel   int64
	MessageID int64
}

type editSlot struct {
	text  string
	timer *time.Timer
	gen   uint64
}

type reportTask struct {
	minutes int
	cancel  context.CancelFunc
}

// Engine is the core state object. All fields behind mu; the mutex orders
// inbound processing, debounce firing, report cycles and resets, which is
// what keeps a late-firing debounce timer from resurrecting state a reset
// just cleared.
type Engine struct {
	cfg      Config
	counters *counter.Store
	ledger   *dedup.Ledger
	replier  Replier
	log      logx.Logger

	mu      sync.Mutex
	slots   map[editKey]*editSlot
	reports map[int64]*reportTask
	nextGen uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires the core together. counters and ledger are owned by the caller
// so the app can seed them from storage before Start.
func New(cfg Config, counters *counter.Store, ledger *dedup.Ledger, replier Replier, log logx.Logger) *Engine {
	cfg.fillDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:      cfg,
		counters: counters,
		ledger:   ledger,
		replier:  replier,
		log:      log,
		slots:    map[editKey]*editSlot{},
		reports:  map[int64]*reportTask{},
	}
}

// Start binds the engine to ctx. Report tasks and debounce fires are
// children of this context; Shutdown (or ctx cancellation) stops them.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
}

// Shutdown cancels every live task and pending edit slot, then waits for
// report loops to drain.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	for ch, t := range e.reports {
		t.cancel()
		delete(e.reports, ch)
	}
	for k, s := range e.slots {
		s.timer.Stop()
		delete(e.slots, k)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// SetStyle applies a new reply style at runtime.
func (e *Engine) SetStyle(style int) {
	e.mu.Lock()
	e.cfg.Style = style
	e.mu.Unlock()
}

// SetQuietWindow applies a new debounce window; pending slots keep the
// window they were scheduled with.
func (e *Engine) SetQuietWindow(d time.Duration) {
	if d <= 0 {
		return
	}
	e.mu.Lock()
	e.cfg.QuietWindow = d
	e.mu.Unlock()
}

// HandleMessage is the single entry point for inbound deliveries. New
// messages run the pipeline immediately; edits are debounced per
// (channel, message id) and only the last text of a burst is processed.
func (e *Engine) HandleMessage(ctx context.Context, channel, messageID int64, text string, isEdit bool) {
	if isEdit {
		e.scheduleEdit(channel, messageID, text)
		return
	}

	e.mu.Lock()
	reply, ok := e.applyLocked(channel, text)
	e.mu.Unlock()
	if ok {
		e.deliver(ctx, channel, reply)
	}
}

// scheduleEdit replaces any pending slot for the same message: the old
// timer is stopped and the generation bumped, so an already-fired timer
// for the superseded slot becomes a no-op.
func (e *Engine) scheduleEdit(channel, messageID int64, text string) {
	k := editKey{Channel: channel, MessageID: messageID}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.slots[k]; ok {
		prev.timer.Stop()
	}
	e.nextGen++
	gen := e.nextGen
	slot := &editSlot{text: text, gen: gen}
	slot.timer = time.AfterFunc(e.cfg.QuietWindow, func() {
		e.fireEdit(k, gen)
	})
	e.slots[k] = slot
}

// fireEdit runs when a quiet window elapses. The slot is only processed if
// it is still the live owner of its key; a reset or a newer edit in the
// meantime makes this a no-op.
func (e *Engine) fireEdit(k editKey, gen uint64) {
	e.mu.Lock()
	slot, ok := e.slots[k]
	if !ok || slot.gen != gen {
		e.mu.Unlock()
		return
	}
	delete(e.slots, k)
	if e.ctx == nil || e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	reply, proceed := e.applyLocked(k.Channel, slot.text)
	ctx := e.ctx
	e.mu.Unlock()

	if proceed {
		e.deliver(ctx, k.Channel, reply)
	}
}

// applyLocked is the event pipeline (confirmation gate, dedup gate,
// extraction, increments, render). Caller holds e.mu. It returns the
// rendered reply and whether anything was counted.
func (e *Engine) applyLocked(channel int64, text string) (string, bool) {
	if !extract.HasConfirmation(text) {
		e.log.Debug("message without confirmation ignored", logx.Int64("chat", channel))
		return "", false
	}

	if seq, ok := extract.Sequence(text); ok {
		if !e.ledger.TryMark(channel, seq) {
			e.log.Debug("duplicate draw ignored",
				logx.Int64("chat", channel), logx.Int64("seq", seq))
			return "", false
		}
	}

	counts, ok := extract.Counts(text)
	if !ok {
		e.log.Debug("no suit symbols extracted", logx.Int64("chat", channel))
		return "", false
	}

	for sym, n := range counts {
		e.counters.Add(channel, sym, n)
	}
	return counter.Render(e.counters.Get(channel), e.cfg.Style), true
}

func (e *Engine) deliver(ctx context.Context, channel int64, text string) {
	if err := e.replier.Reply(ctx, channel, text); err != nil {
		e.log.Warn("reply delivery failed", logx.Int64("chat", channel), logx.Err(err))
	}
}

// ConfigureReport validates the interval, replaces any existing task for
// the channel and starts a new recurring report cycle. Start must have
// been called first.
func (e *Engine) ConfigureReport(channel int64, minutes int) error {
	if minutes < e.cfg.MinReportMinutes || minutes > e.cfg.MaxReportMinutes {
		return fmt.Errorf("interval %d out of range [%d, %d]",
			minutes, e.cfg.MinReportMinutes, e.cfg.MaxReportMinutes)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return fmt.Errorf("engine not started")
	}
	if e.ctx.Err() != nil {
		return e.ctx.Err()
	}

	if prev, ok := e.reports[channel]; ok {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.reports[channel] = &reportTask{minutes: minutes, cancel: cancel}
	e.wg.Add(1)
	go e.reportLoop(ctx, channel, minutes)
	return nil
}

// CancelReport stops the channel's report task if one exists.
func (e *Engine) CancelReport(channel int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.reports[channel]
	if !ok {
		return false
	}
	t.cancel()
	delete(e.reports, channel)
	return true
}

// ReportMinutes returns the channel's configured interval, if any.
func (e *Engine) ReportMinutes(channel int64) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.reports[channel]
	if !ok {
		return 0, false
	}
	return t.minutes, true
}

// reportLoop sleeps for the interval, then snapshots and zeroes the
// channel under the engine mutex, purges its dedup keys, and emits the
// report from the snapshot. A failed cycle is logged and the loop carries
// on to the next interval.
func (e *Engine) reportLoop(ctx context.Context, channel int64, minutes int) {
	defer e.wg.Done()
	interval := time.Duration(minutes) * e.cfg.ReportUnit
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		e.mu.Lock()
		if ctx.Err() != nil {
			// Cancelled while waiting for the lock; the channel may have
			// been reset, do not touch its state.
			e.mu.Unlock()
			return
		}
		totals := e.counters.SnapshotAndReset(channel)
		purged := e.ledger.Purge(channel)
		e.mu.Unlock()

		text := counter.RenderReport(totals, time.Now().In(reportZone))
		if err := e.replier.Reply(ctx, channel, text); err != nil {
			e.log.Warn("report delivery failed", logx.Int64("chat", channel), logx.Err(err))
		} else {
			e.log.Info("auto report sent",
				logx.Int64("chat", channel), logx.Int("cards", totals.Sum()), logx.Int("purged", purged))
		}

		timer.Reset(interval)
	}
}

// Reset is the channel-scoped compensating transaction: it cancels the
// report task, drops every pending edit slot of the channel, purges the
// dedup ledger and zeroes the counters. Slot cancellation happens before
// the purge, under the same mutex a firing timer must take, so no stale
// edit can re-insert keys afterwards.
func (e *Engine) Reset(channel int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.reports[channel]; ok {
		t.cancel()
		delete(e.reports, channel)
	}
	for k, s := range e.slots {
		if k.Channel == channel {
			s.timer.Stop()
			delete(e.slots, k)
		}
	}
	e.ledger.Purge(channel)
	e.counters.SnapshotAndReset(channel)
}
