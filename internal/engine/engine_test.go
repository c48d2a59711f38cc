package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tallybot/internal/counter"
	"tallybot/internal/dedup"
	logx "tallybot/pkg/logx"
)

type captureReplier struct {
	mu      sync.Mutex
	replies []string
	fail    bool
}

func (r *captureReplier) Reply(ctx context.Context, channel int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("send failed")
	}
	r.replies = append(r.replies, text)
	return nil
}

func (r *captureReplier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

func (r *captureReplier) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return ""
	}
	return r.replies[len(r.replies)-1]
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *counter.Store, *captureReplier) {
	t.Helper()
	counters := counter.NewStore()
	ledger := dedup.NewLedger(nil, logx.Nop())
	rep := &captureReplier{}
	e := New(cfg, counters, ledger, rep, logx.Nop())
	e.Start(context.Background())
	t.Cleanup(e.Shutdown)
	return e, counters, rep
}

func TestProcessCountsAndReplies(t *testing.T) {
	e, counters, rep := newTestEngine(t, Config{})

	e.HandleMessage(context.Background(), 1, 100, "Win #n42 ✅ (♥️♥️♦️)", false)

	got := counters.Get(1)
	if got[counter.Hearts] != 2 || got[counter.Diamonds] != 1 {
		t.Fatalf("totals = %v, want hearts 2 diamonds 1", got)
	}
	if rep.count() != 1 {
		t.Fatalf("replies = %d, want 1", rep.count())
	}
	if !strings.Contains(rep.last(), "Total :** 3") {
		t.Fatalf("reply should show post-increment totals:\n%s", rep.last())
	}
}

func TestDuplicateSequenceIgnored(t *testing.T) {
	e, counters, rep := newTestEngine(t, Config{})

	text := "Win #n42 ✅ (♥️♥️♦️)"
	e.HandleMessage(context.Background(), 1, 100, text, false)
	e.HandleMessage(context.Background(), 1, 101, text, false)

	if got := counters.Get(1).Sum(); got != 3 {
		t.Fatalf("duplicate was counted: sum = %d, want 3", got)
	}
	if rep.count() != 1 {
		t.Fatalf("duplicate produced a reply: %d", rep.count())
	}
}

func TestSequenceScopedPerChannel(t *testing.T) {
	e, counters, _ := newTestEngine(t, Config{})

	text := "Win #n42 ✅ (♦️)"
	e.HandleMessage(context.Background(), 1, 100, text, false)
	e.HandleMessage(context.Background(), 2, 100, text, false)

	if counters.Get(1)[counter.Diamonds] != 1 || counters.Get(2)[counter.Diamonds] != 1 {
		t.Fatalf("channels must count independently")
	}
}

func TestRejections(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no confirmation marker", "Win #n42 (♥️♥️♦️)"},
		{"no parentheses", "Win #n42 ✅ ♥️♦️"},
		{"no suits in parentheses", "Win #n42 ✅ (rien)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, counters, rep := newTestEngine(t, Config{})
			e.HandleMessage(context.Background(), 1, 100, tc.text, false)
			if counters.Get(1).Sum() != 0 {
				t.Fatalf("rejected text incremented counters")
			}
			if rep.count() != 0 {
				t.Fatalf("rejected text produced a reply")
			}
		})
	}
}

func TestMessageWithoutSequenceStillCounts(t *testing.T) {
	e, counters, _ := newTestEngine(t, Config{})

	e.HandleMessage(context.Background(), 1, 100, "tirage ✅ (♠️)", false)
	e.HandleMessage(context.Background(), 1, 101, "tirage ✅ (♠️)", false)

	if got := counters.Get(1)[counter.Spades]; got != 2 {
		t.Fatalf("unnumbered draws must not be deduplicated: spades = %d, want 2", got)
	}
}

func TestEditBurstProcessedOnce(t *testing.T) {
	e, counters, rep := newTestEngine(t, Config{QuietWindow: 40 * time.Millisecond})

	ctx := context.Background()
	e.HandleMessage(ctx, 1, 100, "tirage ✅ (♥️)", true)
	e.HandleMessage(ctx, 1, 100, "tirage ✅ (♥️♥️)", true)
	e.HandleMessage(ctx, 1, 100, "tirage ✅ (♦️♦️♦️)", true)

	time.Sleep(200 * time.Millisecond)

	got := counters.Get(1)
	if got[counter.Diamonds] != 3 || got[counter.Hearts] != 0 {
		t.Fatalf("only the last edit must be counted, got %v", got)
	}
	if rep.count() != 1 {
		t.Fatalf("edit burst produced %d replies, want 1", rep.count())
	}
}

func TestIndependentMessagesDebounceSeparately(t *testing.T) {
	e, counters, _ := newTestEngine(t, Config{QuietWindow: 40 * time.Millisecond})

	ctx := context.Background()
	e.HandleMessage(ctx, 1, 100, "tirage ✅ (♥️)", true)
	e.HandleMessage(ctx, 1, 200, "tirage ✅ (♠️)", true)

	time.Sleep(200 * time.Millisecond)

	got := counters.Get(1)
	if got[counter.Hearts] != 1 || got[counter.Spades] != 1 {
		t.Fatalf("each message id debounces on its own, got %v", got)
	}
}

func TestResetCancelsPendingEdit(t *testing.T) {
	e, counters, rep := newTestEngine(t, Config{QuietWindow: 60 * time.Millisecond})

	e.HandleMessage(context.Background(), 1, 100, "tirage ✅ (♥️)", true)
	e.Reset(1)

	time.Sleep(200 * time.Millisecond)

	if counters.Get(1).Sum() != 0 {
		t.Fatalf("cancelled edit was still processed")
	}
	if rep.count() != 0 {
		t.Fatalf("cancelled edit produced a reply")
	}
}

func TestResetDoesNotTouchOtherChannels(t *testing.T) {
	e, counters, _ := newTestEngine(t, Config{})

	e.HandleMessage(context.Background(), 1, 100, "tirage ✅ #n1 (♥️)", false)
	e.HandleMessage(context.Background(), 2, 100, "tirage ✅ #n1 (♠️)", false)
	e.Reset(1)

	if counters.Get(1).Sum() != 0 {
		t.Fatalf("reset channel must be zeroed")
	}
	if counters.Get(2)[counter.Spades] != 1 {
		t.Fatalf("reset leaked into another channel")
	}
}

func TestResetClearsDedup(t *testing.T) {
	e, counters, _ := newTestEngine(t, Config{})

	text := "Win #n42 ✅ (♦️)"
	e.HandleMessage(context.Background(), 1, 100, text, false)
	e.Reset(1)
	e.HandleMessage(context.Background(), 1, 101, text, false)

	if got := counters.Get(1)[counter.Diamonds]; got != 1 {
		t.Fatalf("after reset the same draw must count again: diamonds = %d, want 1", got)
	}
}

func TestConfigureReportBounds(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{ReportUnit: time.Hour})

	if err := e.ConfigureReport(1, 4); err == nil {
		t.Fatalf("interval 4 must be rejected")
	}
	if err := e.ConfigureReport(1, 33); err == nil {
		t.Fatalf("interval 33 must be rejected")
	}
	if err := e.ConfigureReport(1, 5); err != nil {
		t.Fatalf("interval 5 rejected: %v", err)
	}
	if err := e.ConfigureReport(1, 32); err != nil {
		t.Fatalf("interval 32 rejected: %v", err)
	}
	if min, ok := e.ReportMinutes(1); !ok || min != 32 {
		t.Fatalf("ReportMinutes = (%d, %v), want (32, true)", min, ok)
	}
}

func TestCancelReport(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{ReportUnit: time.Hour})

	if e.CancelReport(1) {
		t.Fatalf("cancel without a task must be a no-op")
	}
	if err := e.ConfigureReport(1, 10); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !e.CancelReport(1) {
		t.Fatalf("cancel must report an existing task")
	}
	if _, ok := e.ReportMinutes(1); ok {
		t.Fatalf("task still present after cancel")
	}
}

func TestReportCycleSnapshotsAndResets(t *testing.T) {
	e, counters, rep := newTestEngine(t, Config{ReportUnit: 10 * time.Millisecond})

	e.HandleMessage(context.Background(), 1, 100, "Win #n1 ✅ (♥️♥️♦️)", false)
	if err := e.ConfigureReport(1, 5); err != nil {
		t.Fatalf("configure: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rep.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rep.count() < 2 {
		t.Fatalf("expected a report after the interval, got %d replies", rep.count())
	}

	report := ""
	rep.mu.Lock()
	for _, r := range rep.replies {
		if strings.Contains(r, "Bilan automatique") {
			report = r
			break
		}
	}
	rep.mu.Unlock()
	if report == "" {
		t.Fatalf("no auto report emitted")
	}
	if !strings.Contains(report, "**Coeur :** 2 ✅") || !strings.Contains(report, "**Carreau :** 1 ✅") {
		t.Fatalf("report must reflect pre-reset counts:\n%s", report)
	}

	e.CancelReport(1)
	if got := counters.Get(1).Sum(); got != 0 {
		t.Fatalf("counters not zeroed after report: %d", got)
	}
}

func TestReportCyclePurgesDedup(t *testing.T) {
	e, counters, rep := newTestEngine(t, Config{ReportUnit: 10 * time.Millisecond})

	text := "Win #n9 ✅ (♠️)"
	e.HandleMessage(context.Background(), 1, 100, text, false)
	if err := e.ConfigureReport(1, 5); err != nil {
		t.Fatalf("configure: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rep.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	e.CancelReport(1)

	e.HandleMessage(context.Background(), 1, 101, text, false)
	if got := counters.Get(1)[counter.Spades]; got != 1 {
		t.Fatalf("dedup keys must be purged each cycle: spades = %d, want 1", got)
	}
}

func TestReportDeliveryFailureKeepsLoopAlive(t *testing.T) {
	e, _, rep := newTestEngine(t, Config{ReportUnit: 10 * time.Millisecond})
	rep.mu.Lock()
	rep.fail = true
	rep.mu.Unlock()

	if err := e.ConfigureReport(1, 5); err != nil {
		t.Fatalf("configure: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	rep.mu.Lock()
	rep.fail = false
	rep.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for rep.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if rep.count() == 0 {
		t.Fatalf("report loop died after a delivery failure")
	}
}

func TestReconfigureReplacesTask(t *testing.T) {
	e, _, _ := newTestEngine(t, Config{ReportUnit: time.Hour})

	if err := e.ConfigureReport(1, 5); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := e.ConfigureReport(1, 10); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if min, _ := e.ReportMinutes(1); min != 10 {
		t.Fatalf("ReportMinutes = %d, want 10", min)
	}
}

func TestShutdownStopsTasks(t *testing.T) {
	counters := counter.NewStore()
	ledger := dedup.NewLedger(nil, logx.Nop())
	rep := &captureReplier{}
	e := New(Config{QuietWindow: 30 * time.Millisecond, ReportUnit: 10 * time.Millisecond}, counters, ledger, rep, logx.Nop())
	e.Start(context.Background())

	e.HandleMessage(context.Background(), 1, 100, "tirage ✅ (♥️)", true)
	if err := e.ConfigureReport(1, 5); err != nil {
		t.Fatalf("configure: %v", err)
	}

	e.Shutdown()
	before := rep.count()
	time.Sleep(150 * time.Millisecond)
	if rep.count() != before {
		t.Fatalf("tasks still running after Shutdown")
	}
	if counters.Get(1).Sum() != 0 {
		t.Fatalf("pending edit fired after Shutdown")
	}
}
