package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "tallybot/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return st
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: got (%v, %v), want (nil, nil)", driver, st, err)
		}
	}
	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver must error")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t, dir)
	defer st.Close()

	if _, ok, err := st.LoadStatus(ctx); err != nil || ok {
		t.Fatalf("fresh store: (%v, %v)", ok, err)
	}

	want := Status{Running: true, LastMessage: "hello", At: time.Now().Truncate(time.Second)}
	if err := st.SaveStatus(ctx, want); err != nil {
		t.Fatalf("SaveStatus: %v", err)
	}
	got, ok, err := st.LoadStatus(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadStatus: (%v, %v)", ok, err)
	}
	if got.LastMessage != want.LastMessage || got.Running != want.Running {
		t.Fatalf("status = %+v, want %+v", got, want)
	}
}

func TestDedupSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st := openTestStore(t, dir)
	if err := st.AppendDedup(ctx, 1, 42); err != nil {
		t.Fatalf("AppendDedup: %v", err)
	}
	if err := st.AppendDedup(ctx, 1, 43); err != nil {
		t.Fatalf("AppendDedup: %v", err)
	}
	if err := st.AppendDedup(ctx, 2, 42); err != nil {
		t.Fatalf("AppendDedup: %v", err)
	}
	if err := st.PurgeDedup(ctx, 2); err != nil {
		t.Fatalf("PurgeDedup: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openTestStore(t, dir)
	defer st.Close()
	keys, err := st.LoadDedup(ctx)
	if err != nil {
		t.Fatalf("LoadDedup: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want the 2 channel-1 keys", keys)
	}
	for _, k := range keys {
		if k.Channel != 1 {
			t.Fatalf("purged channel key survived reopen: %v", k)
		}
	}
}

func TestDedupCompactPreservesKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st := openTestStore(t, dir)
	for seq := int64(1); seq <= 10; seq++ {
		if err := st.AppendDedup(ctx, 5, seq); err != nil {
			t.Fatalf("AppendDedup: %v", err)
		}
	}
	if err := st.Compact(ctx); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st = openTestStore(t, dir)
	defer st.Close()
	keys, err := st.LoadDedup(ctx)
	if err != nil {
		t.Fatalf("LoadDedup: %v", err)
	}
	if len(keys) != 10 {
		t.Fatalf("got %d keys after compact+reopen, want 10", len(keys))
	}
}

func TestReportIntervalsRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st := openTestStore(t, dir)
	defer st.Close()

	if err := st.SaveReportInterval(ctx, -100200, 15); err != nil {
		t.Fatalf("SaveReportInterval: %v", err)
	}
	if err := st.SaveReportInterval(ctx, 7, 5); err != nil {
		t.Fatalf("SaveReportInterval: %v", err)
	}
	if err := st.SaveReportInterval(ctx, 7, 10); err != nil {
		t.Fatalf("SaveReportInterval overwrite: %v", err)
	}
	if err := st.DeleteReportInterval(ctx, 999); err != nil {
		t.Fatalf("DeleteReportInterval absent: %v", err)
	}

	got, err := st.LoadReportIntervals(ctx)
	if err != nil {
		t.Fatalf("LoadReportIntervals: %v", err)
	}
	if len(got) != 2 || got[-100200] != 15 || got[7] != 10 {
		t.Fatalf("intervals = %v", got)
	}

	if err := st.DeleteReportInterval(ctx, 7); err != nil {
		t.Fatalf("DeleteReportInterval: %v", err)
	}
	got, err = st.LoadReportIntervals(ctx)
	if err != nil {
		t.Fatalf("LoadReportIntervals: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("intervals after delete = %v", got)
	}
}
