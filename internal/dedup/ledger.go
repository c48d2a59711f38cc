// Package dedup tracks which (channel, sequence) draws have already been
// counted, so re-deliveries and re-edits of the same numbered draw are
// applied exactly once per channel lifetime.
package dedup

import (
	"sync"

	logx "tallybot/pkg/logx"
)

// Key identifies one processed draw.
type Key struct {
	Channel int64
	Seq     int64
}

// Journal receives best-effort persistence callbacks for ledger mutations.
// Implementations must not block for long; errors are logged and ignored,
// the in-memory ledger is always authoritative.
type Journal interface {
	AppendMark(channel, seq int64) error
	PurgeChannel(channel int64) error
}

// Ledger is the in-memory dedup set. The set is intentionally unbounded
// within a channel's lifetime; it is cleared by channel resets and after
// each auto-report cycle.
type Ledger struct {
	mu      sync.Mutex
	seen    map[Key]struct{}
	journal Journal
	log     logx.Logger
}

// NewLedger creates an empty ledger. journal may be nil (no persistence).
func NewLedger(journal Journal, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{seen: map[Key]struct{}{}, journal: journal, log: log}
}

// Seed loads previously-persisted keys, typically at startup.
func (l *Ledger) Seed(keys []Key) {
	l.mu.Lock()
	for _, k := range keys {
		l.seen[k] = struct{}{}
	}
	l.mu.Unlock()
}

// TryMark records the key and returns true if it was not present; it
// returns false (no mutation) for an already-seen key. This is the sole
// gate deciding whether a numbered draw is processed.
func (l *Ledger) TryMark(channel, seq int64) bool {
	k := Key{Channel: channel, Seq: seq}
	l.mu.Lock()
	if _, dup := l.seen[k]; dup {
		l.mu.Unlock()
		return false
	}
	l.seen[k] = struct{}{}
	l.mu.Unlock()

	if l.journal != nil {
		if err := l.journal.AppendMark(channel, seq); err != nil {
			l.log.Debug("dedup journal append failed",
				logx.Int64("chat", channel), logx.Int64("seq", seq), logx.Err(err))
		}
	}
	return true
}

// Purge removes every key belonging to the channel and returns how many
// were dropped.
func (l *Ledger) Purge(channel int64) int {
	l.mu.Lock()
	n := 0
	for k := range l.seen {
		if k.Channel == channel {
			delete(l.seen, k)
			n++
		}
	}
	l.mu.Unlock()

	if l.journal != nil && n > 0 {
		if err := l.journal.PurgeChannel(channel); err != nil {
			l.log.Debug("dedup journal purge failed", logx.Int64("chat", channel), logx.Err(err))
		}
	}
	return n
}

// Len reports the current number of keys (observability only).
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}
