package counter

import "sync"

// Store keeps per-channel suit tallies.
//
// All operations are serialized on one mutex, so concurrent increments are
// never lost and SnapshotAndReset is atomic with respect to increments on
// the same channel: a racing increment lands either entirely before the
// reset (and shows up in the snapshot) or entirely after it.
type Store struct {
	mu     sync.Mutex
	byChan map[int64]Totals
}

func NewStore() *Store {
	return &Store{byChan: map[int64]Totals{}}
}

// Add increments sym by n for the channel, creating the record lazily.
// Non-positive amounts are ignored.
func (s *Store) Add(channel int64, sym Symbol, n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	t := s.byChan[channel]
	if t == nil {
		t = zeroTotals()
		s.byChan[channel] = t
	}
	t[sym] += n
	s.mu.Unlock()
}

// Get returns a copy of the channel's current totals (all-zero if the
// channel has never been seen).
func (s *Store) Get(channel int64) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byChan[channel]
	if t == nil {
		return zeroTotals()
	}
	return t.clone()
}

// SnapshotAndReset atomically returns the channel's totals and zeroes them.
func (s *Store) SnapshotAndReset(channel int64) Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byChan[channel]
	if t == nil {
		return zeroTotals()
	}
	snap := t.clone()
	s.byChan[channel] = zeroTotals()
	return snap
}
