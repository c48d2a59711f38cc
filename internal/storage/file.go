package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "tallybot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.status.json         (atomic overwrite)
//   - <prefix>.reports.json        (atomic overwrite)
//   - <prefix>.dedup.snapshot.json (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	statusPath  string
	reportsPath string

	dedupSnapshotPath string
	dedupJournalFile  *os.File
	dedup             map[DedupKey]struct{}

	dedupWrites int
}

// journalRecord is one dedup journal line. Purge=true clears every key of
// the channel seen so far during replay.
type journalRecord struct {
	Channel int64 `json:"chat"`
	Seq     int64 `json:"seq,omitempty"`
	Purge   bool  `json:"purge,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	dedup := map[DedupKey]struct{}{}
	_ = loadDedupSnapshot(snapPath, dedup)
	_ = replayDedupJournal(journalPath, dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:               log,
		statusPath:        prefix + ".status.json",
		reportsPath:       prefix + ".reports.json",
		dedupSnapshotPath: snapPath,
		dedupJournalFile:  jf,
		dedup:             dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile != nil {
		err := s.dedupJournalFile.Close()
		s.dedupJournalFile = nil
		return err
	}
	return nil
}

func (s *fileStore) SaveStatus(ctx context.Context, st Status) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.statusPath, st)
}

func (s *fileStore) LoadStatus(ctx context.Context) (Status, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Status
	b, err := os.ReadFile(s.statusPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Status{}, false, nil
		}
		return Status{}, false, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return Status{}, false, err
	}
	return st, true, nil
}

func (s *fileStore) AppendDedup(ctx context.Context, channel, seq int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}
	s.dedup[DedupKey{Channel: channel, Seq: seq}] = struct{}{}
	if err := json.NewEncoder(s.dedupJournalFile).Encode(journalRecord{Channel: channel, Seq: seq}); err != nil {
		return err
	}
	s.dedupWrites++
	if s.dedupWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("dedup compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) PurgeDedup(ctx context.Context, channel int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}
	for k := range s.dedup {
		if k.Channel == channel {
			delete(s.dedup, k)
		}
	}
	return json.NewEncoder(s.dedupJournalFile).Encode(journalRecord{Channel: channel, Purge: true})
}

func (s *fileStore) LoadDedup(ctx context.Context) ([]DedupKey, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]DedupKey, 0, len(s.dedup))
	for k := range s.dedup {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *fileStore) SaveReportInterval(ctx context.Context, channel int64, minutes int) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadReportsLocked()
	if err != nil {
		return err
	}
	m[channel] = minutes
	return writeJSONAtomic(s.reportsPath, encodeReports(m))
}

func (s *fileStore) DeleteReportInterval(ctx context.Context, channel int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.loadReportsLocked()
	if err != nil {
		return err
	}
	if _, ok := m[channel]; !ok {
		return nil
	}
	delete(m, channel)
	return writeJSONAtomic(s.reportsPath, encodeReports(m))
}

func (s *fileStore) LoadReportIntervals(ctx context.Context) (map[int64]int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadReportsLocked()
}

func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

// loadReportsLocked reads the reports file fresh each time; the file is the
// source of truth so concurrent processes at least don't clobber stale
// in-memory copies.
func (s *fileStore) loadReportsLocked() (map[int64]int, error) {
	b, err := os.ReadFile(s.reportsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[int64]int{}, nil
		}
		return nil, err
	}
	var raw map[string]int
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	return decodeReports(raw), nil
}

func (s *fileStore) compactLocked() error {
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}

	keys := make([]DedupKey, 0, len(s.dedup))
	for k := range s.dedup {
		keys = append(keys, k)
	}
	if err := writeJSONAtomic(s.dedupSnapshotPath, keys); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.dedupJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.dedupJournalFile.Seek(0, 2)
	return err
}

func loadDedupSnapshot(path string, out map[DedupKey]struct{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var keys []DedupKey
	if err := json.Unmarshal(b, &keys); err != nil {
		return err
	}
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return nil
}

func replayDedupJournal(path string, out map[DedupKey]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Purge {
			for k := range out {
				if k.Channel == r.Channel {
					delete(out, k)
				}
			}
			continue
		}
		out[DedupKey{Channel: r.Channel, Seq: r.Seq}] = struct{}{}
	}
	return sc.Err()
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encodeReports(m map[int64]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strconv.FormatInt(k, 10)] = v
	}
	return out
}

func decodeReports(raw map[string]int) map[int64]int {
	out := make(map[int64]int, len(raw))
	for k, v := range raw {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			out[id] = v
		}
	}
	return out
}
