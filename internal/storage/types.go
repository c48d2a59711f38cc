package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Status is the last-known process state, written best-effort for
// operational visibility.
type Status struct {
	Running     bool      `json:"running"`
	LastMessage string    `json:"last_message,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// DedupKey is a persisted (channel, sequence) mark.
type DedupKey struct {
	Channel int64 `json:"chat"`
	Seq     int64 `json:"seq"`
}
