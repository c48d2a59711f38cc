// Package storage provides the bot's best-effort persistence layer.
//
// It currently persists:
//   - last-known bot status (operational visibility only, not authoritative)
//   - the dedup journal (so counted draw numbers survive a restart)
//   - configured auto-report intervals per channel
//
// Losing any of this on restart is acceptable; nothing in the core blocks
// on the store.
package storage
