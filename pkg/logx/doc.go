// Package logx wraps zerolog behind a small structured-logging API.
//
// It provides:
//   - a Field-based call style (String, Int, Err, ...) shared by all sinks
//   - a Service whose sinks/levels can be swapped at runtime via Apply()
//   - console, file and (rate-limited) Telegram sinks
package logx
