// Package logx configures pitstop's structured logging.
//
// The package wraps zerolog behind a small Logger facade and can emit logs
// to multiple sinks:
//   - Console (human-friendly pretty output)
//   - File (JSON, append-only)
//
// Sinks and levels can be swapped at runtime via Service.Apply, which is how
// config hot reload re-targets logging without restarting the daemon.
// Loggers handed out by Service stay live across Apply calls.
package logx
