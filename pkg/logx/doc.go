// Package logx is wovbot's structured logging layer.
//
// It wraps zerolog behind a small value type (logx.Logger) so that:
//   - console output stays short (compact timestamp, file:line caller)
//   - file output is JSON lines
//   - warnings and errors can be mirrored into a Telegram chat (min-level + rate limit)
package logx
