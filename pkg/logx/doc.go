// Package logx configures the bot's structured logging.
//
// It is a small wrapper (logx.Logger) on top of zerolog that keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, size-rotated via lumberjack
//   - Optional Telegram sink (min-level + rate limiting) so owners can
//     watch warnings without shell access
package logx
