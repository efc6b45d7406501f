package storage

// Package storage provides a minimal persistence layer used by the bot.
//
// It currently supports:
//   - Broadcast audit appends (cycle outcomes, operator actions)
//   - Notifier dedup state (so a restart does not re-alert)
