// Package menu implements the owner-facing control surface: the inline
// settings menu, its per-owner input state machine, and the owner command
// set (/menu, /status, /import, /broadcast, ...). Every edit flows through
// the settings store; the broadcast engine picks changes up from there.
package menu
