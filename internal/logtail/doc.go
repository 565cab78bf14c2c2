// Package logtail reads the end of the kiosk log file for the activity view.
//
// # Reading Log Files
//
// Read keeps a ring buffer of the last maxLines lines so large files are
// scanned once with memory proportional to the window:
//
//	lines, err := logtail.Read(cfg.LogPath(), 400)
//
// A missing file yields no lines and no error. A non-positive maxLines
// returns the whole file.
//
// # Parsing
//
// The client logs through log/slog's text handler, which writes one
// key=value record per line:
//
//	time=2026-10-19T09:15:02.123Z level=INFO msg="add rolled back" component=optimistic
//
// Parse extracts time, level and msg and keeps the remaining pairs in
// order. Quoted values are unquoted with Go string syntax. Lines in any other
// shape (panics, stack traces) come back with only the raw text and message.
package logtail
