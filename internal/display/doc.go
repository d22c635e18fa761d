// Package display renders connection status for a headless appliance.
//
// Three presenters are provided:
//
//   - Terminal: prints a bordered status card per change (log-friendly)
//   - Program: a full-screen Bubble Tea view with a spinner for loading states
//   - Multi: sends every call to several presenters
//
// Status messages are plain text; the first line becomes the card title.
//
// Confirm is the typed-phrase prompt used by destructive CLI commands.
package display
