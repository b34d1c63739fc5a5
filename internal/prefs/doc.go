// Package prefs holds the user-facing settings (date format, daily
// notification time, theme mode, dynamic colors) and their persistence.
//
// The Store is handed a key-value backend explicitly; nothing in this
// package keeps global state.
package prefs
