// Package tui renders gateway activity with bubbletea: a spinner while any
// call is loading, the most recent notification and the settled results.
package tui
