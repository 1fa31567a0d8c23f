// Package raceguard decides whether a late background result is still safe to
// apply. A result is applied only when the conversation session is unchanged,
// the record has not been updated since the work started, and the work
// finished within the soft timeout. Vetoed results are dropped silently.
package raceguard
