// Package pipeline implements the two-pass translation pipeline.
//
// Every finalized utterance gets a mandatory, context-free Fast Pass whose
// result is shown immediately as a provisional record. When the cost-control
// gate flags the utterance, a Quality Pass runs concurrently with a richer
// prompt (recent conversation turns plus the domain glossary), is scored by
// the quality gate with a bounded retry, and silently upgrades the record if
// the race guard still approves. Records carry a version and the session key
// they were created under; the Store serializes every write so a race guard
// check and the mutation it allows happen atomically.
package pipeline
