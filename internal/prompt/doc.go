// Package prompt builds translation prompts. Every function is a pure mapping
// from the utterance, language pair, context window and glossary to a string.
package prompt
