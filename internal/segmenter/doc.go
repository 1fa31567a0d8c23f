// Package segmenter decides where one spoken utterance ends and the next begins.
// It runs a two-threshold hysteresis state machine over the per-tick activity
// level, accumulates PCM for the in-flight segment, emits partial windows, and
// enforces minimum-duration cancellation and a maximum-duration forced cutoff.
package segmenter
