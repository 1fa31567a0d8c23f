// Package vad provides the per-tick voice activity level.
// It implements an RMS energy meter with optional exponential smoothing; the
// level it produces drives the segmenter's hysteresis thresholds.
package vad
