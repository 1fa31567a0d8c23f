// Package stream runs live conversation sessions. A session cuts incoming PCM
// into ticks, meters them, drives the segmenter, transcribes finalized segments
// and hands the text to the translation pipeline. The manager owns all
// sessions and removes idle ones.
package stream
