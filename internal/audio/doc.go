// Package audio handles PCM framing and format conversion.
// It cuts the incoming little-endian PCM-16 byte stream into fixed tick-sized
// blocks for the segmenter and encodes finished segments as WAV for transcription.
package audio
