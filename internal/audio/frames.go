package audio

import (
	"fmt"
	"sync"
	"time"
)

// BytesPerSample is the width of one PCM-16 sample
const BytesPerSample = 2

// FrameAssembler accumulates little-endian PCM-16 bytes arriving in arbitrary
// sizes and cuts them into fixed-size blocks, one block per segmenter tick.
type FrameAssembler struct {
	sampleRate   int
	frameSamples int

	pending []byte

	// Statistics
	bytesReceived  uint64
	framesProduced uint64
	lastUpdate     time.Time

	mu sync.Mutex
}

// AssemblerStats represents assembler statistics for monitoring
type AssemblerStats struct {
	SampleRate     int       `json:"sample_rate"`
	FrameSamples   int       `json:"frame_samples"`
	BytesReceived  uint64    `json:"bytes_received"`
	FramesProduced uint64    `json:"frames_produced"`
	PendingBytes   int       `json:"pending_bytes"`
	LastUpdate     time.Time `json:"last_update"`
}

// NewFrameAssembler creates an assembler producing blocks of tickPeriod at sampleRate
func NewFrameAssembler(sampleRate int, tickPeriod time.Duration) (*FrameAssembler, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	frameSamples := int(int64(sampleRate) * int64(tickPeriod) / int64(time.Second))
	if frameSamples <= 0 {
		return nil, fmt.Errorf("tick period %v is too short for sample rate %d", tickPeriod, sampleRate)
	}

	return &FrameAssembler{
		sampleRate:   sampleRate,
		frameSamples: frameSamples,
		pending:      make([]byte, 0, frameSamples*BytesPerSample*4),
	}, nil
}

// Write appends raw PCM bytes and returns every complete frame now available.
// A trailing odd byte is carried over to the next write.
func (f *FrameAssembler) Write(raw []byte) [][]int16 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bytesReceived += uint64(len(raw))
	f.lastUpdate = time.Now()
	f.pending = append(f.pending, raw...)

	frameBytes := f.frameSamples * BytesPerSample
	var frames [][]int16
	for len(f.pending) >= frameBytes {
		frames = append(frames, BytesToSamples(f.pending[:frameBytes]))
		f.pending = f.pending[frameBytes:]
		f.framesProduced++
	}

	// Compact so the backing array does not grow without bound
	if cap(f.pending) > frameBytes*8 {
		rest := make([]byte, len(f.pending), frameBytes*4)
		copy(rest, f.pending)
		f.pending = rest
	}

	return frames
}

// FrameSamples returns the number of samples in each produced frame
func (f *FrameAssembler) FrameSamples() int {
	return f.frameSamples
}

// Reset drops any partial frame
func (f *FrameAssembler) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = f.pending[:0]
}

// GetStats returns current assembler statistics
func (f *FrameAssembler) GetStats() AssemblerStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	return AssemblerStats{
		SampleRate:     f.sampleRate,
		FrameSamples:   f.frameSamples,
		BytesReceived:  f.bytesReceived,
		FramesProduced: f.framesProduced,
		PendingBytes:   len(f.pending),
		LastUpdate:     f.lastUpdate,
	}
}

// BytesToSamples converts little-endian PCM-16 bytes to samples; an odd trailing byte is ignored
func BytesToSamples(raw []byte) []int16 {
	n := len(raw) / BytesPerSample
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts samples to little-endian PCM-16 bytes
func SamplesToBytes(samples []int16) []byte {
	raw := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(uint16(s) >> 8)
	}
	return raw
}
