package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Meter converts a block of PCM samples into a normalized activity level
// in [0, 1]. It is the energy-threshold signal the segmenter consumes; any
// detector that yields a comparable level per tick can replace it.
type Meter struct {
	fullScale float64 // RMS that maps to level 1.0
	smoothing float64 // weight of the newest block, 1 disables smoothing

	lastLevel   float64
	peakLevel   float64
	totalFrames uint64
	lastFrame   time.Time

	mu sync.Mutex
}

// MeterStats represents meter statistics
type MeterStats struct {
	TotalFrames uint64    `json:"total_frames"`
	LastLevel   float64   `json:"last_level"`
	PeakLevel   float64   `json:"peak_level"`
	LastFrame   time.Time `json:"last_frame"`
	FullScale   float64   `json:"full_scale"`
	Smoothing   float64   `json:"smoothing"`
}

// NewMeter creates an activity meter
func NewMeter(fullScale, smoothing float64) (*Meter, error) {
	if fullScale <= 0 || fullScale > math.MaxInt16 {
		return nil, fmt.Errorf("full scale must be in (0, %d], got %f", math.MaxInt16, fullScale)
	}
	if smoothing <= 0 || smoothing > 1 {
		return nil, fmt.Errorf("smoothing must be in (0, 1], got %f", smoothing)
	}

	return &Meter{
		fullScale: fullScale,
		smoothing: smoothing,
	}, nil
}

// Level returns the activity level for one block of samples
func (m *Meter) Level(samples []int16) float64 {
	level := RMS(samples) / m.fullScale
	if level > 1 {
		level = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.totalFrames > 0 {
		level = m.smoothing*level + (1-m.smoothing)*m.lastLevel
	}
	m.lastLevel = level
	if level > m.peakLevel {
		m.peakLevel = level
	}
	m.totalFrames++
	m.lastFrame = time.Now()

	return level
}

// Reset clears smoothing state and statistics
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastLevel = 0
	m.peakLevel = 0
	m.totalFrames = 0
	m.lastFrame = time.Time{}
}

// GetStats returns current meter statistics
func (m *Meter) GetStats() MeterStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MeterStats{
		TotalFrames: m.totalFrames,
		LastLevel:   m.lastLevel,
		PeakLevel:   m.peakLevel,
		LastFrame:   m.lastFrame,
		FullScale:   m.fullScale,
		Smoothing:   m.smoothing,
	}
}

// RMS returns the root-mean-square amplitude of samples
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}
	return math.Sqrt(energy / float64(len(samples)))
}
