package audio

import (
	"testing"
	"time"
)

func TestNewFrameAssembler(t *testing.T) {
	tests := []struct {
		name         string
		sampleRate   int
		tickPeriod   time.Duration
		expectErr    bool
		frameSamples int
	}{
		{name: "16kHz 50ms", sampleRate: 16000, tickPeriod: 50 * time.Millisecond, frameSamples: 800},
		{name: "8kHz 20ms", sampleRate: 8000, tickPeriod: 20 * time.Millisecond, frameSamples: 160},
		{name: "zero sample rate", sampleRate: 0, tickPeriod: 50 * time.Millisecond, expectErr: true},
		{name: "tick too short", sampleRate: 8000, tickPeriod: time.Microsecond, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa, err := NewFrameAssembler(tt.sampleRate, tt.tickPeriod)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if fa.FrameSamples() != tt.frameSamples {
				t.Errorf("Expected %d frame samples, got %d", tt.frameSamples, fa.FrameSamples())
			}
		})
	}
}

func TestFrameAssemblerSplitsArbitraryWrites(t *testing.T) {
	fa, err := NewFrameAssembler(8000, 20*time.Millisecond) // 160 samples per frame
	if err != nil {
		t.Fatalf("Failed to create assembler: %v", err)
	}

	samples := make([]int16, 400)
	for i := range samples {
		samples[i] = int16(i - 200)
	}
	raw := SamplesToBytes(samples)

	// Write in awkward pieces, including an odd split inside a sample
	var frames [][]int16
	frames = append(frames, fa.Write(raw[:101])...)
	frames = append(frames, fa.Write(raw[101:500])...)
	frames = append(frames, fa.Write(raw[500:])...)

	if len(frames) != 2 {
		t.Fatalf("Expected 2 complete frames, got %d", len(frames))
	}

	for fi, frame := range frames {
		if len(frame) != 160 {
			t.Fatalf("Frame %d: expected 160 samples, got %d", fi, len(frame))
		}
		for i, s := range frame {
			want := samples[fi*160+i]
			if s != want {
				t.Fatalf("Frame %d sample %d: expected %d, got %d", fi, i, want, s)
			}
		}
	}

	stats := fa.GetStats()
	if stats.FramesProduced != 2 {
		t.Errorf("Expected 2 frames produced, got %d", stats.FramesProduced)
	}
	if stats.PendingBytes != (400-320)*2 {
		t.Errorf("Expected %d pending bytes, got %d", (400-320)*2, stats.PendingBytes)
	}
	if stats.BytesReceived != uint64(len(raw)) {
		t.Errorf("Expected %d bytes received, got %d", len(raw), stats.BytesReceived)
	}

	fa.Reset()
	if fa.GetStats().PendingBytes != 0 {
		t.Error("Expected no pending bytes after reset")
	}
}

func TestSampleByteConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	back := BytesToSamples(SamplesToBytes(samples))
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}

	if got := BytesToSamples([]byte{1, 0, 7}); len(got) != 1 || got[0] != 1 {
		t.Errorf("Expected odd trailing byte to be ignored, got %v", got)
	}
}
