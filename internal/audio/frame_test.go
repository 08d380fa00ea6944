package audio

import (
	"math"
	"testing"
	"time"
)

func constant(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestLoudnessDB(t *testing.T) {
	if db := LoudnessDB(constant(100, 0)); !math.IsInf(db, -1) {
		t.Fatalf("silence should be -Inf dB, got %v", db)
	}
	if db := LoudnessDB(constant(100, 1)); math.Abs(db) > 1e-9 {
		t.Fatalf("full scale should be 0 dB, got %v", db)
	}
	if db := LoudnessDB(constant(100, 0.1)); math.Abs(db+20) > 1e-6 {
		t.Fatalf("0.1 amplitude should be -20 dB, got %v", db)
	}
}

func TestGainToward(t *testing.T) {
	cases := []struct {
		name    string
		samples []float32
		target  float64
		want    float64
	}{
		{"silence keeps unity", constant(10, 0), -20, 1},
		{"already loud keeps unity", constant(10, 0.5), -20, 1},
		{"quiet frame is raised", constant(10, 0.01), -20, 10},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := GainToward(tt.samples, tt.target)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Fatalf("GainToward = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyGainClips(t *testing.T) {
	samples := []float32{0.2, -0.2, 0.9}
	ApplyGain(samples, 2)
	if samples[0] != 0.4 || samples[1] != -0.4 {
		t.Fatalf("unexpected gain result: %v", samples)
	}
	if samples[2] != 1 {
		t.Fatalf("expected clipping to 1, got %v", samples[2])
	}
}

func TestFrameAssembler(t *testing.T) {
	a := NewFrameAssembler(4)

	if frames := a.Push([]float32{1, 2, 3}); len(frames) != 0 {
		t.Fatalf("expected no frame yet, got %d", len(frames))
	}
	frames := a.Push([]float32{4, 5, 6, 7, 8, 9})
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0][0] != 1 || frames[1][3] != 8 {
		t.Fatalf("frames out of order: %v", frames)
	}
	if a.Pending() != 1 {
		t.Fatalf("expected 1 pending sample, got %d", a.Pending())
	}
}

func TestFrameDuration(t *testing.T) {
	f := Frame{Samples: make([]float32, 8000), SampleRate: 16000}
	if f.Duration() != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", f.Duration())
	}
	if SamplesDuration(10, 0) != 0 {
		t.Fatalf("zero sample rate must give zero duration")
	}
}
