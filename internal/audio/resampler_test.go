package audio

import (
	"math"
	"testing"
)

func TestLinearResampler_SameRate(t *testing.T) {
	resampler := NewLinearResampler()
	input := []float32{0.1, 0.2, 0.3, 0.4, 0.5}

	output, err := resampler.Resample(input, 16000, 16000, 1)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if len(output) != len(input) {
		t.Fatalf("Expected length %d, got %d", len(input), len(output))
	}
	for i := range input {
		if output[i] != input[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, input[i], output[i])
		}
	}

	output[0] = 9
	if input[0] == 9 {
		t.Fatalf("same-rate resample must return a copy")
	}
}

func TestLinearResampler_Lengths(t *testing.T) {
	cases := []struct {
		name     string
		inRate   int
		outRate  int
		inLength int
	}{
		{"16k to 24k", 16000, 24000, 100},
		{"24k to 16k", 24000, 16000, 150},
		{"24k to 48k", 24000, 48000, 240},
		{"48k to 16k", 48000, 16000, 300},
	}

	resampler := NewLinearResampler()
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			input := make([]float32, tt.inLength)
			for i := range input {
				input[i] = float32(i) / float32(tt.inLength)
			}
			output, err := resampler.Resample(input, tt.inRate, tt.outRate, 1)
			if err != nil {
				t.Fatalf("Resample failed: %v", err)
			}
			want := int(math.Ceil(float64(tt.inLength) * float64(tt.outRate) / float64(tt.inRate)))
			if len(output) != want {
				t.Fatalf("expected %d samples, got %d", want, len(output))
			}
			if output[0] != input[0] {
				t.Fatalf("first sample mismatch: %v vs %v", output[0], input[0])
			}
		})
	}
}

func TestLinearResampler_Interpolates(t *testing.T) {
	resampler := NewLinearResampler()
	output, err := resampler.Resample([]float32{0, 1}, 8000, 16000, 1)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if len(output) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(output))
	}
	if math.Abs(float64(output[1])-0.5) > 1e-6 {
		t.Fatalf("expected midpoint 0.5, got %v", output[1])
	}
}

func TestLinearResampler_InvalidArgs(t *testing.T) {
	resampler := NewLinearResampler()
	if _, err := resampler.Resample([]float32{0}, 0, 16000, 1); err == nil {
		t.Fatalf("expected error for zero input rate")
	}
	if _, err := resampler.Resample([]float32{0}, 16000, 16000, 0); err == nil {
		t.Fatalf("expected error for zero channels")
	}
}
