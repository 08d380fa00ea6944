package text

import (
	"reflect"
	"testing"
)

func TestSegmenterFeed(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    []string
		pending string
	}{
		{
			name:    "terminal followed by space",
			chunks:  []string{"It is sunny. ", "Take a hat!"},
			want:    []string{"It is sunny."},
			pending: "Take a hat!",
		},
		{
			name:    "boundary split across chunks",
			chunks:  []string{"Hello", " there.", " How", " are you?", " "},
			want:    []string{"Hello there.", "How are you?"},
			pending: "",
		},
		{
			name:    "decimal is not a boundary",
			chunks:  []string{"It is 3.5 degrees now"},
			want:    nil,
			pending: "It is 3.5 degrees now",
		},
		{
			name:    "newline flushes",
			chunks:  []string{"line one\nline two"},
			want:    []string{"line one"},
			pending: "line two",
		},
		{
			name:    "chinese punctuation",
			chunks:  []string{"今天晴。明天下雨"},
			want:    []string{"今天晴。"},
			pending: "明天下雨",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSegmenter(0)
			var got []string
			for _, c := range tt.chunks {
				got = append(got, s.Feed(c)...)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sentences = %q, want %q", got, tt.want)
			}
			if p := s.Pending(); p != tt.pending {
				t.Errorf("pending = %q, want %q", p, tt.pending)
			}
		})
	}
}

func TestSegmenterFlush(t *testing.T) {
	s := NewSegmenter(0)
	s.Feed("No terminal here")
	if got := s.Flush(); got != "No terminal here" {
		t.Fatalf("Flush() = %q", got)
	}
	if got := s.Flush(); got != "" {
		t.Fatalf("second Flush() = %q, want empty", got)
	}
}

func TestSegmenterMaxRunes(t *testing.T) {
	s := NewSegmenter(10)
	got := s.Feed("one two three four")
	if !reflect.DeepEqual(got, []string{"one two three"}) {
		t.Fatalf("sentences = %q", got)
	}
	if rest := s.Flush(); rest != "four" {
		t.Fatalf("Flush() = %q, want %q", rest, "four")
	}
}
