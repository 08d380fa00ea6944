package tts

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestSpeechClientSynthesize(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := sonic.Unmarshal(body, &got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFF....WAVE"))
	}))
	defer server.Close()

	c := NewSpeechClient(Config{BaseURL: server.URL + "/v1"})
	data, err := c.Synthesize(context.Background(), "  It is Monday.  ")
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if string(data) != "RIFF....WAVE" {
		t.Fatalf("unexpected audio payload %q", data)
	}

	if got["model"] != "kokoro" || got["voice"] != "af_heart" || got["response_format"] != "wav" {
		t.Fatalf("unexpected request body: %v", got)
	}
	if got["input"] != "It is Monday." {
		t.Fatalf("expected trimmed input, got %v", got["input"])
	}
}

func TestSpeechClientEmptyText(t *testing.T) {
	c := NewSpeechClient(Config{})
	if _, err := c.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestSpeechClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewSpeechClient(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatalf("expected timeout error")
	}
}
