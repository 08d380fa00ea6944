package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

func tone(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.25
	}
	return out
}

func TestWhisperTranscriber(t *testing.T) {
	var gotModel, gotFile string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		if !strings.HasPrefix(string(data), "RIFF") {
			http.Error(w, "not wav", http.StatusBadRequest)
			return
		}
		gotFile = header.Filename
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "  hey jowie, what's the weather  "}`))
	}))
	defer server.Close()

	tr := NewWhisperTranscriber(WhisperConfig{BaseURL: server.URL + "/v1", Model: "base.en"})
	text, err := tr.Transcribe(context.Background(), tone(1600), 16000)
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "hey jowie, what's the weather" {
		t.Fatalf("unexpected text %q", text)
	}
	if gotModel != "base.en" || gotFile != "utterance.wav" {
		t.Fatalf("unexpected request: model=%q file=%q", gotModel, gotFile)
	}
}

func TestWhisperTranscriberServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	tr := NewWhisperTranscriber(WhisperConfig{BaseURL: server.URL + "/v1"})
	if _, err := tr.Transcribe(context.Background(), tone(160), 16000); err == nil {
		t.Fatalf("expected error from failing server")
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	tr := NewWhisperTranscriber(WhisperConfig{BaseURL: "http://127.0.0.1:1/v1"})
	if _, err := tr.Transcribe(context.Background(), nil, 16000); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

// dashScopeServer 模拟实时识别协议
func dashScopeServer(t *testing.T, fail bool) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var audioBytes atomic.Int64
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(v any) {
			data, _ := sonic.Marshal(v)
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				audioBytes.Add(int64(len(data)))
				continue
			}
			var msg eventMessage
			if err := sonic.Unmarshal(data, &msg); err != nil {
				return
			}
			switch msg.Header.Action {
			case "run-task":
				if fail {
					send(eventMessage{Header: taskHeader{Event: "task-failed", TaskID: msg.Header.TaskID, ErrorMessage: "quota exceeded"}})
					return
				}
				send(eventMessage{Header: taskHeader{Event: "task-started", TaskID: msg.Header.TaskID}})
			case "finish-task":
				send(eventMessage{
					Header:  taskHeader{Event: "result-generated"},
					Payload: taskPayload{Output: &taskOutput{Sentence: &taskSentence{Text: "jowie can you", SentenceEnd: false}}},
				})
				send(eventMessage{
					Header:  taskHeader{Event: "result-generated"},
					Payload: taskPayload{Output: &taskOutput{Sentence: &taskSentence{Text: "Jowie, can you check the date?", SentenceEnd: true}}},
				})
				send(eventMessage{Header: taskHeader{Event: "task-finished"}})
				return
			}
		}
	}))
	return server, &audioBytes
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDashScopeTranscriber(t *testing.T) {
	server, audioBytes := dashScopeServer(t, false)
	defer server.Close()

	tr, err := NewDashScopeTranscriber(DashScopeConfig{APIKey: "test-key", Endpoint: wsURL(server), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewDashScopeTranscriber error: %v", err)
	}

	text, err := tr.Transcribe(context.Background(), tone(16000), 16000)
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if text != "Jowie, can you check the date?" {
		t.Fatalf("unexpected text %q", text)
	}
	if audioBytes.Load() != 32000 {
		t.Fatalf("expected 32000 bytes of pcm, got %d", audioBytes.Load())
	}
}

func TestDashScopeTranscriberTaskFailed(t *testing.T) {
	server, _ := dashScopeServer(t, true)
	defer server.Close()

	tr, err := NewDashScopeTranscriber(DashScopeConfig{APIKey: "test-key", Endpoint: wsURL(server), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewDashScopeTranscriber error: %v", err)
	}
	_, err = tr.Transcribe(context.Background(), tone(1600), 16000)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected task failure, got %v", err)
	}
}

func TestDashScopeRequiresKey(t *testing.T) {
	if _, err := NewDashScopeTranscriber(DashScopeConfig{}); !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("expected ErrAPIKeyRequired, got %v", err)
	}
}
