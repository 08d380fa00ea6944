package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

type dashScopeRequests struct {
	mu      sync.Mutex
	actions []string
	params  map[string]any
	text    string
}

func dashScopeTTSServer(t *testing.T, fail bool) (*httptest.Server, *dashScopeRequests) {
	t.Helper()
	reqs := &dashScopeRequests{}
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(h taskHeader) {
			data, _ := sonic.Marshal(eventMessage{Header: h})
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg taskRequest
			if err := sonic.Unmarshal(data, &msg); err != nil {
				return
			}
			reqs.mu.Lock()
			reqs.actions = append(reqs.actions, msg.Header.Action)
			reqs.mu.Unlock()

			switch msg.Header.Action {
			case "run-task":
				reqs.mu.Lock()
				reqs.params = msg.Payload.Parameters
				reqs.mu.Unlock()
				if fail {
					send(taskHeader{Event: "task-failed", ErrorCode: "Throttling", ErrorMessage: "quota exceeded"})
					return
				}
				send(taskHeader{Event: "task-started", TaskID: msg.Header.TaskID})
			case "continue-task":
				reqs.mu.Lock()
				reqs.text, _ = msg.Payload.Input["text"].(string)
				reqs.mu.Unlock()
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF....WAVE"))
			case "finish-task":
				send(taskHeader{Event: "result-generated"})
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte("data"))
				send(taskHeader{Event: "task-finished"})
				return
			}
		}
	}))
	return server, reqs
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestDashScopeSynthesizer(t *testing.T) {
	server, reqs := dashScopeTTSServer(t, false)
	defer server.Close()

	s, err := NewDashScopeSynthesizer(DashScopeConfig{APIKey: "test-key", Endpoint: wsURL(server), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewDashScopeSynthesizer error: %v", err)
	}

	data, err := s.Synthesize(context.Background(), "  It is Monday.  ")
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if string(data) != "RIFF....WAVEdata" {
		t.Fatalf("unexpected audio payload %q", data)
	}

	reqs.mu.Lock()
	defer reqs.mu.Unlock()
	if got := strings.Join(reqs.actions, ","); got != "run-task,continue-task,finish-task" {
		t.Fatalf("unexpected action order %s", got)
	}
	if reqs.text != "It is Monday." {
		t.Fatalf("expected trimmed text, got %q", reqs.text)
	}
	if reqs.params["format"] != "wav" || reqs.params["voice"] != "longanyang" {
		t.Fatalf("unexpected run-task parameters: %v", reqs.params)
	}
}

func TestDashScopeSynthesizerTaskFailed(t *testing.T) {
	server, _ := dashScopeTTSServer(t, true)
	defer server.Close()

	s, err := NewDashScopeSynthesizer(DashScopeConfig{APIKey: "test-key", Endpoint: wsURL(server), Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewDashScopeSynthesizer error: %v", err)
	}
	_, err = s.Synthesize(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected task failure, got %v", err)
	}
}

func TestDashScopeSynthesizerValidation(t *testing.T) {
	if _, err := NewDashScopeSynthesizer(DashScopeConfig{}); !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("expected ErrAPIKeyRequired, got %v", err)
	}
	s, err := NewDashScopeSynthesizer(DashScopeConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewDashScopeSynthesizer error: %v", err)
	}
	if _, err := s.Synthesize(context.Background(), " "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
