package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/liuscraft/jowie/internal/chat"
)

type recordingSpeaker struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSpeaker) Speak(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func echoTool() Tool {
	return Tool{
		Spec: chat.ToolSpec{
			Name: "echo",
			Params: []chat.Param{
				{Name: "text", Type: chat.TypeString, Required: true},
				{Name: "times", Type: chat.TypeInteger},
				{Name: "ratio", Type: chat.TypeNumber},
				{Name: "loud", Type: chat.TypeBoolean},
			},
		},
		Run: func(_ context.Context, args Args) (string, error) {
			out := strings.Repeat(args.String("text"), max(args.Int("times"), 1))
			if args.Bool("loud") {
				out = strings.ToUpper(out)
			}
			return out, nil
		},
	}
}

func TestRegistryExecute(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	tests := []struct {
		name    string
		tool    string
		args    string
		want    string
		wantErr error
	}{
		{"valid", "echo", `{"text":"hi","times":2}`, "hihi", nil},
		{"optional bool", "echo", `{"text":"hi","loud":true}`, "HI", nil},
		{"unknown tool", "nope", `{}`, "", ErrToolNotFound},
		{"malformed json", "echo", `{"text":`, "", ErrInvalidArguments},
		{"missing required", "echo", `{}`, "", ErrInvalidArguments},
		{"empty arguments", "echo", ``, "", ErrInvalidArguments},
		{"null required", "echo", `{"text":null}`, "", ErrInvalidArguments},
		{"wrong string type", "echo", `{"text":42}`, "", ErrInvalidArguments},
		{"fractional integer", "echo", `{"text":"a","times":1.5}`, "", ErrInvalidArguments},
		{"wrong number type", "echo", `{"text":"a","ratio":"high"}`, "", ErrInvalidArguments},
		{"wrong bool type", "echo", `{"text":"a","loud":"yes"}`, "", ErrInvalidArguments},
		{"blank required string", "echo", `{"text":"  "}`, "", ErrInvalidArguments},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Execute(context.Background(), tt.tool, tt.args)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Execute error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("Execute = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewToolRegistry()
	_ = r.Register(Tool{
		Spec: chat.ToolSpec{Name: "boom"},
		Run: func(context.Context, Args) (string, error) {
			panic("nil map")
		},
	})
	_, err := r.Execute(context.Background(), "boom", "{}")
	if !errors.Is(err, ErrToolPanic) || !strings.Contains(err.Error(), "nil map") {
		t.Fatalf("expected recovered panic, got %v", err)
	}
}

func TestRegistryRegister(t *testing.T) {
	r := NewToolRegistry()
	if err := r.Register(Tool{Spec: chat.ToolSpec{Name: "x"}}); err == nil {
		t.Fatalf("expected error for tool without implementation")
	}
	if err := r.Register(echoTool()); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := r.Register(echoTool()); !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("expected ErrDuplicateTool, got %v", err)
	}
	_ = r.Register(NewDateTool(nil))

	specs := r.Specs()
	if len(specs) != 2 || specs[0].Name != "echo" || specs[1].Name != "get_date" {
		t.Fatalf("unexpected specs order: %+v", specs)
	}
}

func TestDateTool(t *testing.T) {
	fixed := time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC)
	tool := NewDateTool(func() time.Time { return fixed })
	got, err := tool.Run(context.Background(), Args{})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got != "Monday, January 05 2026" {
		t.Fatalf("unexpected date %q", got)
	}
}

func TestWeatherTool(t *testing.T) {
	var gotPath, gotFormat string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("format")
		_, _ = w.Write([]byte("Sunny +21°C ↗11km/h\n"))
	}))
	defer server.Close()

	speaker := &recordingSpeaker{}
	r := NewToolRegistry()
	_ = r.Register(NewWeatherTool(WeatherConfig{BaseURL: server.URL}, speaker))

	got, err := r.Execute(context.Background(), "get_weather", `{"city":"New York"}`)
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got != "The weather in New York is: Sunny +21°C ↗11km/h." {
		t.Fatalf("unexpected result %q", got)
	}
	if gotPath != "/New York" || gotFormat != "%C %t %w" {
		t.Fatalf("unexpected request path=%q format=%q", gotPath, gotFormat)
	}
	if len(speaker.texts) != 1 || speaker.texts[0] != "Let me check the weather..." {
		t.Fatalf("expected acknowledgement, got %q", speaker.texts)
	}
}

func TestWeatherToolErrors(t *testing.T) {
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown location", http.StatusNotFound)
	}))
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	tests := []struct {
		name string
		cfg  WeatherConfig
	}{
		{"status", WeatherConfig{BaseURL: notFound.URL}},
		{"timeout", WeatherConfig{BaseURL: slow.URL, Timeout: 50 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := NewWeatherTool(tt.cfg, nil)
			if _, err := tool.Run(context.Background(), Args{"city": "Atlantis"}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSearchTool(t *testing.T) {
	var gotCount int
	searcher := SearcherFunc(func(_ context.Context, query string, count int) ([]SearchResult, error) {
		gotCount = count
		if query == "nothing" {
			return nil, nil
		}
		return []SearchResult{
			{Title: "Go", URL: "https://go.dev", Description: "The <strong>Go</strong> language"},
			{Title: "Tour", URL: "https://go.dev/tour", Description: "A tour"},
			{Title: "Blog", URL: "https://go.dev/blog", Description: "News"},
			{Title: "Extra", URL: "https://example.com", Description: "ignored"},
		}, nil
	})
	tool := NewSearchTool(searcher, 0)

	got, err := tool.Run(context.Background(), Args{"query": "golang"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if gotCount != 3 {
		t.Fatalf("expected default of 3 results requested, got %d", gotCount)
	}
	want := "Go\nThe Go language\nhttps://go.dev\n\nTour\nA tour\nhttps://go.dev/tour\n\nBlog\nNews\nhttps://go.dev/blog"
	if got != want {
		t.Fatalf("unexpected output:\n%s", got)
	}

	if got, _ := tool.Run(context.Background(), Args{"query": "nothing"}); got != "No results found." {
		t.Fatalf("unexpected empty output %q", got)
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name  string
		input string
		keep  int
	}{
		{"short", "Météo à Paris", 16},
		{"ascii cut", strings.Repeat("a", maxSearchOutput+10), maxSearchOutput},
		{"rune straddles cut", strings.Repeat("a", maxSearchOutput-1) + "é rest", maxSearchOutput - 1},
		{"cjk straddles cut", strings.Repeat("a", maxSearchOutput-2) + "天气", maxSearchOutput - 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input)
			if !utf8.ValidString(got) {
				t.Fatalf("truncated output is not valid utf8")
			}
			body := strings.TrimSuffix(got, "\n... (truncated)")
			if len(body) != tt.keep {
				t.Fatalf("expected %d bytes kept, got %d", tt.keep, len(body))
			}
		})
	}
}

func TestBuiltinRegistryWithoutSearchKey(t *testing.T) {
	r, err := NewBuiltinRegistry(Config{}, nil)
	if err != nil {
		t.Fatalf("NewBuiltinRegistry error: %v", err)
	}
	if _, ok := r.Lookup("search"); ok {
		t.Fatalf("search must not be registered without a key")
	}
	if len(r.Specs()) != 2 {
		t.Fatalf("expected get_weather and get_date, got %+v", r.Specs())
	}
}
