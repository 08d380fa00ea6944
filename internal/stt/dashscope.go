package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/liuscraft/jowie/internal/audio"
	"github.com/liuscraft/jowie/internal/logging"
)

const defaultDashScopeEndpoint = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

type DashScopeConfig struct {
	APIKey        string
	Endpoint      string
	Model         string
	LanguageHints []string
	Timeout       time.Duration
	// ChunkMs 每次发送的音频时长
	ChunkMs int
}

// DashScopeTranscriber 使用 DashScope 实时识别协议转写整段语句：
// run-task → 发送 PCM → finish-task → 收集所有 sentence_end 的句子
type DashScopeTranscriber struct {
	cfg    DashScopeConfig
	dialer *websocket.Dialer
}

func NewDashScopeTranscriber(cfg DashScopeConfig) (*DashScopeTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultDashScopeEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "fun-asr-realtime"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChunkMs <= 0 {
		cfg.ChunkMs = 100
	}
	return &DashScopeTranscriber{cfg: cfg, dialer: websocket.DefaultDialer}, nil
}

func (d *DashScopeTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	if len(samples) == 0 {
		return "", ErrEmptyAudio
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", d.cfg.APIKey))
	conn, _, err := d.dialer.DialContext(ctx, d.cfg.Endpoint, header)
	if err != nil {
		return "", fmt.Errorf("stt: dial dashscope: %w", err)
	}
	defer conn.Close()

	s := newDashScopeSession(conn)
	go func() {
		// 超时或取消时关闭连接，解除 ReadMessage 阻塞
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.doneCh:
		}
	}()

	if err := s.writeJSON(d.runTask(s.taskID, sampleRate)); err != nil {
		return "", fmt.Errorf("stt: run-task: %w", err)
	}
	s.startReceiver()

	select {
	case <-s.startedCh:
	case <-s.doneCh:
		return "", s.failure(ctx)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	pcm := pcm16(samples)
	chunk := sampleRate * d.cfg.ChunkMs / 1000 * 2
	if chunk <= 0 {
		chunk = len(pcm)
	}
	for off := 0; off < len(pcm); off += chunk {
		end := min(off+chunk, len(pcm))
		if err := s.writeBinary(pcm[off:end]); err != nil {
			return "", fmt.Errorf("stt: send audio: %w", err)
		}
	}

	if err := s.writeJSON(finishTask(s.taskID)); err != nil {
		return "", fmt.Errorf("stt: finish-task: %w", err)
	}

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if err := s.failure(ctx); err != nil {
		return "", err
	}

	text := s.text()
	logging.Debugf("DashScopeTranscriber: task %s finished: %q", s.taskID, text)
	return text, nil
}

func (d *DashScopeTranscriber) runTask(taskID string, sampleRate int) runTaskMessage {
	params := map[string]any{
		"format":      "pcm",
		"sample_rate": sampleRate,
	}
	if len(d.cfg.LanguageHints) > 0 {
		params["language_hints"] = d.cfg.LanguageHints
	}
	return runTaskMessage{
		Header: taskHeader{
			Action:    "run-task",
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{
			TaskGroup:  "audio",
			Task:       "asr",
			Function:   "recognition",
			Model:      d.cfg.Model,
			Parameters: params,
			Input:      map[string]any{},
		},
	}
}

func finishTask(taskID string) runTaskMessage {
	return runTaskMessage{
		Header: taskHeader{
			Action:    "finish-task",
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{Input: map[string]any{}},
	}
}

type dashScopeSession struct {
	conn    *websocket.Conn
	taskID  string
	writeMu sync.Mutex

	startedCh   chan struct{}
	doneCh      chan struct{}
	startedOnce sync.Once
	doneOnce    sync.Once

	mu        sync.Mutex
	sentences []string
	err       error
}

func newDashScopeSession(conn *websocket.Conn) *dashScopeSession {
	return &dashScopeSession{
		conn:      conn,
		taskID:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		startedCh: make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (s *dashScopeSession) writeJSON(msg any) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *dashScopeSession) writeBinary(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *dashScopeSession) startReceiver() {
	go func() {
		defer s.markDone()
		for {
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				s.setErr(err)
				return
			}
			var event eventMessage
			if err := sonic.Unmarshal(data, &event); err != nil {
				s.setErr(err)
				return
			}
			if s.handleEvent(event) {
				return
			}
		}
	}()
}

// handleEvent 返回 true 表示任务结束
func (s *dashScopeSession) handleEvent(event eventMessage) bool {
	switch event.Header.Event {
	case "task-started":
		s.startedOnce.Do(func() { close(s.startedCh) })
	case "result-generated":
		if event.Payload.Output == nil || event.Payload.Output.Sentence == nil {
			return false
		}
		sentence := event.Payload.Output.Sentence
		if sentence.Heartbeat || !sentence.SentenceEnd {
			return false
		}
		if text := strings.TrimSpace(sentence.Text); text != "" {
			s.mu.Lock()
			s.sentences = append(s.sentences, text)
			s.mu.Unlock()
		}
	case "task-finished":
		return true
	case "task-failed":
		if event.Header.ErrorMessage != "" {
			s.setErr(fmt.Errorf("task failed: %s", event.Header.ErrorMessage))
		} else {
			s.setErr(errors.New("task failed"))
		}
		return true
	}
	return false
}

func (s *dashScopeSession) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *dashScopeSession) failure(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return fmt.Errorf("stt: dashscope: %w", s.err)
	}
	return nil
}

func (s *dashScopeSession) markDone() {
	s.doneOnce.Do(func() { close(s.doneCh) })
}

func (s *dashScopeSession) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.sentences, " ")
}

func pcm16(samples []float32) []byte {
	ints := audio.Float32ToInt16(samples)
	out := make([]byte, len(ints)*2)
	for i, v := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

type runTaskMessage struct {
	Header  taskHeader  `json:"header"`
	Payload taskPayload `json:"payload"`
}

type taskHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type taskPayload struct {
	TaskGroup  string         `json:"task_group,omitempty"`
	Task       string         `json:"task,omitempty"`
	Function   string         `json:"function,omitempty"`
	Model      string         `json:"model,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Input      map[string]any `json:"input"`
	Output     *taskOutput    `json:"output,omitempty"`
}

type eventMessage struct {
	Header  taskHeader  `json:"header"`
	Payload taskPayload `json:"payload"`
}

type taskOutput struct {
	Sentence *taskSentence `json:"sentence,omitempty"`
}

type taskSentence struct {
	BeginTime   int64  `json:"begin_time"`
	EndTime     *int64 `json:"end_time"`
	Text        string `json:"text"`
	Heartbeat   bool   `json:"heartbeat"`
	SentenceEnd bool   `json:"sentence_end"`
}
