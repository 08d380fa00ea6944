package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/liuscraft/jowie/internal/logging"
)

const defaultDashScopeEndpoint = "wss://dashscope.aliyuncs.com/api-ws/v1/inference"

var ErrAPIKeyRequired = errors.New("tts: api key is required")

type DashScopeConfig struct {
	APIKey     string
	Endpoint   string
	Model      string
	Voice      string
	SampleRate int
	Volume     int
	Rate       float64
	Pitch      float64
	Timeout    time.Duration
}

// DashScopeSynthesizer CosyVoice 流式合成：
// run-task → continue-task(text) → finish-task，二进制帧拼成完整 WAV
type DashScopeSynthesizer struct {
	cfg    DashScopeConfig
	dialer *websocket.Dialer
}

func NewDashScopeSynthesizer(cfg DashScopeConfig) (*DashScopeSynthesizer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultDashScopeEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = "cosyvoice-v3-flash"
	}
	if cfg.Voice == "" {
		cfg.Voice = "longanyang"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Volume <= 0 {
		cfg.Volume = 50
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 1
	}
	if cfg.Pitch <= 0 {
		cfg.Pitch = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DashScopeSynthesizer{cfg: cfg, dialer: websocket.DefaultDialer}, nil
}

func (d *DashScopeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("bearer %s", d.cfg.APIKey))
	header.Set("X-DashScope-DataInspection", "enable")
	conn, _, err := d.dialer.DialContext(ctx, d.cfg.Endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("tts: dial dashscope: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		// 超时或取消时关闭连接，解除 ReadMessage 阻塞
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	start := time.Now()
	taskID := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := writeTask(conn, d.runTask(taskID)); err != nil {
		return nil, d.fail(ctx, "run-task", err)
	}

	var buf bytes.Buffer
	finished, err := d.receive(conn, &buf, "task-started")
	if err != nil {
		return nil, d.fail(ctx, "wait task-started", err)
	}
	if finished {
		return nil, errors.New("tts: dashscope: task finished before it started")
	}

	if err := writeTask(conn, taskMessage(taskID, "continue-task", map[string]any{"text": text})); err != nil {
		return nil, d.fail(ctx, "continue-task", err)
	}
	if err := writeTask(conn, taskMessage(taskID, "finish-task", map[string]any{})); err != nil {
		return nil, d.fail(ctx, "finish-task", err)
	}
	if _, err := d.receive(conn, &buf, "task-finished"); err != nil {
		return nil, d.fail(ctx, "receive audio", err)
	}

	if buf.Len() == 0 {
		return nil, errors.New("tts: empty audio response")
	}
	logging.Debugf("DashScopeSynthesizer: task %s synthesized %d chars -> %d bytes in %v (voice=%s)",
		taskID, len(text), buf.Len(), time.Since(start), d.cfg.Voice)
	return buf.Bytes(), nil
}

// receive 读取到 until 事件为止，期间的二进制帧写入 buf。
// 返回值 finished 表示任务已结束。
func (d *DashScopeSynthesizer) receive(conn *websocket.Conn, buf *bytes.Buffer, until string) (finished bool, err error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}
		if msgType == websocket.BinaryMessage {
			buf.Write(data)
			continue
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var event eventMessage
		if err := sonic.Unmarshal(data, &event); err != nil {
			return false, err
		}
		switch event.Header.Event {
		case "task-failed":
			msg := event.Header.ErrorMessage
			if msg == "" {
				msg = "dashscope task failed"
			}
			if event.Header.ErrorCode != "" {
				return true, fmt.Errorf("task failed: %s (%s)", msg, event.Header.ErrorCode)
			}
			return true, fmt.Errorf("task failed: %s", msg)
		case "task-finished":
			return true, nil
		case until:
			return false, nil
		}
	}
}

func (d *DashScopeSynthesizer) fail(ctx context.Context, step string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("tts: %s: %w", step, ctx.Err())
	}
	return fmt.Errorf("tts: dashscope %s: %w", step, err)
}

func (d *DashScopeSynthesizer) runTask(taskID string) taskRequest {
	return taskRequest{
		Header: taskHeader{
			Action:    "run-task",
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{
			TaskGroup: "audio",
			Task:      "tts",
			Function:  "SpeechSynthesizer",
			Model:     d.cfg.Model,
			Parameters: map[string]any{
				"text_type":   "PlainText",
				"voice":       d.cfg.Voice,
				"format":      "wav",
				"sample_rate": d.cfg.SampleRate,
				"volume":      d.cfg.Volume,
				"rate":        d.cfg.Rate,
				"pitch":       d.cfg.Pitch,
			},
			Input: map[string]any{},
		},
	}
}

func taskMessage(taskID, action string, input map[string]any) taskRequest {
	return taskRequest{
		Header: taskHeader{
			Action:    action,
			TaskID:    taskID,
			Streaming: "duplex",
		},
		Payload: taskPayload{Input: input},
	}
}

func writeTask(conn *websocket.Conn, msg taskRequest) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

type taskRequest struct {
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
}

type eventMessage struct {
	Header taskHeader `json:"header"`
}
