package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/liuscraft/jowie/internal/dialogue"
	"github.com/liuscraft/jowie/internal/logging"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

var ErrNilTurn = errors.New("journal: nil turn")

// ToolEntry 一次工具调用的记录
type ToolEntry struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Entry 一轮对话的记录
type Entry struct {
	ID        int64
	TurnID    uint64
	UserText  string
	Replies   []string
	ToolCalls []ToolEntry
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

type Journal struct {
	conn *sql.DB
}

// Open 打开（必要时创建）数据库并建表，path 支持 ~/ 前缀
func Open(path string) (*Journal, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, path[2:])
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// 单连接，避免写锁竞争
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("journal: %s: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}

	logging.Infof("Journal: opened %s", path)
	return &Journal{conn: conn}, nil
}

func (j *Journal) Close() error {
	return j.conn.Close()
}

// Record 保存一轮对话结果
func (j *Journal) Record(ctx context.Context, res *dialogue.TurnResult) error {
	if res == nil {
		return ErrNilTurn
	}

	tools := make([]ToolEntry, 0, len(res.ToolCalls))
	for _, tc := range res.ToolCalls {
		e := ToolEntry{Name: tc.Name, Arguments: tc.Arguments, Result: tc.Result, Skipped: tc.Skipped}
		if tc.Err != nil {
			e.Error = tc.Err.Error()
		}
		tools = append(tools, e)
	}
	replies := res.Replies
	if replies == nil {
		replies = []string{}
	}

	repliesJSON, err := sonic.MarshalString(replies)
	if err != nil {
		return fmt.Errorf("journal: encode replies: %w", err)
	}
	toolsJSON, err := sonic.MarshalString(tools)
	if err != nil {
		return fmt.Errorf("journal: encode tool calls: %w", err)
	}
	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}

	_, err = j.conn.ExecContext(ctx,
		`INSERT INTO turns (turn_id, user_text, replies, tool_calls, started_at, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(res.TurnID), res.UserText, repliesJSON, toolsJSON,
		res.StartedAt.UnixMilli(), res.Duration.Milliseconds(), errText,
	)
	if err != nil {
		return fmt.Errorf("journal: insert turn: %w", err)
	}
	return nil
}

// Recent 返回最近 n 轮，按时间正序
func (j *Journal) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := j.conn.QueryContext(ctx,
		`SELECT id, turn_id, user_text, replies, tool_calls, started_at, duration_ms, error
		 FROM turns ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                     Entry
			turnID                int64
			repliesJSON, toolJSON string
			startedMs, durationMs int64
		)
		if err := rows.Scan(&e.ID, &turnID, &e.UserText, &repliesJSON, &toolJSON, &startedMs, &durationMs, &e.Error); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		if err := sonic.UnmarshalString(repliesJSON, &e.Replies); err != nil {
			return nil, fmt.Errorf("journal: decode replies of turn %d: %w", e.ID, err)
		}
		if err := sonic.UnmarshalString(toolJSON, &e.ToolCalls); err != nil {
			return nil, fmt.Errorf("journal: decode tool calls of turn %d: %w", e.ID, err)
		}
		e.TurnID = uint64(turnID)
		e.StartedAt = time.UnixMilli(startedMs)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, k := 0, len(entries)-1; i < k; i, k = i+1, k-1 {
		entries[i], entries[k] = entries[k], entries[i]
	}
	return entries, nil
}
