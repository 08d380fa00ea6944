package logging

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string
	Format string
}

var (
	baseLogger *zap.Logger
	sugar      *zap.SugaredLogger
	traceID    atomic.Value
	turnID     uint64
)

func init() {
	baseLogger = zap.NewNop()
	sugar = baseLogger.Sugar()
}

// Init 根据配置构建全局 logger，未调用时所有日志被丢弃
func Init(cfg Config) error {
	level := strings.ToLower(strings.TrimSpace(cfg.Level))
	if level == "" {
		level = "info"
	}

	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = "console"
	}

	var zapCfg zap.Config
	switch format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", cfg.Format)
	}

	atomLevel := zap.NewAtomicLevel()
	if err := atomLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %s", cfg.Level)
	}
	zapCfg.Level = atomLevel

	logger, err := zapCfg.Build(
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	baseLogger = logger
	sugar = logger.Sugar()
	return nil
}

// ReplaceLogger 替换全局 logger，返回恢复函数（测试里配合 zaptest/observer 使用）
func ReplaceLogger(logger *zap.Logger) func() {
	prevBase, prevSugar := baseLogger, sugar
	baseLogger = logger
	sugar = logger.Sugar()
	return func() {
		baseLogger = prevBase
		sugar = prevSugar
	}
}

func Sync() {
	if baseLogger != nil {
		_ = baseLogger.Sync()
	}
}

func SetTraceID(id string) {
	if strings.TrimSpace(id) == "" {
		return
	}
	traceID.Store(id)
}

// NewTraceID 每次进程启动生成一个，贯穿所有轮次
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// StartTurn 开始新的对话轮次，返回轮次编号
func StartTurn() uint64 {
	return atomic.AddUint64(&turnID, 1)
}

func Debugf(format string, args ...interface{}) {
	withFields().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	withFields().Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	withFields().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	withFields().Errorf(format, args...)
}

func withFields() *zap.SugaredLogger {
	tid, _ := traceID.Load().(string)
	if tid == "" {
		tid = "trace-unknown"
	}
	currentTurn := atomic.LoadUint64(&turnID)
	return sugar.With(
		"trace_id", tid,
		"turn_id", currentTurn,
		"log_id", fmt.Sprintf("%s-%d", tid, currentTurn),
	)
}
