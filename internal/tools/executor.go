package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/liuscraft/jowie/internal/chat"
)

var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrDuplicateTool    = errors.New("tool already registered")
	ErrToolPanic        = errors.New("tool panicked")
)

// Func 工具实现，参数已按 ToolSpec 校验
type Func func(ctx context.Context, args Args) (string, error)

type Tool struct {
	Spec chat.ToolSpec
	Run  Func
}

// Speaker 工具执行期间的插话（"Let me check the weather..."）
type Speaker interface {
	Speak(text string) error
}

// Args 解码后的工具参数
type Args map[string]any

func (a Args) String(name string) string {
	s, _ := a[name].(string)
	return s
}

func (a Args) Number(name string) float64 {
	f, _ := a[name].(float64)
	return f
}

func (a Args) Int(name string) int {
	return int(a.Number(name))
}

func (a Args) Bool(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// ToolRegistry 工具注册表，保持注册顺序
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

func (r *ToolRegistry) Register(tool Tool) error {
	name := tool.Spec.Name
	if name == "" || tool.Run == nil {
		return fmt.Errorf("register tool %q: missing name or implementation", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; ok {
		return fmt.Errorf("register tool %q: %w", name, ErrDuplicateTool)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs 按注册顺序返回全部 ToolSpec
func (r *ToolRegistry) Specs() []chat.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]chat.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec)
	}
	return specs
}

// Execute 解码参数、校验并执行工具。
// 未注册返回 ErrToolNotFound；参数错误包装 ErrInvalidArguments；panic 包装 ErrToolPanic。
func (r *ToolRegistry) Execute(ctx context.Context, name, rawArgs string) (result string, err error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	args, err := DecodeArgs(tool.Spec, rawArgs)
	if err != nil {
		return "", err
	}

	defer func() {
		if p := recover(); p != nil {
			result = ""
			err = fmt.Errorf("%w: %v", ErrToolPanic, p)
		}
	}()
	return tool.Run(ctx, args)
}

// DecodeArgs 把 JSON 参数解码并按参数定义检查必填项和类型
func DecodeArgs(spec chat.ToolSpec, raw string) (Args, error) {
	args := Args{}
	if strings.TrimSpace(raw) != "" {
		if err := sonic.UnmarshalString(raw, &args); err != nil {
			return nil, fmt.Errorf("%w: malformed JSON: %v", ErrInvalidArguments, err)
		}
	}
	if args == nil {
		// "null"
		args = Args{}
	}

	for _, p := range spec.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, fmt.Errorf("%w: missing required parameter %q", ErrInvalidArguments, p.Name)
			}
			continue
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
		if p.Required && p.Type == chat.TypeString && strings.TrimSpace(v.(string)) == "" {
			return nil, fmt.Errorf("%w: parameter %q is empty", ErrInvalidArguments, p.Name)
		}
	}
	return args, nil
}

func checkType(p chat.Param, v any) error {
	ok := false
	switch p.Type {
	case chat.TypeString, "":
		_, ok = v.(string)
	case chat.TypeNumber:
		_, ok = v.(float64)
	case chat.TypeInteger:
		f, isNum := v.(float64)
		ok = isNum && f == math.Trunc(f)
	case chat.TypeBoolean:
		_, ok = v.(bool)
	}
	if !ok {
		return fmt.Errorf("%w: parameter %q must be %s, got %T", ErrInvalidArguments, p.Name, typeName(p.Type), v)
	}
	return nil
}

func typeName(t chat.ParamType) string {
	if t == "" {
		return string(chat.TypeString)
	}
	return string(t)
}
