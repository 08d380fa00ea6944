package settings

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
)

type Settings struct {
	// InputDevice 设备索引或名称，空字符串表示默认输入设备
	InputDevice string
}

type fileFormat struct {
	InputDevice any `json:"input_device"`
}

// Load 读取设置文件，文件不存在时返回零值
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	var raw fileFormat
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}

	device, err := deviceSelector(raw.InputDevice)
	if err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return Settings{InputDevice: device}, nil
}

// deviceSelector input_device 可以是数字索引、名称或 null
func deviceSelector(v any) (string, error) {
	switch d := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(d), nil
	case float64:
		if d < 0 || d != math.Trunc(d) {
			return "", fmt.Errorf("input_device must be a non-negative integer, got %v", d)
		}
		return strconv.Itoa(int(d)), nil
	default:
		return "", fmt.Errorf("input_device has unsupported type %T", v)
	}
}
