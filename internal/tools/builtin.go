package tools

import (
	"time"

	"github.com/liuscraft/jowie/internal/logging"
)

type Config struct {
	WeatherURL    string
	BraveAPIKey   string
	SearchResults int
	Timeout       time.Duration
	// Now get_date 的时钟，测试注入
	Now func() time.Time
}

// NewBuiltinRegistry 注册 get_weather、get_date；配置了 Brave key 时再注册 search
func NewBuiltinRegistry(cfg Config, speaker Speaker) (*ToolRegistry, error) {
	r := NewToolRegistry()
	if err := r.Register(NewWeatherTool(WeatherConfig{BaseURL: cfg.WeatherURL, Timeout: cfg.Timeout}, speaker)); err != nil {
		return nil, err
	}
	if err := r.Register(NewDateTool(cfg.Now)); err != nil {
		return nil, err
	}

	if cfg.BraveAPIKey == "" {
		logging.Infof("tools: BRAVE_API_KEY not set, search tool disabled")
		return r, nil
	}
	searcher, err := NewBraveSearcher(cfg.BraveAPIKey)
	if err != nil {
		return nil, err
	}
	if err := r.Register(NewSearchTool(searcher, cfg.SearchResults)); err != nil {
		return nil, err
	}
	return r, nil
}
