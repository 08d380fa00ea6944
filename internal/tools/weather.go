package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liuscraft/jowie/internal/chat"
	"github.com/liuscraft/jowie/internal/logging"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const weatherAck = "Let me check the weather..."

type WeatherConfig struct {
	// BaseURL wttr.in 兼容服务地址
	BaseURL string
	Timeout time.Duration
}

// NewWeatherTool get_weather(city)，查询 wttr.in 的单行天气
func NewWeatherTool(cfg WeatherConfig, speaker Speaker) Tool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://wttr.in"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   cfg.Timeout,
	}

	return Tool{
		Spec: chat.ToolSpec{
			Name:        "get_weather",
			Description: "Get the current weather in a specific city.",
			Params: []chat.Param{{
				Name:        "city",
				Type:        chat.TypeString,
				Description: "Name of the city to get the weather for",
				Required:    true,
			}},
		},
		Run: func(ctx context.Context, args Args) (string, error) {
			city := strings.TrimSpace(args.String("city"))
			if speaker != nil {
				if err := speaker.Speak(weatherAck); err != nil {
					logging.Warnf("get_weather: acknowledgement dropped: %v", err)
				}
			}
			return fetchWeather(ctx, client, cfg.BaseURL, city)
		},
	}
}

func fetchWeather(ctx context.Context, client *http.Client, baseURL, city string) (string, error) {
	query := url.Values{"format": {"%C %t %w"}}
	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(baseURL, "/"), url.PathEscape(city), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}
	req.Header.Set("User-Agent", "curl/8.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logging.Warnf("get_weather: %s returned status %d", city, resp.StatusCode)
		return "", fmt.Errorf("couldn't fetch the weather for %s (status %d)", city, resp.StatusCode)
	}

	report := strings.TrimSpace(string(body))
	logging.Infof("get_weather: %s -> %s", city, report)
	return fmt.Sprintf("The weather in %s is: %s.", city, report), nil
}
