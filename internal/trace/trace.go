package trace

import (
	"context"
	"net/http"

	"github.com/liuscraft/jowie/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const serviceName = "jowie"

type Config struct {
	// Endpoint OTLP 端点 host:port，为空时不导出
	Endpoint string
	URLPath  string
	APIKey   string
}

// Init 安装全局 TracerProvider，返回的 shutdown 会刷新未导出的 span。
// Endpoint 为空时什么都不做。
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		logging.Debugf("Trace: no endpoint configured, tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logging.Warnf("Trace: otel error: %v", err)
	}))

	opts := []otlptracehttp.Option{
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithHTTPClient(&http.Client{
			Transport: &loggingTransport{inner: http.DefaultTransport},
		}),
	}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if cfg.APIKey != "" {
		opts = append(opts, otlptracehttp.WithHeaders(map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	logging.Infof("Trace: exporting to %s%s (api key: %v)", cfg.Endpoint, cfg.URLPath, cfg.APIKey != "")
	return tp.Shutdown, nil
}

// loggingTransport 记录导出请求
type loggingTransport struct {
	inner http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		logging.Warnf("Trace: export %s failed: %v", req.URL, err)
		return resp, err
	}
	logging.Debugf("Trace: export %s -> %d", req.URL, resp.StatusCode)
	return resp, nil
}

// Tracer 返回全局 tracer
func Tracer() oteltrace.Tracer {
	return otel.Tracer(serviceName)
}
