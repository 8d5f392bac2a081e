package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// SystemPrompt 每次请求都附带的系统指令
const SystemPrompt = "You are a helpful assistant that always responds with valid JSON. " +
	"Never use markdown code blocks (```json). Always return a single JSON object, not an array. " +
	"Use empty strings \"\" for unknown values."

// ErrTransport 非 2xx 响应、连接失败或超时
var ErrTransport = errors.New("llm transport error")

// Client 同步的请求/响应封装，不做重试
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Observer 接收每次调用的耗时和结果
type Observer interface {
	ObserveLLMCall(d time.Duration, err error)
}

// New 按配置创建客户端
func New(cfg config.LLMConfig, log logger.Logger) (Client, error) {
	httpClient := newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)

	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg, httpClient, log), nil
	case "openai":
		return NewLangchainClient(cfg, httpClient, log)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// newHTTPClient 连接超时作用于拨号，读超时作用于等待响应头（非流式生成在此期间完成）
func newHTTPClient(connectTimeout, readTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.ResponseHeaderTimeout = readTimeout

	return &http.Client{
		Transport: transport,
		Timeout:   connectTimeout + readTimeout,
	}
}

type instrumented struct {
	next     Client
	observer Observer
}

// WithObserver 包装客户端以上报调用指标
func WithObserver(c Client, o Observer) Client {
	if o == nil {
		return c
	}
	return &instrumented{next: c, observer: o}
}

func (i *instrumented) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := i.next.Generate(ctx, prompt)
	i.observer.ObserveLLMCall(time.Since(start), err)
	return out, err
}
