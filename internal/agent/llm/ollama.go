package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// chatMessage Ollama /api/chat 消息
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

// chatResponse 定义 Ollama API 响应结构
type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	TotalDuration   int64       `json:"total_duration,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// OllamaClient 直接调用 Ollama 原生接口
type OllamaClient struct {
	endpoint   string
	model      string
	options    chatOptions
	httpClient *http.Client
	logger     logger.Logger
}

func NewOllamaClient(cfg config.LLMConfig, httpClient *http.Client, log logger.Logger) *OllamaClient {
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.ConnectTimeout, cfg.ReadTimeout)
	}
	return &OllamaClient{
		endpoint: strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		options: chatOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			NumPredict:  cfg.NumPredict,
		},
		httpClient: httpClient,
		logger:     log.Named("ollama"),
	}
}

func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqData, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Format:  "json",
		Options: c.options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(reqData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to send request: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: unexpected status code %d: %s", ErrTransport, resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrTransport, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", ErrTransport, result.Error)
	}

	c.logger.Debug("Ollama call finished",
		logger.String("model", c.model),
		logger.Int("promptChars", len(prompt)),
		logger.Int("responseChars", len(result.Message.Content)),
		logger.Int("evalCount", result.EvalCount),
		logger.Duration("elapsed", time.Since(start)),
	)

	return result.Message.Content, nil
}

func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
