package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/feichai0017/paper-processor/config"
	"github.com/feichai0017/paper-processor/pkg/logger"
)

// LangchainClient 面向 OpenAI 兼容接口（vLLM、LM Studio、Ollama /v1）
type LangchainClient struct {
	model   llms.Model
	options []llms.CallOption
	logger  logger.Logger
}

func NewLangchainClient(cfg config.LLMConfig, httpClient *http.Client, log logger.Logger) (*LangchainClient, error) {
	// 本地服务不校验 token
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return &LangchainClient{
		model: model,
		options: []llms.CallOption{
			llms.WithTemperature(cfg.Temperature),
			llms.WithTopP(cfg.TopP),
			llms.WithMaxTokens(cfg.NumPredict),
		},
		logger: log.Named("langchain"),
	}, nil
}

func (c *LangchainClient) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(SystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	}

	response, err := c.model.GenerateContent(ctx, content, c.options...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(response.Choices) < 1 {
		c.logger.Warn("No choices returned from model")
		return "", nil
	}

	return response.Choices[0].Content, nil
}
