package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

// OpenAIGenerator 走OpenAI兼容API的预测生成器
type OpenAIGenerator struct {
	logger  *zap.Logger
	client  *openai.Client
	models  []string
	context ContextProvider
}

// NewOpenAIGenerator 创建OpenAI生成器
func NewOpenAIGenerator(client *openai.Client, models []string, contextProvider ContextProvider, logger *zap.Logger) *OpenAIGenerator {
	return &OpenAIGenerator{
		logger:  logger,
		client:  client,
		models:  models,
		context: contextProvider,
	}
}

var _ Generator = (*OpenAIGenerator)(nil)

func (g *OpenAIGenerator) Name() string {
	return "openai"
}

func (g *OpenAIGenerator) Models() []string {
	return g.models
}

// Generate 调用一次chat completion并解析预测结果
func (g *OpenAIGenerator) Generate(ctx context.Context, marketId string, model string) (*Result, error) {
	prompt := BuildUserPrompt(ctx, g.context, marketId)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemInstructions(model)),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call OpenAI API: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion for model %s", model)
	}

	g.logger.Debug("openai completion finished",
		zap.String("model", model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))

	return parseResult(resp.Choices[0].Message.Content)
}
