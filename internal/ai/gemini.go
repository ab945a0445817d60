package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiGenerator 走Google Gemini API的预测生成器
type GeminiGenerator struct {
	logger  *zap.Logger
	client  *genai.Client
	models  []string
	context ContextProvider
}

// NewGeminiGenerator 创建Gemini生成器
func NewGeminiGenerator(client *genai.Client, models []string, contextProvider ContextProvider, logger *zap.Logger) *GeminiGenerator {
	return &GeminiGenerator{
		logger:  logger,
		client:  client,
		models:  models,
		context: contextProvider,
	}
}

var _ Generator = (*GeminiGenerator)(nil)

func (g *GeminiGenerator) Name() string {
	return "gemini"
}

func (g *GeminiGenerator) Models() []string {
	return g.models
}

// Generate 调用一次GenerateContent并解析预测结果
func (g *GeminiGenerator) Generate(ctx context.Context, marketId string, model string) (*Result, error) {
	prompt := BuildUserPrompt(ctx, g.context, marketId)

	resp, err := g.client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: SystemInstructions(model)}},
			},
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return nil, fmt.Errorf("failed to call Gemini API: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response for model %s", model)
	}

	g.logger.Debug("gemini generation finished", zap.String("model", model))

	return parseResult(text)
}
