package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Result 单次生成的预测结果
// Raw保留模型原始返回，供审计与前端展示，本系统不做二次解释
type Result struct {
	Outcomes      []string        `json:"outcomes"`
	Probabilities []float64       `json:"probabilities"`
	Raw           json.RawMessage `json:"raw"`
}

// Generator 预测生成器
// 约定: 失败无副作用，瞬时错误（限流等）由provider内部自行重试
type Generator interface {
	Name() string
	Models() []string
	Generate(ctx context.Context, marketId string, model string) (*Result, error)
}

// ContextProvider 为提示词提供市场上下文
// 返回空字符串表示无可用上下文，生成不因此失败
type ContextProvider interface {
	MarketContext(ctx context.Context, marketId string) string
}

// Registry 模型ID到生成器的路由表
type Registry struct {
	byModel map[string]Generator
}

// NewRegistry 创建路由表，后注册的生成器不覆盖已占用的模型ID
func NewRegistry(generators ...Generator) *Registry {
	r := &Registry{byModel: make(map[string]Generator)}
	for _, g := range generators {
		if g == nil {
			continue
		}
		for _, model := range g.Models() {
			if _, ok := r.byModel[model]; !ok {
				r.byModel[model] = g
			}
		}
	}
	return r
}

// GeneratorFor 查找模型对应的生成器
func (r *Registry) GeneratorFor(model string) (Generator, bool) {
	g, ok := r.byModel[model]
	return g, ok
}

// Unknown 返回未注册的模型ID，用于批量校验
func (r *Registry) Unknown(models []string) []string {
	var unknown []string
	for _, model := range models {
		if _, ok := r.byModel[model]; !ok {
			unknown = append(unknown, model)
		}
	}
	return unknown
}

// KnownModels 返回全部已注册的模型ID（排序后）
func (r *Registry) KnownModels() []string {
	models := make([]string, 0, len(r.byModel))
	for model := range r.byModel {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Generate 路由到对应生成器
func (r *Registry) Generate(ctx context.Context, marketId string, model string) (*Result, error) {
	g, ok := r.byModel[model]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", model)
	}
	return g.Generate(ctx, marketId, model)
}

// predictionPayload 模型返回的JSON结构
type predictionPayload struct {
	Outcomes      []string  `json:"outcomes"`
	Probabilities []float64 `json:"probabilities"`
	Reasoning     string    `json:"reasoning"`
}

// parseResult 解析模型输出为Result
// 兼容模型把JSON包在```json代码块里的情况
func parseResult(content string) (*Result, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	var payload predictionPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse prediction payload: %w", err)
	}
	if len(payload.Outcomes) == 0 {
		return nil, fmt.Errorf("prediction payload has no outcomes")
	}
	if len(payload.Outcomes) != len(payload.Probabilities) {
		return nil, fmt.Errorf("outcomes and probabilities length mismatch: %d vs %d",
			len(payload.Outcomes), len(payload.Probabilities))
	}

	return &Result{
		Outcomes:      payload.Outcomes,
		Probabilities: payload.Probabilities,
		Raw:           json.RawMessage(trimmed),
	}, nil
}
