package ai

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasttemplate"
)

//go:embed templates/system_instructions.txt
var systemInstructionsTemplate string

// SystemInstructions 渲染系统提示词
func SystemInstructions(model string) string {
	tmpl := fasttemplate.New(systemInstructionsTemplate, "{{", "}}")
	return tmpl.ExecuteString(map[string]any{
		"model":        model,
		"current_time": time.Now().UTC().Format("2006-01-02 15:04:05"),
	})
}

// BuildUserPrompt 组装用户提示词: 市场标识 + 可选的市场上下文
func BuildUserPrompt(ctx context.Context, provider ContextProvider, marketId string) string {
	var sb strings.Builder

	sb.WriteString("## 预测目标\n\n")
	sb.WriteString(fmt.Sprintf("- 市场ID: %s\n\n", marketId))

	if provider != nil {
		if marketCtx := provider.MarketContext(ctx, marketId); marketCtx != "" {
			sb.WriteString("## 市场上下文\n\n")
			sb.WriteString(marketCtx)
			sb.WriteString("\n")
		}
	}

	sb.WriteString("请根据以上信息给出该市场可能的结果及对应概率。\n")
	return sb.String()
}
