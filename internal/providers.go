package internal

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/service"
	"github.com/sibylline/sibyl/internal/telegram"
	"github.com/sibylline/sibyl/pkg/market"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// provideTelegram provides telegram instance
func provideTelegram(conf *config.Config, logger *zap.Logger) *telegram.Telegram {
	tg, err := telegram.NewTelegram(conf, logger)
	if err != nil {
		logger.Error("failed to init telegram", zap.Error(err))
		return nil
	}
	return tg
}

// provideBinanceClient provides Binance client
func provideBinanceClient(conf *config.Config, logger *zap.Logger) *market.BinanceClient {
	client := market.NewBinanceClient(
		conf.Binance.APIKey,
		conf.Binance.Secret,
		conf.Binance.ProxyURL,
		conf.Binance.Testnet,
	)

	logger.Info("Binance client initialized",
		zap.Bool("testnet", conf.Binance.Testnet),
		zap.Bool("has_credentials", conf.Binance.APIKey != "" && conf.Binance.Secret != ""),
	)
	return client
}

// provideOpenAIClient provides OpenAI client
func provideOpenAIClient(conf *config.Config, logger *zap.Logger) *openai.Client {
	var options = []option.RequestOption{
		option.WithBaseURL(conf.LLM.BaseURL),
		option.WithAPIKey(conf.LLM.APIKey),
	}
	if conf.LLM.ProxyURL != "" {
		u, err := url.Parse(conf.LLM.ProxyURL)
		if err != nil {
			logger.Fatal("failed to parse proxy URL", zap.Error(err))
		}
		httpClient := &http.Client{
			Timeout: time.Minute,
			Transport: &http.Transport{
				Proxy: http.ProxyURL(u),
			},
		}
		options = append(options, option.WithHTTPClient(httpClient))
	}

	client := openai.NewClient(options...)

	logger.Info("OpenAI client initialized",
		zap.Int("models", len(conf.LLM.Models)),
	)
	return &client
}

// provideRegistry 按配置注册可用的预测生成器
func provideRegistry(conf *config.Config, logger *zap.Logger,
	openaiClient *openai.Client, marketService *service.MarketService) (*ai.Registry, error) {
	var generators []ai.Generator

	if conf.LLM.APIKey != "" && len(conf.LLM.Models) > 0 {
		generators = append(generators,
			ai.NewOpenAIGenerator(openaiClient, conf.LLM.Models, marketService, logger))
	}

	if conf.Gemini.APIKey != "" && len(conf.Gemini.Models) > 0 {
		geminiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
			APIKey:  conf.Gemini.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, err
		}
		generators = append(generators,
			ai.NewGeminiGenerator(geminiClient, conf.Gemini.Models, marketService, logger))
	}

	registry := ai.NewRegistry(generators...)
	logger.Info("prediction generators registered",
		zap.Int("generators", len(generators)),
		zap.Int("models", len(registry.KnownModels())),
	)
	return registry, nil
}
