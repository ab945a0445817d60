package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sibylline/sibyl/pkg/market"
	"github.com/sibylline/sibyl/pkg/ta"
	"go.uber.org/zap"
)

// MarketService 市场上下文收集服务
// 为预测提示词提供价格、资金费率与多时间框架指标；行情不可用时降级为空上下文
type MarketService struct {
	logger *zap.Logger

	binanceClient *market.BinanceClient
}

// NewMarketService 创建市场数据服务
func NewMarketService(binanceClient *market.BinanceClient, logger *zap.Logger) *MarketService {
	return &MarketService{
		logger:        logger,
		binanceClient: binanceClient,
	}
}

// TimeframeIndicators 单个时间框架的指标
type TimeframeIndicators struct {
	Timeframe string  `json:"timeframe"`
	Price     float64 `json:"price"`
	EMA20     float64 `json:"ema20"`
	EMA50     float64 `json:"ema50"`
	MACD      float64 `json:"macd"`
	RSI14     float64 `json:"rsi14"`
	ATR14     float64 `json:"atr14"`
	Volume    float64 `json:"volume"`
}

// MarketContext 组装市场上下文文本，实现ai.ContextProvider
// 任何一步失败都只记日志，预测本身不因上下文缺失而失败
func (s *MarketService) MarketContext(ctx context.Context, marketId string) string {
	if s.binanceClient == nil {
		return ""
	}

	var sb strings.Builder

	price, err := s.binanceClient.GetCurrentPrice(ctx, marketId)
	if err != nil {
		s.logger.Warn("failed to get current price",
			zap.String("market_id", marketId),
			zap.Error(err))
		return ""
	}
	sb.WriteString(fmt.Sprintf("- 最新价格: $%.2f\n", price))

	if fundingRate, err := s.binanceClient.GetFundingRate(ctx, marketId); err != nil {
		s.logger.Warn("failed to get funding rate",
			zap.String("market_id", marketId),
			zap.Error(err))
	} else {
		sb.WriteString(fmt.Sprintf("- 资金费率: %.4f%%\n", fundingRate*100))
	}

	timeframes := []struct {
		name  string
		limit int
	}{
		{"15m", 96},
		{"1h", 120},
		{"4h", 180},
	}

	for _, tf := range timeframes {
		klines, err := s.binanceClient.GetKlines(ctx, marketId, tf.name, tf.limit)
		if err != nil {
			s.logger.Warn("failed to get klines",
				zap.String("market_id", marketId),
				zap.String("timeframe", tf.name),
				zap.Error(err))
			continue
		}

		if ind := calculateIndicators(tf.name, klines); ind != nil {
			sb.WriteString(fmt.Sprintf("- %s: 价格=$%.2f, EMA20=$%.2f, EMA50=$%.2f, MACD=%.2f, RSI14=%.1f, ATR14=%.2f, 成交量=%.0f\n",
				ind.Timeframe, ind.Price, ind.EMA20, ind.EMA50, ind.MACD, ind.RSI14, ind.ATR14, ind.Volume))
		}
	}

	return sb.String()
}

// calculateIndicators 计算单个时间框架的指标
func calculateIndicators(timeframe string, klines []*market.Kline) *TimeframeIndicators {
	if len(klines) < 50 {
		return nil
	}

	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
		volumes[i] = k.Volume
	}

	ema20 := ta.EMA(closes, 20)
	ema50 := ta.EMA(closes, 50)
	macd, _, _ := ta.MACD(closes, 12, 26, 9)
	rsi14 := ta.RSI(closes, 14)
	atr14 := ta.ATR(highs, lows, closes, 14)

	lastIdx := len(closes) - 1

	return &TimeframeIndicators{
		Timeframe: timeframe,
		Price:     closes[lastIdx],
		EMA20:     ta.Last(ema20, 0),
		EMA50:     ta.Last(ema50, 0),
		MACD:      ta.Last(macd, 0),
		RSI14:     ta.Last(rsi14, 0),
		ATR14:     ta.Last(atr14, 0),
		Volume:    volumes[lastIdx],
	}
}
