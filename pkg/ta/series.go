package ta

import "github.com/markcheno/go-talib"

// 对talib的薄封装，保持调用方与底层库解耦

func EMA(closes []float64, period int) []float64 {
	return talib.Ema(closes, period)
}

func RSI(closes []float64, period int) []float64 {
	return talib.Rsi(closes, period)
}

func MACD(closes []float64, fast, slow, signal int) ([]float64, []float64, []float64) {
	return talib.Macd(closes, fast, slow, signal)
}

func ATR(highs, lows, closes []float64, period int) []float64 {
	return talib.Atr(highs, lows, closes, period)
}

func Last(s []float64, position int) float64 {
	return s[len(s)-1-position]
}

func LastValues(s []float64, size int) []float64 {
	if l := len(s); l > size {
		return s[l-size:]
	}
	return s
}
