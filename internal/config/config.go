package config

type Config struct {
	Telegram TelegramConf `json:"telegram"`
	Binance  BinanceConf  `json:"binance"`
	LLM      LlmConf      `json:"llm"`
	Gemini   GeminiConf   `json:"gemini"`
	JWT      JwtConf      `json:"jwt"`
	Sessions SessionsConf `json:"sessions"`
}

type TelegramConf struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"`
}

type BinanceConf struct {
	APIKey   string `json:"api_key"`
	Secret   string `json:"secret"`
	ProxyURL string `json:"proxy_url"` // 代理地址，例如: http://127.0.0.1:7890
	Testnet  bool   `json:"testnet"`
}

type LlmConf struct {
	BaseURL  string   `json:"base_url"` // OpenAI兼容API基础URL
	APIKey   string   `json:"api_key"`
	Models   []string `json:"models"` // 该端点可用的模型ID列表
	ProxyURL string   `json:"proxy_url"`
}

type GeminiConf struct {
	APIKey string   `json:"api_key"`
	Models []string `json:"models"`
}

type JwtConf struct {
	Secret string `json:"secret"` // 为空时随机生成，重启后旧token失效
}

type SessionsConf struct {
	CostPerModel        int64 `json:"cost_per_model"`        // 每个模型的积分费用，默认1
	SignupBonusCredits  int64 `json:"signup_bonus_credits"`  // 注册赠送积分，默认10
	ModelDelaySeconds   int   `json:"model_delay_seconds"`   // 模型调用之间的间隔
	ProcessTimeoutMin   int   `json:"process_timeout_min"`   // 单次处理的外层超时上限，默认15
	DispatchMaxRetries  int   `json:"dispatch_max_retries"`  // 任务重投次数上限，默认3
	PollIntervalSeconds int   `json:"poll_interval_seconds"` // 任务轮询间隔，默认5
	RecoveryTimeoutMin  int   `json:"recovery_timeout_min"`  // 整点扫描的超时阈值，默认10
	QuickTimeoutMin     int   `json:"quick_timeout_min"`     // 快速扫描的超时阈值，默认5
	CleanupAfterHours   int   `json:"cleanup_after_hours"`   // ERROR会话保留时长，默认24
}

// CostFor 计算一组模型的积分费用
func (c SessionsConf) CostFor(modelCount int) int64 {
	rate := c.CostPerModel
	if rate <= 0 {
		rate = 1
	}
	return rate * int64(modelCount)
}

// 以下取值方法在配置缺省时回落到默认值

func (c SessionsConf) ProcessTimeoutMinutes() int {
	if c.ProcessTimeoutMin <= 0 {
		return 15
	}
	return c.ProcessTimeoutMin
}

func (c SessionsConf) RecoveryTimeoutMinutes() int {
	if c.RecoveryTimeoutMin <= 0 {
		return 10
	}
	return c.RecoveryTimeoutMin
}

func (c SessionsConf) QuickTimeoutMinutes() int {
	if c.QuickTimeoutMin <= 0 {
		return 5
	}
	return c.QuickTimeoutMin
}

func (c SessionsConf) CleanupHours() int {
	if c.CleanupAfterHours <= 0 {
		return 24
	}
	return c.CleanupAfterHours
}

func (c SessionsConf) PollInterval() int {
	if c.PollIntervalSeconds <= 0 {
		return 5
	}
	return c.PollIntervalSeconds
}

func (c SessionsConf) MaxRetries() int {
	if c.DispatchMaxRetries <= 0 {
		return 3
	}
	return c.DispatchMaxRetries
}

func (c SessionsConf) SignupBonus() int64 {
	if c.SignupBonusCredits < 0 {
		return 0
	}
	if c.SignupBonusCredits == 0 {
		return 10
	}
	return c.SignupBonusCredits
}
