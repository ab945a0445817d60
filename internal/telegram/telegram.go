package telegram

import (
	"fmt"
	"time"

	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Telegram 会话结果通知
// 未配置时返回nil，调用方按nil安全处理
type Telegram struct {
	logger *zap.Logger
	bot    *tele.Bot
	chatId int64
}

// NewTelegram 创建Telegram通知器，未启用时返回nil
func NewTelegram(conf *config.Config, logger *zap.Logger) (*Telegram, error) {
	if !conf.Telegram.Enabled || conf.Telegram.Token == "" {
		return nil, nil
	}

	pref := tele.Settings{
		Token:  conf.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Telegram{
		logger: logger,
		bot:    bot,
		chatId: cast.ToInt64(conf.Telegram.ChatID),
	}, nil
}

// Notify 发送文本消息，失败只记日志
func (t *Telegram) Notify(message string) {
	if t == nil || t.bot == nil {
		return
	}
	chat := &tele.Chat{ID: t.chatId}
	if _, err := t.bot.Send(chat, message, tele.ModeMarkdown); err != nil {
		t.logger.Warn("failed to send telegram message", zap.Error(err))
	}
}

// NotifySessionResult 会话进入终态时推送摘要
func (t *Telegram) NotifySessionResult(session *models.PredictionSession) {
	if t == nil {
		return
	}
	var message string
	switch session.Status {
	case models.SessionStatusFinished:
		message = fmt.Sprintf("✅ *预测完成*\n会话: `%s`\n市场: `%s`\n成功: %d / 失败: %d",
			session.ID, session.MarketID, session.SuccessCount, session.FailureCount)
	case models.SessionStatusError:
		message = fmt.Sprintf("❌ *预测失败*\n会话: `%s`\n市场: `%s`\n原因: %s",
			session.ID, session.MarketID, session.Error)
	default:
		return
	}
	t.Notify(message)
}
