//go:build wireinject
// +build wireinject

package internal

import (
	"github.com/google/wire"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/handler"
	"github.com/sibylline/sibyl/internal/repo"
	"github.com/sibylline/sibyl/internal/service"
)

var (
	handlerSet = wire.NewSet(
		handler.NewAuthHandler,
		handler.NewSessionHandler,
		handler.NewCreditHandler,
		handler.NewAdminHandler,
	)

	repoSet = wire.NewSet(
		repo.NewSessionRepo,
		repo.NewPredictionRepo,
		repo.NewTaskRepo,
		repo.NewCreditAccountRepo,
		repo.NewCreditEntryRepo,
	)

	serviceSet = wire.NewSet(
		provideBinanceClient,
		provideOpenAIClient,
		provideRegistry,
		service.NewMarketService,
		service.NewCreditService,
		service.NewAuthService,
		service.NewSessionWorker,
		service.NewTaskDispatcher,
		service.NewRecoveryScanner,
		service.NewSessionService,
		wire.Bind(new(service.PredictionGenerator), new(*ai.Registry)),
		wire.Bind(new(service.Dispatcher), new(*service.TaskDispatcher)),
	)
)

// InitializeApp 初始化应用
func InitializeApp(logger *zap.Logger, db *gorm.DB, conf *config.Config) (*AppComponents, error) {
	wire.Build(
		handlerSet,
		repoSet,
		serviceSet,
		provideTelegram,
		wire.Struct(new(AppComponents), "*"),
	)
	return nil, nil
}
