package internal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-orz/orz"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sibylline/sibyl/internal/config"
	"github.com/sibylline/sibyl/internal/handler"
	sibylmiddleware "github.com/sibylline/sibyl/internal/middleware"
	"github.com/sibylline/sibyl/internal/models"
	"github.com/sibylline/sibyl/internal/service"
	"github.com/sibylline/sibyl/internal/telegram"
	"github.com/sibylline/sibyl/pkg/nostd"
	"go.uber.org/zap"
)

func Run(configPath string) error {
	app := NewSibylApp()

	framework, err := orz.NewFramework(
		orz.WithConfig(configPath),
		orz.WithLoggerFromConfig(),
		orz.WithDatabase(),
		orz.WithHTTP(),
		orz.WithApplication(app),
	)
	if err != nil {
		return err
	}

	return framework.Run()
}

func NewSibylApp() orz.Application {
	return &SibylApp{}
}

var _ orz.Application = (*SibylApp)(nil)

type AppComponents struct {
	AuthHandler    *handler.AuthHandler
	SessionHandler *handler.SessionHandler
	CreditHandler  *handler.CreditHandler
	AdminHandler   *handler.AdminHandler

	// Session orchestration services
	SessionService  *service.SessionService
	SessionWorker   *service.SessionWorker
	TaskDispatcher  *service.TaskDispatcher
	RecoveryScanner *service.RecoveryScanner
	CreditService   *service.CreditService
	AuthService     *service.AuthService
	MarketService   *service.MarketService

	Telegram *telegram.Telegram
}

type SibylApp struct {
	components *AppComponents
	conf       *config.Config
}

// GetComponents 获取应用组件
func (r *SibylApp) GetComponents() *AppComponents {
	return r.components
}

func (r *SibylApp) Configure(app *orz.App) error {
	logger := app.Logger()
	e := app.GetEcho()
	db := app.GetDatabase()

	var conf config.Config
	err := app.GetConfig().App.Unmarshal(&conf)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config: %v", err)
	}

	components, err := InitializeApp(logger, db, &conf)
	if err != nil {
		return fmt.Errorf("failed to initialize app: %v", err)
	}
	r.components = components
	r.conf = &conf

	if err := db.AutoMigrate(
		models.User{},
		models.PredictionSession{}, models.Prediction{},
		models.CreditAccount{}, models.CreditEntry{},
		models.SessionTask{},
	); err != nil {
		logger.Fatal("database auto migrate failed", zap.Error(err))
	}

	if err := r.Init(logger); err != nil {
		logger.Fatal("app init failed", zap.Error(err))
	}

	e.HidePort = true
	e.HideBanner = true

	e.Use(middleware.Gzip())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper:      middleware.DefaultSkipper,
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			sugar := logger.Sugar()
			sugar.Error(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack))
			return err
		},
	}))
	e.Use(WithErrorHandler(logger))
	customValidator := nostd.CustomValidator{Validator: validator.New()}
	if err := customValidator.TransInit(); err != nil {
		logger.Sugar().Fatal("failed to init custom validator", zap.Error(err))
	}
	e.Validator = &customValidator

	api := e.Group("/api")
	{
		// 公开接口
		r.components.AuthHandler.RegisterRoutes(api)

		// 需要认证的接口
		protected := api.Group("", sibylmiddleware.JWTAuth(sibylmiddleware.JWTAuthConfig{
			AuthService: r.components.AuthService,
			Logger:      logger,
		}))
		r.components.AuthHandler.RegisterProtectedRoutes(protected.Group("/auth"))
		r.components.SessionHandler.RegisterRoutes(protected)
		r.components.CreditHandler.RegisterRoutes(protected)
		r.components.AdminHandler.RegisterRoutes(protected)
	}

	return nil
}

func (r *SibylApp) Init(logger *zap.Logger) error {
	logger.Info("=================================================")
	logger.Info("Sibyl Prediction Orchestrator Starting...")
	logger.Info("=================================================")

	components := r.GetComponents()
	if components == nil {
		return fmt.Errorf("components not initialized")
	}

	go components.TaskDispatcher.Start(context.Background())

	go func() {
		if err := components.RecoveryScanner.Start(context.Background()); err != nil {
			logger.Error("recovery scanner error", zap.Error(err))
		}
	}()

	return nil
}
