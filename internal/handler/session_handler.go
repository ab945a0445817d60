package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sibylline/sibyl/internal/ai"
	"github.com/sibylline/sibyl/internal/service"
	"github.com/sibylline/sibyl/internal/xe"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

// SessionHandler 预测会话HTTP处理器
type SessionHandler struct {
	logger         *zap.Logger
	sessionService *service.SessionService
	registry       *ai.Registry
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(logger *zap.Logger, sessionService *service.SessionService, registry *ai.Registry) *SessionHandler {
	return &SessionHandler{
		logger:         logger,
		sessionService: sessionService,
		registry:       registry,
	}
}

// StartSessionRequest 创建会话请求
type StartSessionRequest struct {
	MarketID       string   `json:"market_id" validate:"required"`
	SelectedModels []string `json:"selected_models" validate:"required,min=1"`
}

// StartSession 创建预测会话
// POST /api/sessions
func (h *SessionHandler) StartSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)

	var req StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return xe.ErrInvalidParams
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	sessionID, err := h.sessionService.StartSession(ctx, userID, req.MarketID, req.SelectedModels)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
	})
}

// GetSession 查询会话详情
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	sessionID := c.Param("id")

	detail, err := h.sessionService.GetSessionDetail(ctx, sessionID)
	if err != nil {
		return err
	}
	// 不向非属主泄露会话存在性
	if detail.Session.UserID != userID {
		return xe.ErrSessionNotFound
	}

	return c.JSON(http.StatusOK, detail)
}

// ListSessions 查询当前用户的会话列表
// GET /api/sessions
func (h *SessionHandler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)
	limit := cast.ToInt(c.QueryParam("limit"))

	sessions, err := h.sessionService.ListUserSessions(ctx, userID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// ListModels 查询可用的模型列表
// GET /api/models
func (h *SessionHandler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"models": h.registry.KnownModels(),
	})
}

// RegisterRoutes 注册路由（需要认证）
func (h *SessionHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/models", h.ListModels)

	sessions := g.Group("/sessions")
	sessions.POST("", h.StartSession)
	sessions.GET("", h.ListSessions)
	sessions.GET("/:id", h.GetSession)
}
