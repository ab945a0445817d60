package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sibylline/sibyl/internal/service"
	"go.uber.org/zap"
)

// AdminHandler 运维HTTP处理器
type AdminHandler struct {
	logger  *zap.Logger
	scanner *service.RecoveryScanner
}

// NewAdminHandler 创建运维处理器
func NewAdminHandler(logger *zap.Logger, scanner *service.RecoveryScanner) *AdminHandler {
	return &AdminHandler{
		logger:  logger,
		scanner: scanner,
	}
}

// RecoverSession 手动恢复单个会话
// POST /api/admin/sessions/:id/recover
func (h *AdminHandler) RecoverSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("id")

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Reason == "" {
		req.Reason = "manual recovery"
	}

	result, err := h.scanner.RecoverSession(ctx, sessionID, req.Reason)
	if err != nil {
		return err
	}

	h.logger.Info("session recovered manually",
		zap.String("session_id", sessionID),
		zap.Int("success", result.Success),
		zap.Int("failure", result.Failure))
	return c.JSON(http.StatusOK, result)
}

// RunRecovery 立即执行一轮恢复扫描
// POST /api/admin/recovery/run
func (h *AdminHandler) RunRecovery(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		TimeoutMinutes int `json:"timeout_minutes"`
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.TimeoutMinutes <= 0 {
		req.TimeoutMinutes = 5
	}

	stats, err := h.scanner.RecoverStuckSessions(ctx, time.Duration(req.TimeoutMinutes)*time.Minute)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, stats)
}

// RunCleanup 立即清理过期的ERROR会话
// POST /api/admin/cleanup/run
func (h *AdminHandler) RunCleanup(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		OlderThanHours int `json:"older_than_hours"`
	}
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.OlderThanHours <= 0 {
		req.OlderThanHours = 24
	}

	deleted, err := h.scanner.CleanupOldSessions(ctx, time.Duration(req.OlderThanHours)*time.Hour)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"deleted": deleted,
	})
}

// RegisterRoutes 注册路由（需要认证）
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	admin := g.Group("/admin")
	admin.POST("/sessions/:id/recover", h.RecoverSession)
	admin.POST("/recovery/run", h.RunRecovery)
	admin.POST("/cleanup/run", h.RunCleanup)
}
