package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sibylline/sibyl/internal/service"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreditHandler 积分HTTP处理器
type CreditHandler struct {
	logger        *zap.Logger
	creditService *service.CreditService
}

// NewCreditHandler 创建积分处理器
func NewCreditHandler(logger *zap.Logger, creditService *service.CreditService) *CreditHandler {
	return &CreditHandler{
		logger:        logger,
		creditService: creditService,
	}
}

// GetAccount 查询当前用户的积分账户
// GET /api/credits
func (h *CreditHandler) GetAccount(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)

	account, err := h.creditService.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"user_id": userID,
				"credits": 0,
			})
		}
		return err
	}

	return c.JSON(http.StatusOK, account)
}

// ListEntries 查询当前用户的积分流水
// GET /api/credits/entries
func (h *CreditHandler) ListEntries(c echo.Context) error {
	ctx := c.Request().Context()
	userID := c.Get("user_id").(string)

	limit := cast.ToInt(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	entries, err := h.creditService.Entries(ctx, userID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// RegisterRoutes 注册路由（需要认证）
func (h *CreditHandler) RegisterRoutes(g *echo.Group) {
	credits := g.Group("/credits")
	credits.GET("", h.GetAccount)
	credits.GET("/entries", h.ListEntries)
}
