package poll

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/user"
)

// Handler 提供投票主题的增删查接口
type Handler struct {
	repo *Repository
	log  *zap.Logger
}

func NewHandler(repo *Repository, log *zap.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

// Create 创建投票，需要登录
func (h *Handler) Create(c *gin.Context) {
	var body CreateInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误"})
		return
	}

	p, err := h.repo.Create(c.Request.Context(), user.CurrentUserID(c), body)
	if err != nil {
		if IsValidationError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("创建投票失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"poll": p})
}

// Get 获取单个投票
func (h *Handler) Get(c *gin.Context) {
	detail, err := h.repo.Get(c.Request.Context(), c.Param("id"), user.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("读取投票失败", zap.String("pollId", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"poll": detail})
}

// ListMine 列出当前用户创建的投票，需要登录
func (h *Handler) ListMine(c *gin.Context) {
	polls, err := h.repo.ListByCreator(c.Request.Context(), user.CurrentUserID(c))
	if err != nil {
		h.log.Error("读取我的投票失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"polls": polls})
}

// Delete 删除投票，只有创建者可以操作
func (h *Handler) Delete(c *gin.Context) {
	err := h.repo.Delete(c.Request.Context(), c.Param("id"), user.CurrentUserID(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "投票已删除"})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotCreator):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.log.Error("删除投票失败", zap.String("pollId", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
