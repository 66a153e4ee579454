package vote

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/internal/user"
)

// CastRequestBody 定义了投票请求体的JSON结构
type CastRequestBody struct {
	OptionID        string `json:"optionId" binding:"required"`
	ParticipantName string `json:"participantName"`
	Fingerprint     string `json:"fingerprint"`
}

// Handler 提供投票状态查询和投票接口
type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// GetStatus 查询当前请求者在某个投票上的资格
func (h *Handler) GetStatus(c *gin.Context) {
	pollID := c.Param("pollId")
	signals := identity.FromRequest(c, c.Query("fingerprint"))
	voter := identity.ForRequest(user.CurrentUserID(c), signals)

	status, err := h.service.Status(c.Request.Context(), pollID, voter, signals)
	if err != nil {
		h.writeError(c, pollID, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Cast 处理投票请求
func (h *Handler) Cast(c *gin.Context) {
	pollID := c.Param("pollId")

	var body CastRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误，必须提供 optionId"})
		return
	}

	signals := identity.FromRequest(c, body.Fingerprint)
	req := CastRequest{
		PollID:          pollID,
		OptionID:        body.OptionID,
		Voter:           identity.ForRequest(user.CurrentUserID(c), signals),
		ParticipantName: body.ParticipantName,
		Signals:         signals,
	}

	result, err := h.service.Cast(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, pollID, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"vote":    result.Vote,
		"tally":   result.Tally,
		"message": "投票成功",
	})
}

func (h *Handler) writeError(c *gin.Context, pollID string, err error) {
	if reason, retryAfter, ok := Refusal(err); ok {
		h.log.Debug("投票被拒绝", zap.String("pollId", pollID), zap.String("reason", string(reason)))
		if reason == ReasonRateLimit {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":             err.Error(),
				"reason":            reason,
				"retryAfterSeconds": retryAfter,
			})
			return
		}
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "reason": reason})
		return
	}

	switch {
	case errors.Is(err, ErrPollNotFound), errors.Is(err, ErrNotAuthorizedPrivatePoll):
		// 私有投票对外表现为不存在
		c.JSON(http.StatusNotFound, gin.H{"error": ErrPollNotFound.Error()})
	case errors.Is(err, ErrOptionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNameRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "name_required"})
	case errors.Is(err, ErrNameTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "name_too_long"})
	default:
		h.log.Error("处理投票请求失败", zap.String("pollId", pollID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}
