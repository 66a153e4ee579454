package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/pkg/ratelimit"
)

// RateLimitMiddleware 按客户端IP的哈希限流，限流器出错时放行
func RateLimitMiddleware(limiter ratelimit.Limiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := limiter.Allow(c.Request.Context(), identity.HashIP(c.ClientIP()))
		if err != nil {
			log.Error("请求限流检查失败", zap.Error(err))
			ok = true
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":  "请求过于频繁，请稍后再试",
				"reason": "rate_limit",
			})
			return
		}
		c.Next()
	}
}

// RequestLogger 用zap记录每个请求，不记录客户端IP
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debug("请求完成",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}
