package user

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/pkg/token"
)

const (
	CookieName = "token"
	UserIDKey  = "userID"
)

// LoadUserMiddleware 是软认证：令牌签名有效且未过期时把用户ID放入Gin上下文，
// 否则按匿名访问继续处理，不会拦截请求。
// 令牌由身份提供方用同一个密钥签发，本地 users 表里没有对应记录也照样认可。
func LoadUserMiddleware(signer *token.Signer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			tok, _ = c.Cookie(CookieName)
		}
		if tok == "" {
			c.Next()
			return
		}

		userID, err := signer.Verify(tok)
		if err != nil {
			log.Debug("忽略无效的会话令牌", zap.Error(err))
			c.Next()
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// RequireAuth 是硬认证：没有登录用户时返回401
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":  "需要登录",
				"reason": "auth_required",
			})
			return
		}
		c.Next()
	}
}

// CurrentUserID 返回软认证解析出的用户ID，匿名时为空串
func CurrentUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
