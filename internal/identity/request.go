package identity

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// FingerprintHeader 是客户端声明设备指纹的请求头
const FingerprintHeader = "X-Device-Fingerprint"

// FromRequest 从Gin请求中提取身份信号。
// 格式合法的请求头指纹优先于请求体里的 fingerprint 字段。
func FromRequest(c *gin.Context, bodyFingerprint string) Signals {
	declared := strings.TrimSpace(c.GetHeader(FingerprintHeader))
	if !isWellFormed(declared) {
		declared = bodyFingerprint
	}
	return Resolve(c.ClientIP(), c.Request.UserAgent(), declared)
}
