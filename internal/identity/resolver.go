// Package identity 从原始请求中提取两个互相独立的防刷信号：IP哈希与设备指纹，
// 并定义投票者身份的两种形态。
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	minDeclaredFingerprintLen = 8
	maxDeclaredFingerprintLen = 255

	unknownUserAgent = "unknown"
)

// Signals 是一次请求的防刷信号
type Signals struct {
	IPHash      string
	Fingerprint string
	// Declared 表示指纹来自客户端声明而不是服务端合成
	Declared bool
}

// HashIP 对原始IP做单向哈希，原始IP不落库也不进日志
func HashIP(rawIP string) string {
	sum := sha256.Sum256([]byte(rawIP))
	return hex.EncodeToString(sum[:])
}

// Resolve 计算 (ipHash, deviceFingerprint)。
// 客户端声明的指纹去掉首尾空白后长度在 [8,255] 内时原样使用，
// 否则退化为 sha256(ipHash + ":" + 小写的UA)。纯函数，不会失败。
func Resolve(rawIP, userAgent, declared string) Signals {
	ipHash := HashIP(rawIP)

	if fp := strings.TrimSpace(declared); isWellFormed(fp) {
		return Signals{IPHash: ipHash, Fingerprint: fp, Declared: true}
	}

	return Signals{IPHash: ipHash, Fingerprint: fallbackFingerprint(ipHash, userAgent)}
}

func isWellFormed(fp string) bool {
	return len(fp) >= minDeclaredFingerprintLen && len(fp) <= maxDeclaredFingerprintLen
}

func fallbackFingerprint(ipHash, userAgent string) string {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		ua = unknownUserAgent
	}
	sum := sha256.Sum256([]byte(ipHash + ":" + ua))
	return hex.EncodeToString(sum[:])
}
