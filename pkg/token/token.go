package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("令牌格式错误")
	ErrSignature = errors.New("令牌签名无效")
	ErrExpired   = errors.New("令牌已过期")
)

// Payload 定义了需要被签名的会话数据
type Payload struct {
	UserID    string `json:"u"`
	ExpiresAt int64  `json:"e"`
}

// Signer 用HMAC-SHA256签发和校验会话令牌。
// 令牌格式: base64url(payload JSON) + "." + base64url(签名)
type Signer struct {
	secretKey []byte
	now       func() time.Time
}

// NewSigner 使用给定密钥创建签名器；密钥为空时生成一个32字节随机密钥
func NewSigner(secret string) (*Signer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
	}
	return &Signer{secretKey: key, now: time.Now}, nil
}

// Issue 为一个用户签发有效期为ttl的令牌
func (s *Signer) Issue(userID string, ttl time.Duration) (string, error) {
	payloadBytes, err := json.Marshal(Payload{UserID: userID, ExpiresAt: s.now().Add(ttl).Unix()})
	if err != nil {
		return "", errors.New("无法序列化Token payload")
	}

	encodedPayload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return encodedPayload + "." + s.sign(encodedPayload), nil
}

// Verify 校验令牌并返回其中的用户ID
func (s *Signer) Verify(tok string) (string, error) {
	encodedPayload, signatureB64, ok := strings.Cut(tok, ".")
	if !ok || encodedPayload == "" || signatureB64 == "" {
		return "", ErrMalformed
	}

	actualSignature, err := base64.RawURLEncoding.DecodeString(signatureB64)
	if err != nil {
		return "", ErrMalformed
	}
	expectedSignature, _ := base64.RawURLEncoding.DecodeString(s.sign(encodedPayload))

	// 时间恒定的比较，防止时序攻击
	if !hmac.Equal(expectedSignature, actualSignature) {
		return "", ErrSignature
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return "", ErrMalformed
	}
	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil || payload.UserID == "" {
		return "", ErrMalformed
	}
	if s.now().Unix() >= payload.ExpiresAt {
		return "", ErrExpired
	}
	return payload.UserID, nil
}

func (s *Signer) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
