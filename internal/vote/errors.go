package vote

import (
	"errors"
	"fmt"
)

var (
	ErrPollNotFound             = errors.New("投票不存在")
	ErrOptionNotFound           = errors.New("投票或选项不存在")
	ErrNotAuthorizedPrivatePoll = errors.New("无权访问私有投票")
	ErrNameRequired             = errors.New("匿名投票需要填写名字")
	ErrNameTooLong              = errors.New("名字不能超过80个字符")
	ErrAlreadyVoted             = errors.New("你已经投过票了")
	ErrAnonymousAlreadyUsed     = errors.New("该设备已经匿名投过票，请登录后再投票")
)

// RateLimitedError 表示设备在窗口期内的投票次数已达上限
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("投票过于频繁，请在%d秒后重试", e.RetryAfterSeconds)
}

// Refusal 把策略拒绝类错误映射为对外的原因码。
// 对其他错误（包括基础设施错误）返回 ok=false。
func Refusal(err error) (reason Reason, retryAfterSeconds int, ok bool) {
	var limited *RateLimitedError
	switch {
	case errors.As(err, &limited):
		return ReasonRateLimit, limited.RetryAfterSeconds, true
	case errors.Is(err, ErrAlreadyVoted):
		return ReasonAlreadyVoted, 0, true
	case errors.Is(err, ErrAnonymousAlreadyUsed):
		return ReasonAnonymousUsed, 0, true
	}
	return "", 0, false
}

// refusalError 是 Refusal 的逆映射，用于把评估结果变成投票时的错误
func refusalError(s Status) error {
	switch s.Reason {
	case ReasonRateLimit:
		return &RateLimitedError{RetryAfterSeconds: s.RetryAfterSeconds}
	case ReasonAlreadyVoted:
		return ErrAlreadyVoted
	case ReasonAnonymousUsed:
		return ErrAnonymousAlreadyUsed
	}
	return nil
}
