package vote

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
)

// Reason 是拒绝投票的原因码
type Reason string

const (
	ReasonRateLimit     Reason = "rate_limit"
	ReasonAlreadyVoted  Reason = "already_voted"
	ReasonAnonymousUsed Reason = "anonymous_used"
)

// Status 是资格评估的结果，也是状态查询接口的响应体
type Status struct {
	HasVoted          bool   `json:"hasVoted"`
	CanVote           bool   `json:"canVote"`
	Reason            Reason `json:"reason,omitempty"`
	VotedOptionID     string `json:"votedOptionId,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Facts 是做出资格决定所需的全部事实
type Facts struct {
	RateLimit Verdict
	Voter     identity.Voter
	// Prior 是按投票者身份找到的已有投票，没有则为 nil
	Prior *Vote
}

// Decide 依次经过三道闸门，第一个命中的决定结果：
// 设备限流，然后是登录用户的历史投票，最后是匿名设备的历史投票。
func Decide(f Facts) Status {
	if f.RateLimit.Limited {
		return Status{
			Reason:            ReasonRateLimit,
			RetryAfterSeconds: f.RateLimit.RetryAfterSeconds,
			Message:           "该设备在这个投票上的次数已达上限，请稍后再试",
		}
	}

	if f.Prior == nil {
		return Status{CanVote: true}
	}

	if f.Voter.IsAuthenticated() {
		return Status{
			HasVoted:      true,
			Reason:        ReasonAlreadyVoted,
			VotedOptionID: f.Prior.OptionID,
			Message:       "你已经在这个投票中投过票了",
		}
	}
	return Status{
		Reason:  ReasonAnonymousUsed,
		Message: "该设备已经匿名投过票，登录后可以再投一次",
	}
}

// Evaluator 收集事实并调用 Decide。状态查询和投票事务共用它。
type Evaluator struct {
	limiter *RateLimiter
}

func NewEvaluator(limiter *RateLimiter) *Evaluator {
	return &Evaluator{limiter: limiter}
}

// Evaluate 只读地评估投票资格，供状态查询使用
func (e *Evaluator) Evaluate(db *gorm.DB, pollID string, voter identity.Voter, fingerprint string, now time.Time) (Status, error) {
	return e.run(e.limiter.Peek, db, pollID, voter, fingerprint, now)
}

// Admit 在投票事务内重新评估资格，tx 必须是随后写入投票的事务
func (e *Evaluator) Admit(tx *gorm.DB, pollID string, voter identity.Voter, fingerprint string, now time.Time) (Status, error) {
	return e.run(e.limiter.CheckAndObserve, tx, pollID, voter, fingerprint, now)
}

type limitFunc func(db *gorm.DB, pollID, fingerprint string, now time.Time) (Verdict, error)

func (e *Evaluator) run(limit limitFunc, db *gorm.DB, pollID string, voter identity.Voter, fingerprint string, now time.Time) (Status, error) {
	verdict, err := limit(db, pollID, fingerprint, now)
	if err != nil {
		return Status{}, err
	}
	if verdict.Limited {
		return Decide(Facts{RateLimit: verdict, Voter: voter}), nil
	}

	prior, err := findPrior(db, pollID, voter)
	if err != nil {
		return Status{}, err
	}
	return Decide(Facts{RateLimit: verdict, Voter: voter, Prior: prior}), nil
}

// findPrior 按投票者身份查找已有投票：登录用户按账户，匿名用户按匿名键
func findPrior(db *gorm.DB, pollID string, voter identity.Voter) (*Vote, error) {
	q := db.Model(&Vote{}).Where("poll_id = ?", pollID)
	if voter.IsAuthenticated() {
		q = q.Where("user_id = ?", voter.UserID())
	} else {
		q = q.Where("anonymous_key = ?", voter.AnonymousKey())
	}

	var votes []Vote
	if err := q.Limit(1).Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("无法查询已有投票: %w", err)
	}
	if len(votes) == 0 {
		return nil, nil
	}
	return &votes[0], nil
}
