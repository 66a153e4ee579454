package vote

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
)

// afterCommitTimeout 限制提交后读取计票和广播的时长
const afterCommitTimeout = 5 * time.Second

// Publisher 把计票快照推送给正在观看该投票的订阅者
type Publisher interface {
	Publish(ctx context.Context, tally poll.Tally) error
}

// UserDirectory 提供登录用户的默认显示名
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// CastResult 是一次成功投票的结果
type CastResult struct {
	Vote  *Vote
	Tally poll.Tally
}

// Service 组合了资格评估、账本提交和结果广播
type Service struct {
	db        *gorm.DB
	polls     *poll.Repository
	users     UserDirectory
	evaluator *Evaluator
	ledger    *Ledger
	publisher Publisher
	clock     clockwork.Clock
	log       *zap.Logger
}

func NewService(db *gorm.DB, polls *poll.Repository, users UserDirectory, limiter *RateLimiter, publisher Publisher, clock clockwork.Clock, log *zap.Logger) *Service {
	evaluator := NewEvaluator(limiter)
	return &Service{
		db:        db,
		polls:     polls,
		users:     users,
		evaluator: evaluator,
		ledger:    NewLedger(db, evaluator, clock),
		publisher: publisher,
		clock:     clock,
		log:       log,
	}
}

// Status 返回某个投票者在某个投票上的资格状态，不产生任何写入
func (s *Service) Status(ctx context.Context, pollID string, voter identity.Voter, signals identity.Signals) (Status, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadPoll(db, pollID, voter, false); err != nil {
		return Status{}, err
	}
	return s.evaluator.Evaluate(db, pollID, voter, signals.Fingerprint, s.clock.Now().UTC())
}

// Cast 投票。提交成功后重新读取计票结果并广播，广播失败只记录日志。
func (s *Service) Cast(ctx context.Context, req CastRequest) (*CastResult, error) {
	if req.Voter.IsAuthenticated() && strings.TrimSpace(req.ParticipantName) == "" && req.DefaultName == "" {
		name, err := s.users.DisplayName(ctx, req.Voter.UserID())
		if err != nil {
			s.log.Warn("无法读取用户名，使用空名字", zap.String("userId", req.Voter.UserID()), zap.Error(err))
		}
		req.DefaultName = name
	}

	v, err := s.ledger.CastVote(ctx, req)
	if err != nil {
		return nil, err
	}

	// 投票已经提交，请求被取消也要把结果推给其他观看者
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), afterCommitTimeout)
	defer cancel()

	tally, err := s.polls.Tally(ctx, req.PollID)
	if err != nil {
		// 投票已经提交，读取计票失败不影响结果
		s.log.Error("投票后读取计票结果失败", zap.String("pollId", req.PollID), zap.Error(err))
		return &CastResult{Vote: v}, nil
	}

	if err := s.publisher.Publish(ctx, tally); err != nil {
		s.log.Error("广播计票结果失败", zap.String("pollId", req.PollID), zap.Error(err))
	}
	return &CastResult{Vote: v, Tally: tally}, nil
}
