package vote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/internal/platform/database"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
)

// MaxNameLength 按字符计
const MaxNameLength = 80

// CastRequest 是一次投票请求经过身份解析后的输入
type CastRequest struct {
	PollID          string
	OptionID        string
	Voter           identity.Voter
	ParticipantName string
	// DefaultName 是登录用户省略名字时使用的账户名
	DefaultName string
	Signals     identity.Signals
}

// CommitOutcome 是投票提交的类型化结果。
// 唯一约束冲突不会作为普通错误向上传递，而是按投票者身份归类为两种冲突之一。
type CommitOutcome int

const (
	Committed CommitOutcome = iota
	ConflictAlreadyVoted
	ConflictAnonymousUsed
)

func (o CommitOutcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case ConflictAlreadyVoted:
		return "conflict_already_voted"
	case ConflictAnonymousUsed:
		return "conflict_anonymous_used"
	}
	return "unknown"
}

// Err 返回冲突对应的拒绝错误，Committed 返回 nil
func (o CommitOutcome) Err() error {
	switch o {
	case ConflictAlreadyVoted:
		return ErrAlreadyVoted
	case ConflictAnonymousUsed:
		return ErrAnonymousAlreadyUsed
	}
	return nil
}

// classifyCommit 把事务的返回值归类。
// 唯一约束冲突按身份映射为冲突结果，其余错误原样返回。
func classifyCommit(voter identity.Voter, err error) (CommitOutcome, error) {
	if err == nil {
		return Committed, nil
	}
	if !database.IsDuplicateKeyError(err) {
		return Committed, err
	}
	if voter.IsAuthenticated() {
		return ConflictAlreadyVoted, nil
	}
	return ConflictAnonymousUsed, nil
}

// Ledger 负责投票的准入和原子提交
type Ledger struct {
	db        *gorm.DB
	evaluator *Evaluator
	clock     clockwork.Clock
}

func NewLedger(db *gorm.DB, evaluator *Evaluator, clock clockwork.Clock) *Ledger {
	return &Ledger{db: db, evaluator: evaluator, clock: clock}
}

// admitName 校验并确定参与者显示名
func admitName(req CastRequest) (string, error) {
	name := strings.TrimSpace(req.ParticipantName)
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	if name != "" {
		return name, nil
	}
	if !req.Voter.IsAuthenticated() {
		return "", ErrNameRequired
	}

	name = strings.TrimSpace(req.DefaultName)
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name, nil
}

// loadPoll 读取投票并检查可见性，lock 为真时对该行加写锁
func loadPoll(db *gorm.DB, pollID string, voter identity.Voter, lock bool) (*poll.Poll, error) {
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var p poll.Poll
	if err := db.Where("id = ?", pollID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPollNotFound
		}
		return nil, fmt.Errorf("无法读取投票: %w", err)
	}
	if !p.VisibleTo(voter.UserID()) {
		return nil, ErrNotAuthorizedPrivatePoll
	}
	return &p, nil
}

// CastVote 在一个事务中完成：锁定投票行，重新评估资格，写入投票记录，选项计数原子加一。
// 所有查询都必须走 tx，SQLite 只有一个连接，走 l.db 会在事务内死锁。
func (l *Ledger) CastVote(ctx context.Context, req CastRequest) (*Vote, error) {
	voteID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("无法生成UUID v7: %w", err)
	}

	var cast *Vote
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadPoll(tx, req.PollID, req.Voter, true); err != nil {
			return err
		}

		var options []poll.Option
		if err := tx.Where("id = ? AND poll_id = ?", req.OptionID, req.PollID).Limit(1).Find(&options).Error; err != nil {
			return fmt.Errorf("无法读取投票选项: %w", err)
		}
		if len(options) == 0 {
			return ErrOptionNotFound
		}

		name, err := admitName(req)
		if err != nil {
			return err
		}

		now := l.clock.Now().UTC()
		status, err := l.evaluator.Admit(tx, req.PollID, req.Voter, req.Signals.Fingerprint, now)
		if err != nil {
			return err
		}
		if !status.CanVote {
			return refusalError(status)
		}

		v := &Vote{
			ID:                voteID.String(),
			PollID:            req.PollID,
			OptionID:          req.OptionID,
			UserID:            req.Voter.UserIDPtr(),
			ParticipantName:   name,
			IPHash:            req.Signals.IPHash,
			DeviceFingerprint: req.Signals.Fingerprint,
			AnonymousKey:      req.Voter.AnonymousKeyPtr(),
			CreatedAt:         now,
		}
		if err := tx.Create(v).Error; err != nil {
			return err
		}

		res := tx.Model(&poll.Option{}).
			Where("id = ? AND poll_id = ?", req.OptionID, req.PollID).
			UpdateColumn("vote_count", gorm.Expr("vote_count + ?", 1))
		if res.Error != nil {
			return fmt.Errorf("无法更新选项计数: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return ErrOptionNotFound
		}

		cast = v
		return nil
	})

	outcome, err := classifyCommit(req.Voter, err)
	if err != nil {
		return nil, err
	}
	if conflict := outcome.Err(); conflict != nil {
		return nil, conflict
	}
	return cast, nil
}
