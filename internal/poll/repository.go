package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CreateInput 是创建投票的参数，IsPublic 缺省为公开
type CreateInput struct {
	Question string   `json:"question"`
	Options  []string `json:"options" binding:"required"`
	IsPublic *bool    `json:"isPublic"`
}

// Summary 是"我的投票"列表中的一项
type Summary struct {
	Poll
	TotalVotes int64 `json:"totalVotes"`
}

// Repository 封装了投票主题及其选项的持久化
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("无法生成UUID v7: %w", err)
	}
	return id.String(), nil
}

func (in CreateInput) normalize() (string, []string, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return "", nil, ErrQuestionMissing
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return "", nil, ErrQuestionTooLong
	}

	if len(in.Options) < MinOptions || len(in.Options) > MaxOptions {
		return "", nil, ErrOptionCount
	}
	options := make([]string, 0, len(in.Options))
	for _, text := range in.Options {
		text = strings.TrimSpace(text)
		if text == "" || utf8.RuneCountInString(text) > MaxOptionLength {
			return "", nil, ErrOptionInvalid
		}
		options = append(options, text)
	}
	return question, options, nil
}

// Create 为已登录用户创建一个带2到10个选项的投票
func (r *Repository) Create(ctx context.Context, creatorID string, in CreateInput) (*Poll, error) {
	question, texts, err := in.normalize()
	if err != nil {
		return nil, err
	}

	pollID, err := newID()
	if err != nil {
		return nil, err
	}

	p := &Poll{
		ID:        pollID,
		Question:  question,
		IsPublic:  in.IsPublic == nil || *in.IsPublic,
		CreatorID: creatorID,
	}
	for i, text := range texts {
		optionID, err := newID()
		if err != nil {
			return nil, err
		}
		p.Options = append(p.Options, Option{ID: optionID, PollID: pollID, Text: text, Position: i})
	}

	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("无法创建投票: %w", err)
	}
	return p, nil
}

func orderedOptions(db *gorm.DB) *gorm.DB {
	return db.Order("vote_count DESC").Order("position ASC")
}

// Get 读取一个投票。私有投票对非创建者表现为不存在；创建者还会拿到参与者列表。
func (r *Repository) Get(ctx context.Context, id, viewerID string) (*Detail, error) {
	db := r.db.WithContext(ctx)

	var p Poll
	if err := db.Preload("Options", orderedOptions).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("无法读取投票: %w", err)
	}
	if !p.VisibleTo(viewerID) {
		return nil, ErrNotFound
	}

	total, err := countVotes(db, id)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Poll: p, TotalVotes: total, Participants: []Participant{}}
	if viewerID != "" && p.CreatorID == viewerID {
		if detail.Participants, err = participants(db, id); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// ListByCreator 返回某个用户创建的全部投票，按创建时间倒序
func (r *Repository) ListByCreator(ctx context.Context, creatorID string) ([]Summary, error) {
	db := r.db.WithContext(ctx)

	var polls []Poll
	err := db.Preload("Options", orderedOptions).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&polls).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取用户的投票列表: %w", err)
	}

	summaries := make([]Summary, 0, len(polls))
	if len(polls) == 0 {
		return summaries, nil
	}

	ids := make([]string, len(polls))
	for i := range polls {
		ids[i] = polls[i].ID
	}
	var counts []struct {
		PollID string
		Total  int64
	}
	err = db.Table(votesTable).
		Select("poll_id, COUNT(*) AS total").
		Where("poll_id IN ?", ids).
		Group("poll_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("无法统计投票数: %w", err)
	}
	totals := make(map[string]int64, len(counts))
	for _, c := range counts {
		totals[c.PollID] = c.Total
	}

	for _, p := range polls {
		summaries = append(summaries, Summary{Poll: p, TotalVotes: totals[p.ID]})
	}
	return summaries, nil
}

// Delete 删除投票，级联删除它的选项和全部投票记录
func (r *Repository) Delete(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Poll
		if err := tx.Select("id", "creator_id").Where("id = ?", id).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("无法读取投票: %w", err)
		}
		if p.CreatorID != userID {
			return ErrNotCreator
		}

		if err := tx.Exec("DELETE FROM "+votesTable+" WHERE poll_id = ?", id).Error; err != nil {
			return fmt.Errorf("无法删除投票记录: %w", err)
		}
		if err := tx.Where("poll_id = ?", id).Delete(&Option{}).Error; err != nil {
			return fmt.Errorf("无法删除投票选项: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&Poll{}).Error; err != nil {
			return fmt.Errorf("无法删除投票: %w", err)
		}
		return nil
	})
}

// Tally 读取一个投票当前的计票快照
func (r *Repository) Tally(ctx context.Context, pollID string) (Tally, error) {
	return LoadTally(r.db.WithContext(ctx), pollID)
}

// LoadTally 在给定的连接或事务上读取计票快照。
// 总票数取投票记录的行数，而不是选项计数之和。
func LoadTally(db *gorm.DB, pollID string) (Tally, error) {
	var options []Option
	if err := orderedOptions(db).Where("poll_id = ?", pollID).Find(&options).Error; err != nil {
		return Tally{}, fmt.Errorf("无法读取投票选项: %w", err)
	}
	if len(options) == 0 {
		return Tally{}, ErrNotFound
	}

	total, err := countVotes(db, pollID)
	if err != nil {
		return Tally{}, err
	}

	t := Tally{PollID: pollID, TotalVotes: total, Options: make([]TallyOption, len(options))}
	for i, o := range options {
		t.Options[i] = TallyOption{ID: o.ID, Text: o.Text, VoteCount: o.VoteCount}
	}
	return t, nil
}

func countVotes(db *gorm.DB, pollID string) (int64, error) {
	var total int64
	if err := db.Table(votesTable).Where("poll_id = ?", pollID).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("无法统计投票数: %w", err)
	}
	return total, nil
}

func participants(db *gorm.DB, pollID string) ([]Participant, error) {
	var ps []Participant
	err := db.Table(votesTable+" AS v").
		Select("v.id AS id, v.participant_name AS name, v.option_id AS option_id, o.text AS option_text, v.created_at AS created_at").
		Joins("JOIN options AS o ON o.id = v.option_id").
		Where("v.poll_id = ?", pollID).
		Order("v.created_at DESC").
		Scan(&ps).Error
	if err != nil {
		return nil, fmt.Errorf("无法读取参与者列表: %w", err)
	}
	for i := range ps {
		if ps[i].Name == "" {
			ps[i].Name = "Anonymous"
		}
	}
	if ps == nil {
		ps = []Participant{}
	}
	return ps, nil
}
