package poll

import (
	"time"
)

const (
	MinOptions = 2
	MaxOptions = 10

	// MaxQuestionLength 按字符计
	MaxQuestionLength = 500
	MaxOptionLength   = 200

	// votesTable 是投票账本的表名。poll包只在级联删除和参与者列表中直接访问它。
	votesTable = "votes"
)

// Poll 是一个投票主题，拥有它的全部选项
type Poll struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Question  string    `gorm:"not null" json:"question"`
	IsPublic  bool      `gorm:"not null;default:true" json:"isPublic"`
	CreatorID string    `gorm:"index;not null;type:varchar(36)" json:"creatorId"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	Options []Option `gorm:"foreignKey:PollID" json:"options"`
}

// Option 是投票的一个选项，VoteCount 只通过数据库端的原子自增修改
type Option struct {
	ID        string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	PollID    string `gorm:"index;not null;type:varchar(64)" json:"pollId"`
	Text      string `gorm:"not null" json:"text"`
	Position  int    `gorm:"not null" json:"-"`
	VoteCount int64  `gorm:"not null;default:0" json:"voteCount"`
}

// VisibleTo 判断一个（可能为空的）用户ID能否看到这个投票
func (p *Poll) VisibleTo(userID string) bool {
	return p.IsPublic || (userID != "" && p.CreatorID == userID)
}

// TallyOption 是广播和结果展示中的一个选项计数
type TallyOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	VoteCount int64  `json:"voteCount"`
}

// Tally 是某个投票在某一时刻的计票快照，选项按票数降序排列
type Tally struct {
	PollID     string        `json:"pollId"`
	Options    []TallyOption `json:"options"`
	TotalVotes int64         `json:"totalVotes"`
}

// Participant 是投票创建者可见的一条投票记录
type Participant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OptionID   string    `json:"optionId"`
	OptionText string    `json:"optionText"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Detail 是单个投票的完整视图
type Detail struct {
	Poll
	TotalVotes   int64         `json:"totalVotes"`
	Participants []Participant `json:"participants"`
}
