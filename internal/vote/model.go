package vote

import (
	"time"
)

// Vote 是账本中的一条投票记录，创建后不再修改。
// 两个复合唯一索引是并发竞争下的最后一道防线：
// (poll_id, user_id) 约束登录用户，(poll_id, anonymous_key) 约束匿名设备。
// 两个数据库都把 NULL 视为互不相同，所以另一种身份的行不受约束。
type Vote struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	PollID            string    `gorm:"not null;type:varchar(64);uniqueIndex:idx_votes_poll_user,priority:1;uniqueIndex:idx_votes_poll_anon,priority:1;index:idx_votes_poll_device,priority:1" json:"pollId"`
	OptionID          string    `gorm:"not null;type:varchar(64);index" json:"optionId"`
	UserID            *string   `gorm:"type:varchar(36);uniqueIndex:idx_votes_poll_user,priority:2" json:"userId"`
	ParticipantName   string    `gorm:"not null;default:''" json:"participantName"`
	IPHash            string    `gorm:"not null;type:varchar(64)" json:"-"`
	DeviceFingerprint string    `gorm:"not null;type:varchar(255);index:idx_votes_poll_device,priority:2" json:"-"`
	AnonymousKey      *string   `gorm:"type:varchar(260);uniqueIndex:idx_votes_poll_anon,priority:2" json:"-"`
	CreatedAt         time.Time `gorm:"not null;index:idx_votes_poll_device,priority:3" json:"createdAt"`
}
