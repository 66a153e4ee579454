package user

import (
	"time"
)

// User 是身份提供方在数据库中的账户记录。
// 投票核心只读取它（用于默认的参与者显示名），注册和登录流程不在本服务内。
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}
