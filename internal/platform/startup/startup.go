package startup

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/internal/user"
	"github.com/SlpAus/pollsafe-backend/internal/vote"
)

// migrations 按依赖顺序排列：投票记录引用投票和选项
var migrations = []struct {
	name    string
	migrate func(*gorm.DB) error
}{
	{"user", user.Migrate},
	{"poll", poll.Migrate},
	{"vote", vote.Migrate},
}

// InitializeApplication 是应用启动时的初始化入口，负责迁移全部表结构
func InitializeApplication(db *gorm.DB, log *zap.Logger) error {
	log.Info("开始应用初始化")
	for _, m := range migrations {
		if err := m.migrate(db); err != nil {
			return err
		}
		log.Debug("表结构迁移完成", zap.String("module", m.name))
	}
	log.Info("应用初始化完成")
	return nil
}
