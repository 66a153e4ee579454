package poll

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate 负责自动迁移 polls 和 options 表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Poll{}, &Option{}); err != nil {
		return fmt.Errorf("无法迁移poll表: %w", err)
	}
	return nil
}
