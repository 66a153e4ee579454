package vote

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate 负责自动迁移 votes 表及其索引
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Vote{}); err != nil {
		return fmt.Errorf("无法迁移vote表: %w", err)
	}
	return nil
}
