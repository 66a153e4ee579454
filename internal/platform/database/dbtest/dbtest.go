// Package dbtest 为各个包的测试提供相互隔离的内存SQLite数据库
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/platform/config"
	"github.com/SlpAus/pollsafe-backend/internal/platform/database"
)

var seq atomic.Int64

// Open 打开一个只属于当前测试的内存数据库，并依次执行给定的迁移函数
func Open(t testing.TB, migrations ...func(*gorm.DB) error) *gorm.DB {
	t.Helper()

	name := fmt.Sprintf("file:pollsafe_test_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := database.OpenDB(config.DatabaseConfig{Driver: database.DriverSQLite, DSN: name}, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = database.CloseDB(db)
	})

	for _, migrate := range migrations {
		require.NoError(t, migrate(db))
	}
	return db
}
