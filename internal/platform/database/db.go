package database

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/SlpAus/pollsafe-backend/internal/platform/config"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// sqlitePragmas 打开外键约束，并让写事务以 BEGIN IMMEDIATE 开始
const sqlitePragmas = "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"

// OpenDB 根据配置打开数据库连接
// SQLite只允许单写者，所以连接池被限制为一个连接，所有写事务在库内串行执行；
// PostgreSQL则依靠行锁，只有同一个投票的写事务会互相等待。
func OpenDB(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.New(
		zap.NewStdLog(log.Named("gorm")),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	gormCfg := &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	case DriverSQLite, "":
		db, err = gorm.Open(sqlite.Open(withSQLitePragmas(cfg.DSN)), gormCfg)
	default:
		return nil, fmt.Errorf("未知的数据库驱动: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.Driver != DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("无法获取底层数据库连接: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info("数据库连接成功", zap.String("driver", cfg.Driver))
	return db, nil
}

func withSQLitePragmas(dsn string) string {
	if strings.Contains(dsn, "_txlock") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return dsn + "?" + sqlitePragmas
}

// CloseDB 关闭底层连接池
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
