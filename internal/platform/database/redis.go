package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/platform/config"
)

// OpenRedis 初始化与Redis的连接
// 未启用Redis时返回 nil, nil，调用方据此选择内存实现
func OpenRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		log.Info("Redis未启用，广播与连接限流使用单实例内存实现")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到Redis: %w", err)
	}

	log.Info("Redis 连接成功", zap.String("address", cfg.Address))
	return rdb, nil
}
