package health

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/SlpAus/pollsafe-backend/internal/platform/database"
	"github.com/SlpAus/pollsafe-backend/pkg/lifecycle"
)

const (
	DefaultInterval = 5 * time.Second
	pingTimeout     = 2 * time.Second
)

var runIDPattern = regexp.MustCompile(`run_id:([a-f0-9]+)`)

// Checker 定期探测Redis，更新共享的健康状态，并为 /api/health 提供报告
type Checker struct {
	db       *gorm.DB
	rdb      *redis.Client
	status   *database.Status
	interval time.Duration
	clock    clockwork.Clock
	log      *zap.Logger
}

func NewChecker(db *gorm.DB, rdb *redis.Client, status *database.Status, clock clockwork.Clock, log *zap.Logger) *Checker {
	return &Checker{
		db:       db,
		rdb:      rdb,
		status:   status,
		interval: DefaultInterval,
		clock:    clock,
		log:      log,
	}
}

// redisRunID 从Redis服务器信息中提取run_id
func (c *Checker) redisRunID(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	info, err := c.rdb.Info(ctx, "server").Result()
	if err != nil {
		return "", err
	}
	matches := runIDPattern.FindStringSubmatch(info)
	if len(matches) < 2 {
		return "", fmt.Errorf("无法在Redis INFO中找到run_id")
	}
	return matches[1], nil
}

// PerformCheck 执行一次Redis健康检查。
// run_id 变化说明Redis重启过，共享限流窗口随之清空，这里只记录下来。
func (c *Checker) PerformCheck(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	runID, err := c.redisRunID(ctx)
	if err != nil {
		c.status.Update(false, "")
		return
	}
	if c.status.Update(true, runID) {
		c.log.Warn("健康检查: 检测到Redis重启，共享限流计数已重置", zap.String("runId", runID))
	}
}

// Run 是后台检查循环，收到停机信号后退出
func (c *Checker) Run(h *lifecycle.Handle) {
	if c.rdb == nil {
		return
	}
	c.log.Info("Redis健康检查器已启动", zap.Duration("interval", c.interval))
	for {
		c.PerformCheck(h.Ctx())
		if h.Sleep(c.interval) != nil {
			c.log.Info("Redis健康检查器已停止")
			return
		}
	}
}

// Report 是健康检查接口的响应体
type Report struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Redis     string    `json:"redis"`
}

// Report 汇总数据库和Redis的当前状态。数据库不可用时整体状态为 degraded。
func (c *Checker) Report(ctx context.Context) Report {
	r := Report{Status: "ok", Timestamp: c.clock.Now().UTC(), Database: "up", Redis: "disabled"}

	if err := c.pingDB(ctx); err != nil {
		c.log.Warn("健康检查: 数据库不可用", zap.Error(err))
		r.Database = "down"
		r.Status = "degraded"
	}

	if c.rdb != nil {
		if c.status.IsRedisHealthy() {
			r.Redis = "up"
		} else {
			r.Redis = "down"
		}
	}
	return r
}

func (c *Checker) pingDB(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Handler 返回 GET /api/health 的处理函数
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		report := c.Report(ctx.Request.Context())
		code := http.StatusOK
		if report.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		ctx.JSON(code, report)
	}
}
