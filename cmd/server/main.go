package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/api"
	"github.com/SlpAus/pollsafe-backend/internal/broadcast"
	"github.com/SlpAus/pollsafe-backend/internal/platform/config"
	"github.com/SlpAus/pollsafe-backend/internal/platform/database"
	"github.com/SlpAus/pollsafe-backend/internal/platform/health"
	"github.com/SlpAus/pollsafe-backend/internal/platform/shutdown"
	"github.com/SlpAus/pollsafe-backend/internal/platform/startup"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/internal/user"
	"github.com/SlpAus/pollsafe-backend/internal/vote"
	"github.com/SlpAus/pollsafe-backend/pkg/lifecycle"
	"github.com/SlpAus/pollsafe-backend/pkg/logger"
	"github.com/SlpAus/pollsafe-backend/pkg/ratelimit"
	"github.com/SlpAus/pollsafe-backend/pkg/token"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("无法加载配置: %v", err))
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("无法初始化日志: %v", err))
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("服务器启动失败", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	clock := clockwork.NewRealClock()

	db, err := database.OpenDB(cfg.Database, log)
	if err != nil {
		return err
	}

	// 1. 执行应用首次启动初始化流程
	if err := startup.InitializeApplication(db, log); err != nil {
		return fmt.Errorf("应用初始化失败: %w", err)
	}

	rdb, err := database.OpenRedis(context.Background(), cfg.Database.Redis, log)
	if err != nil {
		return err
	}
	status := database.NewStatus(log)

	signer, err := token.NewSigner(cfg.Auth.Secret)
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		log.Warn("未配置会话密钥，已随机生成，重启后所有令牌失效")
	}

	gracefulMgr := lifecycle.NewManager("graceful", log)
	forcefulMgr := lifecycle.NewManager("forceful", log)
	coordinator := shutdown.NewCoordinator(gracefulMgr, forcefulMgr, log)

	// 2. 启动后执行一次健康检查，再交给后台循环
	checker := health.NewChecker(db, rdb, status, clock, log)
	checker.PerformCheck(context.Background())
	if err := gracefulMgr.Go("health-checker", checker.Run); err != nil {
		return err
	}

	hub := broadcast.NewHub(broadcast.DefaultBufferSize, log)
	var publisher vote.Publisher = hub
	if rdb != nil {
		relay := broadcast.NewRedisRelay(rdb, hub, status, broadcast.DefaultChannel, log)
		if err := gracefulMgr.Go("broadcast-relay", relay.Run); err != nil {
			return err
		}
		publisher = relay
	}

	limits := cfg.Limits
	connLimiter := newLimiter(rdb, status, "ratelimit:ws", limits.SocketConnectionsPerMinute, clock, gracefulMgr, log)
	apiLimiter := newLimiter(rdb, status, "ratelimit:api", limits.APIRequestsPerMinute, clock, gracefulMgr, log)
	voteLimiter := newLimiter(rdb, status, "ratelimit:votes", limits.VoteRequestsPerMinute, clock, gracefulMgr, log)

	users := user.NewRepository(db)
	polls := poll.NewRepository(db)
	votes := vote.NewService(db, polls, users, vote.NewRateLimiter(limits.VotesPerWindow, limits.VoteWindow), publisher, clock, log)

	router, err := api.NewRouter(cfg.Server, api.Deps{
		Polls:       poll.NewHandler(polls, log),
		Votes:       vote.NewHandler(votes, log),
		WS:          broadcast.NewWSHandler(hub, connLimiter, limits.SocketRoomEventsPerMinute, cfg.Server.Cors.AllowedOrigins, log),
		Health:      checker.Handler(),
		LoadUser:    user.LoadUserMiddleware(signer, log),
		APILimiter:  apiLimiter,
		VoteLimiter: voteLimiter,
		Log:         log,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	coordinator.OnShutdown("broadcast-hub", func() error {
		hub.Close()
		return nil
	})
	if rdb != nil {
		coordinator.OnShutdown("redis", rdb.Close)
	}
	coordinator.OnShutdown("database", func() error {
		return database.CloseDB(db)
	})

	go func() {
		log.Info("服务器已准备就绪，开始监听", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP服务器异常退出", zap.Error(err))
		}
	}()

	coordinator.ListenForSignalsAndShutdown(server)
	return nil
}

// sweeper 是需要定期清理过期键的限流器
type sweeper interface {
	ratelimit.Limiter
	Sweep() int
}

// newLimiter 在启用Redis时返回跨实例共享的滑动窗口，否则返回内存令牌桶。
// 两种实现都持有内存中的按键状态，统一注册一个清理任务。
func newLimiter(rdb *redis.Client, status *database.Status, prefix string, perMinute int, clock clockwork.Clock, mgr *lifecycle.Manager, log *zap.Logger) ratelimit.Limiter {
	var limiter sweeper
	if rdb != nil && perMinute > 0 {
		limiter = ratelimit.NewRedisWindow(rdb, status, prefix, perMinute, time.Minute, clock, log)
	} else {
		limiter = ratelimit.NewPerMinuteStore(perMinute, clock)
	}

	err := mgr.Go(prefix+"-janitor", func(h *lifecycle.Handle) {
		for h.Sleep(sweepInterval) == nil {
			n := limiter.Sweep()
			log.Debug("已清理过期限流条目", zap.String("limiter", prefix), zap.Int("remaining", n))
		}
	})
	if err != nil {
		log.Warn("无法启动限流清理任务", zap.String("limiter", prefix), zap.Error(err))
	}
	return limiter
}
