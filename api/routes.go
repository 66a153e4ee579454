package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/broadcast"
	"github.com/SlpAus/pollsafe-backend/internal/platform/config"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/internal/user"
	"github.com/SlpAus/pollsafe-backend/internal/vote"
	"github.com/SlpAus/pollsafe-backend/pkg/ratelimit"
)

// Deps 汇总了路由需要的所有处理器和中间件
type Deps struct {
	Polls  *poll.Handler
	Votes  *vote.Handler
	WS     *broadcast.WSHandler
	Health gin.HandlerFunc

	// LoadUser 是软认证中间件
	LoadUser gin.HandlerFunc

	APILimiter  ratelimit.Limiter
	VoteLimiter ratelimit.Limiter

	Log *zap.Logger
}

// NewRouter 创建配置好中间件的Gin引擎，并注册全部路由
func NewRouter(cfg config.ServerConfig, d Deps) (*gin.Engine, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(d.Log))
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Cors.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Device-Fingerprint"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	SetupRoutes(r, d)
	return r, nil
}

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, d Deps) {
	router.GET("/ws", d.WS.Serve)

	api := router.Group("/api")
	api.GET("/health", d.Health)

	limited := api.Group("", RateLimitMiddleware(d.APILimiter, d.Log), d.LoadUser)
	{
		polls := limited.Group("/polls")
		polls.POST("", user.RequireAuth(), d.Polls.Create)
		polls.GET("/user/mine", user.RequireAuth(), d.Polls.ListMine)
		polls.GET("/:id", d.Polls.Get)
		polls.DELETE("/:id", user.RequireAuth(), d.Polls.Delete)

		votes := limited.Group("/votes", RateLimitMiddleware(d.VoteLimiter, d.Log))
		votes.GET("/:pollId/status", d.Votes.GetStatus)
		votes.POST("/:pollId", d.Votes.Cast)
	}
}
