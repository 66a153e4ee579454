package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/platform/database"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/pkg/lifecycle"
)

// DefaultChannel 是计票更新在Redis上的发布频道
const DefaultChannel = "pollsafe:tally"

const resubscribeDelay = 2 * time.Second

// RedisRelay 通过Redis发布/订阅在多个实例之间转发计票更新。
// 每个实例发布到同一个频道，再由各自的订阅循环投递给本地Hub；
// Redis不可用时直接投递给本地Hub。
type RedisRelay struct {
	rdb     *redis.Client
	hub     *Hub
	status  *database.Status
	channel string
	log     *zap.Logger
	ready   chan struct{}
	// subscribed 表示本实例的订阅当前是否在线
	subscribed atomic.Bool
}

func NewRedisRelay(rdb *redis.Client, hub *Hub, status *database.Status, channel string, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		rdb:     rdb,
		hub:     hub,
		status:  status,
		channel: channel,
		log:     log,
		ready:   make(chan struct{}),
	}
}

// Ready 在订阅第一次建立后关闭
func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

// Publish 实现 vote.Publisher。
// 本实例的订阅不在线或者频道上没有接收者时，同时直接投递给本地Hub，
// 保证本实例的观看者至少能收到一次。
func (r *RedisRelay) Publish(ctx context.Context, tally poll.Tally) error {
	if !r.status.IsRedisHealthy() {
		r.hub.Deliver(tally)
		return nil
	}

	payload, err := json.Marshal(tally)
	if err != nil {
		return fmt.Errorf("无法序列化计票结果: %w", err)
	}
	receivers, err := r.rdb.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		r.log.Warn("Redis发布失败，只投递给本实例", zap.String("pollId", tally.PollID), zap.Error(err))
		r.hub.Deliver(tally)
		return nil
	}
	if receivers == 0 || !r.subscribed.Load() {
		r.log.Debug("本实例未在频道上订阅，直接投递", zap.String("pollId", tally.PollID), zap.Int64("receivers", receivers))
		r.hub.Deliver(tally)
	}
	return nil
}

// Run 是订阅循环，连接断开后按固定间隔重新订阅，直到收到停机信号
func (r *RedisRelay) Run(h *lifecycle.Handle) {
	r.log.Info("广播中继已启动", zap.String("channel", r.channel))
	for {
		if err := r.subscribeOnce(h); err != nil {
			r.log.Warn("广播中继订阅中断", zap.Error(err))
		}
		if h.Sleep(resubscribeDelay) != nil {
			r.log.Info("广播中继已停止")
			return
		}
	}
}

func (r *RedisRelay) subscribeOnce(h *lifecycle.Handle) error {
	ctx := h.Ctx()
	ps := r.rdb.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("订阅频道失败: %w", err)
	}
	r.subscribed.Store(true)
	defer r.subscribed.Store(false)

	select {
	case <-r.ready:
	default:
		close(r.ready)
	}

	ch := ps.Channel()
	for {
		select {
		case <-h.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("订阅频道已关闭")
			}
			var tally poll.Tally
			if err := json.Unmarshal([]byte(msg.Payload), &tally); err != nil {
				r.log.Warn("忽略无法解析的计票消息", zap.Error(err))
				continue
			}
			r.hub.Deliver(tally)
		}
	}
}
