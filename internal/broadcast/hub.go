package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SlpAus/pollsafe-backend/internal/poll"
)

// DefaultBufferSize 是每个订阅者的待发送队列长度，队列满时新的更新被丢弃
const DefaultBufferSize = 16

var ErrUnknownConnection = errors.New("连接不存在或已断开")

// Subscriber 是一个连接在Hub中的表示
type Subscriber struct {
	ID      string
	updates chan poll.Tally
}

// Updates 返回该连接的更新流，连接被 Drop 后关闭
func (s *Subscriber) Updates() <-chan poll.Tally {
	return s.updates
}

// Hub 维护 投票 -> 连接 的订阅关系，并把计票更新扇出给订阅者。
// 订阅关系以 (连接ID, 投票ID) 为键，加入和离开都是幂等的。
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*member
	topics     map[string]map[string]*member
	bufferSize int
	log        *zap.Logger
}

type member struct {
	sub    *Subscriber
	topics map[string]struct{}
}

func NewHub(bufferSize int, log *zap.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		conns:      make(map[string]*member),
		topics:     make(map[string]map[string]*member),
		bufferSize: bufferSize,
		log:        log,
	}
}

// Connect 注册一个新连接
func (h *Hub) Connect() *Subscriber {
	sub := &Subscriber{ID: uuid.NewString(), updates: make(chan poll.Tally, h.bufferSize)}

	h.mu.Lock()
	h.conns[sub.ID] = &member{sub: sub, topics: make(map[string]struct{})}
	h.mu.Unlock()
	return sub
}

// Join 让连接订阅一个投票
func (h *Hub) Join(connID, pollID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if _, joined := m.topics[pollID]; joined {
		return nil
	}
	m.topics[pollID] = struct{}{}

	members := h.topics[pollID]
	if members == nil {
		members = make(map[string]*member)
		h.topics[pollID] = members
	}
	members[connID] = m
	return nil
}

// Leave 取消连接对一个投票的订阅
func (h *Hub) Leave(connID, pollID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	h.leaveLocked(m, pollID)
	return nil
}

func (h *Hub) leaveLocked(m *member, pollID string) {
	if _, joined := m.topics[pollID]; !joined {
		return
	}
	delete(m.topics, pollID)

	members := h.topics[pollID]
	delete(members, m.sub.ID)
	if len(members) == 0 {
		delete(h.topics, pollID)
	}
}

// Drop 在连接断开时移除它的全部订阅，并关闭它的更新流
func (h *Hub) Drop(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, ok := h.conns[connID]
	if !ok {
		return
	}
	for pollID := range m.topics {
		h.leaveLocked(m, pollID)
	}
	delete(h.conns, connID)
	close(m.sub.updates)
}

// Deliver 把更新非阻塞地投递给该投票的所有订阅者，返回成功投递的数量。
// 订阅者的队列已满时这次更新对它被丢弃，它需要重新读取最新结果。
func (h *Hub) Deliver(tally poll.Tally) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for connID, m := range h.topics[tally.PollID] {
		select {
		case m.sub.updates <- tally:
			delivered++
		default:
			h.log.Warn("订阅者队列已满，丢弃一次更新", zap.String("connId", connID), zap.String("pollId", tally.PollID))
		}
	}
	return delivered
}

// Publish 实现单实例的发布：直接投递到本地订阅者
func (h *Hub) Publish(_ context.Context, tally poll.Tally) error {
	h.Deliver(tally)
	return nil
}

// Members 返回某个投票当前的订阅者数量
func (h *Hub) Members(pollID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[pollID])
}

// Topics 返回某个连接当前订阅的投票数量
func (h *Hub) Topics(connID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if m, ok := h.conns[connID]; ok {
		return len(m.topics)
	}
	return 0
}

// Close 断开所有连接
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.Drop(id)
	}
	h.log.Info("广播中心已关闭", zap.Int("connections", len(ids)))
}
