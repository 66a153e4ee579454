package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SlpAus/pollsafe-backend/internal/identity"
	"github.com/SlpAus/pollsafe-backend/internal/poll"
	"github.com/SlpAus/pollsafe-backend/pkg/ratelimit"
)

const (
	TypeJoinPoll      = "join_poll"
	TypeLeavePoll     = "leave_poll"
	TypeUpdateResults = "update_results"
	TypeSocketError   = "socket_error"

	minPollIDLength = 8
	maxPollIDLength = 64

	writeTimeout = 5 * time.Second
)

// ClientMessage 是客户端发来的订阅控制消息
type ClientMessage struct {
	Type   string `json:"type"`
	PollID string `json:"pollId"`
}

// ServerMessage 是推送给客户端的消息
type ServerMessage struct {
	Type  string      `json:"type"`
	Data  *poll.Tally `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// ValidPollID 判断订阅的投票ID长度是否在8到64之间
func ValidPollID(id string) bool {
	return len(id) >= minPollIDLength && len(id) <= maxPollIDLength
}

// WSHandler 处理 /ws 上的实时订阅连接
type WSHandler struct {
	hub                 *Hub
	connLimiter         ratelimit.Limiter
	roomEventsPerMinute int
	originPatterns      []string
	log                 *zap.Logger
}

func NewWSHandler(hub *Hub, connLimiter ratelimit.Limiter, roomEventsPerMinute int, allowedOrigins []string, log *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:                 hub,
		connLimiter:         connLimiter,
		roomEventsPerMinute: roomEventsPerMinute,
		originPatterns:      originPatterns(allowedOrigins),
		log:                 log,
	}
}

// originPatterns 把 CORS 配置里的完整来源转换成websocket需要的主机模式
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// Serve 升级连接并运行读写循环，直到任一方断开
func (w *WSHandler) Serve(c *gin.Context) {
	ipHash := identity.HashIP(c.ClientIP())
	allowed, err := w.connLimiter.Allow(c.Request.Context(), ipHash)
	if err != nil {
		w.log.Error("连接限流检查失败", zap.Error(err))
		allowed = true
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "连接过于频繁，请稍后再试", "reason": "rate_limit"})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{OriginPatterns: w.originPatterns})
	if err != nil {
		w.log.Debug("websocket握手失败", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub := w.hub.Connect()
	defer w.hub.Drop(sub.ID)
	w.log.Debug("订阅连接已建立", zap.String("connId", sub.ID))

	readErr := make(chan error, 1)
	go func() {
		readErr <- w.readLoop(ctx, conn, sub)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case tally, ok := <-sub.Updates():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := w.write(ctx, conn, ServerMessage{Type: TypeUpdateResults, Data: &tally}); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

// readLoop 处理订阅控制消息。每条消息先消耗一个令牌，格式错误的消息同样计数；
// 超限后只回一次错误，直到重新拿到令牌。
func (w *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sub *Subscriber) error {
	limiter := rate.NewLimiter(ratelimit.PerMinute(w.roomEventsPerMinute))
	throttled := false

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		if !limiter.Allow() {
			if !throttled {
				throttled = true
				w.sendError(ctx, conn, "订阅操作过于频繁，请稍后再试")
			}
			continue
		}
		throttled = false

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.sendError(ctx, conn, "消息格式错误")
			continue
		}
		if msg.Type != TypeJoinPoll && msg.Type != TypeLeavePoll {
			w.sendError(ctx, conn, "未知的消息类型")
			continue
		}
		if !ValidPollID(msg.PollID) {
			w.sendError(ctx, conn, "无效的投票ID")
			continue
		}

		if msg.Type == TypeJoinPoll {
			err = w.hub.Join(sub.ID, msg.PollID)
		} else {
			err = w.hub.Leave(sub.ID, msg.PollID)
		}
		if err != nil {
			return err
		}
	}
}

func (w *WSHandler) sendError(ctx context.Context, conn *websocket.Conn, text string) {
	if err := w.write(ctx, conn, ServerMessage{Type: TypeSocketError, Error: text}); err != nil {
		w.log.Debug("发送错误消息失败", zap.Error(err))
	}
}

func (w *WSHandler) write(ctx context.Context, conn *websocket.Conn, msg ServerMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
