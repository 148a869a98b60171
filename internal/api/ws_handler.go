package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"resumecanvas/internal/auth"
	"resumecanvas/internal/tasks"
)

const (
	wsAuthTimeout = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
	wsWriteWait   = 5 * time.Second
)

// WsHandler 把导出与预览任务的完成通知推送给浏览器。
// 连接建立后第一条消息必须是 {"type":"auth","token":<access token>}。
type WsHandler struct {
	redis    redis.UniversalClient
	tokens   *auth.AuthService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWsHandler(redisClient redis.UniversalClient, tokens *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WsHandler{
		redis:  redisClient,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), r.Host, allowedOrigins)
			},
		},
	}
}

// originAllowed 未配置白名单时只接受同源请求。
func originAllowed(origin, host string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}
	if len(allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, host)
	}
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// wsConn 串行化对连接的写入，gorilla/websocket 不允许并发写。
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (w *wsConn) close(code int, reason string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

var errWsAuth = errors.New("websocket authentication failed")

// HandleConnection 升级连接，完成鉴权后订阅该用户的通知频道。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}
	logger := h.logger.With(slog.String("client_ip", c.ClientIP()))

	userID, err := h.authenticate(raw)
	if err != nil {
		logger.Info("websocket rejected", slog.Any("error", err))
		conn.close(websocket.ClosePolicyViolation, "unauthorized")
		return
	}
	logger = logger.With(slog.Uint64("user_id", uint64(userID)))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 读循环只处理 pong 与断开；客户端关闭连接时取消订阅。
	_ = raw.SetReadDeadline(time.Now().Add(wsPongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := raw.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.forward(ctx, conn, userID); err != nil && ctx.Err() == nil {
		logger.Info("websocket closed", slog.Any("error", err))
		return
	}
	logger.Debug("websocket closed")
}

func (h *WsHandler) authenticate(conn *websocket.Conn) (uint, error) {
	_ = conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("%w: read: %v", errWsAuth, err)
	}
	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "auth" || msg.Token == "" {
		return 0, fmt.Errorf("%w: malformed auth message", errWsAuth)
	}
	claims, err := h.tokens.ValidateToken(msg.Token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errWsAuth, err)
	}
	if claims.TokenType != auth.TokenTypeAccess {
		return 0, fmt.Errorf("%w: %s token", errWsAuth, claims.TokenType)
	}
	return claims.UserID, nil
}

// forward 把 Redis 频道中的消息原样写给客户端，并定期发送 ping。
func (h *WsHandler) forward(ctx context.Context, conn *wsConn, userID uint) error {
	pubsub := h.redis.Subscribe(ctx, tasks.NotifyChannel(userID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	messages := pubsub.Channel()
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification channel closed")
			}
			if err := conn.send([]byte(msg.Payload)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
