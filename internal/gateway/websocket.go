package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/config"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/protocol"
)

// 傳輸層錯誤
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

// WebSocketHub WebSocket 連線中心
//
// 系統設計考量：
//
//  1. 連線映射：map[connectionID]*Connection
//     只用於關機時關閉所有連線與統計；房間成員關係由 Manager 維護，
//     廣播直接走 Session.Send，不經過 Hub。
//
//  2. 心跳：Ping 週期小於讀取超時（預設 54s / 60s）
//     writePump 定期送 Ping，readPump 收到 Pong 就延長讀取期限，
//     死連線最多 PongWait 後被清除。
//
//  3. 非阻塞發送：
//     每條連線一個緩衝 channel，滿了直接返回 ErrSendQueueFull，
//     慢客戶端不會拖住房間廣播。
type WebSocketHub struct {
	gateway  *Gateway
	cfg      config.WebSocketConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
	stopped     bool
}

// Connection 一條 WebSocket 連線，實作 lobby.Transport
type Connection struct {
	connectionID string
	conn         *websocket.Conn
	hub          *WebSocketHub
	state        atomic.Int32

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(g *Gateway, cfg config.WebSocketConfig, logger *slog.Logger) *WebSocketHub {
	hub := &WebSocketHub{
		gateway:     g,
		cfg:         cfg,
		logger:      logger,
		connections: make(map[string]*Connection),
	}

	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     hub.checkOrigin,
	}

	return hub
}

// checkOrigin 未設定允許來源時不檢查
func (hub *WebSocketHub) checkOrigin(r *http.Request) bool {
	if len(hub.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(hub.cfg.AllowedOrigins, origin)
}

// ServeWS 處理 WebSocket 連線
//
// connectionID 取自查詢參數，未提供時產生新的 UUID。
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	connectionID := r.URL.Query().Get(hub.cfg.ConnectionParam)
	if connectionID == "" {
		connectionID = uuid.NewString()
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := &Connection{
		connectionID: connectionID,
		conn:         conn,
		hub:          hub,
		send:         make(chan []byte, hub.cfg.SendQueueSize),
	}
	c.state.Store(int32(lobby.StateOpen))

	if _, err := hub.gateway.Connect(c, connectionID); err != nil {
		hub.reject(c, err)
		return
	}

	if !hub.register(c) {
		c.state.Store(int32(lobby.StateClosed))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	hub.logger.Info("WebSocket 連線建立", "connection_id", connectionID)
}

// reject 回一個錯誤信封後關閉連線；不啟動讀寫 goroutine
func (hub *WebSocketHub) reject(c *Connection, err error) {
	defer func() {
		c.state.Store(int32(lobby.StateClosed))
		_ = c.conn.Close()
	}()

	deadline := time.Now().Add(hub.cfg.WriteWait)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, protocol.EncodeError(err)); err != nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, closeReason(err)),
		deadline)
}

// maxCloseReason 控制訊框 payload 上限 125 bytes，扣掉 2 bytes 關閉碼
const maxCloseReason = 123

// closeReason 把錯誤訊息截斷到關閉訊框可容納的長度，不切開 UTF-8 字元
func closeReason(err error) string {
	reason := err.Error()
	if len(reason) <= maxCloseReason {
		return reason
	}

	cut := maxCloseReason
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// register 登記連線；Hub 已停止時返回 false
func (hub *WebSocketHub) register(c *Connection) bool {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.stopped {
		return false
	}
	hub.connections[c.connectionID] = c
	return true
}

// unregister 移除連線（只移除同一個物件，避免誤刪重連後的新連線）
func (hub *WebSocketHub) unregister(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if current, exists := hub.connections[c.connectionID]; exists && current == c {
		delete(hub.connections, c.connectionID)
	}
}

// Stop 關閉所有連線
func (hub *WebSocketHub) Stop() {
	hub.mu.Lock()
	hub.stopped = true
	conns := make([]*Connection, 0, len(hub.connections))
	for _, c := range hub.connections {
		conns = append(conns, c)
	}
	hub.mu.Unlock()

	for _, c := range conns {
		c.close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}

// ConnectionCount 返回目前的連線數
func (hub *WebSocketHub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Send 非阻塞地把訊框放入發送佇列
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// ReadyState 返回連線狀態
func (c *Connection) ReadyState() lobby.ReadyState {
	return lobby.ReadyState(c.state.Load())
}

// close 關閉發送佇列，writePump 會送出 Close 訊框後結束
func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.state.CompareAndSwap(int32(lobby.StateOpen), int32(lobby.StateClosing))
	close(c.send)
}

// readPump 依序處理客戶端訊框
//
// 同一連線的訊框一次只處理一個，回應順序與請求順序一致。
// 結束時標記為 Closed，之後同一個 connectionID 才能重連。
func (c *Connection) readPump() {
	cfg := c.hub.cfg
	defer func() {
		c.close()
		_ = c.conn.Close()
		c.state.Store(int32(lobby.StateClosed))
		c.hub.unregister(c)
		c.hub.gateway.Disconnect(c.connectionID)
	}()

	c.conn.SetReadLimit(cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("WebSocket 讀取錯誤",
					"connection_id", c.connectionID,
					"error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if reply := c.hub.gateway.Handle(c.connectionID, message); reply != nil {
			if err := c.Send(reply); err != nil {
				c.hub.logger.Warn("回應發送失敗",
					"connection_id", c.connectionID,
					"error", err)
			}
		}
	}
}

// writePump 寫出佇列中的訊框並定期送 Ping
func (c *Connection) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if !ok {
				// 佇列已關閉，嘗試送出 Close 訊框（連線可能已斷開）
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("寫入訊框失敗",
					"connection_id", c.connectionID,
					"error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
