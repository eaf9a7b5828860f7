// Package gateway 把傳輸層事件（連線、訊框、斷線）接到 Manager 與 Router。
//
// 系統設計考量：
//
//  1. 身份來自 connectionID：
//     每個訊框都重新以 connectionID 解析 Session 與所在房間，
//     gateway 本身不持有「誰在哪裡」的狀態。
//
//  2. 失敗一律回錯誤信封：
//     解析、查找、分派、編碼任一步失敗都轉成 {success:false}，
//     連線不會因為一個壞訊框而中斷。
//
//  3. 斷線不變更狀態：
//     Session 留在原本的大廳或房間，等待同一個 connectionID 重連。
package gateway

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/events"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/protocol"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/router"
)

// ErrInternal handler panic 時回給客戶端的錯誤
var ErrInternal = errors.New("internal error")

// Gateway 連線生命週期處理器
type Gateway struct {
	manager *lobby.Manager
	router  *router.Router
	bus     *events.Bus
	logger  *slog.Logger
}

// NewGateway 創建 Gateway；bus 可為 nil（不發布事件）
func NewGateway(manager *lobby.Manager, r *router.Router, bus *events.Bus, logger *slog.Logger) *Gateway {
	return &Gateway{
		manager: manager,
		router:  r,
		bus:     bus,
		logger:  logger,
	}
}

// Connect 處理新連線
//
// connectionID 已知時嘗試重連（舊連線必須已關閉），否則在大廳建立新 Session。
func (g *Gateway) Connect(t lobby.Transport, connectionID string) (*lobby.Session, error) {
	s, room, created, err := g.manager.Connect(t, connectionID)
	if created {
		g.emit(events.Event{
			Type:         events.TypeSessionCreated,
			ConnectionID: connectionID,
			SessionID:    s.ID(),
		})
		return s, nil
	}

	if err != nil {
		g.logger.Warn("拒絕重複連線",
			"connection_id", connectionID,
			"session_id", s.ID(),
			"state", s.IsConnected().String())
		g.emit(events.Event{
			Type:         events.TypeSessionRejected,
			ConnectionID: connectionID,
			SessionID:    s.ID(),
			Error:        err.Error(),
		})
		return nil, fmt.Errorf("connection %q: %w", connectionID, err)
	}

	e := events.Event{
		Type:         events.TypeSessionReconnected,
		ConnectionID: connectionID,
		SessionID:    s.ID(),
	}
	if room != nil {
		e.RoomID = room.ID
	}
	g.logger.Info("使用者重新連線",
		"connection_id", connectionID,
		"session_id", s.ID(),
		"room_id", e.RoomID)
	g.emit(e)

	return s, nil
}

// Disconnect 處理斷線；Session 保留在原位置
func (g *Gateway) Disconnect(connectionID string) {
	e := events.Event{
		Type:         events.TypeSessionDisconnected,
		ConnectionID: connectionID,
	}
	if s, room, err := g.manager.Resolve(connectionID); err == nil {
		e.SessionID = s.ID()
		if room != nil {
			e.RoomID = room.ID
		}
	}

	g.logger.Info("使用者斷線",
		"connection_id", connectionID,
		"session_id", e.SessionID,
		"room_id", e.RoomID)
	g.emit(e)
}

// Handle 處理一個入站訊框並返回要回給該連線的訊框
//
// handler 返回 (nil, nil) 時不回應，返回 nil。
func (g *Gateway) Handle(connectionID string, raw []byte) (reply []byte) {
	e := events.Event{
		Type:         events.TypeActionHandled,
		ConnectionID: connectionID,
	}

	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("handler panic",
				"connection_id", connectionID,
				"action", e.Action,
				"panic", rec)
			reply = protocol.EncodeError(ErrInternal)
			e.Error = ErrInternal.Error()
		}
		g.emit(e)
	}()

	result, err := g.handle(connectionID, raw, &e)
	if err != nil {
		e.Error = err.Error()
		g.logger.Debug("請求失敗",
			"connection_id", connectionID,
			"action", e.Action,
			"error", err)
		return protocol.EncodeError(err)
	}
	if result == nil {
		return nil
	}

	data, err := protocol.Encode(result)
	if err != nil {
		e.Error = err.Error()
		g.logger.Error("編碼回應失敗",
			"connection_id", connectionID,
			"action", e.Action,
			"error", err)
		return protocol.EncodeError(err)
	}
	return data
}

// handle 解析、查找、分派；沿途把已知資訊填入 e
func (g *Gateway) handle(connectionID string, raw []byte, e *events.Event) (any, error) {
	req, err := protocol.Decode(raw)
	if err != nil {
		return nil, err
	}
	e.Action = req.Action

	s, room, err := g.manager.Resolve(connectionID)
	if err != nil {
		return nil, err
	}
	e.SessionID = s.ID()
	if room != nil {
		e.RoomID = room.ID
	}

	return g.router.Dispatch(s, room, req.Action, req.Payload)
}

func (g *Gateway) emit(e events.Event) {
	if g.bus != nil {
		g.bus.Emit(e)
	}
}
