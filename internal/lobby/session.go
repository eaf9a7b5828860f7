package lobby

import (
	"sync"

	"github.com/google/uuid"
)

// ReadyState 傳輸層連線狀態，數值與 WebSocket readyState 一致
type ReadyState int

const (
	StateConnecting ReadyState = iota // 連線建立中
	StateOpen                         // 已連線
	StateClosing                      // 關閉中
	StateClosed                       // 已關閉
)

// String 返回狀態名稱
func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport 雙工傳輸通道
//
// 由傳輸層提供（例如 gateway 中的 WebSocket 連線）。
// Send 不應阻塞：慢速或已斷開的連線應直接返回錯誤。
type Transport interface {
	Send(data []byte) error
	ReadyState() ReadyState
}

// Session 一個邏輯上的參與者
//
// 系統設計考量：
//
//  1. 身份與連線分離：
//     ID 在建立時產生且永不改變；transport 則在每次重連時替換。
//     網路短暫中斷不應讓使用者失去房間位置。
//
//  2. 重連保護：
//     只有舊連線已完全關閉（StateClosed）時才允許替換，
//     避免第二條實體連線悄悄劫持仍在使用中的 Session。
//
//  3. 位置（大廳／房間）不存在 Session 內：
//     由 Manager 統一維護，確保「二選一」不變式只有一個真實來源。
type Session struct {
	id           string
	connectionID string

	mu        sync.RWMutex
	transport Transport
	nick      string
}

// NewSession 創建 Session（通常由 Manager.CreateSession 呼叫）
func NewSession(t Transport, connectionID string) *Session {
	return &Session{
		id:           uuid.NewString(),
		connectionID: connectionID,
		transport:    t,
	}
}

// ID 返回 Session 的全域唯一 ID
func (s *Session) ID() string {
	return s.id
}

// ConnectionID 返回傳輸層提供的連線識別碼
func (s *Session) ConnectionID() string {
	return s.connectionID
}

// Nick 返回暱稱（預設為空字串）
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

// SetNick 設定暱稱
func (s *Session) SetNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.mu.Unlock()
}

// Send 透過目前的 transport 發送資料
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	t := s.transport
	s.mu.RUnlock()

	return t.Send(data)
}

// IsConnected 返回目前 transport 的連線狀態
func (s *Session) IsConnected() ReadyState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport.ReadyState()
}

// Reconnect 替換 transport
//
// 舊連線尚未關閉（Connecting / Open / Closing）時返回 ErrAlreadyConnected。
func (s *Session) Reconnect(t Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport.ReadyState() < StateClosed {
		return ErrAlreadyConnected
	}

	s.transport = t
	return nil
}
