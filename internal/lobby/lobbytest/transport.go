// Package lobbytest 提供測試用的 Transport 實作。
package lobbytest

import (
	"errors"
	"sync"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
)

// ErrSendFailed 模擬發送失敗
var ErrSendFailed = errors.New("send failed")

// Transport 記錄所有發送內容的假連線，狀態可隨時修改
type Transport struct {
	mu      sync.Mutex
	state   lobby.ReadyState
	sent    [][]byte
	sendErr error
}

// NewTransport 創建狀態為 Open 的假連線
func NewTransport() *Transport {
	return &Transport{state: lobby.StateOpen}
}

// Send 記錄發送內容
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

// ReadyState 返回目前狀態
func (t *Transport) ReadyState() lobby.ReadyState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState 修改連線狀態
func (t *Transport) SetState(state lobby.ReadyState) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}

// Close 等同 SetState(StateClosed)
func (t *Transport) Close() {
	t.SetState(lobby.StateClosed)
}

// FailSends 之後的 Send 都返回 ErrSendFailed
func (t *Transport) FailSends() {
	t.mu.Lock()
	t.sendErr = ErrSendFailed
	t.mu.Unlock()
}

// Sent 返回已發送內容的副本
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// Last 返回最後一筆發送內容的副本，沒有時返回 nil
func (t *Transport) Last() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sent) == 0 {
		return nil
	}
	return append([]byte(nil), t.sent[len(t.sent)-1]...)
}
