// Package router 將 action 名稱分派到對應的 handler。
package router

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
)

var (
	// ErrDuplicateAction 同一 action 重複註冊（啟動期設定錯誤）
	ErrDuplicateAction = errors.New("action is already defined")

	// ErrActionNotFound 沒有對應的 handler
	ErrActionNotFound = errors.New("action not found")

	// ErrInvalidPayload payload 缺少必要欄位或型別錯誤
	ErrInvalidPayload = errors.New("invalid payload")
)

// HandlerFunc 處理一個 action
//
// room 為 nil 表示使用者在大廳。返回的結果會原封不動放進回應的 data；
// 返回 (nil, nil) 時不發送回應。
type HandlerFunc func(s *lobby.Session, room *lobby.Room, payload map[string]any) (any, error)

// Router action 名稱到 handler 的映射
//
// 註冊通常在啟動期完成，Dispatch 在每條連線的 goroutine 中並發呼叫，
// 因此使用 RWMutex 保護。
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	err      error
}

// New 創建空的 Router
func New() *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register 註冊 handler，已存在時返回 ErrDuplicateAction
func (r *Router) Register(action string, h HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[action]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateAction, action)
	}
	r.handlers[action] = h
	return nil
}

// On 註冊 handler 並返回 Router 以便鏈式呼叫
//
// 重複註冊的錯誤會累積起來，由 Err 取得：
//
//	r := router.New().
//	    On("PING", ping).
//	    On("ECHO", echo)
//	if err := r.Err(); err != nil { ... }
func (r *Router) On(action string, h HandlerFunc) *Router {
	if err := r.Register(action, h); err != nil {
		r.mu.Lock()
		r.err = errors.Join(r.err, err)
		r.mu.Unlock()
	}
	return r
}

// SetDefault 只在 action 尚未註冊時註冊，不覆蓋使用者自己的 handler
func (r *Router) SetDefault(action string, h HandlerFunc) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[action]; !exists {
		r.handlers[action] = h
	}
	return r
}

// Has 檢查 action 是否已註冊
func (r *Router) Has(action string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.handlers[action]
	return exists
}

// Actions 返回已註冊的 action（排序）
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]string, 0, len(r.handlers))
	for action := range r.handlers {
		actions = append(actions, action)
	}
	slices.Sort(actions)
	return actions
}

// Err 返回 On 累積的註冊錯誤
func (r *Router) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Dispatch 呼叫 action 對應的 handler 並原樣返回結果
func (r *Router) Dispatch(s *lobby.Session, room *lobby.Room, action string, payload map[string]any) (any, error) {
	r.mu.RLock()
	h, exists := r.handlers[action]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrActionNotFound, action)
	}
	return h(s, room, payload)
}
