// Package events 發布連線生命週期事件（僅供觀測，不影響房間狀態）。
//
// 系統設計考量：
//
//  1. 不阻塞狀態變更：
//     Emit 以非阻塞方式寫入緩衝 channel，滿了就丟棄並計數。
//     房間操作永遠不會因為 NATS / Redis 變慢而卡住。
//
//  2. 多個 Sink：
//     slog（永遠啟用）、NATS、Redis Pub/Sub 可同時啟用，
//     單一 Sink 失敗只記錄日誌，不影響其他 Sink。
package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// 事件類型
const (
	TypeSessionCreated      = "session.created"
	TypeSessionReconnected  = "session.reconnected"
	TypeSessionRejected     = "session.rejected"
	TypeSessionDisconnected = "session.disconnected"
	TypeActionHandled       = "action.handled"
)

// Event 生命週期事件
type Event struct {
	Type         string    `json:"type"`
	ConnectionID string    `json:"connection_id"`
	SessionID    string    `json:"session_id,omitempty"`
	RoomID       string    `json:"room_id,omitempty"`
	Action       string    `json:"action,omitempty"`
	Error        string    `json:"error,omitempty"`
	Time         time.Time `json:"time"`
}

// Sink 事件的目的地
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
}

// ErrBusClosed Bus 已關閉
var ErrBusClosed = errors.New("event bus closed")

// Bus 非阻塞事件匯流排
type Bus struct {
	sinks   []Sink
	queue   chan Event
	logger  *slog.Logger
	timeout time.Duration

	dropped   atomic.Int64
	published atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewBus 創建事件匯流排並啟動投遞 goroutine
func NewBus(logger *slog.Logger, buffer int, sinks ...Sink) *Bus {
	if buffer <= 0 {
		buffer = 256
	}

	b := &Bus{
		sinks:   sinks,
		queue:   make(chan Event, buffer),
		logger:  logger,
		timeout: 2 * time.Second,
		done:    make(chan struct{}),
	}

	go b.run()

	return b
}

// Emit 非阻塞發送事件；緩衝區滿或已關閉時丟棄
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.dropped.Add(1)
		return
	}

	select {
	case b.queue <- e:
	default:
		// 緩衝區滿，丟棄事件（優先保證房間操作不被阻塞）
		b.dropped.Add(1)
	}
}

// Stats 返回投遞與丟棄的事件數
func (b *Bus) Stats() map[string]any {
	names := make([]string, 0, len(b.sinks))
	for _, s := range b.sinks {
		names = append(names, s.Name())
	}

	return map[string]any{
		"sinks":     names,
		"published": b.published.Load(),
		"dropped":   b.dropped.Load(),
	}
}

// Close 停止接收事件，等待緩衝區內的事件投遞完畢或 ctx 結束，
// 最後關閉實作 io.Closer 的 Sink
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBusClosed
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	var errs []error
	select {
	case <-b.done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	for _, sink := range b.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sink %s: %w", sink.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// run 依序把事件投遞給每個 Sink
func (b *Bus) run() {
	defer close(b.done)

	for e := range b.queue {
		for _, sink := range b.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
			err := sink.Publish(ctx, e)
			cancel()

			if err != nil {
				b.logger.Warn("事件投遞失敗",
					"sink", sink.Name(),
					"type", e.Type,
					"error", err)
			}
		}
		b.published.Add(1)
	}
}
