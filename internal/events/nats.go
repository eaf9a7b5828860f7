package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher NATS 發布介面（*nats.Conn 已實作）
type NATSPublisher interface {
	Publish(subj string, data []byte) error
}

// NATSSink 將事件發布到 NATS subject：<prefix>.<type>
//
// 使用 Core NATS（fire-and-forget），不需要 JetStream 持久化：
// 事件只供觀測，訂閱者離線時遺失可以接受。
type NATSSink struct {
	pub    NATSPublisher
	prefix string
	conn   *nats.Conn // 由 DialNATS 建立時才需要關閉
}

// NewNATSSink 以既有連線創建 Sink
func NewNATSSink(pub NATSPublisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = "lobby"
	}
	return &NATSSink{pub: pub, prefix: prefix}
}

// DialNATS 連接 NATS Server 並創建 Sink
//
// 選項說明：
//   - MaxReconnects(-1)：無限重連
//   - ReconnectWait(1s)：重連間隔
//   - PingInterval(20s)：心跳檢測
func DialNATS(url, prefix string) (*NATSSink, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("realtime-lobby"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	sink := NewNATSSink(conn, prefix)
	sink.conn = conn
	return sink, nil
}

// Name 返回 Sink 名稱
func (s *NATSSink) Name() string { return "nats" }

// Subject 返回事件對應的 subject
func (s *NATSSink) Subject(e Event) string {
	return s.prefix + "." + e.Type
}

// Publish 發布事件
func (s *NATSSink) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := s.pub.Publish(s.Subject(e), data); err != nil {
		return fmt.Errorf("發布 NATS 事件失敗: %w", err)
	}
	return nil
}

// Close 排空並關閉連線
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
