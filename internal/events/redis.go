package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher Redis 發布介面（*redis.Client 已實作）
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisOptions Redis 連線設定
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisSink 以 PUBLISH 將事件送到 Redis Pub/Sub channel
type RedisSink struct {
	pub     RedisPublisher
	channel string
	client  *redis.Client // 由 DialRedis 建立時才需要關閉
}

// NewRedisSink 以既有 client 創建 Sink
func NewRedisSink(pub RedisPublisher, channel string) *RedisSink {
	if channel == "" {
		channel = "lobby.events"
	}
	return &RedisSink{pub: pub, channel: channel}
}

// DialRedis 連接 Redis 並以 PING 驗證連線
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("連接 Redis 失敗: %w", err)
	}

	sink := NewRedisSink(client, opts.Channel)
	sink.client = client
	return sink, nil
}

// Name 返回 Sink 名稱
func (s *RedisSink) Name() string { return "redis" }

// Publish 發布事件
func (s *RedisSink) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := s.pub.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("發布 Redis 事件失敗: %w", err)
	}
	return nil
}

// Close 關閉連線
func (s *RedisSink) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
