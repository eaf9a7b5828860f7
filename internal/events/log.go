package events

import (
	"context"
	"log/slog"
)

// LogSink 以結構化日誌記錄事件
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink 創建日誌 Sink
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	return &LogSink{logger: logger, level: level}
}

// Name 返回 Sink 名稱
func (s *LogSink) Name() string { return "log" }

// Publish 寫入一筆日誌
func (s *LogSink) Publish(ctx context.Context, e Event) error {
	attrs := []slog.Attr{
		slog.String("type", e.Type),
		slog.String("connection_id", e.ConnectionID),
	}
	if e.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", e.SessionID))
	}
	if e.RoomID != "" {
		attrs = append(attrs, slog.String("room_id", e.RoomID))
	}
	if e.Action != "" {
		attrs = append(attrs, slog.String("action", e.Action))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}

	s.logger.LogAttrs(ctx, s.level, "生命週期事件", attrs...)
	return nil
}
