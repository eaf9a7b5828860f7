package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/api"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/config"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/events"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/gateway"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/lobby"
	"github.com/koopa0/system-design/14-realtime-lobby/internal/router"
)

func main() {
	// 解析命令行參數（明確指定時覆蓋配置檔與環境變數）
	var (
		configPath = flag.String("config", "", "配置檔路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("載入配置失敗", "error", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("配置不合法", "error", err)
		os.Exit(1)
	}

	// 設置日誌
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	// 創建房間管理器與 action 路由
	manager := lobby.NewManager(logger)
	actions := router.InstallDefaults(router.New(), manager)
	if err := actions.Err(); err != nil {
		logger.Error("註冊 action 失敗", "error", err)
		os.Exit(1)
	}

	// 事件匯流排
	bus := events.NewBus(logger, cfg.Events.Buffer, setupSinks(cfg.Events, logger)...)

	// WebSocket 與 HTTP API
	gw := gateway.NewGateway(manager, actions, bus, logger)
	wsHub := gateway.NewWebSocketHub(gw, cfg.WebSocket, logger)
	handler := api.NewHandler(manager, actions, bus, wsHub, logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET "+cfg.WebSocket.Path, wsHub.ServeWS)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		logger.Info("大廳服務器啟動",
			"addr", server.Addr,
			"ws_path", cfg.WebSocket.Path,
			"actions", actions.Actions(),
			"log_level", cfg.Log.Level,
			"log_format", cfg.Log.Format)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 停止接受新連接（已升級的 WebSocket 不受 Shutdown 管理）
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 關閉所有 WebSocket 連線
	wsHub.Stop()

	// 送出剩餘事件後關閉 Sink
	if err := bus.Close(ctx); err != nil {
		logger.Error("事件匯流排關閉失敗", "error", err)
	}

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// setupSinks 建立事件 Sink；NATS / Redis 連線失敗只記錄警告，服務照常啟動
func setupSinks(cfg config.EventsConfig, logger *slog.Logger) []events.Sink {
	sinks := []events.Sink{events.NewLogSink(logger, slog.LevelDebug)}

	if cfg.NATS.URL != "" {
		sink, err := events.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			logger.Warn("停用 NATS 事件發布", "url", cfg.NATS.URL, "error", err)
		} else {
			sinks = append(sinks, sink)
			logger.Info("已啟用 NATS 事件發布", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
		}
	}

	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sink, err := events.DialRedis(ctx, events.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if err != nil {
			logger.Warn("停用 Redis 事件發布", "addr", cfg.Redis.Addr, "error", err)
		} else {
			sinks = append(sinks, sink)
			logger.Info("已啟用 Redis 事件發布", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		}
	}

	return sinks
}
