// Package config 載入服務配置：預設值 → YAML 檔案 → 環境變數（命令列參數由 main 最後覆蓋）。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服務配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
	Events    EventsConfig    `yaml:"events"`
}

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WebSocketConfig WebSocket 連線配置
type WebSocketConfig struct {
	Path            string        `yaml:"path"`
	ConnectionParam string        `yaml:"connection_param"` // 客戶端提供 connectionID 的查詢參數
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	SendQueueSize   int           `yaml:"send_queue_size"`
	WriteWait       time.Duration `yaml:"write_wait"`
	PongWait        time.Duration `yaml:"pong_wait"`
	PingPeriod      time.Duration `yaml:"ping_period"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // 空表示不檢查
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// EventsConfig 生命週期事件配置
type EventsConfig struct {
	Buffer int         `yaml:"buffer"`
	NATS   NATSConfig  `yaml:"nats"`
	Redis  RedisConfig `yaml:"redis"`
}

// NATSConfig NATS 配置（URL 為空表示停用）
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RedisConfig Redis Pub/Sub 配置（Addr 為空表示停用）
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Default 返回預設配置
//
// 心跳時間沿用 54s Ping / 60s 讀取超時：Ping 週期必須小於 PongWait。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Path:            "/ws",
			ConnectionParam: "connection_id",
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  64 * 1024,
			SendQueueSize:   256,
			WriteWait:       10 * time.Second,
			PongWait:        60 * time.Second,
			PingPeriod:      54 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Events: EventsConfig{
			Buffer: 1024,
			NATS: NATSConfig{
				SubjectPrefix: "lobby",
			},
			Redis: RedisConfig{
				Channel: "lobby.events",
			},
		},
	}
}

// Load 讀取 YAML 配置檔；path 為空時只使用預設值與環境變數
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數，由部署者控制
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 以環境變數覆蓋配置
//
// lookup 通常是 os.LookupEnv，測試時可替換。無法解析的值會被忽略。
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := lookup("ALLOWED_ORIGINS"); ok && v != "" {
		c.WebSocket.AllowedOrigins = parseList(v)
	}
	if v, ok := lookup("NATS_URL"); ok {
		c.Events.NATS.URL = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Events.Redis.Addr = v
	}
}

// Validate 檢查配置是否合法
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 必須在 1-65535 之間: %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout 必須大於 0"))
	}

	ws := c.WebSocket
	if !strings.HasPrefix(ws.Path, "/") {
		errs = append(errs, fmt.Errorf("websocket.path 必須以 / 開頭: %q", ws.Path))
	}
	if ws.ConnectionParam == "" {
		errs = append(errs, errors.New("websocket.connection_param 不能為空"))
	}
	if ws.MaxMessageSize <= 0 || ws.SendQueueSize <= 0 {
		errs = append(errs, errors.New("websocket.max_message_size 與 send_queue_size 必須大於 0"))
	}
	if ws.WriteWait <= 0 || ws.PongWait <= 0 || ws.PingPeriod <= 0 {
		errs = append(errs, errors.New("websocket 逾時設定必須大於 0"))
	}
	if ws.PingPeriod >= ws.PongWait {
		errs = append(errs, fmt.Errorf("websocket.ping_period (%s) 必須小於 pong_wait (%s)", ws.PingPeriod, ws.PongWait))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("未知的 log.level: %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("未知的 log.format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Addr 返回 HTTP 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func parseList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
