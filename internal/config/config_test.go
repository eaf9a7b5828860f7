package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-realtime-lobby/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清除會影響 Load 的環境變數
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "LOG_LEVEL", "LOG_FORMAT", "ALLOWED_ORIGINS", "NATS_URL", "REDIS_ADDR"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefault 測試預設值
func TestDefault(t *testing.T) {
	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "/ws", cfg.WebSocket.Path)
	assert.Equal(t, "connection_id", cfg.WebSocket.ConnectionParam)
	assert.Less(t, cfg.WebSocket.PingPeriod, cfg.WebSocket.PongWait)
	assert.Empty(t, cfg.Events.NATS.URL)
	assert.Empty(t, cfg.Events.Redis.Addr)
}

// TestLoad 測試載入 YAML
func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		env      map[string]string
		wantErr  string
		validate func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "override selected fields",
			content: `
server:
  port: 8080
  read_timeout: 5s
websocket:
  ping_period: 20s
  pong_wait: 30s
  allowed_origins:
    - http://localhost:8080
log:
  level: debug
  format: json
events:
  nats:
    url: nats://localhost:4222
`,
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "未設定的欄位保留預設值")
				assert.Equal(t, 20*time.Second, cfg.WebSocket.PingPeriod)
				assert.Equal(t, []string{"http://localhost:8080"}, cfg.WebSocket.AllowedOrigins)
				assert.Equal(t, "debug", cfg.Log.Level)
				assert.Equal(t, "json", cfg.Log.Format)
				assert.Equal(t, "nats://localhost:4222", cfg.Events.NATS.URL)
				assert.Equal(t, "lobby", cfg.Events.NATS.SubjectPrefix)
			},
		},
		{
			name:    "env overrides file",
			content: "server:\n  port: 8080\n",
			env:     map[string]string{"PORT": "9090", "LOG_LEVEL": "WARN", "REDIS_ADDR": "localhost:6379"},
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "warn", cfg.Log.Level)
				assert.Equal(t, "localhost:6379", cfg.Events.Redis.Addr)
			},
		},
		{
			name:    "invalid yaml",
			content: "server: [",
			wantErr: "parse config",
		},
		{
			name:    "invalid port",
			content: "server:\n  port: 70000\n",
			wantErr: "server.port",
		},
		{
			name:    "ping period must be shorter than pong wait",
			content: "websocket:\n  ping_period: 60s\n  pong_wait: 30s\n",
			wantErr: "ping_period",
		},
		{
			name:    "unknown log level",
			content: "log:\n  level: verbose\n",
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := config.Load(writeFile(t, tt.content))

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, cfg)
		})
	}
}

// TestLoad_NoFile 沒有配置檔時使用預設值
func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load("")

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

// TestLoad_MissingFile 配置檔不存在
func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

// TestApplyEnv 測試環境變數覆蓋
func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":            "not-a-number",
		"LOG_FORMAT":      "JSON",
		"ALLOWED_ORIGINS": "http://a.com, http://b.com ,",
		"NATS_URL":        "nats://nats:4222",
	}
	cfg := config.Default()

	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, 3000, cfg.Server.Port, "無法解析的值應被忽略")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"http://a.com", "http://b.com"}, cfg.WebSocket.AllowedOrigins)
	assert.Equal(t, "nats://nats:4222", cfg.Events.NATS.URL)
}

// TestLoad_ExampleFile 範例配置檔必須可以載入
func TestLoad_ExampleFile(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(filepath.Join("..", "..", "config.example.yaml"))

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
