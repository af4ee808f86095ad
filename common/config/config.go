package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// RedisConfig Redis配置
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`    // 0 使用驱动默认值
	DialTimeout time.Duration `yaml:"dial_timeout"` // 0 使用驱动默认值
}

// APIConfig 后端 REST API 配置
type APIConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"` // 仅用于读请求
	AuthToken  string        `yaml:"auth_token"`
}

// RealtimeConfig 实时通道（WebSocket）配置
type RealtimeConfig struct {
	URL                  string        `yaml:"url"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	PingInterval         time.Duration `yaml:"ping_interval"` // 0 表示不发送心跳
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		c.Password = password
	}
	if db := os.Getenv(prefix + "_DB"); db != "" {
		fmt.Sscanf(db, "%d", &c.DB)
	}
	if n, ok := intEnv(prefix + "_POOL_SIZE"); ok && n >= 0 {
		c.PoolSize = n
	}
	if d, ok := durationEnv(prefix + "_DIAL_TIMEOUT"); ok && d >= 0 {
		c.DialTimeout = d
	}
}

// LoadFromEnv 从环境变量加载API配置
func (c *APIConfig) LoadFromEnv(prefix string) {
	if baseURL := os.Getenv(prefix + "_BASE_URL"); baseURL != "" {
		c.BaseURL = baseURL
	}
	if d, ok := durationEnv(prefix + "_TIMEOUT"); ok {
		c.Timeout = d
	}
	if n, ok := intEnv(prefix + "_RETRY_COUNT"); ok && n >= 0 {
		c.RetryCount = n
	}
	if token := os.Getenv(prefix + "_AUTH_TOKEN"); token != "" {
		c.AuthToken = token
	}
}

// LoadFromEnv 从环境变量加载实时通道配置
func (c *RealtimeConfig) LoadFromEnv(prefix string) {
	if url := os.Getenv(prefix + "_URL"); url != "" {
		c.URL = url
	}
	if n, ok := intEnv(prefix + "_MAX_RECONNECT_ATTEMPTS"); ok && n >= 0 {
		c.MaxReconnectAttempts = n
	}
	if d, ok := durationEnv(prefix + "_RECONNECT_BASE_DELAY"); ok && d > 0 {
		c.ReconnectBaseDelay = d
	}
	if d, ok := durationEnv(prefix + "_HANDSHAKE_TIMEOUT"); ok && d > 0 {
		c.HandshakeTimeout = d
	}
	if d, ok := durationEnv(prefix + "_PING_INTERVAL"); ok {
		c.PingInterval = d
	}
}

func intEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func durationEnv(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
