package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "clinic-roomsync/common/config"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config clinic-roomsync 配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr" validate:"required"`
	} `yaml:"http"`

	Redis    commoncfg.RedisConfig    `yaml:"redis"`
	API      commoncfg.APIConfig      `yaml:"api"`
	Realtime commoncfg.RealtimeConfig `yaml:"realtime"`

	Billing   BillingConfig   `yaml:"billing"`
	Admission AdmissionConfig `yaml:"admission"`
	Sync      SyncConfig      `yaml:"sync"`
	Journal   JournalConfig   `yaml:"journal"`

	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=json console"`
	} `yaml:"log"`
}

// BillingConfig 计费参数
type BillingConfig struct {
	TaxRateBasisPoints     int64 `yaml:"tax_rate_basis_points" validate:"gte=0,lte=10000"` // 850 = 8.5%
	FallbackDailyRateCents int64 `yaml:"fallback_daily_rate_cents" validate:"gte=0"`
}

// AdmissionConfig 入院校验参数
type AdmissionConfig struct {
	MaxAdvance      time.Duration `yaml:"max_advance" validate:"gt=0"`
	PastTolerance   time.Duration `yaml:"past_tolerance" validate:"gte=0"`
	AuthorizedRoles []string      `yaml:"authorized_roles" validate:"min=1"`
}

// SyncConfig 同步与预热
type SyncConfig struct {
	InitialSyncTimeout time.Duration `yaml:"initial_sync_timeout" validate:"gt=0"`
	SnapshotInterval   time.Duration `yaml:"snapshot_interval" validate:"gte=0"` // 0 表示不保存快照
	SnapshotTTL        time.Duration `yaml:"snapshot_ttl" validate:"gte=0"`
	SnapshotKeyPrefix  string        `yaml:"snapshot_key_prefix"`
	WarmStart          bool          `yaml:"warm_start"`
	SubscribeRooms     []string      `yaml:"subscribe_rooms"` // 连接建立后订阅的房间
}

// JournalConfig 实时事件日志
type JournalConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Stream     string `yaml:"stream"`
	MaxLen     int64  `yaml:"max_len" validate:"gte=0"`
	BufferSize int    `yaml:"buffer_size" validate:"gte=0"`
}

// Defaults 默认配置
func Defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8090"

	cfg.Redis.Addr = "localhost:6379"

	cfg.API.BaseURL = "http://localhost:8000/api/v1/"
	cfg.API.Timeout = 15 * time.Second
	cfg.API.RetryCount = 2

	cfg.Realtime.URL = "ws://localhost:8000/ws"
	cfg.Realtime.MaxReconnectAttempts = 5
	cfg.Realtime.ReconnectBaseDelay = time.Second
	cfg.Realtime.HandshakeTimeout = 10 * time.Second
	cfg.Realtime.PingInterval = 30 * time.Second

	cfg.Billing.TaxRateBasisPoints = 850
	cfg.Billing.FallbackDailyRateCents = 15000

	cfg.Admission.MaxAdvance = 7 * 24 * time.Hour
	cfg.Admission.AuthorizedRoles = []string{"admin", "billing_clerk", "doctor", "nurse", "receptionist"}

	cfg.Sync.InitialSyncTimeout = 30 * time.Second
	cfg.Sync.SnapshotInterval = time.Minute
	cfg.Sync.SnapshotTTL = 24 * time.Hour
	cfg.Sync.SnapshotKeyPrefix = "clinic-roomsync"
	cfg.Sync.WarmStart = true

	cfg.Journal.Enabled = true
	cfg.Journal.Stream = "clinic-roomsync:events"
	cfg.Journal.MaxLen = 10000
	cfg.Journal.BufferSize = 256

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load 加载配置：默认值 → .env → CONFIG_FILE（YAML）→ 环境变量
func Load() (*Config, error) {
	cfg := Defaults()

	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadYAML 用 YAML 文件覆盖当前配置（文件中未出现的字段保持不变）
func (c *Config) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Redis.LoadFromEnv("REDIS")
	c.API.LoadFromEnv("API")
	c.Realtime.LoadFromEnv("REALTIME")

	c.Billing.TaxRateBasisPoints = getEnvInt64("BILLING_TAX_RATE_BP", c.Billing.TaxRateBasisPoints)
	c.Billing.FallbackDailyRateCents = getEnvInt64("BILLING_FALLBACK_DAILY_RATE_CENTS", c.Billing.FallbackDailyRateCents)

	c.Admission.MaxAdvance = getEnvDuration("ADMISSION_MAX_ADVANCE", c.Admission.MaxAdvance)
	c.Admission.PastTolerance = getEnvDuration("ADMISSION_PAST_TOLERANCE", c.Admission.PastTolerance)
	c.Admission.AuthorizedRoles = getEnvList("ADMISSION_AUTHORIZED_ROLES", c.Admission.AuthorizedRoles)

	c.Sync.InitialSyncTimeout = getEnvDuration("SYNC_INITIAL_TIMEOUT", c.Sync.InitialSyncTimeout)
	c.Sync.SnapshotInterval = getEnvDuration("SYNC_SNAPSHOT_INTERVAL", c.Sync.SnapshotInterval)
	c.Sync.SnapshotTTL = getEnvDuration("SYNC_SNAPSHOT_TTL", c.Sync.SnapshotTTL)
	c.Sync.SnapshotKeyPrefix = getEnv("SYNC_SNAPSHOT_KEY_PREFIX", c.Sync.SnapshotKeyPrefix)
	c.Sync.WarmStart = getEnvBool("SYNC_WARM_START", c.Sync.WarmStart)
	c.Sync.SubscribeRooms = getEnvList("SYNC_SUBSCRIBE_ROOMS", c.Sync.SubscribeRooms)

	c.Journal.Enabled = getEnvBool("JOURNAL_ENABLED", c.Journal.Enabled)
	c.Journal.Stream = getEnv("JOURNAL_STREAM", c.Journal.Stream)
	c.Journal.MaxLen = getEnvInt64("JOURNAL_MAX_LEN", c.Journal.MaxLen)
	c.Journal.BufferSize = int(getEnvInt64("JOURNAL_BUFFER_SIZE", int64(c.Journal.BufferSize)))

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.API.BaseURL == "" {
		return errors.New("invalid config: API_BASE_URL is required")
	}
	if c.Realtime.URL == "" {
		return errors.New("invalid config: REALTIME_URL is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvList 逗号分隔
func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
