// Package config 載入中繼伺服器的 YAML 配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server ServerConfig `yaml:"server"`
	Expiry ExpiryConfig `yaml:"expiry"`
	Relay  RelayConfig  `yaml:"relay"`
	Events EventsConfig `yaml:"events"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // 空表示不檢查 Origin
}

// ExpiryConfig 依在座人數決定的房間存活時間
type ExpiryConfig struct {
	Empty       time.Duration `yaml:"empty"`        // 0 人
	OneOccupant time.Duration `yaml:"one_occupant"` // 1 人
	TwoOccupant time.Duration `yaml:"two_occupant"` // 2 人
}

// RelayConfig 轉發與連接配置
type RelayConfig struct {
	BestEffortTypes []string      `yaml:"best_effort_types"` // 對手不在時靜默丟棄的訊息類型
	SendBuffer      int           `yaml:"send_buffer"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	WriteWait       time.Duration `yaml:"write_wait"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	PongWait        time.Duration `yaml:"pong_wait"`
	RateCapacity    int64         `yaml:"rate_capacity"` // 0 表示不限流
	RateRefill      int64         `yaml:"rate_refill"`   // 每秒
}

// EventsConfig 房間生命週期事件發布
type EventsConfig struct {
	Driver    string `yaml:"driver"` // none, nats, redis
	Prefix    string `yaml:"prefix"`
	NATSUrl   string `yaml:"nats_url"`
	RedisAddr string `yaml:"redis_addr"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default 返回預設配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Expiry: ExpiryConfig{
			Empty:       5 * time.Minute,
			OneOccupant: 2 * time.Hour,
			TwoOccupant: 12 * time.Hour,
		},
		Relay: RelayConfig{
			BestEffortTypes: []string{"move-update", "cursor", "ping-peer"},
			SendBuffer:      256,
			MaxMessageSize:  64 * 1024,
			WriteWait:       10 * time.Second,
			PingInterval:    54 * time.Second, // 必須小於 PongWait
			PongWait:        60 * time.Second,
			RateCapacity:    60,
			RateRefill:      30,
		},
		Events: EventsConfig{
			Driver:    "none",
			Prefix:    "relay",
			NATSUrl:   "nats://localhost:4222",
			RedisAddr: "localhost:6379",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load 讀取 YAML 配置檔並套用環境變數覆蓋
//
// path 為空時只使用預設值與環境變數。檔案中未出現的欄位保留預設值。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自啟動參數
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 環境變數覆蓋（部署時常用）
func (c *Config) applyEnv() error {
	if v := os.Getenv("RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_PORT 無效: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("RELAY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RELAY_EVENTS_DRIVER"); v != "" {
		c.Events.Driver = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Events.NATSUrl = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Events.RedisAddr = v
	}
	return nil
}

// Validate 檢查配置一致性
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}

	e := c.Expiry
	if e.Empty <= 0 || e.OneOccupant <= 0 || e.TwoOccupant <= 0 {
		errs = append(errs, errors.New("expiry 時間必須為正"))
	} else if e.Empty > e.OneOccupant || e.OneOccupant > e.TwoOccupant {
		// 人越多存活越久
		errs = append(errs, errors.New("expiry 必須滿足 empty <= one_occupant <= two_occupant"))
	}

	r := c.Relay
	if r.SendBuffer <= 0 {
		errs = append(errs, errors.New("relay.send_buffer 必須為正"))
	}
	if r.PingInterval <= 0 || r.PongWait <= r.PingInterval {
		errs = append(errs, errors.New("relay.ping_interval 必須為正且小於 pong_wait"))
	}
	if r.RateCapacity > 0 && r.RateRefill <= 0 {
		errs = append(errs, errors.New("relay.rate_refill 必須為正"))
	}

	switch c.Events.Driver {
	case "", "none", "nats", "redis":
	default:
		errs = append(errs, fmt.Errorf("events.driver 不支援: %s", c.Events.Driver))
	}

	return errors.Join(errs...)
}

// Addr 監聽地址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
