package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. LANCHAT_SERVER_PORT -> server.port.
const EnvPrefix = "LANCHAT_"

// ConfigPathEnvVar points at an optional YAML file.
const ConfigPathEnvVar = "LANCHAT_CONFIG"

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Chat     ChatConfig     `koanf:"chat"`
	Socket   SocketConfig   `koanf:"socket"`
	Identity IdentityConfig `koanf:"identity"`
	Upload   UploadConfig   `koanf:"upload"`
	Logging  LoggingConfig  `koanf:"logging"`
	AMQP     AMQPConfig     `koanf:"amqp"`
	Tracing  TracingConfig  `koanf:"tracing"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Debug           bool          `koanf:"debug"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite3 or postgres
	DSN    string `koanf:"dsn"`
}

// ChatConfig carries the message policy knobs.
type ChatConfig struct {
	EditWindow        time.Duration `koanf:"edit_window"`
	MaxPinned         int           `koanf:"max_pinned"`
	PageSize          int           `koanf:"page_size"`
	MaxPageSize       int           `koanf:"max_page_size"`
	JumpContext       int           `koanf:"jump_context"`
	MuteSweepInterval time.Duration `koanf:"mute_sweep_interval"`
}

type SocketConfig struct {
	MaxMessageSize int64         `koanf:"max_message_size"`
	PingInterval   time.Duration `koanf:"ping_interval"`
	PongTimeout    time.Duration `koanf:"pong_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	SendBuffer     int           `koanf:"send_buffer"`
	RateLimit      float64       `koanf:"rate_limit"`
	RateBurst      int           `koanf:"rate_burst"`
}

type IdentityConfig struct {
	Secret   string        `koanf:"secret"`
	TokenTTL time.Duration `koanf:"token_ttl"`
}

type UploadConfig struct {
	Dir      string `koanf:"dir"`
	MaxBytes int64  `koanf:"max_bytes"`
	BaseURL  string `koanf:"base_url"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type AMQPConfig struct {
	URL             string `koanf:"url"`
	Exchange        string `koanf:"exchange"`
	AuditRoutingKey string `koanf:"audit_routing_key"`
	PushRoutingKey  string `koanf:"push_routing_key"`
}

type TracingConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8083,
			Environment:     "development",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "file:lanchat.db?_foreign_keys=on&_busy_timeout=5000",
		},
		Chat: ChatConfig{
			EditWindow:        15 * time.Minute,
			MaxPinned:         3,
			PageSize:          50,
			MaxPageSize:       200,
			JumpContext:       25,
			MuteSweepInterval: 30 * time.Second,
		},
		Socket: SocketConfig{
			MaxMessageSize: 64 * 1024,
			PingInterval:   25 * time.Second,
			PongTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			SendBuffer:     256,
			RateLimit:      20,
			RateBurst:      40,
		},
		Identity: IdentityConfig{
			TokenTTL: 365 * 24 * time.Hour,
		},
		Upload: UploadConfig{
			Dir:      "uploads",
			MaxBytes: 50 << 20,
			BaseURL:  "/uploads",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		AMQP: AMQPConfig{
			Exchange:        "lanchat.events",
			AuditRoutingKey: "audit.groups",
			PushRoutingKey:  "push.notifications",
		},
		Tracing: TracingConfig{
			ServiceName: "lan-chat",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// Load layers defaults, an optional YAML file and LANCHAT_* environment variables.
// An explicit path wins over LANCHAT_CONFIG.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// envTransform maps LANCHAT_CHAT_EDIT_WINDOW to chat.edit_window. Sections are single words,
// so only the first underscore separates section from key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}

// Validate checks required values and ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite3 or postgres, got %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Chat.EditWindow <= 0 {
		errs = append(errs, errors.New("chat.edit_window must be positive"))
	}
	if c.Chat.MaxPinned < 1 {
		errs = append(errs, errors.New("chat.max_pinned must be at least 1"))
	}
	if c.Chat.PageSize < 1 || c.Chat.MaxPageSize < c.Chat.PageSize {
		errs = append(errs, errors.New("chat.page_size must be >= 1 and <= chat.max_page_size"))
	}
	if c.Socket.SendBuffer < 1 {
		errs = append(errs, errors.New("socket.send_buffer must be at least 1"))
	}
	if c.Socket.PingInterval >= c.Socket.PongTimeout {
		errs = append(errs, errors.New("socket.ping_interval must be shorter than socket.pong_timeout"))
	}
	if c.Socket.RateLimit <= 0 || c.Socket.RateBurst < 1 {
		errs = append(errs, errors.New("socket.rate_limit and socket.rate_burst must be positive"))
	}
	return errors.Join(errs...)
}
