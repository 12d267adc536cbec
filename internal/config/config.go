package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIServerConfig 保存 API 服务器特有的配置。
type APIServerConfig struct {
	Host string     `mapstructure:"HOST"`
	Port string     `mapstructure:"PORT"`
	CORS CORSConfig `mapstructure:"CORS"`
}

// CORSConfig holds configuration for CORS.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `mapstructure:"ALLOWED_METHODS"`
	AllowedHeaders   []string `mapstructure:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `mapstructure:"EXPOSED_HEADERS"`
	AllowCredentials bool     `mapstructure:"ALLOW_CREDENTIALS"`
	MaxAge           int      `mapstructure:"MAX_AGE"`
}

// RedisConfig holds configuration for Redis.
type RedisConfig struct {
	Addr     string `mapstructure:"ADDR"`
	Password string `mapstructure:"PASSWORD"`
	DB       int    `mapstructure:"DB"`
}

// Config holds all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	AppName    string           `mapstructure:"APP_NAME"`
	AppVersion string           `mapstructure:"APP_VERSION"`
	AppEnv     string           `mapstructure:"APP_ENV"`
	LogLevel   string           `mapstructure:"LOG_LEVEL"`
	Server     ServerConfig     `mapstructure:"SERVER"`     // ChatServer 的配置
	APIServer  APIServerConfig  `mapstructure:"API_SERVER"` // API 服务器配置
	Kafka      KafkaConfig      `mapstructure:"KAFKA"`
	Database   DatabaseConfig   `mapstructure:"DATABASE"`
	Auth       AuthConfig       `mapstructure:"AUTH"`
	WebSocket  WebSocketConfig  `mapstructure:"WEBSOCKET"`
	Redis      RedisConfig      `mapstructure:"REDIS"`
	Chat       ChatConfig       `mapstructure:"CHAT"`
	ChangeFeed ChangeFeedConfig `mapstructure:"CHANGEFEED"`
	Discovery  DiscoveryConfig  `mapstructure:"DISCOVERY"`
	RateLimit  RateLimitConfig  `mapstructure:"RATELIMIT"`
	Sentry     SentryConfig     `mapstructure:"SENTRY"`
	Worker     WorkerConfig     `mapstructure:"WORKER"`
}

// ServerConfig holds configuration for the chat HTTP server.
type ServerConfig struct {
	Host           string        `mapstructure:"HOST"`
	Port           string        `mapstructure:"PORT"`
	WebSocketPath  string        `mapstructure:"WEBSOCKET_PATH"`
	ReadTimeout    time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `mapstructure:"WRITE_TIMEOUT"`
	MaxHeaderBytes int           `mapstructure:"MAX_HEADER_BYTES"`
}

// KafkaConfig holds configuration for Kafka.
type KafkaConfig struct {
	Brokers          []string `mapstructure:"BROKERS"`
	ClientID         string   `mapstructure:"CLIENT_ID"`
	BlockEventsTopic string   `mapstructure:"BLOCK_EVENTS_TOPIC"` // 拉黑/解除拉黑事件
	ConsumerGroup    string   `mapstructure:"CONSUMER_GROUP"`     // ChatServer 消费者组前缀，每个实例追加主机名
	Protocol         string   `mapstructure:"PROTOCOL"`
	Enabled          bool     `mapstructure:"ENABLED"`
}

// DatabaseConfig holds configuration for the database.
type DatabaseConfig struct {
	Type         string `mapstructure:"TYPE"`
	Host         string `mapstructure:"HOST"`
	Port         int    `mapstructure:"PORT"`
	User         string `mapstructure:"USER"`
	Password     string `mapstructure:"PASSWORD"`
	DBName       string `mapstructure:"DB_NAME"`
	SSLMode      string `mapstructure:"SSL_MODE"`
	MaxOpenConns int    `mapstructure:"MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"MAX_IDLE_CONNS"`
	LogLevel     string `mapstructure:"LOG_LEVEL"` // silent, error, warn, info
}

// AuthConfig holds configuration for authentication (e.g., JWT).
// 令牌由身份提供方签发，这里只负责校验。
type AuthConfig struct {
	JWTSecretKey string        `mapstructure:"JWT_SECRET_KEY"`
	JWTExpiry    time.Duration `mapstructure:"JWT_EXPIRY"`
	Issuer       string        `mapstructure:"ISSUER"`
}

// WebSocketConfig holds configuration for WebSocket connections.
type WebSocketConfig struct {
	WriteWaitSeconds    int `mapstructure:"WRITE_WAIT_SECONDS"`
	PongWaitSeconds     int `mapstructure:"PONG_WAIT_SECONDS"`
	PingPeriodSeconds   int `mapstructure:"PING_PERIOD_SECONDS"`
	MaxMessageSizeBytes int `mapstructure:"MAX_MESSAGE_SIZE_BYTES"`
}

// ChatConfig 控制单个聊天会话的定时器。
type ChatConfig struct {
	ReconnectBackoff    time.Duration `mapstructure:"RECONNECT_BACKOFF"`
	ReconnectBackoffMax time.Duration `mapstructure:"RECONNECT_BACKOFF_MAX"` // 大于 RECONNECT_BACKOFF 时启用指数退避
	BlockCheckInterval  time.Duration `mapstructure:"BLOCK_CHECK_INTERVAL"`
	SubscribeTimeout    time.Duration `mapstructure:"SUBSCRIBE_TIMEOUT"`
}

// ChangeFeedConfig selects the transport behind the store change feed.
type ChangeFeedConfig struct {
	Driver        string `mapstructure:"DRIVER"` // "redis" or "postgres"
	ChannelPrefix string `mapstructure:"CHANNEL_PREFIX"`
	BufferSize    int    `mapstructure:"BUFFER_SIZE"`
}

// DiscoveryConfig 控制发现页的抓取规模。
type DiscoveryConfig struct {
	FeedFetchLimit int `mapstructure:"FEED_FETCH_LIMIT"`
	FeedPageSize   int `mapstructure:"FEED_PAGE_SIZE"`
}

// RateLimitConfig 是按用户的写操作限流配置。
type RateLimitConfig struct {
	RequestsPerSecond float64       `mapstructure:"REQUESTS_PER_SECOND"`
	Burst             int           `mapstructure:"BURST"`
	IdleTTL           time.Duration `mapstructure:"IDLE_TTL"`
}

// SentryConfig holds the error reporting DSN. Empty disables reporting.
type SentryConfig struct {
	DSN              string  `mapstructure:"DSN"`
	TracesSampleRate float64 `mapstructure:"TRACES_SAMPLE_RATE"`
}

// WorkerConfig 是后台对账任务的配置。
type WorkerConfig struct {
	Concurrency       int    `mapstructure:"CONCURRENCY"`
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`
	Queue             string `mapstructure:"QUEUE"`
	MetricsAddr       string `mapstructure:"METRICS_ADDR"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()

	v.SetDefault("APP_NAME", "Social-Go")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	// Server Defaults (ChatServer)
	v.SetDefault("SERVER.HOST", "0.0.0.0")
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.WEBSOCKET_PATH", "/ws/chat")
	v.SetDefault("SERVER.READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER.MAX_HEADER_BYTES", 1<<20) // 1 MB

	// APIServer Defaults
	v.SetDefault("API_SERVER.HOST", "0.0.0.0")
	v.SetDefault("API_SERVER.PORT", "8081")
	v.SetDefault("API_SERVER.CORS.ALLOWED_ORIGINS", []string{"http://localhost:8081", "http://localhost:19006"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("API_SERVER.CORS.ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"})
	v.SetDefault("API_SERVER.CORS.EXPOSED_HEADERS", []string{"Content-Length"})
	v.SetDefault("API_SERVER.CORS.ALLOW_CREDENTIALS", true)
	v.SetDefault("API_SERVER.CORS.MAX_AGE", 300) // 5 minutes

	// Kafka Defaults
	v.SetDefault("KAFKA.BROKERS", []string{"localhost:9092"})
	v.SetDefault("KAFKA.CLIENT_ID", "social-go-client")
	v.SetDefault("KAFKA.BLOCK_EVENTS_TOPIC", "social-block-events")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "social-chat-server")
	v.SetDefault("KAFKA.PROTOCOL", "plaintext")
	v.SetDefault("KAFKA.ENABLED", true)

	// Database Defaults (PostgreSQL)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "password")
	v.SetDefault("DATABASE.DB_NAME", "social_go_db")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE.MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE.LOG_LEVEL", "warn")

	// Auth Defaults
	v.SetDefault("AUTH.JWT_SECRET_KEY", "a_very_secret_key_that_should_be_changed")
	v.SetDefault("AUTH.JWT_EXPIRY", 15*time.Minute)
	v.SetDefault("AUTH.ISSUER", "social-go-identity")

	// Redis Defaults
	v.SetDefault("REDIS.ADDR", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)

	// WebSocket Defaults
	v.SetDefault("WEBSOCKET.WRITE_WAIT_SECONDS", 10)
	v.SetDefault("WEBSOCKET.PONG_WAIT_SECONDS", 60)
	v.SetDefault("WEBSOCKET.PING_PERIOD_SECONDS", 54) // (60 * 9) / 10
	v.SetDefault("WEBSOCKET.MAX_MESSAGE_SIZE_BYTES", 4096)

	// Chat session timers
	v.SetDefault("CHAT.RECONNECT_BACKOFF", 3*time.Second)
	v.SetDefault("CHAT.RECONNECT_BACKOFF_MAX", 3*time.Second)
	v.SetDefault("CHAT.BLOCK_CHECK_INTERVAL", 10*time.Second)
	v.SetDefault("CHAT.SUBSCRIBE_TIMEOUT", 10*time.Second)

	v.SetDefault("CHANGEFEED.DRIVER", "redis")
	v.SetDefault("CHANGEFEED.CHANNEL_PREFIX", "changes")
	v.SetDefault("CHANGEFEED.BUFFER_SIZE", 64)

	v.SetDefault("DISCOVERY.FEED_FETCH_LIMIT", 100)
	v.SetDefault("DISCOVERY.FEED_PAGE_SIZE", 50)

	v.SetDefault("RATELIMIT.REQUESTS_PER_SECOND", 5.0)
	v.SetDefault("RATELIMIT.BURST", 10)
	v.SetDefault("RATELIMIT.IDLE_TTL", 10*time.Minute)

	v.SetDefault("SENTRY.DSN", "")
	v.SetDefault("SENTRY.TRACES_SAMPLE_RATE", 0.2)

	v.SetDefault("WORKER.CONCURRENCY", 2)
	v.SetDefault("WORKER.RECONCILE_SCHEDULE", "@every 5m")
	v.SetDefault("WORKER.QUEUE", "maintenance")
	v.SetDefault("WORKER.METRICS_ADDR", ":9091")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// SERVER_PORT 覆盖 Server.Port，嵌套键用下划线连接
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		// 没有配置文件时使用默认值
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
