// Package bootstrap 汇集三个可执行程序共用的初始化步骤。
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"social-go/internal/changefeed"
	"social-go/internal/config"
	appKafka "social-go/internal/kafka"
	"social-go/internal/logging"
	"social-go/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// ChangeFeed is both ends of the store change feed.
type ChangeFeed interface {
	changefeed.Feed
	changefeed.Publisher
}

// LoadConfig 先加载 .env（不存在时忽略），再交给 viper。
func LoadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "警告: 读取 .env 失败: %v\n", err)
	}
	return config.LoadConfig("")
}

// Logger 初始化 Sentry 与全局 slog。返回的 flush 需要在退出前调用。
func Logger(cfg config.Config, component string) (*slog.Logger, func()) {
	flush, err := logging.InitSentry(cfg.Sentry.DSN, cfg.AppEnv, cfg.AppVersion, cfg.Sentry.TracesSampleRate)
	var logger *slog.Logger
	if cfg.Sentry.DSN != "" && err == nil {
		logger = logging.Setup(cfg.LogLevel, logging.NewSentryHandler())
	} else {
		logger = logging.Setup(cfg.LogLevel)
	}
	if err != nil {
		logger.Error("Sentry 初始化失败", "error", err)
	}
	logger = logger.With("component", component, "env", cfg.AppEnv)
	slog.SetDefault(logger)
	return logger, flush
}

// NewChangeFeed 按 CHANGEFEED.DRIVER 选择 Redis Pub/Sub 或 Postgres LISTEN/NOTIFY。
// closer 释放驱动自己持有的连接池。
func NewChangeFeed(ctx context.Context, cfg config.Config, redisClient *redis.Client) (ChangeFeed, func(), error) {
	switch cfg.ChangeFeed.Driver {
	case "", "redis":
		feed := changefeed.NewRedisFeed(redisClient, cfg.ChangeFeed.ChannelPrefix, cfg.ChangeFeed.BufferSize, cfg.Chat.SubscribeTimeout)
		return feed, func() {}, nil
	case "postgres":
		pool, err := changefeed.NewPostgresPool(ctx, storage.BuildDSN(cfg.Database), int32(cfg.Database.MaxOpenConns))
		if err != nil {
			return nil, nil, err
		}
		feed := changefeed.NewPostgresFeed(pool, cfg.ChangeFeed.ChannelPrefix, cfg.ChangeFeed.BufferSize, cfg.Chat.SubscribeTimeout)
		return feed, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("不支持的 change feed 驱动: %s", cfg.ChangeFeed.Driver)
	}
}

// NewBlockEventPublisher 在 Kafka 关闭时返回空实现，会话的定时检查兜底。
func NewBlockEventPublisher(cfg config.KafkaConfig, logger *slog.Logger) (appKafka.BlockEventPublisher, func(), error) {
	if !cfg.Enabled {
		logger.Warn("Kafka 未启用，拉黑事件不会广播")
		return appKafka.NopBlockEventPublisher{}, func() {}, nil
	}
	producer, err := appKafka.NewConfluentKafkaProducer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("无法创建 Kafka 生产者: %w", err)
	}
	return appKafka.NewBlockEventPublisher(producer, cfg.BlockEventsTopic), producer.Close, nil
}
