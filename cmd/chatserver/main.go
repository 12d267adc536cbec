package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"social-go/internal/bootstrap"
	"social-go/internal/chat"
	"social-go/internal/handlers/chatserver"
	appKafka "social-go/internal/kafka"
	kafkahandlers "social-go/internal/kafka/handlers"
	"social-go/internal/metrics"
	appRedis "social-go/internal/redis"
	"social-go/internal/services"
	"social-go/internal/storage"
	"social-go/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// 1. 加载配置
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		os.Exit(1)
	}
	logger, flush := bootstrap.Logger(cfg, "chatserver")
	defer flush()
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		flush()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 数据库（迁移由 apiserver 负责）
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		fatal("无法初始化数据库", err)
	}
	repos := storage.NewGormRepositories(db)
	tx := storage.NewGormTxRunner(db)

	// 3. Redis 与 change feed
	redisClient, err := appRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		fatal("无法连接到 Redis", err)
	}
	defer redisClient.Close()
	blacklist := appRedis.NewTokenBlacklist(redisClient)

	feed, closeFeed, err := bootstrap.NewChangeFeed(ctx, cfg, redisClient)
	if err != nil {
		fatal("无法初始化 change feed", err)
	}
	defer closeFeed()

	// 4. 会话内的解除拉黑也要广播出去
	blockEvents, closeProducer, err := bootstrap.NewBlockEventPublisher(cfg.Kafka, logger)
	if err != nil {
		fatal("无法初始化拉黑事件发布", err)
	}
	defer closeProducer()

	// 5. Services
	m := metrics.New(prometheus.DefaultRegisterer)
	oracle := services.NewBlockOracle(repos.Blocks)
	guard := services.NewInteractionGuard(oracle, repos, feed, m)
	blockService := services.NewBlockService(repos, tx, blockEvents, m)

	// 6. WebSocket Hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	wsHandler := chatserver.NewWebSocketHandler(hub, chat.Deps{
		Blocks:    oracle,
		Messages:  repos.Messages,
		Profiles:  repos.Profiles,
		Sender:    guard,
		Unblocker: blockService,
		Feed:      feed,
		Metrics:   m,
	}, cfg, blacklist, logger)

	// 7. 拉黑事件消费者。每个实例使用独立的消费者组，保证所有实例都收到全部事件。
	var consumers sync.WaitGroup
	if cfg.Kafka.Enabled {
		consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka)
		if err != nil {
			fatal("无法创建拉黑事件消费者", err)
		}
		defer consumer.Close()

		hostname, _ := os.Hostname()
		groupID := cfg.Kafka.ConsumerGroup + "-" + hostname
		blockLogic := kafkahandlers.NewBlockEventConsumerLogic(hub)

		consumers.Add(1)
		go func() {
			defer consumers.Done()
			logger.Info("拉黑事件消费者启动", "topic", cfg.Kafka.BlockEventsTopic, "group", groupID)
			err := consumer.Consume(ctx, []string{cfg.Kafka.BlockEventsTopic}, groupID, blockLogic.HandleBlockEvent)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("拉黑事件消费者错误", "error", err)
			}
		}()
	}

	// 8. HTTP 路由
	r := mux.NewRouter()
	wsPath := strings.TrimSuffix(cfg.Server.WebSocketPath, "/")
	r.HandleFunc(wsPath+"/{counterpartID}", wsHandler.ServeWS).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:           serverAddr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Info("Chat HTTP 服务器启动", "addr", serverAddr, "ws_path", wsPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("Chat 服务器启动失败", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Chat 服务器准备关闭...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Chat 服务器关闭失败", "error", err)
	}
	consumers.Wait()
	logger.Info("Chat 服务器已优雅关闭。")
}
