package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-go/internal/bootstrap"
	"social-go/internal/handlers/apiserver"
	"social-go/internal/metrics"
	"social-go/internal/middleware"
	appRedis "social-go/internal/redis"
	"social-go/internal/services"
	"social-go/internal/storage"

	"github.com/gorilla/handlers"
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
	logger, flush := bootstrap.Logger(cfg, "apiserver")
	defer flush()
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		flush()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 数据库
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		fatal("无法初始化数据库", err)
	}
	if err := storage.AutoMigrateTables(db); err != nil {
		logger.Warn("数据库表迁移可能失败", "error", err)
	}
	repos := storage.NewGormRepositories(db)
	tx := storage.NewGormTxRunner(db)

	// 3. Redis：令牌黑名单与默认的 change feed
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

	// 4. Kafka：拉黑事件
	blockEvents, closeProducer, err := bootstrap.NewBlockEventPublisher(cfg.Kafka, logger)
	if err != nil {
		fatal("无法初始化拉黑事件发布", err)
	}
	defer closeProducer()

	// 5. Services
	m := metrics.New(prometheus.DefaultRegisterer)
	oracle := services.NewBlockOracle(repos.Blocks)
	filter := services.NewVisibilityFilter(repos.Blocks, m)
	guard := services.NewInteractionGuard(oracle, repos, feed, m)
	profileService := services.NewProfileService(repos, oracle, filter, cfg.Discovery)
	friendshipService := services.NewFriendshipService(repos, guard, oracle, filter)
	messageService := services.NewMessageService(repos, guard, oracle, filter)
	blockService := services.NewBlockService(repos, tx, blockEvents, m)
	countsService := services.NewCountsService(repos, filter)

	// 6. 路由
	authMW := func(next http.Handler) http.Handler {
		return middleware.AuthMiddleware(next, cfg.Auth, blacklist)
	}
	r := apiserver.NewRouter(apiserver.Handlers{
		Profiles: apiserver.NewProfileHandler(profileService, guard, countsService),
		Friends:  apiserver.NewFriendshipHandler(friendshipService),
		Blocks:   apiserver.NewBlockHandler(blockService),
		Messages: apiserver.NewMessageHandler(messageService),
	}, mux.MiddlewareFunc(authMW), middleware.NewRateLimiter(cfg.RateLimit), metrics.Handler())

	corsOptions := []handlers.CORSOption{
		handlers.AllowedOrigins(cfg.APIServer.CORS.AllowedOrigins),
		handlers.AllowedMethods(cfg.APIServer.CORS.AllowedMethods),
		handlers.AllowedHeaders(cfg.APIServer.CORS.AllowedHeaders),
		handlers.ExposedHeaders(cfg.APIServer.CORS.ExposedHeaders),
		handlers.MaxAge(cfg.APIServer.CORS.MaxAge),
	}
	if cfg.APIServer.CORS.AllowCredentials {
		corsOptions = append(corsOptions, handlers.AllowCredentials())
	}

	// 7. 启动 HTTP 服务器并实现优雅关闭
	serverAddr := fmt.Sprintf("%s:%s", cfg.APIServer.Host, cfg.APIServer.Port)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      handlers.CORS(corsOptions...)(r),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("API 服务器启动", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("API 服务器启动失败", err)
		}
	}()

	<-ctx.Done()
	logger.Info("收到关闭信号，正在关闭 API 服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("API 服务器强制关闭", "error", err)
	}
	logger.Info("API 服务器已成功关闭")
}
