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
	"social-go/internal/metrics"
	"social-go/internal/storage"
	"social-go/internal/tasks"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法加载配置: %v\n", err)
		os.Exit(1)
	}
	logger, flush := bootstrap.Logger(cfg, "worker")
	defer flush()
	fatal := func(msg string, err error) {
		logger.Error(msg, "error", err)
		flush()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		fatal("无法初始化数据库", err)
	}
	repos := storage.NewGormRepositories(db)

	m := metrics.New(prometheus.DefaultRegisterer)
	reconciler := tasks.NewReconciler(repos.Friendships, repos.Likes, m, logger)

	scheduler, err := tasks.NewScheduler(cfg.Redis, cfg.Worker, logger)
	if err != nil {
		fatal("无法创建任务调度器", err)
	}
	if err := scheduler.Start(); err != nil {
		fatal("任务调度器启动失败", err)
	}

	srv := tasks.NewServer(cfg.Redis, cfg.Worker, logger)
	if err := srv.Start(tasks.NewMux(reconciler)); err != nil {
		fatal("任务服务启动失败", err)
	}

	var metricsServer *http.Server
	if cfg.Worker.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics 服务异常退出", "error", err)
			}
		}()
	}

	logger.Info("Worker 已启动", "queue", cfg.Worker.Queue, "schedule", cfg.Worker.ReconcileSchedule)
	<-ctx.Done()
	logger.Info("Worker 准备关闭...")

	scheduler.Shutdown()
	srv.Shutdown()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	logger.Info("Worker 已关闭")
}
