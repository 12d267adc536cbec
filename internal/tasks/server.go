package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"social-go/internal/config"

	"github.com/hibiken/asynq"
)

// RedisOpt converts the REDIS section into asynq connection options.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// NewServer 创建 asynq 服务端，错误通过 slog 记录。
func NewServer(redisCfg config.RedisConfig, workerCfg config.WorkerConfig, logger *slog.Logger) *asynq.Server {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := workerCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return asynq.NewServer(RedisOpt(redisCfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName(workerCfg): 1},
		Logger:      slogAdapter{logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("后台任务失败", "type", task.Type(), "error", err)
		}),
	})
}

// NewMux routes task types to handlers.
func NewMux(r *Reconciler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeReconcile, r)
	return mux
}

// NewScheduler 按 cron 表达式周期性投递清理任务。
func NewScheduler(redisCfg config.RedisConfig, workerCfg config.WorkerConfig, logger *slog.Logger) (*asynq.Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scheduler := asynq.NewScheduler(RedisOpt(redisCfg), &asynq.SchedulerOpts{
		Logger:   slogAdapter{logger},
		Location: time.UTC,
	})
	spec := workerCfg.ReconcileSchedule
	if spec == "" {
		spec = "@every 10m"
	}
	entryID, err := scheduler.Register(spec, NewReconcileTask(),
		asynq.Queue(queueName(workerCfg)),
		asynq.Unique(time.Minute),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return nil, fmt.Errorf("注册清理任务失败 (schedule %q): %w", spec, err)
	}
	logger.Info("清理任务已注册", "entry", entryID, "schedule", spec)
	return scheduler, nil
}

// Enqueue pushes one sweep now, used by the admin CLI.
func Enqueue(ctx context.Context, redisCfg config.RedisConfig, workerCfg config.WorkerConfig) (string, error) {
	client := asynq.NewClient(RedisOpt(redisCfg))
	defer client.Close()
	info, err := client.EnqueueContext(ctx, NewReconcileTask(), asynq.Queue(queueName(workerCfg)), asynq.Unique(time.Minute))
	if err != nil {
		return "", fmt.Errorf("投递清理任务失败: %w", err)
	}
	return info.ID, nil
}

func queueName(cfg config.WorkerConfig) string {
	if cfg.Queue == "" {
		return "default"
	}
	return cfg.Queue
}

// slogAdapter satisfies asynq.Logger.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a slogAdapter) Fatal(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
