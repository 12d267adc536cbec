package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"social-go/internal/auth"
	"social-go/internal/bootstrap"
	"social-go/internal/config"
	"social-go/internal/metrics"
	"social-go/internal/services"
	"social-go/internal/storage"
	"social-go/internal/tasks"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// 简单命令行参数解析
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}
	logger, flush := bootstrap.Logger(cfg, "admin")
	defer flush()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "mint-token":
		if len(os.Args) < 3 {
			log.Fatalf("需要指定用户ID")
		}
		username := ""
		if len(os.Args) > 3 {
			username = os.Args[3]
		}
		token, err := auth.GenerateToken(os.Args[2], username, cfg.Auth)
		if err != nil {
			log.Fatalf("生成令牌失败: %v", err)
		}
		fmt.Println(token)

	case "block-status":
		if len(os.Args) < 4 {
			log.Fatalf("需要指定两个用户ID")
		}
		repos := openRepositories(cfg)
		showBlockStatus(ctx, services.NewBlockOracle(repos.Blocks), os.Args[2], os.Args[3])

	case "reconcile":
		repos := openRepositories(cfg)
		r := tasks.NewReconciler(repos.Friendships, repos.Likes, metrics.New(prometheus.NewRegistry()), logger)
		report, err := r.Run(ctx)
		fmt.Printf("清理完成: 好友关系 %d 条, 点赞 %d 条\n", report.Friendships, report.Likes)
		if err != nil {
			log.Fatalf("清理未全部成功: %v", err)
		}

	case "enqueue-reconcile":
		id, err := tasks.Enqueue(ctx, cfg.Redis, cfg.Worker)
		if err != nil {
			log.Fatalf("投递清理任务失败: %v", err)
		}
		fmt.Printf("已投递清理任务: %s\n", id)

	default:
		usage()
		log.Fatalf("未知命令: %s", os.Args[1])
	}
}

func usage() {
	fmt.Println("使用方法:")
	fmt.Println("  ./admin mint-token <userID> [username] - 为用户签发访问令牌")
	fmt.Println("  ./admin block-status <viewerID> <subjectID> - 显示两个用户之间的拉黑状态")
	fmt.Println("  ./admin reconcile - 立即清理被拉黑用户之间残留的好友关系与点赞")
	fmt.Println("  ./admin enqueue-reconcile - 把清理任务投递给 worker")
}

func openRepositories(cfg config.Config) storage.Repositories {
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("无法连接数据库: %v", err)
	}
	return storage.NewGormRepositories(db)
}

func showBlockStatus(ctx context.Context, oracle services.BlockOracle, viewer, subject string) {
	status, err := oracle.GetBlockStatus(ctx, viewer, subject)
	if err != nil {
		log.Fatalf("查询拉黑状态失败: %v", err)
	}

	fmt.Printf("%s -> %s 拉黑状态:\n", viewer, subject)
	fmt.Println("--------------------------------------")
	fmt.Printf("任一方向: %v\n", status.IsBlocked)
	fmt.Printf("%s 拉黑了 %s: %v\n", viewer, subject, status.IBlockedThem)
	fmt.Printf("%s 拉黑了 %s: %v\n", subject, viewer, status.TheyBlockedMe)
}
