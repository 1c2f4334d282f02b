package main

import (
	"flag"
	"log"
	"os"
	"time"

	"k8s.io/klog/v2"

	"github.com/weibaohui/llmchats/config"
	"github.com/weibaohui/llmchats/internal/eventbus"
	"github.com/weibaohui/llmchats/internal/handler"
	"github.com/weibaohui/llmchats/internal/pkg/database"
	"github.com/weibaohui/llmchats/internal/provider"
	"github.com/weibaohui/llmchats/internal/repository"
	"github.com/weibaohui/llmchats/internal/router"
	"github.com/weibaohui/llmchats/internal/service"
	"github.com/weibaohui/llmchats/internal/service/orchestrator"
	"github.com/weibaohui/llmchats/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()

	if err := os.MkdirAll(cfg.Data.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化平台适配器，没有任何可用平台时直接退出
	providers, err := provider.NewAll(cfg.Providers.Enabled(), provider.DefaultRetryPolicy())
	if err != nil {
		log.Fatalf("Failed to initialize providers: %v", err)
	}
	klog.V(6).Infof("已加载 %d 个平台适配器", len(providers))

	// 初始化 Repository
	sessionRepo := repository.NewSessionRepository(db)
	turnRepo := repository.NewTurnRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)

	// 初始化 Service
	bus := eventbus.NewSessionEventBus()
	subscriber.NewSessionEventSubscriber().Register(bus)
	sessionService := service.NewSessionService(cfg, sessionRepo, turnRepo, summaryRepo, providers, bus)

	// 初始化全局会话编排器
	// maxWorkers=2，避免并发过多打爆LLM配额
	executor := &sessionExecutorAdapter{sessionService: sessionService}
	orch, err := orchestrator.NewOrchestrator(2, executor)
	if err != nil {
		log.Fatalf("Failed to initialize orchestrator: %v", err)
	}
	orch.Start()
	defer orch.Stop()
	sessionService.SetOrchestrator(orch)

	// 初始化 Handler
	providerHandler := handler.NewProviderHandler(sessionService)
	sessionHandler := handler.NewSessionHandler(sessionService)

	// 启动时清理卡住的会话（超过 30 分钟的运行中会话）
	cleanupStuckSessions(sessionService)

	// 设置路由
	r := router.Setup(cfg, providerHandler, sessionHandler)

	log.Printf("Server starting on port %s...", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// cleanupStuckSessions 清理启动前卡住的会话
func cleanupStuckSessions(sessionService *service.SessionService) {
	timeout := 30 * time.Minute

	affected, err := sessionService.CleanupStuckSessions(timeout)
	if err != nil {
		klog.V(6).Infof("清理卡住会话失败: %v", err)
		return
	}

	if affected > 0 {
		klog.V(6).Infof("启动时清理了 %d 个卡住的会话", affected)
	}
}
