package server

import (
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	slogfiber "github.com/samber/slog-fiber"

	"github.com/MeowSalty/relay/config"
	"github.com/MeowSalty/relay/database"
	"github.com/MeowSalty/relay/logger"
	"github.com/MeowSalty/relay/router"
	"github.com/MeowSalty/relay/services"
)

// Run 启动服务器
func Run(cfg *config.Config) {
	// 初始化日志记录器
	appLogger, fileHandler := logger.InitLogger(cfg.LogLevel)
	if fileHandler != nil {
		defer fileHandler.Close()
	}

	// 创建日志组
	fiberLogger := appLogger.WithGroup("fiber")
	gormLogger := appLogger.WithGroup("gorm")

	slog.SetDefault(appLogger)

	// 加载路由目录与路由行为设置
	catalog, settings, err := config.LoadCatalog(cfg.ConfigDir)
	if err != nil {
		appLogger.Error("加载路由配置失败", "error", err)
		os.Exit(1)
	}
	routing := config.ResolveRouting(cfg, settings)
	appLogger.Info("路由配置已加载",
		"providers", len(catalog.ProviderOrder),
		"models", len(catalog.ModelOrder),
		"roles", len(catalog.Roles),
	)

	// 连接数据库
	db, err := database.Connect(database.Options{
		Type:      cfg.DBType,
		Host:      cfg.DBHost,
		Port:      cfg.DBPort,
		User:      cfg.DBUser,
		Password:  cfg.DBPass,
		Name:      cfg.DBName,
		SSLMode:   cfg.DBSSLMode,
		TLSConfig: cfg.DBTLSConfig,
	}, gormLogger)
	if err != nil {
		appLogger.Error("数据库连接失败", "error", err)
		os.Exit(1)
	}

	// 创建 fiber 应用
	fiberApp := fiber.New(fiber.Config{
		Prefork: cfg.Prod,
	})

	// 中间件
	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e any) {
			stack := debug.Stack()
			// 将堆栈信息按行分割，以数组形式记录，提高 JSON 日志可读性
			stackLines := strings.Split(strings.TrimSpace(string(stack)), "\n")
			fiberLogger.Error("发生 panic",
				"panic", e,
				"path", c.Path(),
				"method", c.Method(),
				"body", string(c.Body()),
				"stack", stackLines,
			)
		},
	}))
	fiberApp.Use(slogfiber.NewWithConfig(fiberLogger, slogfiber.Config{
		Filters: []slogfiber.Filter{
			// 补全请求在服务层已有结构化日志，此处忽略避免重复记录
			slogfiber.IgnorePathContains("/complete"),
		},
	}))

	// 初始化服务
	svcs, err := services.NewServices(services.Options{
		Catalog:       catalog,
		Routing:       routing,
		DB:            db,
		StateDir:      cfg.StateDir,
		RotationStore: cfg.RotationStore,
		ModelMapping:  cfg.ModelMapping,
	}, appLogger.WithGroup("services"))
	if err != nil {
		appLogger.Error("服务初始化失败", "error", err)
		os.Exit(1)
	}

	// 如果没有设置管理令牌，则使用 API Token，并输出警告
	effectiveAdminToken := cfg.AdminToken
	if effectiveAdminToken == "" {
		effectiveAdminToken = cfg.APIToken
		if cfg.APIToken != "" {
			appLogger.Warn("未设置独立的管理 API Token，管理接口将与业务接口使用相同的令牌")
		}
	}
	if cfg.APIToken == "" {
		appLogger.Warn("未启用 API Token，将不进行身份验证")
	}

	// 设置路由
	routerConfig := router.Config{
		ApiToken:   cfg.APIToken,
		AdminToken: effectiveAdminToken,
	}
	if err := router.SetupRoutes(fiberApp, svcs, routerConfig); err != nil {
		appLogger.Error("路由设置失败", "error", err)
		os.Exit(1)
	}

	// 启动 Web 服务
	go func() {
		if err := fiberApp.Listen(cfg.Port); err != nil {
			fiberLogger.Error("无法启动 Web 服务", "error", err)
			os.Exit(1)
		}
	}()

	// 等待关闭信号
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	_ = <-c
	appLogger.Info("收到关闭信号，正在关闭应用...")

	// 关闭补全路由服务，等待进行中的请求结束
	appLogger.Info("正在关闭补全路由服务")
	if err := svcs.GatewayService.Close(5 * time.Second); err != nil {
		appLogger.Error("关闭补全路由服务失败", "error", err)
	} else {
		appLogger.Info("补全路由服务已成功关闭")
	}

	// 关闭 Web 服务
	err = fiberApp.Shutdown()
	if err != nil {
		fiberLogger.Error("关闭 Web 服务失败", "error", err)
	} else {
		fiberLogger.Info("Web 服务已成功关闭")
	}

	// 关闭数据库连接
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.Close()
	}
	if err != nil {
		appLogger.Error("关闭数据库连接失败", "error", err)
	} else {
		appLogger.Info("数据库连接已成功关闭")
	}
	appLogger.Info("应用已成功关闭")
}
