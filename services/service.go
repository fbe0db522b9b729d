package services

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/MeowSalty/relay/config"
	"github.com/MeowSalty/relay/database"
	"github.com/MeowSalty/relay/gateway"
	"github.com/MeowSalty/relay/gateway/adapter"
	"github.com/MeowSalty/relay/gateway/ratelimit"
	"github.com/MeowSalty/relay/gateway/rotation"
	"github.com/MeowSalty/relay/gateway/tier"
	"github.com/MeowSalty/relay/gateway/tokencount"
	"github.com/MeowSalty/relay/gateway/types"
	gatewayService "github.com/MeowSalty/relay/services/gateway"
	statsService "github.com/MeowSalty/relay/services/stats"
)

// Services 持有所有服务实例的结构体
type Services struct {
	GatewayService gatewayService.Service
	StatsService   statsService.Service

	// Catalog 已解析的路由目录，供只读目录接口使用
	Catalog *types.Catalog
}

// Options 服务装配参数
type Options struct {
	Catalog       *types.Catalog // 已解析并校验的路由目录
	Routing       config.Routing // 合并后的路由行为配置
	DB            *gorm.DB       // 数据库连接
	StateDir      string         // 文件轮换存储目录
	RotationStore string         // 轮换状态存储后端（db 或 file）
	ModelMapping  string         // 模型映射规则表
}

// NewServices 初始化所有服务并返回 Services 实例
//
// 装配顺序：层级闸门 → 适配器注册表 → 限流器 → 凭证轮换器 →
// 路由引擎 → 各应用服务。任何一步失败都视为启动失败。
//
// 参数：
//
//	opts - 服务装配参数
//	logger - 日志记录器，各服务在其下建立自己的日志组
//
// 返回值：
//
//	*Services - 包含所有服务实例的结构体
//	error - 初始化过程中可能出现的错误
func NewServices(opts Options, logger *slog.Logger) (*Services, error) {
	// 计算层级准入策略
	tiers, err := tier.ResolvePolicy(opts.Routing.AllowedTiers, opts.Routing.UsePaidModels)
	if err != nil {
		return nil, fmt.Errorf("解析层级策略失败：%w", err)
	}
	gate := tier.NewGate(opts.Catalog, tiers)
	logger.Info("层级准入策略已生效",
		"allowed_tiers", gate.AllowedTiers(),
		"use_paid_models", opts.Routing.UsePaidModels,
	)

	// 为每个提供商构建适配器
	adapters, err := adapter.NewRegistry(opts.Catalog, adapter.Config{
		HTTPTimeout: opts.Routing.HTTPTimeout,
		CLITimeout:  opts.Routing.CLITimeout,
	}, logger.WithGroup("adapter"))
	if err != nil {
		return nil, fmt.Errorf("构建适配器注册表失败：%w", err)
	}

	// 限流器与凭证轮换器
	limiter := ratelimit.NewLimiter(opts.Catalog.Limits, logger.WithGroup("ratelimit"))
	store, err := rotationStore(opts, logger)
	if err != nil {
		return nil, err
	}
	rotator := rotation.NewRotator(opts.Catalog, store, logger.WithGroup("rotation"))

	// 请求日志仓库
	logRepo := database.NewRequestLogRepo(opts.DB)

	// 路由引擎
	engine, err := gateway.New(gateway.Config{
		Catalog:           opts.Catalog,
		Adapters:          adapters,
		Limiter:           limiter,
		Rotator:           rotator,
		Gate:              gate,
		Counter:           tokencount.NewCounter(logger.WithGroup("tokencount")),
		LogRepo:           logRepo,
		Logger:            logger.WithGroup("gateway"),
		MaxWait:           opts.Routing.MaxWait,
		CompletionReserve: opts.Routing.CompletionReserve,
	})
	if err != nil {
		return nil, fmt.Errorf("创建路由引擎失败：%w", err)
	}

	// 初始化补全路由服务
	gatewaySvc, err := gatewayService.New(engine, opts.ModelMapping, logger.WithGroup("completion"))
	if err != nil {
		return nil, err
	}

	// 初始化统计服务
	statsSvc := statsService.New(statsService.Deps{
		Catalog:  opts.Catalog,
		Limiter:  limiter,
		Rotator:  rotator,
		Adapters: adapters,
		Repo:     logRepo,
		Logger:   logger.WithGroup("stats"),
	})

	return &Services{
		GatewayService: gatewaySvc,
		StatsService:   statsSvc,
		Catalog:        opts.Catalog,
	}, nil
}

// rotationStore 根据配置选择轮换状态存储后端
//
// 默认使用数据库存储，多实例部署可共享轮换位置；
// "file" 后端把状态写入 StateDir 下的单提供商文件。
func rotationStore(opts Options, logger *slog.Logger) (rotation.Store, error) {
	switch opts.RotationStore {
	case "", "db":
		return database.NewRotationStore(opts.DB), nil
	case "file":
		return rotation.NewFileStore(opts.StateDir, logger.WithGroup("rotation_store")), nil
	default:
		return nil, fmt.Errorf("未知的轮换状态存储后端：%q（支持 db、file）", opts.RotationStore)
	}
}
