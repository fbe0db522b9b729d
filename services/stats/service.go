package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/MeowSalty/relay/database"
	"github.com/MeowSalty/relay/gateway/adapter"
	"github.com/MeowSalty/relay/gateway/ratelimit"
	"github.com/MeowSalty/relay/gateway/rotation"
	"github.com/MeowSalty/relay/gateway/types"
)

// Service 定义统计服务接口
type Service interface {
	// Realtime 获取实时指标（请求速率与活动连接数）
	Realtime() *RealtimeResponse

	// Usage 获取限流器滚动窗口内各模型的用量快照
	Usage() *UsageResponse

	// Providers 获取各提供商的运行状态（可用性、凭证轮换位置）
	Providers() []*ProviderStatus

	// Overview 获取请求日志的全局概览
	Overview(ctx context.Context, duration time.Duration) (*OverviewResponse, error)

	// Recent 获取最近的请求日志，按时间倒序
	Recent(ctx context.Context, limit int) ([]*RequestLogView, error)

	// ProviderRank 按请求量获取提供商排名
	ProviderRank(ctx context.Context, duration time.Duration) (*ProviderRankResponse, error)

	// Collector 返回实时数据采集器，供路由中间件采集入口流量
	Collector() *Collector
}

// Deps 统计服务的依赖集合
type Deps struct {
	Catalog  *types.Catalog           // 路由目录
	Limiter  *ratelimit.Limiter       // 限流器（窗口用量快照）
	Rotator  *rotation.Rotator        // 凭证轮换器（轮换位置快照）
	Adapters *adapter.Registry        // 适配器注册表（可用性探测）
	Repo     *database.RequestLogRepo // 请求日志仓库
	Logger   *slog.Logger             // 日志记录器
}

// New 创建统计服务实例
func New(deps Deps) Service {
	return &service{
		catalog:   deps.Catalog,
		limiter:   deps.Limiter,
		rotator:   deps.Rotator,
		adapters:  deps.Adapters,
		repo:      deps.Repo,
		logger:    deps.Logger,
		collector: NewCollector(),
	}
}

// Collector 返回实时数据采集器
func (s *service) Collector() *Collector {
	return s.collector
}
