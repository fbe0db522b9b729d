package stats

import (
	"log/slog"
	"time"

	"github.com/MeowSalty/relay/database"
	"github.com/MeowSalty/relay/gateway/adapter"
	"github.com/MeowSalty/relay/gateway/ratelimit"
	"github.com/MeowSalty/relay/gateway/rotation"
	"github.com/MeowSalty/relay/gateway/types"
)

// service 是 Service 接口的具体实现
type service struct {
	catalog   *types.Catalog
	limiter   *ratelimit.Limiter
	rotator   *rotation.Rotator
	adapters  *adapter.Registry
	repo      *database.RequestLogRepo
	logger    *slog.Logger
	collector *Collector
}

// RealtimeResponse 定义了实时数据的响应结构
type RealtimeResponse struct {
	RPM               int64 `json:"rpm"`                // 过去 60 秒的请求数
	ActiveConnections int64 `json:"active_connections"` // 当前活动连接数
}

// ModelUsage 单个模型在滚动窗口内的用量与限额
type ModelUsage struct {
	Model    string `json:"model"`     // 模型标识
	Provider string `json:"provider"`  // 所属提供商
	Requests int    `json:"requests"`  // 窗口内请求数
	Tokens   int    `json:"tokens"`    // 窗口内 token 数
	RPMLimit int    `json:"rpm_limit"` // 请求数限额（0 表示不限）
	TPMLimit int    `json:"tpm_limit"` // token 数限额（0 表示不限）
}

// UsageResponse 定义了窗口用量快照的响应结构
type UsageResponse struct {
	WindowSeconds int          `json:"window_seconds"` // 快照窗口长度（秒）
	Models        []ModelUsage `json:"models"`         // 按目录顺序排列的各模型用量
}

// RotationStatus 凭证轮换状态
type RotationStatus struct {
	Strategy        string     `json:"strategy"`             // 轮换策略
	CooldownSeconds int        `json:"cooldown_seconds"`     // 轮换后冷却时间（秒）
	CurrentIndex    int        `json:"current_index"`        // 当前凭证序号
	RotatedAt       *time.Time `json:"rotated_at,omitempty"` // 最近轮换时间（从未轮换时为空）
}

// ProviderStatus 单个提供商的运行状态
//
// 只暴露凭证数量与当前序号，凭证值永不出现在任何响应中。
type ProviderStatus struct {
	ID           string          `json:"id"`                 // 提供商标识
	Kind         string          `json:"kind"`               // 接入方式
	Format       string          `json:"format,omitempty"`   // API 格式（HTTP 提供商）
	Tier         string          `json:"tier"`               // 成本层级
	GatingExempt bool            `json:"gating_exempt"`      // 是否豁免层级闸门
	Available    bool            `json:"available"`          // 适配器当前是否可用
	Credentials  int             `json:"credentials"`        // 配置的凭证数量
	Rotation     *RotationStatus `json:"rotation,omitempty"` // 轮换状态（非轮换提供商为空）
}

// OverviewResponse 定义了全局概览数据的响应结构
type OverviewResponse struct {
	TotalRequests int64   `json:"total_requests"`  // 总请求量
	SuccessRate   float64 `json:"success_rate"`    // 成功率
	TotalTokens   int64   `json:"total_tokens"`    // 总 Token
	AvgDurationMs float64 `json:"avg_duration_ms"` // 平均路由用时（毫秒）
}

// RequestLogView 定义了请求日志列表项
type RequestLogView struct {
	ID          string    `json:"id"`                     // 日志标识
	Timestamp   time.Time `json:"timestamp"`              // 请求开始时间
	Role        string    `json:"role,omitempty"`         // 请求指定的角色
	Model       string    `json:"model,omitempty"`        // 请求指定的模型
	Provider    string    `json:"provider,omitempty"`     // 实际服务的提供商
	ServedModel string    `json:"served_model,omitempty"` // 实际服务的模型
	Success     bool      `json:"success"`                // 是否成功
	Attempts    int       `json:"attempts"`               // 尝试总数
	TotalTokens int       `json:"total_tokens"`           // token 总量
	DurationMs  float64   `json:"duration_ms"`            // 路由用时（毫秒）
	Error       string    `json:"error,omitempty"`        // 失败原因
}

// ProviderRankItem 定义了提供商排名项
type ProviderRankItem struct {
	Provider     string  `json:"provider"`      // 提供商标识
	RequestCount int64   `json:"request_count"` // 请求数量
	SuccessRate  float64 `json:"success_rate"`  // 成功率
	TotalTokens  int64   `json:"total_tokens"`  // token 总量
	Percentage   float64 `json:"percentage"`    // 请求量占比
}

// ProviderRankResponse 定义了提供商排名响应结构
type ProviderRankResponse struct {
	TotalRequests int64              `json:"total_requests"` // 命中提供商的请求总量
	Providers     []ProviderRankItem `json:"providers"`      // 按请求量降序的排名列表
}
