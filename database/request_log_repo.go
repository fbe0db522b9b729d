package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MeowSalty/relay/database/types"
	gwtypes "github.com/MeowSalty/relay/gateway/types"
)

// RequestLogRepo 请求日志仓库
//
// 实现网关的日志持久化接口，并为统计 API 提供聚合查询。
type RequestLogRepo struct {
	db *gorm.DB
}

// NewRequestLogRepo 创建请求日志仓库
func NewRequestLogRepo(db *gorm.DB) *RequestLogRepo {
	return &RequestLogRepo{db: db}
}

// CreateRequestLog 持久化一条路由日志
func (r *RequestLogRepo) CreateRequestLog(ctx context.Context, entry *gwtypes.RequestLogEntry) error {
	row := types.RequestLog{
		ID:               entry.RequestID,
		Timestamp:        entry.At,
		Role:             entry.Role,
		ModelName:        entry.Model,
		Provider:         entry.Provider,
		ServedModel:      entry.Served,
		Duration:         entry.Duration.Microseconds(),
		Attempts:         entry.Attempts,
		PromptTokens:     entry.Usage.PromptTokens,
		CompletionTokens: entry.Usage.CompletionTokens,
		TotalTokens:      entry.Usage.TotalTokens,
		Success:          entry.Success,
	}
	// 失败的请求没有响应标识，生成一个保证主键非空
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if entry.Error != "" {
		msg := entry.Error
		row.ErrorMsg = &msg
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("写入请求日志失败：%w", err)
	}
	return nil
}

// UsageSummary 一段时间内的请求聚合指标
type UsageSummary struct {
	TotalRequests int64   `json:"total_requests"` // 请求总数
	SuccessCount  int64   `json:"success_count"`  // 成功请求数
	TotalTokens   int64   `json:"total_tokens"`   // token 总量
	AvgDuration   float64 `json:"avg_duration"`   // 平均用时（微秒）
}

// Summary 统计给定时间之后的请求聚合指标
func (r *RequestLogRepo) Summary(ctx context.Context, since time.Time) (*UsageSummary, error) {
	var out UsageSummary
	err := r.db.WithContext(ctx).Model(&types.RequestLog{}).
		Select("COUNT(*) AS total_requests",
			"SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count",
			"COALESCE(SUM(total_tokens), 0) AS total_tokens",
			"COALESCE(AVG(duration), 0) AS avg_duration").
		Where("timestamp >= ?", since).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("统计请求聚合指标失败：%w", err)
	}
	return &out, nil
}

// ProviderUsage 单个提供商的请求聚合指标
type ProviderUsage struct {
	Provider      string `json:"provider"`       // 提供商标识
	TotalRequests int64  `json:"total_requests"` // 请求总数
	SuccessCount  int64  `json:"success_count"`  // 成功请求数
	TotalTokens   int64  `json:"total_tokens"`   // token 总量
}

// ProviderBreakdown 按提供商统计给定时间之后的请求指标
//
// 只统计实际命中提供商的请求（路由失败且未落到任何提供商的不计入）。
func (r *RequestLogRepo) ProviderBreakdown(ctx context.Context, since time.Time) ([]ProviderUsage, error) {
	var out []ProviderUsage
	err := r.db.WithContext(ctx).Model(&types.RequestLog{}).
		Select("provider",
			"COUNT(*) AS total_requests",
			"SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count",
			"COALESCE(SUM(total_tokens), 0) AS total_tokens").
		Where("timestamp >= ? AND provider <> ''", since).
		Group("provider").
		Order("total_requests DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("按提供商统计请求指标失败：%w", err)
	}
	return out, nil
}

// Recent 返回最近的请求日志，按时间倒序
func (r *RequestLogRepo) Recent(ctx context.Context, limit int) ([]types.RequestLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []types.RequestLog
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询请求日志失败：%w", err)
	}
	return rows, nil
}
