package stats

import (
	"context"
	"fmt"
	"time"
)

// defaultDuration 默认统计时间范围
const defaultDuration = 24 * time.Hour

// Overview 实现获取全局概览数据的业务逻辑
//
// 聚合指定时间范围内的请求日志：总请求量、成功率、token 总量与
// 平均路由用时。
//
// 参数：
//   - ctx: 上下文，用于控制请求生命周期
//   - duration: 统计时间范围，0 值将使用默认的 24 小时
//
// 返回：
//   - *OverviewResponse: 概览数据
//   - error: 查询失败时返回错误
func (s *service) Overview(ctx context.Context, duration time.Duration) (*OverviewResponse, error) {
	if duration == 0 {
		duration = defaultDuration
	}
	since := time.Now().Add(-duration)

	summary, err := s.repo.Summary(ctx, since)
	if err != nil {
		s.logger.ErrorContext(ctx, "获取全局概览数据失败", "error", err)
		return nil, fmt.Errorf("获取全局概览数据失败：%w", err)
	}

	var successRate float64
	if summary.TotalRequests > 0 {
		successRate = float64(summary.SuccessCount) / float64(summary.TotalRequests)
	}

	return &OverviewResponse{
		TotalRequests: summary.TotalRequests,
		SuccessRate:   successRate,
		TotalTokens:   summary.TotalTokens,
		AvgDurationMs: summary.AvgDuration / 1000,
	}, nil
}
