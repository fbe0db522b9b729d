package stats

import (
	"context"
	"fmt"
	"time"
)

// ProviderRank 实现获取提供商排名的业务逻辑
//
// 按请求量降序返回各提供商的聚合指标；占比以命中提供商的请求总量
// 为基数（路由失败且未落到任何提供商的请求不计入）。
func (s *service) ProviderRank(ctx context.Context, duration time.Duration) (*ProviderRankResponse, error) {
	if duration == 0 {
		duration = defaultDuration
	}
	since := time.Now().Add(-duration)

	breakdown, err := s.repo.ProviderBreakdown(ctx, since)
	if err != nil {
		s.logger.ErrorContext(ctx, "获取提供商排名失败", "error", err)
		return nil, fmt.Errorf("获取提供商排名失败：%w", err)
	}

	var total int64
	for _, item := range breakdown {
		total += item.TotalRequests
	}

	providers := make([]ProviderRankItem, len(breakdown))
	for i, item := range breakdown {
		rank := ProviderRankItem{
			Provider:     item.Provider,
			RequestCount: item.TotalRequests,
			TotalTokens:  item.TotalTokens,
		}
		if item.TotalRequests > 0 {
			rank.SuccessRate = float64(item.SuccessCount) / float64(item.TotalRequests)
		}
		if total > 0 {
			rank.Percentage = float64(item.TotalRequests) / float64(total)
		}
		providers[i] = rank
	}

	return &ProviderRankResponse{
		TotalRequests: total,
		Providers:     providers,
	}, nil
}
