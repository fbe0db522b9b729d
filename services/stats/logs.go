package stats

import (
	"context"
	"fmt"
)

// Recent 实现获取最近请求日志的业务逻辑
//
// limit 非正时取仓库默认条数。
func (s *service) Recent(ctx context.Context, limit int) ([]*RequestLogView, error) {
	rows, err := s.repo.Recent(ctx, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "获取请求日志失败", "error", err)
		return nil, fmt.Errorf("获取请求日志失败：%w", err)
	}

	out := make([]*RequestLogView, len(rows))
	for i, row := range rows {
		view := &RequestLogView{
			ID:          row.ID,
			Timestamp:   row.Timestamp,
			Role:        row.Role,
			Model:       row.ModelName,
			Provider:    row.Provider,
			ServedModel: row.ServedModel,
			Success:     row.Success,
			Attempts:    row.Attempts,
			TotalTokens: row.TotalTokens,
			DurationMs:  float64(row.Duration) / 1000,
		}
		if row.ErrorMsg != nil {
			view.Error = *row.ErrorMsg
		}
		out[i] = view
	}

	return out, nil
}
