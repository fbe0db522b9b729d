package gateway

import (
	"context"
	"time"

	"github.com/MeowSalty/relay/gateway/types"
)

// recordAttempt 追加一条尝试记录并按结局写日志
//
// 跳过类结局（闸门、不可用）只记 Debug，失败记 Warn，成功记 Info，
// 保证一次路由的完整轨迹可以从日志中复原。
func (g *Gateway) recordAttempt(attempts []types.Attempt, a types.Attempt) []types.Attempt {
	attrs := []any{
		"provider", a.Provider,
		"model", a.Model,
		"outcome", string(a.Outcome),
	}
	if a.CredentialIndex >= 0 {
		attrs = append(attrs, "credential_index", a.CredentialIndex)
	}
	if a.Latency > 0 {
		attrs = append(attrs, "latency", a.Latency)
	}
	if a.Reason != "" {
		attrs = append(attrs, "reason", a.Reason)
	}

	switch a.Outcome {
	case types.OutcomeSuccess:
		g.logger.Info("候选调用成功", attrs...)
	case types.OutcomeGated, types.OutcomeUnavailable:
		g.logger.Debug("跳过候选", attrs...)
	default:
		g.logger.Warn("候选调用失败", attrs...)
	}

	return append(attempts, a)
}

// saveRequestLog 异步持久化请求日志
//
// 持久化失败只记警告，绝不影响路由结果的返回。
func (g *Gateway) saveRequestLog(req *types.Request, resp *types.Response, attempts []types.Attempt, start time.Time, routeErr error) {
	if g.logRepo == nil {
		return
	}

	entry := &types.RequestLogEntry{
		Role:     req.Role,
		Model:    req.Model,
		Success:  resp != nil,
		Attempts: len(attempts),
		Duration: time.Since(start),
		At:       start,
	}
	if resp != nil {
		entry.RequestID = resp.ID
		entry.Provider = resp.Provider
		entry.Served = resp.Model
		entry.Usage = resp.Usage
	}
	if routeErr != nil {
		entry.Error = routeErr.Error()
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := g.logRepo.CreateRequestLog(ctx, entry); err != nil {
			g.logger.Warn("保存请求日志失败", "error", err)
		}
	}()
}
