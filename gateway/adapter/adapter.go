// Package adapter 定义提供商客户端适配器契约及各类实现。
//
// 路由器只依赖 Adapter 接口：每个提供商实现把自家的线上协议（HTTP API
// 或本地命令行）归一为统一的调用结果。结果分四类：成功、限流、瞬时
// 错误、致命错误，由路由器据此决定轮换、回退或放弃。
package adapter

import (
	"context"
	"time"

	"github.com/MeowSalty/relay/gateway/types"
)

// DefaultTemperature 未指定采样温度时的默认值
const DefaultTemperature = 0.1

// DefaultTimeout 未配置时的单次调用超时
const DefaultTimeout = 30 * time.Second

// Adapter 提供商客户端适配器
type Adapter interface {
	// Complete 发起一次补全调用
	//
	// 返回的 Result 永远非 nil；所有失败都已归类到四类结果之一，
	// 不会抛出未分类的错误。
	Complete(ctx context.Context, prompt, model string, credential types.Credential, params types.Params) *types.Result

	// Available 提供商当前是否可用
	//
	// 必须是廉价调用（结果可缓存）；不可用的提供商会被路由器直接跳过。
	Available() bool
}

// success 构造成功结果
func success(text string, usage types.Usage, latency time.Duration) *types.Result {
	return &types.Result{Kind: types.ResultSuccess, Text: text, Usage: usage, Latency: latency}
}

// rateLimited 构造限流结果
func rateLimited(err error, hint, latency time.Duration) *types.Result {
	return &types.Result{Kind: types.ResultRateLimited, Err: err, RetryHint: hint, Latency: latency}
}

// transient 构造瞬时错误结果
func transient(err error, latency time.Duration) *types.Result {
	return &types.Result{Kind: types.ResultTransientError, Err: err, Latency: latency}
}

// fatal 构造致命错误结果
func fatal(err error, latency time.Duration) *types.Result {
	return &types.Result{Kind: types.ResultFatalError, Err: err, Latency: latency}
}

// temperatureOrDefault 取采样温度，未指定时用默认值
func temperatureOrDefault(params types.Params) float64 {
	if params.Temperature != nil {
		return *params.Temperature
	}
	return DefaultTemperature
}
