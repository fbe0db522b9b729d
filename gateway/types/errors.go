package types

import (
	"fmt"
	"strings"
	"time"
)

// ConfigurationError 配置错误
//
// 表示路由请求引用了缺失或非法的配置（例如：角色未定义、模型未登记、
// 轮换提供商没有任何凭证）。对该次路由请求而言是致命的，直接上报调用方。
type ConfigurationError struct {
	Reason string // 错误描述
}

func (e *ConfigurationError) Error() string {
	return "配置错误：" + e.Reason
}

// NewConfigurationError 构造配置错误
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// RateLimitedError 限流拒绝
//
// 内部驱动信号：触发轮换或退避，仅在所有候选耗尽时随聚合错误透出。
type RateLimitedError struct {
	Provider   string        // 提供商标识
	Model      string        // 模型标识
	RetryAfter time.Duration // 建议等待时间
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("限流拒绝：%s/%s（建议等待 %s）", e.Provider, e.Model, e.RetryAfter)
}

// AllCredentialsExhaustedError 单个提供商的全部凭证在一轮内耗尽
//
// 视为该候选失败，路由继续尝试下一个候选。
type AllCredentialsExhaustedError struct {
	Provider string // 提供商标识
	Attempts int    // 本轮尝试的凭证数
}

func (e *AllCredentialsExhaustedError) Error() string {
	return fmt.Sprintf("提供商 %s 的全部 %d 个凭证均因配额耗尽", e.Provider, e.Attempts)
}

// TransientError 瞬时错误
//
// 网络或提供商侧的非配额故障，立即转向下一个候选，不触发轮换。
type TransientError struct {
	Cause error // 底层原因
}

func (e *TransientError) Error() string {
	return "瞬时错误：" + e.Cause.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// FatalError 致命错误
//
// 提供商返回不可重试的失败（请求格式错误、与配额无关的认证失败等），
// 立即放弃该候选。与瞬时错误分开记录，便于区分「临时故障」与「配置问题」。
type FatalError struct {
	Cause error // 底层原因
}

func (e *FatalError) Error() string {
	return "致命错误：" + e.Cause.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// AllProvidersExhaustedError 所有候选均失败
//
// 终态错误：携带按尝试顺序排列的各候选失败记录，供调用方诊断。
// 路由器不会自动重试，由调用方决定是否稍后重发。
type AllProvidersExhaustedError struct {
	Attempts []Attempt // 按顺序排列的尝试记录
}

func (e *AllProvidersExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("所有候选均失败")
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString("：")
		} else {
			b.WriteString("；")
		}
		fmt.Fprintf(&b, "%s/%s %s", a.Provider, a.Model, a.Outcome)
		if a.Reason != "" {
			fmt.Fprintf(&b, "（%s）", a.Reason)
		}
	}
	return b.String()
}
