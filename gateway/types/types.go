package types

import (
	"time"
)

// Request 路由请求
//
// Role、Model、ModelChain 三者只应设置其一：
//   - Role: 按角色配置解析候选链
//   - Model: 直接路由到单个模型
//   - ModelChain: 显式给出按优先级排序的模型链
type Request struct {
	Role       string   `json:"role,omitempty"`        // 角色名称
	Model      string   `json:"model,omitempty"`       // 显式模型标识
	ModelChain []string `json:"model_chain,omitempty"` // 显式模型链
	Prompt     string   `json:"prompt"`                // 提示词
	Params     Params   `json:"params,omitempty"`      // 采样参数
}

// Params 采样参数
type Params struct {
	Temperature *float64 `json:"temperature,omitempty"` // 采样温度
	MaxTokens   *int     `json:"max_tokens,omitempty"`  // 补全 token 上限
}

// Usage token 用量统计
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`     // 提示词 token 数
	CompletionTokens int `json:"completion_tokens"` // 补全 token 数
	TotalTokens      int `json:"total_tokens"`      // 总 token 数
}

// Outcome 单次路由尝试的结局
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"               // 调用成功
	OutcomeGated                Outcome = "gated"                 // 被层级策略跳过（未发起调用）
	OutcomeUnavailable          Outcome = "unavailable"           // 提供商不可用（未发起调用）
	OutcomeRateLimited          Outcome = "rate_limited"          // 被限流拒绝
	OutcomeCredentialsExhausted Outcome = "credentials_exhausted" // 该提供商全部凭证耗尽
	OutcomeTransientError       Outcome = "transient_error"       // 瞬时错误
	OutcomeFatalError           Outcome = "fatal_error"           // 致命错误
	OutcomeConfigError          Outcome = "config_error"          // 候选配置错误
)

// Attempt 单次路由尝试记录
//
// 每个候选产生至少一条记录，仅用于可观测性与聚合错误诊断，不做持久化。
type Attempt struct {
	Provider        string        `json:"provider"`         // 提供商标识
	Model           string        `json:"model"`            // 模型标识
	CredentialIndex int           `json:"credential_index"` // 使用的凭证序号（-1 表示未使用凭证）
	Outcome         Outcome       `json:"outcome"`          // 结局
	Latency         time.Duration `json:"latency"`          // 耗时
	Reason          string        `json:"reason,omitempty"` // 失败原因（成功时为空）
}

// Response 路由响应
type Response struct {
	ID       string        `json:"id"`       // 响应标识
	Text     string        `json:"text"`     // 补全文本
	Model    string        `json:"model"`    // 实际使用的模型
	Provider string        `json:"provider"` // 实际使用的提供商
	Usage    Usage         `json:"usage"`    // token 用量
	Latency  time.Duration `json:"latency"`  // 成功调用的耗时
	Attempts []Attempt     `json:"-"`        // 全部尝试记录（含之前失败的候选）
}

// ResultKind 适配器调用结果类别
type ResultKind int

const (
	ResultSuccess        ResultKind = iota // 调用成功
	ResultRateLimited                      // 命中配额限制（429 或等价信号）
	ResultTransientError                   // 瞬时错误（网络、5xx 等）
	ResultFatalError                       // 致命错误（认证失败、请求格式错误等）
)

// String 返回结果类别的可读名称
func (k ResultKind) String() string {
	switch k {
	case ResultSuccess:
		return "success"
	case ResultRateLimited:
		return "rate_limited"
	case ResultTransientError:
		return "transient_error"
	case ResultFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// Result 适配器调用结果
//
// Kind 决定哪些字段有效：Success 填充 Text/Usage/Latency；
// RateLimited 可附带 RetryHint；错误类结果携带 Err。
type Result struct {
	Kind      ResultKind    // 结果类别
	Text      string        // 补全文本（成功时）
	Usage     Usage         // token 用量（成功时）
	Latency   time.Duration // 调用耗时
	RetryHint time.Duration // 建议等待时间（RateLimited 时，可为 0）
	Err       error         // 失败原因（非成功时）
}

// Credential 轮换器发放的凭证
//
// 同时携带序号，便于路由追踪在不泄露凭证值的前提下定位问题。
type Credential struct {
	Value string // 凭证值
	Index int    // 在提供商凭证列表中的序号
}

// RequestLogEntry 一次路由调用的请求日志
//
// 由网关在每次路由结束后生成，交由日志仓库异步持久化。
type RequestLogEntry struct {
	RequestID string        // 响应标识（失败时为空）
	Role      string        // 请求指定的角色
	Model     string        // 请求指定的模型
	Provider  string        // 实际服务的提供商（失败时为空）
	Served    string        // 实际服务的模型（失败时为空）
	Success   bool          // 路由是否成功
	Attempts  int           // 尝试总数
	Usage     Usage         // token 用量（成功时）
	Duration  time.Duration // 路由总耗时（含等待）
	Error     string        // 失败原因（成功时为空）
	At        time.Time     // 请求开始时间
}
