package types

import (
	"fmt"
	"time"
)

// ProviderKind 提供商接入方式
type ProviderKind string

const (
	ProviderKindHTTP ProviderKind = "http" // HTTP 接口提供商
	ProviderKindCLI  ProviderKind = "cli"  // 本地命令行提供商
)

// Tier 成本层级
type Tier string

const (
	TierFree        Tier = "free"
	TierCheap       Tier = "cheap"
	TierBudget      Tier = "budget"
	TierPerformance Tier = "performance"
	TierUltra       Tier = "ultra"
)

// AllTiers 全部层级，按成本从低到高排列
var AllTiers = []Tier{TierFree, TierCheap, TierBudget, TierPerformance, TierUltra}

// ParseTier 解析层级字符串
//
// 空字符串返回空层级（表示未设置），未知层级返回错误。
func ParseTier(s string) (Tier, error) {
	if s == "" {
		return "", nil
	}
	for _, t := range AllTiers {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("未知的成本层级：%q", s)
}

// RotationPolicy 凭证轮换策略
type RotationPolicy struct {
	Strategy string        `json:"strategy"`         // 轮换策略（目前仅支持 round_robin）
	Cooldown time.Duration `json:"cooldown_seconds"` // 轮换后新凭证的冷却时间
}

// RotationStrategyRoundRobin 目前唯一支持的轮换策略
const RotationStrategyRoundRobin = "round_robin"

// ProviderConfig 提供商配置
type ProviderConfig struct {
	ID           string         `json:"id"`             // 提供商标识
	Kind         ProviderKind   `json:"kind"`           // 接入方式（http 或 cli）
	Format       string         `json:"format"`         // API 格式（例如：openai, gemini, anthropic, claude-cli）
	BaseURL      string         `json:"base_url"`       // 基础 URL（HTTP 提供商）
	Command      []string       `json:"command"`        // 命令模板（CLI 提供商，{model} 占位符会被替换）
	Credentials  []string       `json:"-"`              // 有序凭证列表（不序列化，避免泄露）
	Rotation     RotationPolicy `json:"rotation"`       // 凭证轮换策略
	Tier         Tier           `json:"tier"`           // 成本层级
	GatingExempt bool           `json:"gating_exempt"`  // 是否豁免层级闸门（本地/免费提供商）
}

// RotationCapable 是否具备凭证轮换能力
//
// 需要同时满足：凭证多于一个，且配置了轮换策略。
func (p *ProviderConfig) RotationCapable() bool {
	return len(p.Credentials) > 1 && p.Rotation.Strategy != ""
}

// ModelRoute 模型路由配置
type ModelRoute struct {
	ID        string `json:"id"`         // 模型标识（全局唯一）
	Provider  string `json:"provider"`   // 所属提供商标识
	Tier      Tier   `json:"tier"`       // 层级覆盖（为空时继承提供商层级）
	MaxTokens int    `json:"max_tokens"` // 补全 token 上限（可选）
}

// RoleConfig 角色配置
//
// 两种模式二选一：model_chain（跨模型回退）或 model + providers（旧版单模型回退）。
type RoleConfig struct {
	Name       string   `json:"name"`        // 角色名称
	ModelChain []string `json:"model_chain"` // 按优先级排序的模型链
	Model      string   `json:"model"`       // 旧版模式：单个模型
	Providers  []string `json:"providers"`   // 旧版模式：提供商回退列表
	Budget     float64  `json:"budget"`      // 软预算上限（仅记录，路由器不强制）
}

// RateLimitRule 限流规则
type RateLimitRule struct {
	RPM int `json:"rpm"` // 每分钟请求数限制（0 表示不限制）
	TPM int `json:"tpm"` // 每分钟 Token 数限制（0 表示不限制）
}

// DefaultRateLimitRule 未配置限流时使用的保守默认值
var DefaultRateLimitRule = RateLimitRule{RPM: 60, TPM: 10000}

// RateLimitTable 限流表
type RateLimitTable struct {
	Providers map[string]map[string]RateLimitRule `json:"providers"`      // provider → model → 规则
	Defaults  RateLimitRule                       `json:"default_limits"` // 未命中时的默认规则
}

// Lookup 查找 (provider, model) 的限流规则
//
// 未配置的组合返回默认规则，保证未登记的模型仍可用（只是被保守限流）。
func (t *RateLimitTable) Lookup(provider, model string) RateLimitRule {
	if models, ok := t.Providers[provider]; ok {
		if rule, ok := models[model]; ok {
			return rule
		}
	}
	if t.Defaults.RPM == 0 && t.Defaults.TPM == 0 {
		return DefaultRateLimitRule
	}
	return t.Defaults
}

// Catalog 已解析的路由配置集合
//
// 由配置层装配并校验，核心组件只消费解析后的结构，不关心配置文件格式。
type Catalog struct {
	Providers map[string]*ProviderConfig
	Models    map[string]*ModelRoute
	Roles     map[string]*RoleConfig
	Limits    RateLimitTable

	// 保持配置文件中的原始顺序，用于确定性的列表输出
	ProviderOrder []string
	ModelOrder    []string
}

// Provider 按标识查找提供商
func (c *Catalog) Provider(id string) (*ProviderConfig, bool) {
	p, ok := c.Providers[id]
	return p, ok
}

// Model 按标识查找模型路由
func (c *Catalog) Model(id string) (*ModelRoute, bool) {
	m, ok := c.Models[id]
	return m, ok
}

// Role 按名称查找角色
func (c *Catalog) Role(name string) (*RoleConfig, bool) {
	r, ok := c.Roles[name]
	return r, ok
}

// EffectiveTier 计算模型的有效层级
//
// 模型覆盖优先，否则继承提供商层级；两者都未设置时视为 free。
func (c *Catalog) EffectiveTier(route *ModelRoute) Tier {
	if route.Tier != "" {
		return route.Tier
	}
	if p, ok := c.Providers[route.Provider]; ok && p.Tier != "" {
		return p.Tier
	}
	return TierFree
}
