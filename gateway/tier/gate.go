// Package tier 按成本层级对候选做准入过滤。
//
// 允许的层级集合在启动时根据配置计算一次，之后的判定是纯函数：
// 不做 I/O，不产生副作用。
package tier

import (
	"strings"

	"github.com/MeowSalty/relay/gateway/types"
)

// Gate 层级闸门
type Gate struct {
	catalog *types.Catalog
	allowed map[types.Tier]bool
}

// NewGate 创建层级闸门
func NewGate(catalog *types.Catalog, allowed []types.Tier) *Gate {
	set := make(map[types.Tier]bool, len(allowed))
	for _, t := range allowed {
		set[t] = true
	}
	return &Gate{catalog: catalog, allowed: set}
}

// Allowed 判定 (提供商, 模型) 是否通过层级闸门
//
// 有效层级取模型覆盖值，否则继承提供商层级。豁免闸门的提供商
// （本地或始终免费的提供商）无条件放行。
func (g *Gate) Allowed(provider *types.ProviderConfig, route *types.ModelRoute) bool {
	if provider.GatingExempt {
		return true
	}
	return g.allowed[g.catalog.EffectiveTier(route)]
}

// AllowedTiers 返回允许层级的有序列表（用于日志与状态输出）
func (g *Gate) AllowedTiers() []types.Tier {
	out := make([]types.Tier, 0, len(g.allowed))
	for _, t := range types.AllTiers {
		if g.allowed[t] {
			out = append(out, t)
		}
	}
	return out
}

// ResolvePolicy 根据配置计算允许的层级集合
//
// 显式层级列表（逗号分隔）优先生效；未设置时退回付费开关：
// 未启用付费 ⇒ 仅 free，启用付费 ⇒ 全部层级。
func ResolvePolicy(explicitList string, usePaid bool) ([]types.Tier, error) {
	if explicitList != "" {
		var tiers []types.Tier
		for _, part := range strings.Split(explicitList, ",") {
			part = strings.TrimSpace(strings.ToLower(part))
			if part == "" {
				continue
			}
			t, err := types.ParseTier(part)
			if err != nil {
				return nil, err
			}
			tiers = append(tiers, t)
		}
		if len(tiers) > 0 {
			return tiers, nil
		}
	}

	if usePaid {
		return append([]types.Tier(nil), types.AllTiers...), nil
	}
	return []types.Tier{types.TierFree}, nil
}
