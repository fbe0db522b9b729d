package gateway

import (
	"github.com/MeowSalty/relay/gateway/types"
)

// candidate 一次路由尝试的 (模型, 提供商) 组合
type candidate struct {
	route    *types.ModelRoute
	provider *types.ProviderConfig
}

// candidates 把请求解析为按优先级排序的候选列表
//
// 三种寻址方式按优先级取其一：显式模型链 > 角色 > 单个模型。
// 引用了未登记的模型、提供商或角色均返回配置错误。
func (g *Gateway) candidates(req *types.Request) ([]candidate, error) {
	switch {
	case len(req.ModelChain) > 0:
		return g.chainCandidates(req.ModelChain)
	case req.Role != "":
		return g.roleCandidates(req.Role)
	case req.Model != "":
		return g.chainCandidates([]string{req.Model})
	default:
		return nil, types.NewConfigurationError("请求未指定角色、模型或模型链")
	}
}

// chainCandidates 把模型链解析为候选列表，保持链内顺序
func (g *Gateway) chainCandidates(chain []string) ([]candidate, error) {
	out := make([]candidate, 0, len(chain))
	for _, modelID := range chain {
		route, ok := g.catalog.Model(modelID)
		if !ok {
			return nil, types.NewConfigurationError("未登记的模型：%s", modelID)
		}
		provider, ok := g.catalog.Provider(route.Provider)
		if !ok {
			return nil, types.NewConfigurationError("模型 %s 引用了未知的提供商：%s", modelID, route.Provider)
		}
		out = append(out, candidate{route: route, provider: provider})
	}
	return out, nil
}

// roleCandidates 解析角色配置
//
// 配置了 model_chain 时等同于显式模型链；否则走旧版模式：
// 单个模型先在它自己的提供商上尝试，再依次配对回退列表中的提供商。
func (g *Gateway) roleCandidates(name string) ([]candidate, error) {
	role, ok := g.catalog.Role(name)
	if !ok {
		return nil, types.NewConfigurationError("未定义的角色：%s", name)
	}

	if len(role.ModelChain) > 0 {
		return g.chainCandidates(role.ModelChain)
	}

	if role.Model == "" {
		return nil, types.NewConfigurationError("角色 %s 既没有 model_chain 也没有 model", name)
	}

	route, ok := g.catalog.Model(role.Model)
	if !ok {
		return nil, types.NewConfigurationError("角色 %s 引用了未登记的模型：%s", name, role.Model)
	}
	primary, ok := g.catalog.Provider(route.Provider)
	if !ok {
		return nil, types.NewConfigurationError("模型 %s 引用了未知的提供商：%s", role.Model, route.Provider)
	}

	out := []candidate{{route: route, provider: primary}}
	for _, providerID := range role.Providers {
		if providerID == route.Provider {
			// 主提供商已在首位
			continue
		}
		provider, ok := g.catalog.Provider(providerID)
		if !ok {
			return nil, types.NewConfigurationError("角色 %s 引用了未知的提供商：%s", name, providerID)
		}
		out = append(out, candidate{route: route, provider: provider})
	}
	return out, nil
}
