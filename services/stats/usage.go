package stats

import (
	"github.com/MeowSalty/relay/gateway/ratelimit"
)

// Usage 实现获取窗口用量快照的业务逻辑
//
// 按目录顺序遍历所有模型，取限流器滚动窗口内的请求数与 token 数，
// 连同生效的限额一起返回。
func (s *service) Usage() *UsageResponse {
	models := make([]ModelUsage, 0, len(s.catalog.Models))

	for _, id := range s.catalog.ModelOrder {
		route, ok := s.catalog.Model(id)
		if !ok {
			continue
		}

		requests, tokens := s.limiter.Usage(route.Provider, route.ID)
		rule := s.limiter.Rule(route.Provider, route.ID)

		models = append(models, ModelUsage{
			Model:    route.ID,
			Provider: route.Provider,
			Requests: requests,
			Tokens:   tokens,
			RPMLimit: rule.RPM,
			TPMLimit: rule.TPM,
		})
	}

	return &UsageResponse{
		WindowSeconds: int(ratelimit.Window.Seconds()),
		Models:        models,
	}
}
