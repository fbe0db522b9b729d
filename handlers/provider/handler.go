package provider

import (
	"github.com/gofiber/fiber/v2"

	gwtypes "github.com/MeowSalty/relay/gateway/types"
)

// Handler 路由目录查询处理器
//
// 目录由配置文件驱动，接口只读；凭证值在任何响应中都不出现，
// 只暴露数量。
type Handler struct {
	catalog *gwtypes.Catalog
}

// NewHandler 创建目录查询处理器实例
//
// 参数：
//   - catalog: 已解析的路由目录
//
// 返回值：
//   - *Handler: 处理器实例指针
func NewHandler(catalog *gwtypes.Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// ProviderView 提供商配置的对外视图
type ProviderView struct {
	ID           string   `json:"id"`                 // 提供商标识
	Kind         string   `json:"kind"`               // 接入方式（http 或 cli）
	Format       string   `json:"format,omitempty"`   // API 格式
	BaseURL      string   `json:"base_url,omitempty"` // 基础 URL（HTTP 提供商）
	Command      []string `json:"command,omitempty"`  // 命令模板（CLI 提供商）
	Tier         string   `json:"tier"`               // 成本层级
	GatingExempt bool     `json:"gating_exempt"`      // 是否豁免层级闸门
	Credentials  int      `json:"credentials"`        // 凭证数量
	Rotation     string   `json:"rotation,omitempty"` // 轮换策略（未配置时为空）
	Models       []string `json:"models"`             // 路由到该提供商的模型列表
}

// ModelView 模型路由的对外视图
type ModelView struct {
	ID        string `json:"id"`                   // 模型标识
	Provider  string `json:"provider"`             // 所属提供商标识
	Tier      string `json:"tier"`                 // 有效层级（含继承）
	MaxTokens int    `json:"max_tokens,omitempty"` // 补全 token 上限
}

// GetProviders 获取全部提供商配置
//
// 按配置文件中的原始顺序返回，每项附带路由到它的模型列表。
func (h *Handler) GetProviders(c *fiber.Ctx) error {
	// 预先按提供商归组模型，保持目录顺序
	modelsByProvider := make(map[string][]string, len(h.catalog.Providers))
	for _, id := range h.catalog.ModelOrder {
		route, ok := h.catalog.Model(id)
		if !ok {
			continue
		}
		modelsByProvider[route.Provider] = append(modelsByProvider[route.Provider], route.ID)
	}

	out := make([]ProviderView, 0, len(h.catalog.ProviderOrder))
	for _, id := range h.catalog.ProviderOrder {
		p, ok := h.catalog.Provider(id)
		if !ok {
			continue
		}

		view := ProviderView{
			ID:           p.ID,
			Kind:         string(p.Kind),
			Format:       p.Format,
			BaseURL:      p.BaseURL,
			Command:      p.Command,
			Tier:         string(p.Tier),
			GatingExempt: p.GatingExempt,
			Credentials:  len(p.Credentials),
			Rotation:     p.Rotation.Strategy,
			Models:       modelsByProvider[p.ID],
		}
		if view.Models == nil {
			view.Models = []string{}
		}
		out = append(out, view)
	}

	return c.JSON(out)
}

// GetModels 获取全部模型路由
//
// 按配置文件中的原始顺序返回，层级为计算后的有效层级。
func (h *Handler) GetModels(c *fiber.Ctx) error {
	out := make([]ModelView, 0, len(h.catalog.ModelOrder))
	for _, id := range h.catalog.ModelOrder {
		route, ok := h.catalog.Model(id)
		if !ok {
			continue
		}
		out = append(out, ModelView{
			ID:        route.ID,
			Provider:  route.Provider,
			Tier:      string(h.catalog.EffectiveTier(route)),
			MaxTokens: route.MaxTokens,
		})
	}

	return c.JSON(out)
}
