package adapter

import (
	"log/slog"
	"time"

	"github.com/MeowSalty/relay/gateway/adapter/auth"
	"github.com/MeowSalty/relay/gateway/types"
)

// Config 适配器构建配置
type Config struct {
	HTTPTimeout time.Duration // HTTP 提供商单次调用超时
	CLITimeout  time.Duration // CLI 提供商单次调用超时
}

// Registry 提供商适配器注册表
//
// 启动时按目录为每个提供商构建一个适配器实例，之后只读。
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry 根据提供商目录构建适配器注册表
//
// 未知的接入方式或 API 格式视为配置错误，启动即失败。
func NewRegistry(catalog *types.Catalog, cfg Config, logger *slog.Logger) (*Registry, error) {
	adapters := make(map[string]Adapter, len(catalog.Providers))

	for _, id := range catalog.ProviderOrder {
		provider := catalog.Providers[id]
		providerLogger := logger.With("provider", id)

		var a Adapter
		switch provider.Kind {
		case types.ProviderKindHTTP:
			switch provider.Format {
			case auth.FormatOpenAI:
				a = NewOpenAIAdapter(provider, cfg.HTTPTimeout, providerLogger)
			case auth.FormatGemini:
				a = NewGeminiAdapter(provider, cfg.HTTPTimeout, providerLogger)
			case auth.FormatAnthropic:
				a = NewAnthropicAdapter(provider, cfg.HTTPTimeout, providerLogger)
			default:
				return nil, types.NewConfigurationError("提供商 %s 使用了未知的 API 格式：%s", id, provider.Format)
			}
		case types.ProviderKindCLI:
			a = NewCLIAdapter(provider, cfg.CLITimeout, providerLogger)
		default:
			return nil, types.NewConfigurationError("提供商 %s 使用了未知的接入方式：%s", id, provider.Kind)
		}

		adapters[id] = a
	}

	return &Registry{adapters: adapters}, nil
}

// Register 注册或替换提供商的适配器
//
// 用于接入内建格式之外的自定义适配器实现，覆盖同名提供商的既有实例。
// 只应在装配阶段调用，注册表在路由开始后视为只读。
func (r *Registry) Register(providerID string, a Adapter) {
	if r.adapters == nil {
		r.adapters = make(map[string]Adapter)
	}
	r.adapters[providerID] = a
}

// Get 查找提供商的适配器
func (r *Registry) Get(providerID string) (Adapter, bool) {
	a, ok := r.adapters[providerID]
	return a, ok
}
