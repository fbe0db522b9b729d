package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/MeowSalty/relay/gateway/types"
)

// 路由目录文件名，全部位于 -config-dir 指定的目录下
const (
	providersFile = "providers.yaml"
	modelsFile    = "models.yaml"
	rolesFile     = "roles.yaml"
	limitsFile    = "limits.yaml"
	settingsFile  = "settings.toml"
)

// defaultCooldownSeconds 配置了轮换策略但未给出冷却时间时的默认值
const defaultCooldownSeconds = 60

// providersDoc providers.yaml 的文件结构
type providersDoc struct {
	Providers []providerSpec `yaml:"providers"`
}

type providerSpec struct {
	ID           string       `yaml:"id"`
	Kind         string       `yaml:"kind"`
	Format       string       `yaml:"format"`
	BaseURL      string       `yaml:"base_url"`
	Command      []string     `yaml:"command"`
	Credentials  []string     `yaml:"credentials"`
	Rotation     rotationSpec `yaml:"rotation"`
	Tier         string       `yaml:"tier"`
	GatingExempt bool         `yaml:"gating_exempt"`
}

type rotationSpec struct {
	Strategy        string `yaml:"strategy"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
}

// modelsDoc models.yaml 的文件结构
type modelsDoc struct {
	Models []modelSpec `yaml:"models"`
}

type modelSpec struct {
	ID        string `yaml:"id"`
	Provider  string `yaml:"provider"`
	Tier      string `yaml:"tier"`
	MaxTokens int    `yaml:"max_tokens"`
}

// rolesDoc roles.yaml 的文件结构
type rolesDoc struct {
	Roles []roleSpec `yaml:"roles"`
}

type roleSpec struct {
	Name       string   `yaml:"name"`
	ModelChain []string `yaml:"model_chain"`
	Model      string   `yaml:"model"`
	Providers  []string `yaml:"providers"`
	Budget     float64  `yaml:"budget"`
}

// limitsDoc limits.yaml 的文件结构
type limitsDoc struct {
	Defaults  limitSpec                       `yaml:"default_limits"`
	Providers map[string]map[string]limitSpec `yaml:"providers"`
}

type limitSpec struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

// Settings 路由行为设置（settings.toml，所有字段可选）
type Settings struct {
	MaxWaitSeconds     int      `toml:"max_wait_seconds"`
	CompletionReserve  int      `toml:"completion_reserve_tokens"`
	UsePaidModels      *bool    `toml:"use_paid_models"`
	AllowedTiers       []string `toml:"allowed_model_tiers"`
	HTTPTimeoutSeconds int      `toml:"http_timeout_seconds"`
	CLITimeoutSeconds  int      `toml:"cli_timeout_seconds"`
}

// Routing 合并后的路由行为生效值
//
// 为 0 的时长字段表示沿用各组件的内置默认值。
type Routing struct {
	MaxWait           time.Duration
	CompletionReserve int
	UsePaidModels     bool
	AllowedTiers      string // 逗号分隔，空表示未显式配置
	HTTPTimeout       time.Duration
	CLITimeout        time.Duration
}

// ResolveRouting 合并进程级配置与文件设置
//
// 优先级：命令行/环境变量 > settings.toml > 内置默认值。
// 付费层级默认放开，需显式设置 false 才收紧到免费层级；
// 布尔值大小写不敏感（TRUE/True/true 等价）。
func ResolveRouting(cfg *Config, settings *Settings) Routing {
	r := Routing{}

	maxWait := cfg.MaxWaitSeconds
	if maxWait <= 0 {
		maxWait = settings.MaxWaitSeconds
	}
	if maxWait > 0 {
		r.MaxWait = time.Duration(maxWait) * time.Second
	}

	r.CompletionReserve = cfg.CompletionReserve
	if r.CompletionReserve <= 0 {
		r.CompletionReserve = settings.CompletionReserve
	}

	switch {
	case cfg.UsePaidModels != "":
		r.UsePaidModels = strings.EqualFold(cfg.UsePaidModels, "true")
	case settings.UsePaidModels != nil:
		r.UsePaidModels = *settings.UsePaidModels
	default:
		r.UsePaidModels = true
	}

	r.AllowedTiers = cfg.AllowedTiers
	if r.AllowedTiers == "" && len(settings.AllowedTiers) > 0 {
		r.AllowedTiers = strings.Join(settings.AllowedTiers, ",")
	}

	httpTimeout := cfg.HTTPTimeoutSeconds
	if httpTimeout <= 0 {
		httpTimeout = settings.HTTPTimeoutSeconds
	}
	if httpTimeout > 0 {
		r.HTTPTimeout = time.Duration(httpTimeout) * time.Second
	}

	cliTimeout := cfg.CLITimeoutSeconds
	if cliTimeout <= 0 {
		cliTimeout = settings.CLITimeoutSeconds
	}
	if cliTimeout > 0 {
		r.CLITimeout = time.Duration(cliTimeout) * time.Second
	}

	return r
}

// LoadCatalog 从目录加载并校验路由目录
//
// providers.yaml 与 models.yaml 必须存在；roles.yaml、limits.yaml 与
// settings.toml 缺失时按空内容处理。所有文件在解析前先展开
// ${VAR} 与 ${VAR:-default} 形式的环境变量引用。
func LoadCatalog(dir string) (*types.Catalog, *Settings, error) {
	var pdoc providersDoc
	if err := loadYAML(filepath.Join(dir, providersFile), &pdoc, true); err != nil {
		return nil, nil, err
	}
	var mdoc modelsDoc
	if err := loadYAML(filepath.Join(dir, modelsFile), &mdoc, true); err != nil {
		return nil, nil, err
	}
	var rdoc rolesDoc
	if err := loadYAML(filepath.Join(dir, rolesFile), &rdoc, false); err != nil {
		return nil, nil, err
	}
	var ldoc limitsDoc
	if err := loadYAML(filepath.Join(dir, limitsFile), &ldoc, false); err != nil {
		return nil, nil, err
	}

	settings := &Settings{}
	if err := loadTOML(filepath.Join(dir, settingsFile), settings); err != nil {
		return nil, nil, err
	}

	catalog, err := assemble(&pdoc, &mdoc, &rdoc, &ldoc)
	if err != nil {
		return nil, nil, err
	}
	return catalog, settings, nil
}

// envPattern 匹配 ${VAR} 与 ${VAR:-default} 两种引用形式
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv 展开配置文本中的环境变量引用
//
// 变量未设置或为空时取 :- 后的默认值，没有默认值的展开为空串；
// 凭证列表中的空串会在装配阶段被过滤。
func expandEnv(raw []byte) []byte {
	return envPattern.ReplaceAllFunc(raw, func(m []byte) []byte {
		groups := envPattern.FindSubmatch(m)
		if value := os.Getenv(string(groups[1])); value != "" {
			return []byte(value)
		}
		return groups[2]
	})
}

// loadYAML 读取并解析单个 YAML 配置文件
func loadYAML(path string, v any, required bool) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if required {
			return fmt.Errorf("缺少路由配置文件：%s", path)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取路由配置文件失败：%w", err)
	}
	if err := yaml.Unmarshal(expandEnv(raw), v); err != nil {
		return fmt.Errorf("解析 %s 失败：%w", filepath.Base(path), err)
	}
	return nil
}

// loadTOML 读取并解析 TOML 设置文件，缺失时保持零值
func loadTOML(path string, v any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取设置文件失败：%w", err)
	}
	if err := toml.Unmarshal(expandEnv(raw), v); err != nil {
		return fmt.Errorf("解析 %s 失败：%w", filepath.Base(path), err)
	}
	return nil
}

// assemble 把解析后的文件内容装配成路由目录，并做引用完整性校验
func assemble(pdoc *providersDoc, mdoc *modelsDoc, rdoc *rolesDoc, ldoc *limitsDoc) (*types.Catalog, error) {
	catalog := &types.Catalog{
		Providers: make(map[string]*types.ProviderConfig, len(pdoc.Providers)),
		Models:    make(map[string]*types.ModelRoute, len(mdoc.Models)),
		Roles:     make(map[string]*types.RoleConfig, len(rdoc.Roles)),
	}

	for _, spec := range pdoc.Providers {
		provider, err := buildProvider(spec)
		if err != nil {
			return nil, err
		}
		if _, exists := catalog.Providers[provider.ID]; exists {
			return nil, types.NewConfigurationError("提供商标识重复：%s", provider.ID)
		}
		catalog.Providers[provider.ID] = provider
		catalog.ProviderOrder = append(catalog.ProviderOrder, provider.ID)
	}
	if len(catalog.Providers) == 0 {
		return nil, types.NewConfigurationError("providers.yaml 未定义任何提供商")
	}

	for _, spec := range mdoc.Models {
		route, err := buildModel(spec, catalog)
		if err != nil {
			return nil, err
		}
		if _, exists := catalog.Models[route.ID]; exists {
			return nil, types.NewConfigurationError("模型标识重复：%s", route.ID)
		}
		catalog.Models[route.ID] = route
		catalog.ModelOrder = append(catalog.ModelOrder, route.ID)
	}
	if len(catalog.Models) == 0 {
		return nil, types.NewConfigurationError("models.yaml 未定义任何模型")
	}

	for _, spec := range rdoc.Roles {
		role, err := buildRole(spec, catalog)
		if err != nil {
			return nil, err
		}
		if _, exists := catalog.Roles[role.Name]; exists {
			return nil, types.NewConfigurationError("角色名称重复：%s", role.Name)
		}
		catalog.Roles[role.Name] = role
	}

	table, err := buildLimits(ldoc, catalog)
	if err != nil {
		return nil, err
	}
	catalog.Limits = table

	return catalog, nil
}

func buildProvider(spec providerSpec) (*types.ProviderConfig, error) {
	if spec.ID == "" {
		return nil, types.NewConfigurationError("提供商缺少 id")
	}

	kind := types.ProviderKind(spec.Kind)
	switch kind {
	case types.ProviderKindHTTP:
		if spec.BaseURL == "" {
			return nil, types.NewConfigurationError("提供商 %s 缺少 base_url", spec.ID)
		}
		if spec.Format == "" {
			return nil, types.NewConfigurationError("提供商 %s 缺少 format", spec.ID)
		}
	case types.ProviderKindCLI:
		if len(spec.Command) == 0 {
			return nil, types.NewConfigurationError("提供商 %s 缺少 command", spec.ID)
		}
	default:
		return nil, types.NewConfigurationError("提供商 %s 的接入方式无效：%q", spec.ID, spec.Kind)
	}

	tier, err := types.ParseTier(spec.Tier)
	if err != nil {
		return nil, types.NewConfigurationError("提供商 %s 配置无效：%v", spec.ID, err)
	}

	// 过滤展开后为空的凭证（引用了未设置的环境变量）
	credentials := make([]string, 0, len(spec.Credentials))
	for _, c := range spec.Credentials {
		if c != "" {
			credentials = append(credentials, c)
		}
	}

	rotation := types.RotationPolicy{Strategy: spec.Rotation.Strategy}
	if rotation.Strategy != "" {
		if rotation.Strategy != types.RotationStrategyRoundRobin {
			return nil, types.NewConfigurationError("提供商 %s 的轮换策略不受支持：%q", spec.ID, rotation.Strategy)
		}
		cooldown := spec.Rotation.CooldownSeconds
		if cooldown <= 0 {
			cooldown = defaultCooldownSeconds
		}
		rotation.Cooldown = time.Duration(cooldown) * time.Second
	}

	return &types.ProviderConfig{
		ID:           spec.ID,
		Kind:         kind,
		Format:       spec.Format,
		BaseURL:      spec.BaseURL,
		Command:      spec.Command,
		Credentials:  credentials,
		Rotation:     rotation,
		Tier:         tier,
		GatingExempt: spec.GatingExempt,
	}, nil
}

func buildModel(spec modelSpec, catalog *types.Catalog) (*types.ModelRoute, error) {
	if spec.ID == "" {
		return nil, types.NewConfigurationError("模型缺少 id")
	}
	if _, ok := catalog.Providers[spec.Provider]; !ok {
		return nil, types.NewConfigurationError("模型 %s 引用了未知的提供商：%q", spec.ID, spec.Provider)
	}
	tier, err := types.ParseTier(spec.Tier)
	if err != nil {
		return nil, types.NewConfigurationError("模型 %s 配置无效：%v", spec.ID, err)
	}

	return &types.ModelRoute{
		ID:        spec.ID,
		Provider:  spec.Provider,
		Tier:      tier,
		MaxTokens: spec.MaxTokens,
	}, nil
}

func buildRole(spec roleSpec, catalog *types.Catalog) (*types.RoleConfig, error) {
	if spec.Name == "" {
		return nil, types.NewConfigurationError("角色缺少 name")
	}

	if len(spec.ModelChain) > 0 {
		for _, modelID := range spec.ModelChain {
			if _, ok := catalog.Models[modelID]; !ok {
				return nil, types.NewConfigurationError("角色 %s 的模型链引用了未登记的模型：%s", spec.Name, modelID)
			}
		}
	} else {
		if spec.Model == "" {
			return nil, types.NewConfigurationError("角色 %s 既没有 model_chain 也没有 model", spec.Name)
		}
		if _, ok := catalog.Models[spec.Model]; !ok {
			return nil, types.NewConfigurationError("角色 %s 引用了未登记的模型：%s", spec.Name, spec.Model)
		}
		for _, providerID := range spec.Providers {
			if _, ok := catalog.Providers[providerID]; !ok {
				return nil, types.NewConfigurationError("角色 %s 引用了未知的提供商：%s", spec.Name, providerID)
			}
		}
	}

	return &types.RoleConfig{
		Name:       spec.Name,
		ModelChain: spec.ModelChain,
		Model:      spec.Model,
		Providers:  spec.Providers,
		Budget:     spec.Budget,
	}, nil
}

func buildLimits(ldoc *limitsDoc, catalog *types.Catalog) (types.RateLimitTable, error) {
	table := types.RateLimitTable{
		Defaults: types.RateLimitRule{RPM: ldoc.Defaults.RPM, TPM: ldoc.Defaults.TPM},
	}
	if len(ldoc.Providers) == 0 {
		return table, nil
	}

	table.Providers = make(map[string]map[string]types.RateLimitRule, len(ldoc.Providers))
	for providerID, models := range ldoc.Providers {
		if _, ok := catalog.Providers[providerID]; !ok {
			return table, types.NewConfigurationError("limits.yaml 引用了未知的提供商：%s", providerID)
		}
		rules := make(map[string]types.RateLimitRule, len(models))
		for modelID, spec := range models {
			if _, ok := catalog.Models[modelID]; !ok {
				return table, types.NewConfigurationError("limits.yaml 引用了未登记的模型：%s/%s", providerID, modelID)
			}
			rules[modelID] = types.RateLimitRule{RPM: spec.RPM, TPM: spec.TPM}
		}
		table.Providers[providerID] = rules
	}
	return table, nil
}
