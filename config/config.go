package config

import (
	"flag"
)

// Config 应用配置
//
// 进程级配置的优先级为：命令行参数 > 环境变量 > settings.toml 中的
// 路由设置（仅路由行为字段参与第三级合并，见 ResolveRouting）。
type Config struct {
	// 服务器配置
	Port string
	Prod bool

	// 数据库配置
	DBType      string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPass      string
	DBName      string
	DBSSLMode   string
	DBTLSConfig string

	// API Token 配置
	APIToken   string
	AdminToken string

	// 路由目录配置
	ConfigDir     string // providers.yaml 等路由配置文件所在目录
	StateDir      string // 凭证轮换状态文件目录
	RotationStore string // 轮换状态存储后端（db 或 file）

	// 路由行为配置（0 或空表示未设置，交由 settings.toml 与内置默认值决定）
	MaxWaitSeconds    int    // 限流等待上限（秒）
	CompletionReserve int    // 准入预估时为补全预留的 token 数
	UsePaidModels     string // 是否放开付费层级（true/false，空表示未设置）
	AllowedTiers      string // 逗号分隔的层级白名单，非空时优先于 UsePaidModels

	// 提供商调用超时配置（秒，0 表示未设置）
	HTTPTimeoutSeconds int
	CLITimeoutSeconds  int

	// 模型映射规则配置
	ModelMapping string

	// 日志配置
	LogLevel string
}

// LoadConfig 加载配置
func LoadConfig() *Config {
	// 从环境变量加载默认值
	env := LoadEnv()

	cfg := &Config{
		Port:               env.Port,
		Prod:               env.Prod,
		DBType:             env.DBType,
		DBHost:             env.DBHost,
		DBPort:             env.DBPort,
		DBUser:             env.DBUser,
		DBPass:             env.DBPass,
		DBName:             env.DBName,
		DBSSLMode:          env.DBSSLMode,
		DBTLSConfig:        env.DBTLSConfig,
		APIToken:           env.APIToken,
		AdminToken:         env.AdminToken,
		ConfigDir:          env.ConfigDir,
		StateDir:           env.StateDir,
		RotationStore:      env.RotationStore,
		MaxWaitSeconds:     env.MaxWaitSeconds,
		CompletionReserve:  env.CompletionReserve,
		UsePaidModels:      env.UsePaidModels,
		AllowedTiers:       env.AllowedTiers,
		HTTPTimeoutSeconds: env.HTTPTimeoutSeconds,
		CLITimeoutSeconds:  env.CLITimeoutSeconds,
		ModelMapping:       env.ModelMapping,
		LogLevel:           env.LogLevel,
	}

	// 从命令行参数加载配置
	cfg.loadFlags()

	return cfg
}

// loadFlags 从命令行参数加载配置
func (c *Config) loadFlags() {
	flag.StringVar(&c.Port, "port", c.Port, "监听端口")
	flag.BoolVar(&c.Prod, "prod", c.Prod, "在生产环境中启用 prefork")

	// 数据库相关参数
	flag.StringVar(&c.DBType, "db-type", c.DBType, "数据库类型 (sqlite, mysql, postgres)")
	flag.StringVar(&c.DBHost, "db-host", c.DBHost, "数据库主机地址")
	flag.StringVar(&c.DBPort, "db-port", c.DBPort, "数据库端口")
	flag.StringVar(&c.DBUser, "db-user", c.DBUser, "数据库用户名")
	flag.StringVar(&c.DBPass, "db-pass", c.DBPass, "数据库密码")
	flag.StringVar(&c.DBName, "db-name", c.DBName, "数据库名称")
	flag.StringVar(&c.DBSSLMode, "db-ssl-mode", c.DBSSLMode, "PostgreSQL SSL 模式 (disable, require, verify-ca, verify-full)")
	flag.StringVar(&c.DBTLSConfig, "db-tls-config", c.DBTLSConfig, "MySQL TLS 配置 (true, false, skip-verify, preferred)")

	// API Token 参数
	flag.StringVar(&c.APIToken, "api-token", c.APIToken, "API Token，如果为空则不启用身份验证")
	flag.StringVar(&c.AdminToken, "admin-token", c.AdminToken, "管理 API Token，如果为空则使用 API Token")

	// 路由目录参数
	flag.StringVar(&c.ConfigDir, "config-dir", c.ConfigDir, "路由配置文件目录")
	flag.StringVar(&c.StateDir, "state-dir", c.StateDir, "凭证轮换状态文件目录")
	flag.StringVar(&c.RotationStore, "rotation-store", c.RotationStore, "轮换状态存储后端 (db, file)")

	// 路由行为参数
	flag.IntVar(&c.MaxWaitSeconds, "max-wait", c.MaxWaitSeconds, "限流等待上限（秒），0 表示使用 settings.toml 或内置默认值")
	flag.IntVar(&c.CompletionReserve, "completion-reserve", c.CompletionReserve, "准入预估时为补全预留的 token 数")
	flag.StringVar(&c.UsePaidModels, "use-paid-models", c.UsePaidModels, "是否放开付费层级 (true/false)")
	flag.StringVar(&c.AllowedTiers, "allowed-tiers", c.AllowedTiers, "逗号分隔的层级白名单，非空时优先于 -use-paid-models")

	// 提供商调用超时参数
	flag.IntVar(&c.HTTPTimeoutSeconds, "http-timeout", c.HTTPTimeoutSeconds, "HTTP 提供商单次调用超时（秒）")
	flag.IntVar(&c.CLITimeoutSeconds, "cli-timeout", c.CLITimeoutSeconds, "CLI 提供商单次调用超时（秒）")

	// 模型映射规则参数
	flag.StringVar(&c.ModelMapping, "model-mapping", c.ModelMapping, "模型映射规则，格式：key1:value1,key2:value2")

	// 日志等级参数
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "日志输出等级 (DEBUG, INFO, WARN, ERROR)")

	flag.Parse()
}
