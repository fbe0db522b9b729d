package config

import (
	"os"
	"strconv"
)

// Env 环境变量配置
type Env struct {
	Port               string
	Prod               bool
	DBType             string
	DBHost             string
	DBPort             string
	DBUser             string
	DBPass             string
	DBName             string
	DBSSLMode          string // PostgreSQL SSL 模式
	DBTLSConfig        string // MySQL TLS 配置
	APIToken           string
	AdminToken         string // 管理 API Token
	ConfigDir          string // 路由配置文件目录
	StateDir           string // 凭证轮换状态文件目录
	RotationStore      string // 轮换状态存储后端（db 或 file）
	MaxWaitSeconds     int    // 限流等待上限（秒）
	CompletionReserve  int    // 准入预估的补全预留 token 数
	UsePaidModels      string // 是否放开付费层级
	AllowedTiers       string // 逗号分隔的层级白名单
	HTTPTimeoutSeconds int    // HTTP 提供商调用超时（秒）
	CLITimeoutSeconds  int    // CLI 提供商调用超时（秒）
	ModelMapping       string // 模型映射规则，格式：key1:value1,key2:value2
	LogLevel           string // 日志输出等级
}

// LoadEnv 从环境变量加载配置
func LoadEnv() *Env {
	return &Env{
		Port:               getEnvOrDefault("PORT", ":3000"),
		Prod:               getEnvOrDefault("PROD", "") == "true",
		DBType:             getEnvOrDefault("DB_TYPE", "sqlite"),
		DBHost:             getEnvOrDefault("DB_HOST", ""),
		DBPort:             getEnvOrDefault("DB_PORT", ""),
		DBUser:             getEnvOrDefault("DB_USER", ""),
		DBPass:             getEnvOrDefault("DB_PASS", ""),
		DBName:             getEnvOrDefault("DB_NAME", ""),
		DBSSLMode:          getEnvOrDefault("DB_SSL_MODE", ""),
		DBTLSConfig:        getEnvOrDefault("DB_TLS_CONFIG", ""),
		APIToken:           getEnvOrDefault("API_TOKEN", ""),
		AdminToken:         getEnvOrDefault("ADMIN_TOKEN", ""),
		ConfigDir:          getEnvOrDefault("CONFIG_DIR", "config"),
		StateDir:           getEnvOrDefault("STATE_DIR", "data"),
		RotationStore:      getEnvOrDefault("ROTATION_STORE", "db"),
		MaxWaitSeconds:     getEnvIntOrDefault("MAX_WAIT_SECONDS", 0),
		CompletionReserve:  getEnvIntOrDefault("COMPLETION_RESERVE", 0),
		UsePaidModels:      getEnvOrDefault("USE_PAID_MODELS", ""),
		AllowedTiers:       getEnvOrDefault("ALLOWED_MODEL_TIERS", ""),
		HTTPTimeoutSeconds: getEnvIntOrDefault("HTTP_TIMEOUT_SECONDS", 0),
		CLITimeoutSeconds:  getEnvIntOrDefault("CLI_TIMEOUT_SECONDS", 0),
		ModelMapping:       getEnvOrDefault("MODEL_MAPPING", ""),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "INFO"),
	}
}

// getEnvOrDefault 获取环境变量，如果不存在则返回默认值
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault 获取整数环境变量，不存在或无法解析时返回默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
