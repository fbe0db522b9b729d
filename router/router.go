package router

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/MeowSalty/relay/handlers/complete"
	"github.com/MeowSalty/relay/handlers/openai"
	"github.com/MeowSalty/relay/handlers/provider"
	"github.com/MeowSalty/relay/handlers/stats"
	"github.com/MeowSalty/relay/services"
	statsService "github.com/MeowSalty/relay/services/stats"
)

type Config struct {
	ApiToken   string
	AdminToken string
}

// SetupRoutes 配置 API 路由
//
// 路由分为两个面：/v1 是 OpenAI 兼容的业务面，/api 下的
// /complete 是原生业务面，其余 /api 端点为管理面。业务面
// 使用 API token 认证，管理面使用管理 token。
func SetupRoutes(web *fiber.App, svcs *services.Services, config Config) error {
	web.Use(cors.New())
	webAPI := web.Group("/api")
	openaiAPI := web.Group("/v1")

	// 为业务 API 添加统计采集中间件
	collector := svcs.StatsService.Collector()
	openaiAPI.Use(createStatsCollectorMiddleware(collector))
	webAPI.Use("/complete", createStatsCollectorMiddleware(collector))

	// 如果设置了 token，为业务 API 端点添加身份验证
	if config.ApiToken != "" {
		openaiAPI.Use(createAuthMiddleware(config.ApiToken))
		webAPI.Use("/complete", createAuthMiddleware(config.ApiToken))
	}

	// 如果设置了管理 token，为管理 API 端点添加身份验证
	if config.AdminToken != "" {
		webAPI.Use("/stats", createAuthMiddleware(config.AdminToken))
		webAPI.Use("/providers", createAuthMiddleware(config.AdminToken))
		webAPI.Use("/models", createAuthMiddleware(config.AdminToken))
	}

	webAPI.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "pong",
		})
	})

	openai.SetupOpenAIRoutes(openaiAPI, svcs.GatewayService, svcs.Catalog)
	complete.SetupCompleteRoutes(webAPI, svcs.GatewayService)
	provider.SetupProviderRoutes(webAPI, svcs.Catalog)
	stats.SetupStatsRoutes(webAPI, svcs.StatsService)

	return nil
}

// createAuthMiddleware 创建 Bearer token 身份验证中间件
func createAuthMiddleware(validToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 获取 Authorization 头
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "缺少 Authorization 头",
			})
		}

		// 验证 Bearer token 格式
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization 头格式无效，应为：Bearer <token>",
			})
		}

		// 验证 token
		token := parts[1]
		if subtle.ConstantTimeCompare([]byte(token), []byte(validToken)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "无效的 API token",
			})
		}

		// token 验证通过，继续处理请求
		return c.Next()
	}
}

// createStatsCollectorMiddleware 创建统计数据采集中间件
//
// 该中间件用于采集业务接口的请求数据和活动连接数。
// 所有响应均为非流式，请求完成后直接减少连接数。
func createStatsCollectorMiddleware(collector *statsService.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// 记录请求
		collector.RecordRequest()

		// 增加活动连接数，请求完成后释放
		collector.IncrementConnection()
		defer collector.DecrementConnection()

		return c.Next()
	}
}
