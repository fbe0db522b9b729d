package openai

import (
	"github.com/gofiber/fiber/v2"

	gwtypes "github.com/MeowSalty/relay/gateway/types"
	gatewayService "github.com/MeowSalty/relay/services/gateway"
)

// SetupOpenAIRoutes 配置 OpenAI 兼容 API 相关的路由
func SetupOpenAIRoutes(router fiber.Router, service gatewayService.Service, catalog *gwtypes.Catalog) {
	handler := New(service, catalog)

	router.Get("/models", handler.ListModels)
	router.Post("/chat/completions", handler.ChatCompletions)
}
